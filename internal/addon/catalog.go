package addon

import (
	"encoding/xml"
	"fmt"
)

type catalogXML struct {
	XMLName xml.Name      `xml:"addons"`
	Addons  []manifestXML `xml:"addon"`
}

// ParseCatalog parses a repository addons.xml listing. Entries this tool
// cannot run or link against (skins, services, repository addons) are
// dropped rather than failing the whole catalog; skipped reports how many
// were dropped.
func ParseCatalog(data []byte) (addons []*Addon, skipped int, err error) {
	var c catalogXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, 0, fmt.Errorf("failed to parse catalog: %w", err)
	}

	for i := range c.Addons {
		a, err := fromManifest(&c.Addons[i], "")
		if err != nil {
			skipped++
			continue
		}
		addons = append(addons, a)
	}
	return addons, skipped, nil
}
