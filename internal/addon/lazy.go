package addon

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// poEntry matches one gettext message block in a strings.po file. Kodi
// string ids are carried in the msgctxt as "#<id>".
var poEntry = regexp.MustCompile(`msgctxt\s+"#(\d+)"\s+msgid\s+"(.+?)"\s+msgstr\s+"(.*?)"`)

// EnsureLoaded populates the settings and strings maps. Idempotent; the
// maps are only read from disk on the first call so addons that are never
// invoked cost no I/O.
func (a *Addon) EnsureLoaded() error {
	if a.settings == nil {
		settings, err := a.loadSettings()
		if err != nil {
			return err
		}
		a.settings = settings
	}
	if a.strings == nil {
		a.strings = a.loadStrings()
	}
	return nil
}

// Setting returns a setting value, loading the maps first if needed.
func (a *Addon) Setting(id string) (string, error) {
	if err := a.EnsureLoaded(); err != nil {
		return "", err
	}
	return a.settings[id], nil
}

// LocalizedString returns the string for a Kodi string id, and whether the
// id is known.
func (a *Addon) LocalizedString(id int) (string, bool) {
	if err := a.EnsureLoaded(); err != nil {
		return "", false
	}
	s, ok := a.strings[id]
	return s, ok
}

// loadSettings merges the addon's shipped defaults with any values saved in
// the profile directory; profile values win.
func (a *Addon) loadSettings() (map[string]string, error) {
	settings := make(map[string]string)
	paths := []string{
		filepath.Join(a.Path, "resources", "settings.xml"),
		filepath.Join(a.ProfileDir, "settings.xml"),
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := parseSettings(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return settings, nil
}

// parseSettings walks every <setting> element regardless of nesting depth,
// taking value over default.
func parseSettings(data []byte, out map[string]string) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "setting" {
			continue
		}
		var id, value, def string
		var hasValue bool
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "id":
				id = attr.Value
			case "value":
				value = attr.Value
				hasValue = true
			case "default":
				def = attr.Value
			}
		}
		if id == "" {
			continue
		}
		if hasValue {
			out[id] = value
		} else {
			out[id] = def
		}
	}
}

// loadStrings reads the first strings.po found across the known english
// locations. Missing translations fall back to the msgid.
func (a *Addon) loadStrings() map[int]string {
	res := filepath.Join(a.Path, "resources")
	locations := []string{
		filepath.Join(res, "language", "resource.language.en_gb", "strings.po"),
		filepath.Join(res, "language", "resource.language.en_us", "strings.po"),
		filepath.Join(res, "language", "English", "strings.po"),
		filepath.Join(res, "strings.po"),
	}

	strings := make(map[int]string)
	for _, path := range locations {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		for _, match := range poEntry.FindAllSubmatch(data, -1) {
			id, err := strconv.Atoi(string(match[1]))
			if err != nil {
				continue
			}
			if msgstr := string(match[3]); msgstr != "" {
				strings[id] = msgstr
			} else {
				strings[id] = string(match[2])
			}
		}
		break
	}
	return strings
}

type settingEntry struct {
	XMLName xml.Name `xml:"setting"`
	ID      string   `xml:"id,attr"`
	Value   string   `xml:"value,attr"`
}

type settingsFile struct {
	XMLName  xml.Name       `xml:"settings"`
	Settings []settingEntry `xml:"setting"`
}

// SetSetting persists one setting to the profile settings.xml and updates
// the in-memory map.
func (a *Addon) SetSetting(id, value string) error {
	if err := a.EnsureLoaded(); err != nil {
		return err
	}

	path := filepath.Join(a.ProfileDir, "settings.xml")
	var file settingsFile
	if data, err := os.ReadFile(path); err == nil {
		// Best effort: an unreadable profile file is simply replaced.
		_ = xml.Unmarshal(data, &file)
	} else if err := os.MkdirAll(a.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("failed to create profile dir: %w", err)
	}

	replaced := false
	for i := range file.Settings {
		if file.Settings[i].ID == id {
			file.Settings[i].Value = value
			replaced = true
			break
		}
	}
	if !replaced {
		file.Settings = append(file.Settings, settingEntry{ID: id, Value: value})
	}

	data, err := xml.MarshalIndent(file, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	a.settings[id] = value
	return nil
}
