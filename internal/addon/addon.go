// Package addon parses Kodi addon.xml manifests into descriptors and gives
// lazy access to an addon's settings and localized strings.
package addon

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extension points this tool knows how to run or link against.
const (
	ExtPluginSource = "xbmc.python.pluginsource"
	ExtModule       = "xbmc.python.module"
	ExtLanguage     = "kodi.resource.language"

	// extMetadata carries descriptions and assets. It is never an entry
	// point and must not be mistaken for one.
	extMetadata = "xbmc.addon.metadata"
)

// ErrManifestInvalid reports a missing or unusable addon.xml.
var ErrManifestInvalid = errors.New("invalid addon manifest")

// ignoredImports are capabilities the host always provides. They never
// appear in a descriptor's dependency list.
var ignoredImports = map[string]bool{
	"xbmc.python":   true,
	"xbmc.core":     true,
	"kodi.resource": true,
}

type langText struct {
	Lang string `xml:"lang,attr"`
	Text string `xml:",chardata"`
}

type assetsXML struct {
	Icon   string `xml:"icon"`
	Fanart string `xml:"fanart"`
}

type extensionXML struct {
	Point        string     `xml:"point,attr"`
	Library      string     `xml:"library,attr"`
	Provides     string     `xml:"provides"`
	Descriptions []langText `xml:"description"`
	Summaries    []langText `xml:"summary"`
	Disclaimers  []langText `xml:"disclaimer"`
	News         string     `xml:"news"`
	Assets       *assetsXML `xml:"assets"`
}

type importXML struct {
	Addon    string `xml:"addon,attr"`
	Version  string `xml:"version,attr"`
	Optional string `xml:"optional,attr"`
}

type manifestXML struct {
	XMLName    xml.Name       `xml:"addon"`
	ID         string         `xml:"id,attr"`
	Version    string         `xml:"version,attr"`
	Name       string         `xml:"name,attr"`
	Provider   string         `xml:"provider-name,attr"`
	Extensions []extensionXML `xml:"extension"`
	Imports    []importXML    `xml:"requires>import"`
}

// Addon is the descriptor built from one addon.xml. Identity and version
// are immutable; the settings and strings maps are populated lazily by
// EnsureLoaded.
type Addon struct {
	ID      string
	Version string
	Name    string
	Author  string

	// Type is the recognized extension point: ExtPluginSource, ExtModule
	// or ExtLanguage.
	Type string

	// Library is the entry point (plugin source) or import root (module),
	// relative to Path.
	Library  string
	Provides string

	// Path is the directory holding addon.xml. Empty for catalog entries
	// that have not been downloaded yet.
	Path string

	// ProfileDir is where persisted settings live. Assigned by whichever
	// repository loads the descriptor.
	ProfileDir string

	manifest *manifestXML
	deps     []Dependency

	settings map[string]string
	strings  map[int]string
}

// FromFile reads the manifest at xmlPath. The addon's Path becomes the
// manifest's directory.
func FromFile(xmlPath string) (*Addon, error) {
	data, err := os.ReadFile(xmlPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestInvalid, xmlPath, err)
	}
	return FromBytes(data, filepath.Dir(xmlPath))
}

// FromBytes parses manifest bytes, binding the descriptor to path. Catalog
// entries pass an empty path.
func FromBytes(data []byte, path string) (*Addon, error) {
	var m manifestXML
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	return fromManifest(&m, path)
}

func fromManifest(m *manifestXML, path string) (*Addon, error) {
	a := &Addon{
		ID:       m.ID,
		Version:  m.Version,
		Name:     m.Name,
		Author:   m.Provider,
		Path:     path,
		manifest: m,
	}
	if a.ID == "" || a.Version == "" {
		return nil, fmt.Errorf("%w: missing id or version attribute", ErrManifestInvalid)
	}

	// The first browsable, library or language extension point decides the
	// type. Metadata blocks are skipped.
	for _, ext := range m.Extensions {
		if ext.Point == ExtPluginSource || ext.Point == ExtModule || ext.Point == ExtLanguage {
			a.Type = ext.Point
			a.Library = ext.Library
			a.Provides = strings.TrimSpace(ext.Provides)
			break
		}
	}
	if a.Type == "" {
		return nil, fmt.Errorf("%w: %s declares no runnable extension point", ErrManifestInvalid, a.ID)
	}

	for _, imp := range m.Imports {
		if ignoredImports[imp.Addon] {
			continue
		}
		a.deps = append(a.deps, Dependency{
			ID:       imp.Addon,
			Version:  imp.Version,
			Optional: imp.Optional == "true",
		})
	}

	return a, nil
}

// Dependencies returns the declared imports, minus host-provided ones.
func (a *Addon) Dependencies() []Dependency {
	return a.deps
}

// LibraryPath returns the absolute path of the addon's library. For plugin
// sources this is the entry point executable; for modules the import root.
func (a *Addon) LibraryPath() string {
	if a.Library == "" {
		return a.Path
	}
	return filepath.Join(a.Path, filepath.FromSlash(a.Library))
}

// Rebind points the descriptor at a new directory, after the package has
// been extracted into the cache.
func (a *Addon) Rebind(path string) {
	a.Path = path
}

// Description returns the localized description text.
func (a *Addon) Description() string {
	return a.localized(func(e *extensionXML) []langText { return e.Descriptions })
}

// Summary returns the localized summary text.
func (a *Addon) Summary() string {
	return a.localized(func(e *extensionXML) []langText { return e.Summaries })
}

// Disclaimer returns the localized disclaimer text.
func (a *Addon) Disclaimer() string {
	return a.localized(func(e *extensionXML) []langText { return e.Disclaimers })
}

// localized applies the language priority fallback: en_GB, en_US, bare en,
// then whatever is first, else empty.
func (a *Addon) localized(pick func(*extensionXML) []langText) string {
	var texts []langText
	for i := range a.manifest.Extensions {
		ext := &a.manifest.Extensions[i]
		if ext.Point != extMetadata {
			continue
		}
		texts = pick(ext)
		break
	}
	if len(texts) == 0 {
		return ""
	}
	for _, want := range []string{"en_GB", "en_US", "en"} {
		for _, t := range texts {
			if t.Lang == want {
				return strings.TrimSpace(t.Text)
			}
		}
	}
	return strings.TrimSpace(texts[0].Text)
}

// Changelog returns the metadata news text, or the contents of the
// versioned changelog file next to the manifest.
func (a *Addon) Changelog() string {
	for _, ext := range a.manifest.Extensions {
		if ext.Point == extMetadata && strings.TrimSpace(ext.News) != "" {
			return strings.TrimSpace(ext.News)
		}
	}
	path := filepath.Join(a.Path, fmt.Sprintf("changelog-%s.txt", a.Version))
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Icon returns the icon path, preferring a declared asset over the
// conventional icon.png.
func (a *Addon) Icon() string {
	return a.asset(func(as *assetsXML) string { return as.Icon }, "icon.png")
}

// Fanart returns the fanart path, preferring a declared asset over the
// conventional fanart.jpg.
func (a *Addon) Fanart() string {
	return a.asset(func(as *assetsXML) string { return as.Fanart }, "fanart.jpg")
}

func (a *Addon) asset(pick func(*assetsXML) string, fallback string) string {
	for _, ext := range a.manifest.Extensions {
		if ext.Point != extMetadata || ext.Assets == nil {
			continue
		}
		if name := strings.TrimSpace(pick(ext.Assets)); name != "" {
			return filepath.Join(a.Path, filepath.FromSlash(name))
		}
	}
	path := filepath.Join(a.Path, fallback)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func (a *Addon) String() string {
	return fmt.Sprintf("Addon(id=%s, version=%s)", a.ID, a.Version)
}
