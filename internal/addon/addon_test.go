package addon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const pluginManifest = `<?xml version="1.0" encoding="UTF-8"?>
<addon id="plugin.video.example" version="2.3.1" name="Example" provider-name="someone">
    <requires>
        <import addon="xbmc.python" version="2.25.0"/>
        <import addon="script.module.requests" version="2.22.0"/>
        <import addon="script.module.extra" version="1.0.0" optional="true"/>
    </requires>
    <extension point="xbmc.python.pluginsource" library="main.py">
        <provides>video</provides>
    </extension>
    <extension point="xbmc.addon.metadata">
        <summary lang="en_GB">An example plugin</summary>
        <summary lang="de_DE">Ein Beispiel</summary>
        <description lang="de_DE">Beschreibung</description>
        <news>fixed things</news>
    </extension>
</addon>`

// TestFromBytesPluginSource tests parsing a plugin source manifest.
func TestFromBytesPluginSource(t *testing.T) {
	a, err := FromBytes([]byte(pluginManifest), "/tmp/plugin.video.example")
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}

	if a.ID != "plugin.video.example" {
		t.Errorf("Expected id 'plugin.video.example', got '%s'", a.ID)
	}
	if a.Version != "2.3.1" {
		t.Errorf("Expected version '2.3.1', got '%s'", a.Version)
	}
	if a.Author != "someone" {
		t.Errorf("Expected author 'someone', got '%s'", a.Author)
	}
	if a.Type != ExtPluginSource {
		t.Errorf("Expected type '%s', got '%s'", ExtPluginSource, a.Type)
	}
	if a.Provides != "video" {
		t.Errorf("Expected provides 'video', got '%s'", a.Provides)
	}
	if got := a.LibraryPath(); got != filepath.Join("/tmp/plugin.video.example", "main.py") {
		t.Errorf("Unexpected library path '%s'", got)
	}
}

// TestDependenciesIgnoresHostImports tests that host-provided imports are
// stripped from the dependency list.
func TestDependenciesIgnoresHostImports(t *testing.T) {
	a, err := FromBytes([]byte(pluginManifest), "")
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}

	deps := a.Dependencies()
	if len(deps) != 2 {
		t.Fatalf("Expected 2 dependencies, got %d: %v", len(deps), deps)
	}
	if deps[0].ID != "script.module.requests" || deps[0].Optional {
		t.Errorf("Unexpected first dependency: %+v", deps[0])
	}
	if deps[1].ID != "script.module.extra" || !deps[1].Optional {
		t.Errorf("Expected optional second dependency, got %+v", deps[1])
	}
}

// TestFromBytesNoRunnableExtension tests that manifests without a usable
// extension point are rejected.
func TestFromBytesNoRunnableExtension(t *testing.T) {
	manifest := `<addon id="skin.example" version="1.0.0" name="Skin">
    <extension point="xbmc.gui.skin" library="xml"/>
</addon>`
	_, err := FromBytes([]byte(manifest), "")
	if !errors.Is(err, ErrManifestInvalid) {
		t.Fatalf("Expected ErrManifestInvalid, got %v", err)
	}
}

// TestFromBytesMetadataOnly tests that a bare metadata block does not count
// as an extension point.
func TestFromBytesMetadataOnly(t *testing.T) {
	manifest := `<addon id="meta.only" version="1.0.0" name="Meta">
    <extension point="xbmc.addon.metadata"/>
</addon>`
	_, err := FromBytes([]byte(manifest), "")
	if !errors.Is(err, ErrManifestInvalid) {
		t.Fatalf("Expected ErrManifestInvalid, got %v", err)
	}
}

// TestFromBytesMissingIdentity tests that id and version are mandatory.
func TestFromBytesMissingIdentity(t *testing.T) {
	_, err := FromBytes([]byte(`<addon id="" version=""><extension point="xbmc.python.module" library="lib"/></addon>`), "")
	if !errors.Is(err, ErrManifestInvalid) {
		t.Fatalf("Expected ErrManifestInvalid, got %v", err)
	}
}

// TestFromBytesGarbage tests that non-XML input is rejected.
func TestFromBytesGarbage(t *testing.T) {
	_, err := FromBytes([]byte("not xml at all"), "")
	if !errors.Is(err, ErrManifestInvalid) {
		t.Fatalf("Expected ErrManifestInvalid, got %v", err)
	}
}

// TestLanguagePackManifest tests that language resources parse as runnable
// descriptors.
func TestLanguagePackManifest(t *testing.T) {
	manifest := `<addon id="resource.language.en_gb" version="2.0.1" name="English (GB)">
    <requires><import addon="kodi.resource" version="1.0.0"/></requires>
    <extension point="kodi.resource.language" locale="en_GB"/>
</addon>`
	a, err := FromBytes([]byte(manifest), "")
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}
	if a.Type != ExtLanguage {
		t.Errorf("Expected type '%s', got '%s'", ExtLanguage, a.Type)
	}
	if len(a.Dependencies()) != 0 {
		t.Errorf("Expected no dependencies, got %v", a.Dependencies())
	}
}

// TestLocalizedFallback tests the language priority order for metadata
// texts.
func TestLocalizedFallback(t *testing.T) {
	a, err := FromBytes([]byte(pluginManifest), "")
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}

	// en_GB present: it wins.
	if got := a.Summary(); got != "An example plugin" {
		t.Errorf("Expected en_GB summary, got '%s'", got)
	}
	// Only de_DE present: first entry is the last resort.
	if got := a.Description(); got != "Beschreibung" {
		t.Errorf("Expected fallback description, got '%s'", got)
	}
	// Absent entirely.
	if got := a.Disclaimer(); got != "" {
		t.Errorf("Expected empty disclaimer, got '%s'", got)
	}
}

// TestChangelogPrefersNews tests that metadata news beats the changelog
// file.
func TestChangelogPrefersNews(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "changelog-2.3.1.txt"), []byte("from file"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := FromBytes([]byte(pluginManifest), dir)
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}
	if got := a.Changelog(); got != "fixed things" {
		t.Errorf("Expected news text, got '%s'", got)
	}
}

// TestChangelogFile tests reading the versioned changelog file.
func TestChangelogFile(t *testing.T) {
	dir := t.TempDir()
	manifest := `<addon id="plugin.video.x" version="1.0.0" name="X">
    <extension point="xbmc.python.pluginsource" library="main.py"/>
</addon>`
	if err := os.WriteFile(filepath.Join(dir, "changelog-1.0.0.txt"), []byte("changed\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := FromBytes([]byte(manifest), dir)
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}
	if got := a.Changelog(); got != "changed" {
		t.Errorf("Expected 'changed', got '%s'", got)
	}
}

// TestFromFile tests reading a manifest from disk and binding its path.
func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "addon.xml")
	if err := os.WriteFile(path, []byte(pluginManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}
	if a.Path != dir {
		t.Errorf("Expected path '%s', got '%s'", dir, a.Path)
	}
}

// TestFromFileMissing tests the error for an absent manifest.
func TestFromFileMissing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "addon.xml"))
	if !errors.Is(err, ErrManifestInvalid) {
		t.Fatalf("Expected ErrManifestInvalid, got %v", err)
	}
}

// TestIconAssetDeclared tests that declared assets beat the conventional
// file names.
func TestIconAssetDeclared(t *testing.T) {
	manifest := `<addon id="plugin.video.x" version="1.0.0" name="X">
    <extension point="xbmc.python.pluginsource" library="main.py"/>
    <extension point="xbmc.addon.metadata">
        <assets><icon>resources/art/logo.png</icon></assets>
    </extension>
</addon>`
	a, err := FromBytes([]byte(manifest), "/base")
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}
	want := filepath.Join("/base", "resources", "art", "logo.png")
	if got := a.Icon(); got != want {
		t.Errorf("Expected '%s', got '%s'", want, got)
	}
	// No declared fanart and no fanart.jpg on disk.
	if got := a.Fanart(); got != "" {
		t.Errorf("Expected empty fanart, got '%s'", got)
	}
}

// TestParseCatalog tests that unusable catalog entries are skipped rather
// than failing the parse.
func TestParseCatalog(t *testing.T) {
	catalog := `<addons>
    <addon id="plugin.video.a" version="1.0.0" name="A">
        <extension point="xbmc.python.pluginsource" library="main.py"/>
    </addon>
    <addon id="repository.main" version="3.0.0" name="Repo">
        <extension point="xbmc.addon.repository"/>
    </addon>
    <addon id="script.module.b" version="0.5.0" name="B">
        <extension point="xbmc.python.module" library="lib"/>
    </addon>
</addons>`

	addons, skipped, err := ParseCatalog([]byte(catalog))
	if err != nil {
		t.Fatalf("ParseCatalog failed: %v", err)
	}
	if len(addons) != 2 {
		t.Fatalf("Expected 2 addons, got %d", len(addons))
	}
	if skipped != 1 {
		t.Errorf("Expected 1 skipped entry, got %d", skipped)
	}
	if addons[0].ID != "plugin.video.a" || addons[1].ID != "script.module.b" {
		t.Errorf("Unexpected catalog order: %v, %v", addons[0], addons[1])
	}
}

// TestParseCatalogGarbage tests that a broken catalog fails outright.
func TestParseCatalogGarbage(t *testing.T) {
	if _, _, err := ParseCatalog([]byte("<addons><addon")); err == nil {
		t.Error("Expected error for truncated catalog")
	}
}
