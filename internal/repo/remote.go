package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/kodidev/kodidev/internal/addon"
	"github.com/kodidev/kodidev/internal/compression"
	"github.com/kodidev/kodidev/internal/env"
	kdhttp "github.com/kodidev/kodidev/internal/util/http"
)

// DefaultMirror is the official addon repository consulted when no custom
// mirrors are configured.
const DefaultMirror = "https://mirrors.kodi.tv/addons/krypton"

// DefaultMaxAge is how long a catalog sync stays valid before the next
// lookup forces a refresh (5 days).
const DefaultMaxAge = 5 * 24 * time.Hour

// CatalogEntry pairs an advertised addon with the mirror offering it.
type CatalogEntry struct {
	Mirror string
	Addon  *addon.Addon
}

// Remote fetches repository catalogs and downloads addon packages into the
// on-disk cache. It is the only component that mutates the cache root.
type Remote struct {
	env     *env.Environment
	log     hclog.Logger
	mirrors []string
	maxAge  time.Duration

	catalog map[string]CatalogEntry
}

// NewRemote creates a repository client over the given mirrors. A nil or
// empty mirror list falls back to the default mirror.
func NewRemote(e *env.Environment, log hclog.Logger, mirrors []string, maxAge time.Duration) *Remote {
	if len(mirrors) == 0 {
		mirrors = []string{DefaultMirror}
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Remote{
		env:     e,
		log:     log.Named("remote"),
		mirrors: mirrors,
		maxAge:  maxAge,
	}
}

// Catalog returns the merged addon catalog, fetching each mirror's
// addons.xml on first use. When mirrors disagree about an id the highest
// advertised version wins.
func (r *Remote) Catalog(ctx context.Context) (map[string]CatalogEntry, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}

	r.log.Info("fetching addon catalogs", "mirrors", len(r.mirrors))
	catalog := make(map[string]CatalogEntry)
	for _, mirror := range r.mirrors {
		url := strings.TrimRight(mirror, "/") + "/addons.xml"
		data, err := kdhttp.Fetch(ctx, url, kdhttp.FetchOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch catalog from %s: %w", mirror, err)
		}

		addons, skipped, err := addon.ParseCatalog(data)
		if err != nil {
			return nil, fmt.Errorf("bad catalog from %s: %w", mirror, err)
		}
		if skipped > 0 {
			r.log.Debug("skipped unusable catalog entries", "mirror", mirror, "count", skipped)
		}

		for _, a := range addons {
			if existing, ok := catalog[a.ID]; ok &&
				addon.CompareVersions(existing.Addon.Version, a.Version) >= 0 {
				continue
			}
			catalog[a.ID] = CatalogEntry{Mirror: strings.TrimRight(mirror, "/"), Addon: a}
		}
	}

	r.catalog = catalog
	return catalog, nil
}

// UpdateRequired reports whether the catalog sentinel is missing or older
// than the max age.
func (r *Remote) UpdateRequired() bool {
	data, err := os.ReadFile(r.env.CheckFile)
	if err != nil {
		return true
	}
	var stamp float64
	if err := json.Unmarshal(data, &stamp); err != nil {
		return true
	}
	return time.Since(time.Unix(int64(stamp), 0)) > r.maxAge
}

// markUpdated records a successful catalog sync in the sentinel file.
func (r *Remote) markUpdated() {
	data, err := json.Marshal(float64(time.Now().Unix()))
	if err == nil {
		err = os.WriteFile(r.env.CheckFile, data, 0o644)
	}
	if err != nil {
		r.log.Warn("failed to write update sentinel", "error", err)
	}
}

// Refresh re-downloads any cached addon whose remote version is newer.
// Cached addons that have vanished from every mirror only warn, so
// already-working offline setups keep working. The sentinel is stamped on
// success.
func (r *Remote) Refresh(ctx context.Context, cached map[string]*addon.Addon) error {
	catalog, err := r.Catalog(ctx)
	if err != nil {
		return err
	}

	for id, a := range cached {
		entry, ok := catalog[id]
		if !ok {
			r.log.Warn("cached addon no longer available on any repository", "addon", id)
			continue
		}
		if addon.NewerVersion(a.Version, entry.Addon.Version) {
			r.log.Info("updating cached addon", "addon", id,
				"from", a.Version, "to", entry.Addon.Version)
			fresh, err := r.Download(ctx, addon.Dependency{ID: id, Version: entry.Addon.Version})
			if err != nil {
				return err
			}
			cached[id] = fresh
		}
	}

	r.markUpdated()
	return nil
}

// Download fetches and unpacks the package for a dependency, returning the
// descriptor of the extracted addon. Every step is idempotent: an archive
// already on disk is reused, partial downloads are cleaned up, and a stale
// extraction directory is replaced wholesale.
func (r *Remote) Download(ctx context.Context, dep addon.Dependency) (*addon.Addon, error) {
	catalog, err := r.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	entry, ok := catalog[dep.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAddonNotAvailable, dep.ID)
	}

	// Best effort when the requirement outruns the repository: an older
	// version still beats failing outright.
	if dep.Version != "" && addon.CompareVersions(entry.Addon.Version, dep.Version) < 0 {
		r.log.Warn("required version is greater than what is available",
			"addon", dep.ID, "required", dep.Version, "available", entry.Addon.Version)
	}

	filename := fmt.Sprintf("%s-%s.zip", dep.ID, entry.Addon.Version)
	archivePath := filepath.Join(r.env.PackageDir, filename)

	if _, err := os.Stat(archivePath); err == nil {
		r.log.Info("using cached package", "package", filename)
	} else {
		r.log.Info("downloading package", "package", filename)
		r.cleanupPackages(dep.ID)

		url := fmt.Sprintf("%s/%s/%s", entry.Mirror, dep.ID, filename)
		if err := r.fetchArchive(ctx, url, archivePath); err != nil {
			return nil, err
		}
	}

	// Replace any previously extracted version so nothing stale lingers.
	addonDir := filepath.Join(r.env.CacheRoot, dep.ID)
	if err := os.RemoveAll(addonDir); err != nil {
		return nil, fmt.Errorf("failed to remove old addon directory: %w", err)
	}
	if err := compression.ExtractZip(archivePath, r.env.CacheRoot); err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", filename, err)
	}

	a, err := addon.FromFile(filepath.Join(addonDir, "addon.xml"))
	if err != nil {
		return nil, fmt.Errorf("extracted package %s has no usable manifest: %w", filename, err)
	}
	a.ProfileDir = r.env.Profile(a.ID)
	return a, nil
}

// fetchArchive streams the package to disk, removing the partial file on
// any failure so a later run never mistakes it for a complete download.
func (r *Remote) fetchArchive(ctx context.Context, url, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	dlErr := kdhttp.Download(ctx, url, out, kdhttp.FetchOptions{})
	closeErr := out.Close()
	if dlErr == nil {
		dlErr = closeErr
	}
	if dlErr != nil {
		if err := os.Remove(archivePath); err != nil {
			r.log.Warn("failed to remove partial download", "path", archivePath, "error", err)
		}
		return fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, dlErr)
	}
	return nil
}

// cleanupPackages removes every archive in the package dir belonging to an
// addon id, ahead of downloading a different version.
func (r *Remote) cleanupPackages(addonID string) {
	entries, err := os.ReadDir(r.env.PackageDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), addonID+"-") {
			path := filepath.Join(r.env.PackageDir, entry.Name())
			if err := os.Remove(path); err != nil {
				r.log.Warn("failed to remove stale package", "path", path, "error", err)
			}
		}
	}
}
