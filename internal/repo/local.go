// Package repo maintains the local addon cache and resolves an addon's
// transitive dependency graph against it, downloading whatever is missing
// from the configured remote repositories.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/kodidev/kodidev/internal/addon"
	"github.com/kodidev/kodidev/internal/env"
)

// DefaultLanguage is the language resource every plugin implicitly depends
// on; Kodi's localized-string lookups resolve against it.
const DefaultLanguage = "resource.language.en_gb"

// defaultLanguageFloor is the synthetic version requirement injected for
// the default language pack.
const defaultLanguageFloor = "1.0.0"

// LocalRepo is the merged view of every locally known addon: the bundled
// set, the user cache directory and any user-supplied local directories.
// Ids are unique in the merged view; a higher version always supersedes.
type LocalRepo struct {
	env    *env.Environment
	log    hclog.Logger
	remote *Remote
	cached map[string]*addon.Addon
}

// NewLocal scans the bundled, cache and local directories and builds the
// merged index.
func NewLocal(e *env.Environment, log hclog.Logger, remote *Remote, localDirs []string) (*LocalRepo, error) {
	l := &LocalRepo{
		env:    e,
		log:    log.Named("repo"),
		remote: remote,
		cached: make(map[string]*addon.Addon),
	}

	dirs := make([]string, 0, len(localDirs)+2)
	if e.BundledDir != "" {
		dirs = append(dirs, e.BundledDir)
	}
	dirs = append(dirs, e.CacheRoot)
	for _, dir := range localDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("bad local repo path %s: %w", dir, err)
		}
		dirs = append(dirs, abs)
	}

	for _, dir := range dirs {
		if err := l.scanDir(dir); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// scanDir indexes every <dir>/<addon-id>/addon.xml found under dir.
func (l *LocalRepo) scanDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	for _, entry := range entries {
		manifest := filepath.Join(dir, entry.Name(), "addon.xml")
		if _, err := os.Stat(manifest); err != nil {
			continue
		}
		a, err := addon.FromFile(manifest)
		if err != nil {
			l.log.Warn("skipping unreadable addon", "path", manifest, "error", err)
			continue
		}
		l.Add(a)
	}
	return nil
}

// Add registers a descriptor in the merged view. A lower version never
// displaces an already known higher one.
func (l *LocalRepo) Add(a *addon.Addon) {
	a.ProfileDir = l.env.Profile(a.ID)
	if existing, ok := l.cached[a.ID]; ok &&
		addon.CompareVersions(existing.Version, a.Version) >= 0 {
		return
	}
	l.cached[a.ID] = a
}

// Request returns the descriptor for an addon id, downloading it when it is
// not yet cached locally.
func (l *LocalRepo) Request(ctx context.Context, id string) (*addon.Addon, error) {
	if a, ok := l.cached[id]; ok {
		return a, nil
	}
	a, err := l.remote.Download(ctx, addon.Dependency{ID: id})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDependencyNotFound, id, err)
	}
	l.Add(a)
	return a, nil
}

// Cached returns the merged id -> descriptor view.
func (l *LocalRepo) Cached() map[string]*addon.Addon {
	return l.cached
}

// Remote exposes the remote repository this local view downloads from.
func (l *LocalRepo) Remote() *Remote {
	return l.remote
}

// LoadDependencies resolves the full transitive closure of root's declared
// dependencies, plus the implicit default language pack, returning the
// descriptors in resolution order.
//
// The work-list requeue policy is first-requested-version-wins: once an id
// has been queued, later requests for the same id at another version do not
// requeue it. The cache itself always keeps the highest version actually
// fetched.
func (l *LocalRepo) LoadDependencies(ctx context.Context, root *addon.Addon) ([]*addon.Addon, error) {
	// Refresh the catalog before any lookup when the sync sentinel has
	// aged out. This amortizes network calls across the whole run.
	if l.remote.UpdateRequired() {
		l.log.Info("checking for addon updates")
		if err := l.remote.Refresh(ctx, l.cached); err != nil {
			return nil, err
		}
	}

	deps := make([]addon.Dependency, 0, len(root.Dependencies())+1)
	deps = append(deps, root.Dependencies()...)
	if !addon.ContainsID(deps, DefaultLanguage) {
		deps = append(deps, addon.Dependency{ID: DefaultLanguage, Version: defaultLanguageFloor})
	}

	var resolved []*addon.Addon
	for i := 0; i < len(deps); i++ {
		dep := deps[i]
		l.log.Debug("processing dependency", "addon", dep.ID, "version", dep.Version)

		a, err := l.resolveOne(ctx, dep)
		if err != nil {
			if dep.Optional {
				l.log.Warn("skipping optional dependency", "addon", dep.ID, "error", err)
				continue
			}
			return nil, err
		}

		// Requeue this addon's own requirements, by id only, so a cycle
		// can never loop and a second version of a queued id never
		// re-enters the list.
		for _, extra := range a.Dependencies() {
			if !addon.ContainsID(deps, extra.ID) {
				deps = append(deps, extra)
			}
		}

		resolved = append(resolved, a)
	}

	return resolved, nil
}

// resolveOne satisfies a single dependency from the cache when an equal or
// newer version is present, otherwise from the remote repositories.
func (l *LocalRepo) resolveOne(ctx context.Context, dep addon.Dependency) (*addon.Addon, error) {
	if a, ok := l.cached[dep.ID]; ok &&
		addon.CompareVersions(a.Version, dep.Version) >= 0 {
		return a, nil
	}

	a, err := l.remote.Download(ctx, dep)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDependencyNotFound, dep.ID, err)
	}
	l.Add(a)
	// Add refuses downgrades; return whatever the cache now holds.
	return l.cached[a.ID], nil
}
