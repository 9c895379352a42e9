// Package env builds the emulated Kodi environment a plugin runs against:
// the throwaway home directory, the userdata tree, the on-disk addon cache
// and the special:// path table.
package env

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	ps "github.com/mitchellh/go-ps"
)

// Home dirs are named kodidev.<pid>.<random> so the sweep can tell a
// crashed run's leftovers from another session that is still alive.
const tempPrefix = "kodidev."

// Options configures a new Environment.
type Options struct {
	// CacheRoot is where downloaded addons are kept between runs.
	// Defaults to <user-cache-dir>/kodidev.
	CacheRoot string

	// BundledDir optionally points at a directory of addons shipped with
	// the tool itself. Scanned first, lowest precedence.
	BundledDir string

	// CleanSlate wipes the cache root before the directories are created.
	CleanSlate bool
}

// Environment holds every path the rest of the tool needs. It is built once
// at startup and passed to the components that mutate or read the cache.
type Environment struct {
	Home       string // throwaway kodi home, one per run
	Userdata   string
	AddonData  string
	Temp       string
	CacheRoot  string // extracted addon cache, persistent
	PackageDir string // downloaded zip archives, persistent
	CheckFile  string // catalog refresh sentinel
	BundledDir string

	special map[string]string
	log     hclog.Logger
}

// New constructs the environment, sweeping leftover homes from crashed runs
// and creating every directory that must exist.
func New(opts Options, log hclog.Logger) (*Environment, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	cacheRoot := opts.CacheRoot
	if cacheRoot == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate user cache dir: %w", err)
		}
		cacheRoot = filepath.Join(base, "kodidev")
	}

	if opts.CleanSlate {
		log.Info("wiping addon cache", "path", cacheRoot)
		if err := os.RemoveAll(cacheRoot); err != nil {
			return nil, fmt.Errorf("failed to wipe cache root: %w", err)
		}
	}

	sweepStaleHomes(log)

	home, err := os.MkdirTemp("", tempPrefix+strconv.Itoa(os.Getpid())+".")
	if err != nil {
		return nil, fmt.Errorf("failed to create kodi home: %w", err)
	}

	e := &Environment{
		Home:       home,
		Userdata:   filepath.Join(home, "userdata"),
		AddonData:  filepath.Join(home, "userdata", "addon_data"),
		Temp:       filepath.Join(home, "temp"),
		CacheRoot:  cacheRoot,
		PackageDir: filepath.Join(cacheRoot, "packages"),
		CheckFile:  filepath.Join(cacheRoot, "update_check"),
		BundledDir: opts.BundledDir,
		log:        log,
	}

	e.special = map[string]string{
		"home":           e.Home,
		"xbmc":           e.Home,
		"userdata":       e.Userdata,
		"profile":        e.Userdata,
		"masterprofile":  e.Userdata,
		"videoplaylists": filepath.Join(e.Userdata, "playlists", "video"),
		"musicplaylists": filepath.Join(e.Userdata, "playlists", "music"),
		"addon_data":     e.AddonData,
		"thumbnails":     filepath.Join(e.Userdata, "Thumbnails"),
		"database":       filepath.Join(e.Userdata, "Database"),
		"temp":           e.Temp,
		"subtitles":      e.Temp,
		"recordings":     e.Temp,
		"screenshots":    e.Temp,
		"logpath":        e.Temp,
		"cdrips":         e.Temp,
		"skin":           e.Temp,
	}

	for _, dir := range e.dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return e, nil
}

func (e *Environment) dirs() []string {
	dirs := []string{e.CacheRoot, e.PackageDir}
	for _, dir := range e.special {
		dirs = append(dirs, dir)
	}
	return dirs
}

// Profile returns the addon_data directory for an addon id, where its
// persisted settings live.
func (e *Environment) Profile(addonID string) string {
	return filepath.Join(e.AddonData, addonID)
}

// TranslatePath maps a special:// URL onto the emulated filesystem.
// Non-special paths are returned unchanged.
func (e *Environment) TranslatePath(path string) (string, error) {
	parts, err := url.Parse(path)
	if err != nil || parts.Scheme != "special" {
		return path, nil
	}

	real, ok := e.special[parts.Host]
	if !ok {
		return "", fmt.Errorf("%s is not a valid special directory", parts.Host)
	}
	return filepath.Join(real, filepath.FromSlash(strings.TrimPrefix(parts.Path, "/"))), nil
}

// Close removes the per-run kodi home. The cache root is left in place.
func (e *Environment) Close() {
	if err := os.RemoveAll(e.Home); err != nil {
		e.log.Warn("failed to remove kodi home", "path", e.Home, "error", err)
	}
}

// sweepStaleHomes removes kodi homes left behind by runs that never reached
// their cleanup, matching on the temp dir prefix. A home whose embedded pid
// still belongs to a live process is another session's and is left alone.
func sweepStaleHomes(log hclog.Logger) {
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		if pid, ok := homePid(entry.Name()); ok && processAlive(pid) {
			log.Debug("skipping live kodi home", "name", entry.Name(), "pid", pid)
			continue
		}
		stale := filepath.Join(os.TempDir(), entry.Name())
		if err := os.RemoveAll(stale); err != nil {
			log.Debug("failed to remove stale kodi home", "path", stale, "error", err)
		}
	}
}

// homePid extracts the owning pid from a kodidev.<pid>.<random> dir name.
func homePid(name string) (int, bool) {
	rest := strings.TrimPrefix(name, tempPrefix)
	pidPart, _, found := strings.Cut(rest, ".")
	if !found {
		return 0, false
	}
	pid, err := strconv.Atoi(pidPart)
	if err != nil {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	proc, err := ps.FindProcess(pid)
	return err == nil && proc != nil
}
