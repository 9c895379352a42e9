package repo

import "errors"

var (
	// ErrDependencyNotFound means a required addon exists neither locally
	// nor in any remote catalog. Resolution cannot continue without it.
	ErrDependencyNotFound = errors.New("dependency not found")

	// ErrAddonNotAvailable means a download was requested for an id the
	// merged remote catalog does not advertise.
	ErrAddonNotAvailable = errors.New("addon not available on any repository")

	// ErrDownloadFailed wraps an I/O failure mid-download. The partial
	// archive has already been cleaned up when this is returned.
	ErrDownloadFailed = errors.New("package download failed")
)
