package sandbox

import "github.com/kodidev/kodidev/internal/addon"

// SearchPath assembles the library search path for an invocation. Entries
// are reverse-inserted so that after the final reversal the most specific
// path wins: the addon's own library first, then its shared-library
// dependencies in reverse resolution order.
func SearchPath(a *addon.Addon, deps []*addon.Addon) []string {
	var paths []string
	for _, dep := range deps {
		if dep.Type == addon.ExtModule {
			paths = append(paths, dep.LibraryPath())
		}
	}
	switch a.Type {
	case addon.ExtPluginSource:
		paths = append(paths, a.Path)
	case addon.ExtModule:
		paths = append(paths, a.LibraryPath())
	}

	// Reverse in place; appends above happened against the reversed view.
	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}
	return paths
}
