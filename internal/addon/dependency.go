package addon

import "fmt"

// Dependency is one declared import: a companion addon the plugin needs on
// its search path before it can run. Two dependencies are the same
// dependency when their IDs match; the requested version never takes part
// in containment checks.
type Dependency struct {
	ID       string
	Version  string
	Optional bool
}

func (d Dependency) String() string {
	return fmt.Sprintf("Dependency(id=%s, version=%s, optional=%t)", d.ID, d.Version, d.Optional)
}

// ContainsID reports whether deps already carries a dependency with the
// given id, at any version.
func ContainsID(deps []Dependency, id string) bool {
	for _, d := range deps {
		if d.ID == id {
			return true
		}
	}
	return false
}
