package sandbox

// ListItem is one displayable entry produced by an addon: a loose bag of
// label, path, artwork, properties and context-menu entries, exactly as the
// addon emitted it.
type ListItem map[string]any

// Label returns the item's display label.
func (li ListItem) Label() string {
	s, _ := li["label"].(string)
	return s
}

// Path returns the item's callback or media URL.
func (li ListItem) Path() string {
	s, _ := li["path"].(string)
	return s
}

// IsFolder reports whether the item denotes a browsable directory. Items
// default to folders unless their properties say otherwise.
func (li ListItem) IsFolder() bool {
	props, _ := li["properties"].(map[string]any)
	if props == nil {
		return true
	}
	folder, _ := props["folder"].(string)
	return folder != "false"
}

// Clone returns a deep copy, so display processing never mutates the state
// held on the navigation back-stack.
func (li ListItem) Clone() ListItem {
	return ListItem(cloneValue(map[string]any(li)).(map[string]any))
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = cloneValue(sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = cloneValue(sub)
		}
		return out
	default:
		return v
	}
}

// NavState is the structured output of one plugin invocation: either a
// browsable listing or a single resolved item, plus presentation hints.
// One is created per invocation and discarded once the navigation loop has
// consumed it.
type NavState struct {
	Succeeded     bool       `json:"succeeded"`
	ListItems     []ListItem `json:"listitems,omitempty"`
	Resolved      ListItem   `json:"resolved,omitempty"`
	Playlist      []ListItem `json:"playlist,omitempty"`
	SortMethods   []int      `json:"sortmethods,omitempty"`
	Category      string     `json:"category,omitempty"`
	ContentType   string     `json:"contenttype,omitempty"`
	UpdateListing bool       `json:"updatelisting,omitempty"`

	// Path is the callback URL that produced this state.
	Path string `json:"path,omitempty"`

	// CallingItem is the item whose selection triggered this invocation,
	// kept for back-navigation and resolved-item merging.
	CallingItem ListItem `json:"calling_item,omitempty"`
}
