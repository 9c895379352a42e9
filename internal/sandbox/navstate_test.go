package sandbox

import "testing"

// TestListItemIsFolder tests the folder default and the explicit
// property.
func TestListItemIsFolder(t *testing.T) {
	tests := []struct {
		name string
		item ListItem
		want bool
	}{
		{"no properties defaults to folder", ListItem{"label": "x"}, true},
		{"folder property false", ListItem{"properties": map[string]any{"folder": "false"}}, false},
		{"folder property true", ListItem{"properties": map[string]any{"folder": "true"}}, true},
		{"unrelated properties", ListItem{"properties": map[string]any{"fanart": "f.jpg"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.IsFolder(); got != tt.want {
				t.Errorf("IsFolder() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestListItemClone tests that clones are fully detached from the
// original.
func TestListItemClone(t *testing.T) {
	original := ListItem{
		"label":      "Item",
		"properties": map[string]any{"folder": "false"},
		"context":    []any{"Play", "Queue"},
	}

	clone := original.Clone()
	clone["label"] = "Changed"
	clone["properties"].(map[string]any)["folder"] = "true"
	clone["context"].([]any)[0] = "Stop"

	if original.Label() != "Item" {
		t.Error("Clone shares the top-level map")
	}
	if original["properties"].(map[string]any)["folder"] != "false" {
		t.Error("Clone shares the nested map")
	}
	if original["context"].([]any)[0] != "Play" {
		t.Error("Clone shares the nested slice")
	}
}

// TestListItemAccessors tests typed access to loosely typed fields.
func TestListItemAccessors(t *testing.T) {
	item := ListItem{"label": "L", "path": "plugin://x/"}
	if item.Label() != "L" {
		t.Errorf("Label() = %q", item.Label())
	}
	if item.Path() != "plugin://x/" {
		t.Errorf("Path() = %q", item.Path())
	}

	// Non-string values read as empty rather than panicking.
	odd := ListItem{"label": 42}
	if odd.Label() != "" {
		t.Errorf("Expected empty label for non-string, got %q", odd.Label())
	}
}
