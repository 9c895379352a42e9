package cli

import (
	"strings"
	"testing"
)

// TestTableRender tests basic alignment and the separator row.
func TestTableRender(t *testing.T) {
	table := NewTable([]string{"ID", "Version"})
	table.AddRow([]string{"plugin.video.example", "1.0.0"})
	table.AddRow([]string{"script.module.requests", "2.22.0"})

	out := table.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Errorf("Unexpected header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "---") {
		t.Errorf("Expected separator, got %q", lines[1])
	}

	// All rows share the same width.
	for i := 1; i < len(lines); i++ {
		if len(lines[i]) != len(lines[1]) {
			t.Errorf("Line %d width %d != separator width %d", i, len(lines[i]), len(lines[1]))
		}
	}
}

// TestTableShortRowPadded tests that short rows are padded out to the
// header count.
func TestTableShortRowPadded(t *testing.T) {
	table := NewTable([]string{"A", "B", "C"})
	table.AddRow([]string{"only"})

	out := table.Render()
	if !strings.Contains(out, "only") {
		t.Errorf("Row content missing:\n%s", out)
	}
}

// TestTableColumnWrap tests wrapping a capped column onto continuation
// lines.
func TestTableColumnWrap(t *testing.T) {
	table := NewTable([]string{"ID", "Name"})
	table.SetColumnMaxWidth(1, 10)
	table.AddRow([]string{"x", "a fairly long addon name"})

	out := table.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) <= 3 {
		t.Fatalf("Expected wrapped continuation lines, got:\n%s", out)
	}
	for _, line := range lines[2:] {
		if len(line) > len(lines[1]) {
			t.Errorf("Wrapped line exceeds table width: %q", line)
		}
	}
}

// TestWrapText tests word wrapping including oversized words.
func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"fits", "short", 10, []string{"short"}},
		{"wraps at words", "one two three", 7, []string{"one two", "three"}},
		{"breaks long word", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"zero width passthrough", "anything", 0, []string{"anything"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.text, tt.width)
			if len(got) != len(tt.want) {
				t.Fatalf("wrapText(%q, %d) = %v, want %v", tt.text, tt.width, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
