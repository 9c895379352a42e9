package cli

import (
	"strings"
)

// Table formats rows into aligned columns for the repo listing output.
type Table struct {
	headers   []string
	rows      [][]string
	padding   int
	maxWidths map[int]int
}

// NewTable creates a new table with the given headers.
func NewTable(headers []string) *Table {
	return &Table{
		headers:   headers,
		padding:   2,
		maxWidths: make(map[int]int),
	}
}

// SetColumnMaxWidth caps a column's width. Longer cells wrap onto
// continuation lines.
func (t *Table) SetColumnMaxWidth(col, width int) {
	t.maxWidths[col] = width
}

// AddRow adds a row, padding short rows out to the header count.
func (t *Table) AddRow(row []string) {
	if len(row) < len(t.headers) {
		padded := make([]string, len(t.headers))
		copy(padded, row)
		row = padded
	}
	t.rows = append(t.rows, row[:len(t.headers)])
}

// Render formats the table as a string.
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	wrapped := make([][][]string, len(t.rows))
	for i, row := range t.rows {
		wrapped[i] = make([][]string, len(row))
		for col, cell := range row {
			if max := t.maxWidths[col]; max > 0 {
				wrapped[i][col] = wrapText(cell, max)
			} else {
				wrapped[i][col] = []string{cell}
			}
		}
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range wrapped {
		for col, lines := range row {
			for _, line := range lines {
				if len(line) > widths[col] {
					widths[col] = len(line)
				}
			}
		}
	}

	gap := strings.Repeat(" ", t.padding)
	var b strings.Builder

	cells := make([]string, len(t.headers))
	for i, h := range t.headers {
		cells[i] = padRight(h, widths[i])
	}
	b.WriteString(strings.Join(cells, gap))
	b.WriteString("\n")

	for i, w := range widths {
		cells[i] = strings.Repeat("-", w)
	}
	b.WriteString(strings.Join(cells, gap))
	b.WriteString("\n")

	for _, row := range wrapped {
		height := 1
		for _, lines := range row {
			if len(lines) > height {
				height = len(lines)
			}
		}
		for line := 0; line < height; line++ {
			for col := range t.headers {
				text := ""
				if line < len(row[col]) {
					text = row[col][line]
				}
				cells[col] = padRight(text, widths[col])
			}
			b.WriteString(strings.Join(cells, gap))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// wrapText wraps at word boundaries, breaking words longer than width.
func wrapText(text string, width int) []string {
	if width <= 0 || len(text) <= width {
		return []string{text}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{text}
	}

	var lines []string
	current := ""
	for _, word := range words {
		for len(word) > width {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			lines = append(lines, word[:width])
			word = word[width:]
		}
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}
