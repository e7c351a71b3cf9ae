package tui

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FlattenHTML reduces an HTML fragment to readable terminal text. Tables
// become aligned rows; everything else collapses to its text content.
func FlattenHTML(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return strings.TrimSpace(markup)
	}

	var b strings.Builder
	tables := doc.Find("table")
	if tables.Length() > 0 {
		tables.Each(func(i int, table *goquery.Selection) {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(renderTable(table))
		})
		return strings.TrimRight(b.String(), "\n")
	}

	text := strings.TrimSpace(doc.Text())
	// Collapse the blank-line runs left by stripped block elements.
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}

// renderTable converts one HTML table to rows of padded columns.
func renderTable(table *goquery.Selection) string {
	var rows [][]string
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		var row []string
		tr.Find("th, td").Each(func(j int, cell *goquery.Selection) {
			row = append(row, strings.TrimSpace(cell.Text()))
		})
		if len(row) > 0 {
			rows = append(rows, row)
		}
	})
	if len(rows) == 0 {
		return ""
	}

	widths := columnWidths(rows)
	var b strings.Builder
	for i, row := range rows {
		for j, cell := range row {
			if j > 0 {
				b.WriteString("  ")
			}
			fmt.Fprintf(&b, "%-*s", widths[j], cell)
		}
		b.WriteString("\n")
		if i == 0 {
			// Separator under the header row.
			for j, w := range widths {
				if j > 0 {
					b.WriteString("  ")
				}
				b.WriteString(strings.Repeat("-", w))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func columnWidths(rows [][]string) []int {
	var widths []int
	for _, row := range rows {
		for j, cell := range row {
			for len(widths) <= j {
				widths = append(widths, 0)
			}
			if len(cell) > widths[j] {
				widths[j] = len(cell)
			}
		}
	}
	return widths
}
