// Package preview draws a grid in the terminal as coloured blocks.
package preview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"crosswarped.com/tilegen"
)

const cellWidth = 2

var (
	maskedStyle     = lipgloss.NewStyle()
	unresolvedStyle = lipgloss.NewStyle().Faint(true)
)

// Render returns one line per grid row. Resolved cells are blocks in the average colour of their
// tile, unresolved cells show their candidate count.
func Render(g *tilegen.Grid) string {
	ts := g.Tileset()
	styles := make([]lipgloss.Style, ts.Len())
	for i := range styles {
		c := ts.AverageColor(i)
		styles[i] = lipgloss.NewStyle().Background(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)))
	}

	lines := make([]string, g.Height())
	for y := range g.Height() {
		var b strings.Builder
		for x := range g.Width() {
			switch {
			case g.IsMasked(x, y):
				b.WriteString(maskedStyle.Render(strings.Repeat(" ", cellWidth)))
			case g.IsResolved(x, y):
				t, _ := g.Tile(x, y)
				b.WriteString(styles[t].Render(strings.Repeat(" ", cellWidth)))
			default:
				b.WriteString(unresolvedStyle.Render(fmt.Sprintf("%*s", cellWidth, count(g.Count(x, y)))))
			}
		}
		lines[y] = b.String()
	}
	return strings.Join(lines, "\n")
}

func count(n int) string {
	if n > 9 {
		return "+"
	}
	return fmt.Sprint(n)
}

// Legend lists the tiles with their colour.
func Legend(ts *tilegen.Tileset) string {
	var b strings.Builder
	for _, t := range ts.AllTiles() {
		c := ts.AverageColor(t.Index)
		block := lipgloss.NewStyle().Background(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))).Render("  ")
		fmt.Fprintf(&b, "%s %s\n", block, t.ID)
	}
	return b.String()
}
