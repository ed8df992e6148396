package tilegen

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	cellIgnore   = "!"
	cellWildcard = "*"
)

// LoadTemplate reads a template map from a file, see ParseTemplate.
func LoadTemplate(filename string, tileset *Tileset) (*Grid, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTemplate(f, tileset)
}

// ParseTemplate reads a grid from text, one row per line with whitespace separated cells. A cell
// is '*' (any tile), '!' (masked) or a tile id. Tile indices are accepted when no tile has that id.
// Blank lines and lines starting with '#' are skipped.
func ParseTemplate(r io.Reader, tileset *Tileset) (*Grid, error) {
	var rows [][]string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rows = append(rows, strings.Fields(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: template is empty", ErrInvalidConfig)
	}

	width := len(rows[0])
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: template row %d has %d cells, want %d", ErrInvalidConfig, y+1, len(row), width)
		}
	}

	g := NewGrid(width, len(rows), tileset)
	for y, row := range rows {
		for x, cell := range row {
			switch cell {
			case cellWildcard:
				continue
			case cellIgnore:
				g.Mask(x, y)
				continue
			}

			tile, ok := tileset.Lookup(cell)
			if !ok {
				n, err := strconv.Atoi(cell)
				if err != nil || n < 0 || n >= tileset.Len() {
					return nil, fmt.Errorf("%w: template cell (%d, %d) references unknown tile %q", ErrInvalidConfig, x, y, cell)
				}
				tile = n
			}
			if err := g.Assign(x, y, tile); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}
