package tilegen

import (
	"fmt"
	"strings"

	"crosswarped.com/tilegen/pkg/primitives"
)

// Grid is a 2D grid of cells, each holding the set of tiles it may still take.
//
// It represents a map in progress: a cell with exactly one candidate is resolved, a masked cell
// takes no tile at all.
type Grid struct {
	width, height int
	tileset       *Tileset

	cells  []*primitives.TileSet
	masked []bool

	resolved int
	unmasked int

	// trail records the previous candidates of every changed cell while recording is on.
	trail     []trailEntry
	recording bool

	// onChange is called with the cell index and its new candidate count after every change.
	onChange func(index, count int)
}

type trailEntry struct {
	index int
	prev  *primitives.TileSet
}

// NewGrid creates a grid where every cell may take any tile of the tileset.
func NewGrid(width, height int, tileset *Tileset) *Grid {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("grid dimensions must be positive, got %dx%d", width, height))
	}
	g := &Grid{
		width:    width,
		height:   height,
		tileset:  tileset,
		cells:    make([]*primitives.TileSet, width*height),
		masked:   make([]bool, width*height),
		unmasked: width * height,
	}
	for i := range g.cells {
		g.cells[i] = tileset.Full()
	}
	if tileset.Len() == 1 {
		g.resolved = len(g.cells)
	}
	return g
}

func (g *Grid) Width() int {
	return g.width
}

func (g *Grid) Height() int {
	return g.height
}

func (g *Grid) Tileset() *Tileset {
	return g.tileset
}

func (g *Grid) index(x, y int) int {
	return y*g.width + x
}

func (g *Grid) coords(i int) (int, int) {
	return i % g.width, i / g.width
}

func (g *Grid) inBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

// neighbor returns the index of the unmasked cell on side d of cell i.
func (g *Grid) neighbor(i int, d Direction) (int, bool) {
	x, y := g.coords(i)
	dx, dy := d.Delta()
	nx, ny := x+dx, y+dy
	if !g.inBounds(nx, ny) {
		return 0, false
	}
	n := g.index(nx, ny)
	if g.masked[n] {
		return 0, false
	}
	return n, true
}

// set replaces the candidates of cell i, keeping the counters, trail and change hook up to date.
func (g *Grid) set(i int, next *primitives.TileSet) {
	prev := g.cells[i]
	if g.recording {
		g.trail = append(g.trail, trailEntry{index: i, prev: prev})
	}
	g.replace(i, prev, next)
}

func (g *Grid) replace(i int, prev, next *primitives.TileSet) {
	if !g.masked[i] {
		if prev.Count() == 1 {
			g.resolved--
		}
		if next.Count() == 1 {
			g.resolved++
		}
	}
	g.cells[i] = next
	if g.onChange != nil {
		g.onChange(i, next.Count())
	}
}

// mark returns a position in the trail that undo can roll back to.
func (g *Grid) mark() int {
	return len(g.trail)
}

// undo restores every cell changed since the mark.
func (g *Grid) undo(mark int) {
	for len(g.trail) > mark {
		e := g.trail[len(g.trail)-1]
		g.trail = g.trail[:len(g.trail)-1]
		g.replace(e.index, g.cells[e.index], e.prev)
	}
}

// commit forgets the trail, changes made so far can no longer be undone.
func (g *Grid) commit() {
	clear(g.trail)
	g.trail = g.trail[:0]
}

// Assign resolves the cell to a single tile. It fails with ErrContradiction if the tile is not a
// candidate of the cell.
func (g *Grid) Assign(x, y, tile int) error {
	if !g.inBounds(x, y) {
		return fmt.Errorf("cell (%d, %d) is outside the %dx%d grid", x, y, g.width, g.height)
	}
	i := g.index(x, y)
	return g.assign(i, tile)
}

func (g *Grid) assign(i, tile int) error {
	if g.masked[i] || !g.cells[i].Contains(tile) {
		x, y := g.coords(i)
		return fmt.Errorf("%w: tile %d is not a candidate at (%d, %d)", ErrContradiction, tile, x, y)
	}
	if g.cells[i].Count() == 1 {
		return nil
	}
	next := primitives.NewTileSet(g.tileset.Len())
	next.Add(tile)
	g.set(i, next)
	return nil
}

// Restrict removes every candidate of the cell that is not in allowed. It fails with
// ErrContradiction if no candidate remains.
func (g *Grid) Restrict(x, y int, allowed *primitives.TileSet) error {
	if !g.inBounds(x, y) {
		return fmt.Errorf("cell (%d, %d) is outside the %dx%d grid", x, y, g.width, g.height)
	}
	i := g.index(x, y)
	next := g.cells[i].Clone()
	if !next.Intersect(allowed) {
		return nil
	}
	if next.IsEmpty() {
		return fmt.Errorf("%w: no candidates remain at (%d, %d)", ErrContradiction, x, y)
	}
	g.set(i, next)
	return nil
}

// Mask excludes the cell from the map. A masked cell takes no tile and constrains no neighbor.
func (g *Grid) Mask(x, y int) {
	i := g.index(x, y)
	if g.masked[i] {
		return
	}
	if g.cells[i].Count() == 1 {
		g.resolved--
	}
	g.masked[i] = true
	g.unmasked--
	g.cells[i] = primitives.NewTileSet(g.tileset.Len())
}

func (g *Grid) IsMasked(x, y int) bool {
	return g.masked[g.index(x, y)]
}

// IsResolved reports whether the cell has exactly one candidate.
func (g *Grid) IsResolved(x, y int) bool {
	i := g.index(x, y)
	return !g.masked[i] && g.cells[i].Count() == 1
}

// IsComplete reports whether every unmasked cell is resolved.
func (g *Grid) IsComplete() bool {
	return g.resolved == g.unmasked
}

// Resolved returns the number of resolved cells and the number of unmasked cells.
func (g *Grid) Resolved() (int, int) {
	return g.resolved, g.unmasked
}

// Tile returns the tile of a resolved cell.
func (g *Grid) Tile(x, y int) (int, bool) {
	if !g.IsResolved(x, y) {
		return 0, false
	}
	return g.cells[g.index(x, y)].First()
}

// Candidates returns a copy of the cell's candidate set.
func (g *Grid) Candidates(x, y int) *primitives.TileSet {
	return g.cells[g.index(x, y)].Clone()
}

func (g *Grid) Count(x, y int) int {
	return g.cells[g.index(x, y)].Count()
}

// Violations counts pairs of adjacent resolved cells whose tiles are not compatible.
func (g *Grid) Violations() int {
	n := 0
	for y := range g.height {
		for x := range g.width {
			a, ok := g.Tile(x, y)
			if !ok {
				continue
			}
			for _, d := range []Direction{East, South} {
				dx, dy := d.Delta()
				if !g.inBounds(x+dx, y+dy) {
					continue
				}
				b, ok := g.Tile(x+dx, y+dy)
				if ok && !g.tileset.Compatible(a, d, b) {
					n++
				}
			}
		}
	}
	return n
}

// Clone returns an independent copy of the grid without its trail or change hook.
func (g *Grid) Clone() *Grid {
	c := &Grid{
		width:    g.width,
		height:   g.height,
		tileset:  g.tileset,
		cells:    make([]*primitives.TileSet, len(g.cells)),
		masked:   make([]bool, len(g.masked)),
		resolved: g.resolved,
		unmasked: g.unmasked,
	}
	for i, s := range g.cells {
		c.cells[i] = s.Clone()
	}
	copy(c.masked, g.masked)
	return c
}

// Tiles returns the resolved tile index of every cell, row by row. Unresolved and masked cells
// are -1.
func (g *Grid) Tiles() [][]int {
	out := make([][]int, g.height)
	for y := range g.height {
		out[y] = make([]int, g.width)
		for x := range g.width {
			t, ok := g.Tile(x, y)
			if !ok {
				t = -1
			}
			out[y][x] = t
		}
	}
	return out
}

// Repr returns the grid as text, one row per line. Resolved cells show their tile id, masked cells
// '!' and unresolved cells '*'.
func (g *Grid) Repr() string {
	width := 1
	for _, t := range g.tileset.tiles {
		width = max(width, len(t.ID))
	}

	lines := make([]string, g.height)
	for y := range g.height {
		cols := make([]string, g.width)
		for x := range g.width {
			s := cellWildcard
			switch {
			case g.IsMasked(x, y):
				s = cellIgnore
			case g.IsResolved(x, y):
				t, _ := g.Tile(x, y)
				s = g.tileset.tiles[t].ID
			}
			cols[x] = fmt.Sprintf("%*s", width, s)
		}
		lines[y] = strings.Join(cols, " ")
	}
	return strings.Join(lines, "\n")
}

// DebugString lists every cell's candidate set, for logging a grid that failed to solve.
func (g *Grid) DebugString() string {
	return fmt.Sprintf("Grid{width: %d, height: %d, resolved: %d/%d, cells: %v}", g.width, g.height, g.resolved, g.unmasked, g.cells)
}
