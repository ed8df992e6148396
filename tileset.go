package tilegen

import (
	"fmt"
	"image"

	"crosswarped.com/tilegen/pkg/primitives"
)

// Tile is a single candidate for a cell of a Grid.
type Tile struct {
	ID    string
	Index int
	// Frequency is the relative weight of the tile when the search has a randomness source.
	Frequency int
	// Image is the tile's payload, drawn by Render. It may be nil.
	Image image.Image
}

// TileSpec describes a tile before it is compiled into a Tileset.
//
// Adjacency comes from Rules (ids allowed on each side) and from Edges (a label per side, two
// tiles fit when the labels on the shared edge are equal). Both may be used together.
type TileSpec struct {
	ID        string
	Frequency int
	Image     image.Image
	Rules     map[Direction][]string
	Edges     map[Direction]string
}

// Tileset is an immutable, ordered collection of tiles and their adjacency rules.
//
// It is safe for concurrent use.
type Tileset struct {
	tiles []Tile
	byID  map[string]int

	// allowed[t][d] is the set of tiles that may be placed on side d of tile t.
	allowed [][4]*primitives.TileSet
}

// NewTileset validates the specs and compiles them into a Tileset.
func NewTileset(specs []TileSpec) (*Tileset, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no tiles", ErrInvalidTileset)
	}

	ts := &Tileset{
		tiles:   make([]Tile, len(specs)),
		byID:    make(map[string]int, len(specs)),
		allowed: make([][4]*primitives.TileSet, len(specs)),
	}

	for i, spec := range specs {
		if spec.ID == "" {
			return nil, fmt.Errorf("%w: tile %d has no id", ErrInvalidTileset, i)
		}
		if _, ok := ts.byID[spec.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate tile id %q", ErrInvalidTileset, spec.ID)
		}
		freq := spec.Frequency
		if freq == 0 {
			freq = 1
		}
		if freq < 0 {
			return nil, fmt.Errorf("%w: tile %q has negative frequency %d", ErrInvalidTileset, spec.ID, freq)
		}
		ts.byID[spec.ID] = i
		ts.tiles[i] = Tile{ID: spec.ID, Index: i, Frequency: freq, Image: spec.Image}
		for _, d := range AllDirections {
			ts.allowed[i][d] = primitives.NewTileSet(len(specs))
		}
	}

	// Explicit rules, checked for dangling references and symmetry before edge labels are merged in.
	for i, spec := range specs {
		for _, d := range AllDirections {
			for _, id := range spec.Rules[d] {
				j, ok := ts.byID[id]
				if !ok {
					return nil, fmt.Errorf("%w: tile %q references unknown tile %q to its %s", ErrInvalidTileset, spec.ID, id, d)
				}
				ts.allowed[i][d].Add(j)
			}
		}
	}
	for i := range specs {
		for _, d := range AllDirections {
			for j := range ts.allowed[i][d].Ones() {
				if !ts.allowed[j][d.Opposite()].Contains(i) {
					return nil, fmt.Errorf("%w: tile %q allows %q to its %s, but %q does not allow %q to its %s",
						ErrInvalidTileset, specs[i].ID, specs[j].ID, d, specs[j].ID, specs[i].ID, d.Opposite())
				}
			}
		}
	}

	for i, a := range specs {
		for _, d := range AllDirections {
			label := a.Edges[d]
			if label == "" {
				continue
			}
			for j, b := range specs {
				if b.Edges[d.Opposite()] == label {
					ts.allowed[i][d].Add(j)
				}
			}
		}
	}

	return ts, nil
}

// Len returns the number of tiles.
func (ts *Tileset) Len() int {
	return len(ts.tiles)
}

// AllTiles returns the tiles in index order.
func (ts *Tileset) AllTiles() []Tile {
	out := make([]Tile, len(ts.tiles))
	copy(out, ts.tiles)
	return out
}

func (ts *Tileset) Tile(index int) Tile {
	return ts.tiles[index]
}

// Lookup returns the index of the tile with the given id.
func (ts *Tileset) Lookup(id string) (int, bool) {
	i, ok := ts.byID[id]
	return i, ok
}

// Compatible reports whether tile b may be placed on side dir of tile a.
func (ts *Tileset) Compatible(a int, dir Direction, b int) bool {
	return ts.allowed[a][dir].Contains(b)
}

// Allowed returns the set of tiles that may be placed on side dir of the given tile.
func (ts *Tileset) Allowed(tile int, dir Direction) *primitives.TileSet {
	return ts.allowed[tile][dir].Clone()
}

// mask is Allowed without the copy. Callers must not modify the result.
func (ts *Tileset) mask(tile int, dir Direction) *primitives.TileSet {
	return ts.allowed[tile][dir]
}

// Full returns a set of every tile index.
func (ts *Tileset) Full() *primitives.TileSet {
	return primitives.FullTileSet(len(ts.tiles))
}
