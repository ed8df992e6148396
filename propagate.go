package tilegen

import (
	"fmt"

	"crosswarped.com/tilegen/pkg/primitives"
)

// arc is a pending revision of cell against its neighbor from, which lies on side dir of cell.
type arc struct {
	cell, from int
	dir        Direction
}

// propagator runs arc-consistency over a grid.
type propagator struct {
	grid *Grid
	// strict also checks resolved cells for support, turning an unsupported resolved cell into a
	// contradiction. Without it resolved cells are never revised.
	strict bool

	queue   []arc
	support *primitives.TileSet
}

func newPropagator(g *Grid, strict bool) *propagator {
	return &propagator{
		grid:    g,
		strict:  strict,
		support: primitives.NewTileSet(g.tileset.Len()),
	}
}

// Propagate restores arc-consistency after the candidates of cell (x, y) changed. It fails with
// ErrContradiction as soon as a cell runs out of candidates.
func Propagate(g *Grid, x, y int) error {
	return newPropagator(g, true).fromCell(g.index(x, y))
}

// PropagateAll makes every cell of the grid arc-consistent with its neighbors.
func PropagateAll(g *Grid) error {
	return newPropagator(g, true).all()
}

func (p *propagator) fromCell(origin int) error {
	p.queue = p.queue[:0]
	for _, d := range AllDirections {
		if n, ok := p.grid.neighbor(origin, d); ok {
			p.queue = append(p.queue, arc{cell: n, from: origin, dir: d.Opposite()})
		}
	}
	return p.drain()
}

func (p *propagator) all() error {
	p.queue = p.queue[:0]
	for i := range p.grid.cells {
		if p.grid.masked[i] {
			continue
		}
		for _, d := range AllDirections {
			if n, ok := p.grid.neighbor(i, d); ok {
				p.queue = append(p.queue, arc{cell: i, from: n, dir: d})
			}
		}
	}
	return p.drain()
}

func (p *propagator) drain() error {
	for head := 0; head < len(p.queue); head++ {
		a := p.queue[head]
		changed, err := p.revise(a)
		if err != nil {
			p.queue = p.queue[:0]
			return err
		}
		if !changed {
			continue
		}

		for _, d := range AllDirections {
			n, ok := p.grid.neighbor(a.cell, d)
			if !ok || n == a.from {
				continue
			}
			p.queue = append(p.queue, arc{cell: n, from: a.cell, dir: d.Opposite()})
		}
	}
	p.queue = p.queue[:0]
	return nil
}

// revise removes the candidates of a.cell that no candidate of a.from supports.
func (p *propagator) revise(a arc) (bool, error) {
	g := p.grid
	current := g.cells[a.cell]
	if current.Count() <= 1 && !p.strict {
		return false, nil
	}

	// A candidate u of cell survives when some candidate v of from allows u on the side facing cell.
	from := g.cells[a.from]
	facing := a.dir.Opposite()
	var support *primitives.TileSet
	if from.Count() == 1 {
		v, _ := from.First()
		support = g.tileset.mask(v, facing)
	} else {
		p.support.Clear()
		for v := range from.Ones() {
			p.support.AddAll(g.tileset.mask(v, facing))
			if p.support.IsFull() {
				break
			}
		}
		support = p.support
	}

	kept := current.IntersectionCount(support)
	if kept == current.Count() {
		return false, nil
	}
	if kept == 0 {
		x, y := g.coords(a.cell)
		return false, fmt.Errorf("%w: no candidates remain at (%d, %d)", ErrContradiction, x, y)
	}

	next := current.Clone()
	next.Intersect(support)
	g.set(a.cell, next)
	return true, nil
}
