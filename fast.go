package tilegen

import (
	"cmp"
	"context"
	"errors"
	"slices"
)

// Fast is a greedy search that never fails. Each placement is checked with propagation and undone
// on a contradiction, but earlier decisions are never revisited: when no candidate of a cell
// propagates cleanly the cell is relaxed, so the result may contain incompatible neighbors.
//
// Once the step budget or the timeout is reached the remaining cells are filled greedily without
// propagation.
type Fast struct {
	Params SearchParams
}

func (f *Fast) Name() string {
	return "fast"
}

// Solve always completes g. The returned error is only non-nil when ctx was cancelled, the grid is
// still complete in that case. A passed deadline just ends the propagating phase.
func (f *Fast) Solve(ctx context.Context, g *Grid) (Stats, error) {
	// Deadline and cancellation only end the propagating phase, the greedy finish always runs.
	deadline := ctx
	if f.Params.Timeout > 0 {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(ctx, f.Params.Timeout)
		defer cancel()
	}

	s := newSearch(g, f.Params, false)
	defer s.close()

	mark := g.mark()
	if err := s.prop.all(); err != nil {
		s.logger.Debug("initial propagation failed, continuing relaxed", "err", err)
		g.undo(mark)
	}
	g.commit()
	s.progress()

	for !f.exhausted(deadline, s) {
		cell, ok := s.next()
		if !ok {
			break
		}
		if !f.step(deadline, s, cell) {
			s.relax(cell)
		}
		g.commit()
		s.progress()
	}

	finished := f.finishGreedy(s)
	s.logger.Debug("fast search finished",
		"steps", s.stats.Steps,
		"relaxed", s.stats.Relaxed,
		"greedy", finished,
		"violations", g.Violations())
	s.progress()
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return s.finish(), err
	}
	return s.finish(), nil
}

func (f *Fast) exhausted(ctx context.Context, s *search) bool {
	if ctx.Err() != nil {
		return true
	}
	return f.Params.MaxSteps > 0 && s.stats.Steps >= f.Params.MaxSteps
}

// step tries the candidates of cell, the preferred one first and then the rest in least
// constraining order, keeping the first that propagates without contradiction.
func (f *Fast) step(ctx context.Context, s *search, cell int) bool {
	options := s.order(cell)
	if len(options) > 2 {
		rest := options[1:]
		scores := make(map[int]int, len(rest))
		for _, t := range rest {
			scores[t] = s.remaining(cell, t)
		}
		slices.SortStableFunc(rest, func(a, b int) int {
			return cmp.Compare(scores[b], scores[a])
		})
	}

	for _, tile := range options {
		if f.exhausted(ctx, s) {
			return false
		}
		s.stats.Steps++
		mark := s.grid.mark()
		if err := s.place(cell, tile); err == nil {
			return true
		}
		s.grid.undo(mark)
		s.stats.Backtracks++
	}
	return false
}

// finishGreedy resolves every cell the propagating phase left open, in index order, and returns how
// many it resolved.
func (f *Fast) finishGreedy(s *search) int {
	g := s.grid
	n := 0
	for i, c := range g.cells {
		if g.masked[i] || c.Count() == 1 {
			continue
		}
		s.relax(i)
		n++
	}
	return n
}

// remaining sums the candidates left to the unresolved neighbors of cell if it took tile.
func (s *search) remaining(cell, tile int) int {
	g := s.grid
	n := 0
	for _, d := range AllDirections {
		m, ok := g.neighbor(cell, d)
		if !ok || g.cells[m].Count() <= 1 {
			continue
		}
		n += g.cells[m].IntersectionCount(g.tileset.mask(tile, d))
	}
	return n
}
