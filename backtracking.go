package tilegen

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// Backtracking is an exhaustive depth-first search. It finds a solution whenever one exists and
// the budget allows, and only returns ErrUnsatisfiable once every branch has been ruled out.
type Backtracking struct {
	Params SearchParams
}

func (b *Backtracking) Name() string {
	return "backtracking"
}

// Solve fills g with the first solution found. On ErrUnsatisfiable g holds the propagated initial
// state, on ErrTimeout the partial assignment at the time the budget ran out.
func (b *Backtracking) Solve(ctx context.Context, g *Grid) (Stats, error) {
	return b.run(ctx, g, func(*Grid) bool { return false })
}

// Solutions yields a copy of every solution of g in search order. A search error ends the
// sequence early and is only logged.
func (b *Backtracking) Solutions(ctx context.Context, g *Grid) iter.Seq[*Grid] {
	return func(yield func(*Grid) bool) {
		stopped := false
		_, err := b.run(ctx, g, func(solved *Grid) bool {
			stopped = !yield(solved.Clone())
			return !stopped
		})
		if err != nil && !stopped {
			logger := b.Params.Logger
			if logger != nil {
				logger.Debug("solutions ended", "err", err)
			}
		}
	}
}

// decision is one level of the search: the cell being decided, the candidates to try in order and
// the trail position to roll back to before each attempt.
type decision struct {
	cell    int
	options []int
	next    int
	mark    int
}

// run searches g and calls found on every solution until it returns false. The stack of decisions
// is explicit, so depth is only bounded by the number of cells.
func (b *Backtracking) run(ctx context.Context, g *Grid, found func(*Grid) bool) (Stats, error) {
	if b.Params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Params.Timeout)
		defer cancel()
	}

	s := newSearch(g, b.Params, true)
	defer s.close()

	if err := s.prop.all(); err != nil {
		return s.finish(), fmt.Errorf("%w: %w", ErrUnsatisfiable, err)
	}
	s.progress()

	var stack []decision
	solutions := 0
	for {
		if err := s.checkBudget(ctx); err != nil {
			return s.finish(), err
		}

		if cell, ok := s.next(); ok {
			stack = append(stack, decision{cell: cell, options: s.order(cell), mark: g.mark()})
		} else {
			solutions++
			s.logger.Debug("solution found", "strategy", b.Name(), "steps", s.stats.Steps, "backtracks", s.stats.Backtracks)
			if !found(g) {
				return s.finish(), nil
			}
			// Carry on as if the last decision had failed.
		}

		ok, err := s.advance(ctx, &stack)
		if err != nil {
			return s.finish(), err
		}
		if !ok {
			break
		}
	}

	if solutions == 0 {
		return s.finish(), ErrUnsatisfiable
	}
	return s.finish(), nil
}

// advance tries the next candidate of the innermost decision, popping exhausted decisions. It
// returns false once the stack is empty, which means the search space is exhausted.
func (s *search) advance(ctx context.Context, stack *[]decision) (bool, error) {
	for len(*stack) > 0 {
		top := &(*stack)[len(*stack)-1]
		s.grid.undo(top.mark)
		if top.next == len(top.options) {
			*stack = (*stack)[:len(*stack)-1]
			continue
		}

		tile := top.options[top.next]
		top.next++
		s.stats.Steps++
		if err := s.checkBudget(ctx); err != nil {
			return false, err
		}

		err := s.place(top.cell, tile)
		if err == nil {
			s.progress()
			return true, nil
		}
		if !errors.Is(err, ErrContradiction) {
			return false, err
		}
		s.stats.Backtracks++
	}
	return false, nil
}
