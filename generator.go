package tilegen

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
)

// Generator solves whole maps over one tileset with a configured strategy.
type Generator struct {
	Tileset   *Tileset
	Algorithm Algorithm
	Params    SearchParams
}

// GeneratorParams tunes the search of a Generator. Zero values mean no limit.
type GeneratorParams struct {
	Budget
	OnProgress func(Progress)
}

func CreateGenerator(tileset *Tileset, alg Algorithm, rand *rand.Rand, params GeneratorParams) *Generator {
	return &Generator{
		Tileset:   tileset,
		Algorithm: alg,
		Params: SearchParams{
			Budget:     params.Budget,
			Rand:       rand,
			OnProgress: params.OnProgress,
		},
	}
}

// Generate solves a fresh width x height map.
func (g *Generator) Generate(ctx context.Context, width, height int) (*Grid, Stats, error) {
	if width <= 0 || height <= 0 {
		return nil, Stats{}, fmt.Errorf("%w: map size %dx%d", ErrInvalidConfig, width, height)
	}
	if _, ok := area(width, height); !ok {
		return nil, Stats{}, fmt.Errorf("%w: map size %dx%d is too large", ErrInvalidConfig, width, height)
	}
	grid := NewGrid(width, height, g.Tileset)
	stats, err := g.Collapse(ctx, grid)
	return grid, stats, err
}

// Collapse solves a grid that may already have resolved, restricted or masked cells, as produced by
// ParseTemplate or by chunk seeding.
func (g *Generator) Collapse(ctx context.Context, grid *Grid) (Stats, error) {
	if grid.Tileset() != g.Tileset {
		return Stats{}, fmt.Errorf("%w: grid uses a different tileset", ErrInvalidConfig)
	}
	strategy := NewStrategy(g.Algorithm, g.Params)
	stats, err := strategy.Solve(ctx, grid)
	if err != nil {
		return stats, fmt.Errorf("%s search on %dx%d grid: %w", strategy.Name(), grid.Width(), grid.Height(), err)
	}
	return stats, nil
}

// PossibleGrids yields every distinct solution of a width x height map. The sequence is exhaustive
// and always uses backtracking, whatever the configured algorithm.
func (g *Generator) PossibleGrids(ctx context.Context, width, height int) iter.Seq[*Grid] {
	return func(yield func(*Grid) bool) {
		if width <= 0 || height <= 0 {
			return
		}
		b := &Backtracking{Params: g.Params}

		seenReprs := make(map[string]bool)
		for grid := range b.Solutions(ctx, NewGrid(width, height, g.Tileset)) {
			repr := grid.Repr()
			if seenReprs[repr] {
				continue
			}
			seenReprs[repr] = true
			if !yield(grid) {
				return
			}
		}
	}
}
