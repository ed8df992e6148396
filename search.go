package tilegen

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"crosswarped.com/tilegen/internal/frontier"
	"crosswarped.com/tilegen/pkg/primitives"
)

// Budget bounds a search. Zero values mean no limit.
type Budget struct {
	// MaxSteps is the maximum number of tile placements attempted.
	MaxSteps int
	// MaxBacktracks is the maximum number of placements undone after a contradiction.
	MaxBacktracks int
	Timeout       time.Duration
}

type SearchParams struct {
	Budget

	// Rand, if set, orders candidates by a frequency weighted shuffle. Without it candidates are
	// tried in tileset order and the search is fully deterministic.
	Rand *rand.Rand

	OnProgress func(Progress)
	Logger     *log.Logger
}

// Progress is a snapshot of a running search.
type Progress struct {
	Resolved   int
	Total      int
	Steps      int
	Backtracks int
}

// Stats summarizes a finished search.
type Stats struct {
	Steps      int
	Backtracks int
	// Relaxed counts the placements made without a consistent candidate, fast strategy only.
	Relaxed  int
	Duration time.Duration
}

// Strategy fills every unresolved cell of a grid.
type Strategy interface {
	Name() string
	Solve(ctx context.Context, g *Grid) (Stats, error)
}

// NewStrategy returns the strategy implementing the algorithm.
func NewStrategy(alg Algorithm, params SearchParams) Strategy {
	if alg == AlgorithmFast {
		return &Fast{Params: params}
	}
	return &Backtracking{Params: params}
}

// search is the state shared by the strategies while one grid is being solved.
type search struct {
	grid     *Grid
	params   SearchParams
	prop     *propagator
	frontier *frontier.Frontier
	logger   *log.Logger

	stats Stats
	start time.Time
}

func newSearch(g *Grid, params SearchParams, strict bool) *search {
	s := &search{
		grid:   g,
		params: params,
		prop:   newPropagator(g, strict),
		logger: params.Logger,
		start:  time.Now(),
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.frontier = frontier.New(len(g.cells), func(i int) int {
		if g.masked[i] {
			return 0
		}
		return g.cells[i].Count()
	})
	g.onChange = s.frontier.Push
	g.recording = true
	return s
}

// close detaches the search from the grid.
func (s *search) close() {
	s.grid.onChange = nil
	s.grid.recording = false
	s.grid.commit()
}

func (s *search) finish() Stats {
	s.stats.Duration = time.Since(s.start)
	return s.stats
}

func (s *search) next() (int, bool) {
	return s.frontier.Next()
}

// place resolves the cell to tile and propagates the consequences.
func (s *search) place(cell, tile int) error {
	if err := s.grid.assign(cell, tile); err != nil {
		return err
	}
	return s.prop.fromCell(cell)
}

// checkBudget returns ErrTimeout once the context is done or a budget limit is passed.
func (s *search) checkBudget(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if s.params.MaxSteps > 0 && s.stats.Steps > s.params.MaxSteps {
		return fmt.Errorf("%w: more than %d steps", ErrTimeout, s.params.MaxSteps)
	}
	if s.params.MaxBacktracks > 0 && s.stats.Backtracks > s.params.MaxBacktracks {
		return fmt.Errorf("%w: more than %d backtracks", ErrTimeout, s.params.MaxBacktracks)
	}
	return nil
}

func (s *search) progress() {
	if s.params.OnProgress == nil {
		return
	}
	resolved, total := s.grid.Resolved()
	s.params.OnProgress(Progress{
		Resolved:   resolved,
		Total:      total,
		Steps:      s.stats.Steps,
		Backtracks: s.stats.Backtracks,
	})
}

// order returns the candidates of a cell in the order they should be tried.
func (s *search) order(cell int) []int {
	options := s.grid.cells[cell].Slice()
	if s.params.Rand == nil || len(options) < 2 {
		return options
	}
	return weightedShuffle(options, s.grid.tileset, s.params.Rand)
}

// weightedShuffle orders tiles so that each position is drawn with probability proportional to the
// remaining tiles' frequencies, by sorting on exponentially distributed keys.
func weightedShuffle(options []int, ts *Tileset, r *rand.Rand) []int {
	type keyed struct {
		tile int
		key  float64
	}
	ks := make([]keyed, len(options))
	for i, t := range options {
		u := r.Float64()
		for u == 0 {
			u = r.Float64()
		}
		ks[i] = keyed{tile: t, key: -math.Log(u) / float64(ts.tiles[t].Frequency)}
	}
	slices.SortStableFunc(ks, func(a, b keyed) int {
		return cmp.Compare(a.key, b.key)
	})
	for i, k := range ks {
		options[i] = k.tile
	}
	return options
}

// conflicts counts the resolved neighbors of cell that tile is not compatible with.
func (s *search) conflicts(cell, tile int) int {
	g := s.grid
	n := 0
	for _, d := range AllDirections {
		m, ok := g.neighbor(cell, d)
		if !ok || g.cells[m].Count() != 1 {
			continue
		}
		other, _ := g.cells[m].First()
		if !g.tileset.Compatible(tile, d, other) {
			n++
		}
	}
	return n
}

// relax resolves cell to its least conflicting tile without propagating, then recomputes the
// candidates of its unresolved neighbors from their resolved neighbors alone. A neighbor left
// without candidates falls back to whatever the placed tile allows, or to every tile.
func (s *search) relax(cell int) {
	g := s.grid
	candidates := g.cells[cell]
	if candidates.IsEmpty() {
		candidates = g.tileset.Full()
	}

	best, fewest := -1, math.MaxInt
	for t := range candidates.Ones() {
		if c := s.conflicts(cell, t); c < fewest {
			best, fewest = t, c
		}
	}
	single := primitives.NewTileSet(g.tileset.Len())
	single.Add(best)
	g.set(cell, single)
	s.stats.Relaxed++

	for _, d := range AllDirections {
		n, ok := g.neighbor(cell, d)
		if !ok || g.cells[n].Count() == 1 {
			continue
		}
		next := g.tileset.Full()
		for _, d2 := range AllDirections {
			m, ok := g.neighbor(n, d2)
			if !ok || g.cells[m].Count() != 1 {
				continue
			}
			tm, _ := g.cells[m].First()
			next.Intersect(g.tileset.mask(tm, d2.Opposite()))
		}
		if next.IsEmpty() {
			next = g.tileset.Allowed(best, d)
		}
		if next.IsEmpty() {
			next = g.tileset.Full()
		}
		if !next.Equal(g.cells[n]) {
			g.set(n, next)
		}
	}
}
