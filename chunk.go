package tilegen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// ChunkLayout places ChunksX x ChunksY chunks of ChunkWidth x ChunkHeight cells on a composite map.
// Neighboring chunks overlap by Border columns (or rows): the later chunk starts with the overlap
// already resolved to what the earlier one produced.
type ChunkLayout struct {
	ChunkWidth, ChunkHeight int
	ChunksX, ChunksY        int
	Border                  int
}

func (l ChunkLayout) Validate() error {
	switch {
	case l.ChunkWidth <= 0 || l.ChunkHeight <= 0:
		return fmt.Errorf("%w: chunk size %dx%d must be positive", ErrInvalidConfig, l.ChunkWidth, l.ChunkHeight)
	case l.ChunksX <= 0 || l.ChunksY <= 0:
		return fmt.Errorf("%w: chunk count %dx%d must be positive", ErrInvalidConfig, l.ChunksX, l.ChunksY)
	case l.Border < 1 || l.Border >= min(l.ChunkWidth, l.ChunkHeight):
		return fmt.Errorf("%w: chunk border %d must be at least 1 and less than the chunk's smaller side %d",
			ErrInvalidConfig, l.Border, min(l.ChunkWidth, l.ChunkHeight))
	}
	w, okW := sideLength(l.ChunksX, l.ChunkWidth-l.Border, l.Border)
	h, okH := sideLength(l.ChunksY, l.ChunkHeight-l.Border, l.Border)
	if _, ok := area(w, h); !ok || !okW || !okH {
		return fmt.Errorf("%w: %dx%d chunks of %dx%d make a map too large", ErrInvalidConfig,
			l.ChunksX, l.ChunksY, l.ChunkWidth, l.ChunkHeight)
	}
	return nil
}

// sideLength returns n*step+border, and false if it overflows.
func sideLength(n, step, border int) (int, bool) {
	if border < 0 || n > (math.MaxInt-border)/step {
		return 0, false
	}
	return n*step + border, true
}

// MapSize returns the size of the composite map.
func (l ChunkLayout) MapSize() (int, int) {
	return l.ChunksX*(l.ChunkWidth-l.Border) + l.Border, l.ChunksY*(l.ChunkHeight-l.Border) + l.Border
}

// ChunkSpec is one chunk of a ChunkPlan.
type ChunkSpec struct {
	Index int
	// X and Y are the chunk's column and row in the layout.
	X, Y int
	// OriginX and OriginY are the composite coordinates of the chunk's top-left cell.
	OriginX, OriginY int
	// Deps are the indices of the chunks that must be complete before this one starts.
	Deps []int
}

// ChunkPlan is the dependency graph of a layout. Every chunk depends on its west and north
// neighbors, whose overlap cells it is seeded from.
type ChunkPlan struct {
	Layout ChunkLayout
	Chunks []ChunkSpec
}

func (l ChunkLayout) Plan() (*ChunkPlan, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	p := &ChunkPlan{Layout: l, Chunks: make([]ChunkSpec, 0, l.ChunksX*l.ChunksY)}
	for cy := range l.ChunksY {
		for cx := range l.ChunksX {
			c := ChunkSpec{
				Index:   cy*l.ChunksX + cx,
				X:       cx,
				Y:       cy,
				OriginX: cx * (l.ChunkWidth - l.Border),
				OriginY: cy * (l.ChunkHeight - l.Border),
			}
			if cx > 0 {
				c.Deps = append(c.Deps, c.Index-1)
			}
			if cy > 0 {
				c.Deps = append(c.Deps, c.Index-l.ChunksX)
			}
			p.Chunks = append(p.Chunks, c)
		}
	}
	return p, nil
}

// Order returns a topological order of the chunks, always picking the lowest ready index, and fails
// if the dependencies are out of range or cyclic.
func (p *ChunkPlan) Order() ([]int, error) {
	n := len(p.Chunks)
	indegree := make([]int, n)
	dependents := make([][]int, n)
	for i, c := range p.Chunks {
		if c.Index != i {
			return nil, fmt.Errorf("chunk at position %d has index %d", i, c.Index)
		}
		for _, d := range c.Deps {
			if d < 0 || d >= n || d == i {
				return nil, fmt.Errorf("chunk %d has invalid dependency %d", i, d)
			}
			indegree[i]++
			dependents[d] = append(dependents[d], i)
		}
	}

	var ready, order []int
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, m := range dependents[next] {
			indegree[m]--
			if indegree[m] == 0 {
				i, _ := slices.BinarySearch(ready, m)
				ready = slices.Insert(ready, i, m)
			}
		}
	}
	if len(order) != n {
		return nil, fmt.Errorf("chunk dependencies contain a cycle, %d of %d chunks ordered", len(order), n)
	}
	return order, nil
}

// owns reports whether a chunk generates the cell at local (x, y), rather than being seeded with it
// from a west or north neighbor.
func (c ChunkSpec) owns(l ChunkLayout, x, y int) bool {
	if c.X > 0 && x < l.Border {
		return false
	}
	if c.Y > 0 && y < l.Border {
		return false
	}
	return true
}

// ChunkError is returned when a chunk could not be generated. It matches ErrChunkUnsatisfiable as
// well as the search error.
type ChunkError struct {
	Index    int
	X, Y     int
	Attempts int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%v: chunk (%d, %d) after %d attempt(s): %v", ErrChunkUnsatisfiable, e.X, e.Y, e.Attempts, e.Err)
}

func (e *ChunkError) Unwrap() []error {
	return []error{ErrChunkUnsatisfiable, e.Err}
}

// ChunkResult reports a finished chunk.
type ChunkResult struct {
	Index    int
	X, Y     int
	Attempts int
	Stats    Stats
	Err      error
}

// Coordinator generates a chunked map on a bounded pool of workers.
type Coordinator struct {
	Tileset   *Tileset
	Layout    ChunkLayout
	Algorithm Algorithm
	// Budget applies to every attempt of every chunk.
	Budget Budget

	// Base, if set, is a grid of the composite size whose masked and restricted cells constrain the
	// chunks covering them.
	Base *Grid

	// NewRand returns the randomness source of a chunk attempt. A nil NewRand, or one returning nil,
	// gives deterministic candidate order, and disables retries.
	NewRand func(chunk, attempt int) *rand.Rand

	// Workers bounds the number of chunks searched at once, GOMAXPROCS when zero.
	Workers int
	// Retries is the number of extra attempts a failing chunk gets with a new randomness source.
	Retries int

	Logger *log.Logger

	// OnChunk and OnProgress are called from the worker goroutines and must be safe for concurrent use.
	OnChunk    func(ChunkResult)
	OnProgress func(chunk int, p Progress)
}

// Generate produces the composite map. Chunks start in topological order, each as soon as its
// dependencies are merged, so the output only depends on the randomness sources and not on the
// order the workers happen to run in.
func (c *Coordinator) Generate(ctx context.Context) (*Grid, Stats, error) {
	start := time.Now()
	plan, err := c.Layout.Plan()
	if err != nil {
		return nil, Stats{}, err
	}
	order, err := plan.Order()
	if err != nil {
		return nil, Stats{}, err
	}

	w, h := c.Layout.MapSize()
	var composite *Grid
	if c.Base != nil {
		if c.Base.Width() != w || c.Base.Height() != h {
			return nil, Stats{}, fmt.Errorf("%w: base grid is %dx%d, chunk layout needs %dx%d",
				ErrInvalidConfig, c.Base.Width(), c.Base.Height(), w, h)
		}
		composite = c.Base.Clone()
	} else {
		composite = NewGrid(w, h, c.Tileset)
	}

	logger := c.Logger
	if logger == nil {
		logger = log.Default()
	}
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger.Debug("generating chunked map", "width", w, "height", h, "chunks", len(plan.Chunks), "workers", workers)

	var (
		mu    sync.Mutex
		total Stats
	)
	done := make([]chan struct{}, len(plan.Chunks))
	for i := range done {
		done[i] = make(chan struct{})
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, idx := range order {
		spec := plan.Chunks[idx]
		eg.Go(func() error {
			for _, d := range spec.Deps {
				select {
				case <-done[d]:
				case <-ctx.Done():
					return fmt.Errorf("%w: chunk %d waiting for chunk %d: %w", ErrTimeout, spec.Index, d, ctx.Err())
				}
			}

			mu.Lock()
			grid := c.seed(composite, spec)
			mu.Unlock()

			solved, result := c.solve(ctx, logger, spec, grid)
			if c.OnChunk != nil {
				c.OnChunk(result)
			}
			if result.Err != nil {
				return &ChunkError{Index: spec.Index, X: spec.X, Y: spec.Y, Attempts: result.Attempts, Err: result.Err}
			}

			mu.Lock()
			c.merge(composite, spec, solved)
			total.Steps += result.Stats.Steps
			total.Backtracks += result.Stats.Backtracks
			total.Relaxed += result.Stats.Relaxed
			mu.Unlock()

			close(done[spec.Index])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, total, err
	}

	total.Duration = time.Since(start)
	return composite, total, nil
}

// seed builds the grid of a chunk from the composite: masked and restricted cells are copied, which
// includes the resolved overlap cells of its dependencies.
func (c *Coordinator) seed(composite *Grid, spec ChunkSpec) *Grid {
	l := c.Layout
	g := NewGrid(l.ChunkWidth, l.ChunkHeight, c.Tileset)
	for y := range l.ChunkHeight {
		for x := range l.ChunkWidth {
			ci := composite.index(spec.OriginX+x, spec.OriginY+y)
			if composite.masked[ci] {
				g.Mask(x, y)
				continue
			}
			if cells := composite.cells[ci]; !cells.IsFull() {
				g.set(g.index(x, y), cells.Clone())
			}
		}
	}
	return g
}

// merge copies the cells a chunk owns into the composite.
func (c *Coordinator) merge(composite *Grid, spec ChunkSpec, g *Grid) {
	l := c.Layout
	for y := range l.ChunkHeight {
		for x := range l.ChunkWidth {
			i := g.index(x, y)
			if g.masked[i] || !spec.owns(l, x, y) {
				continue
			}
			composite.set(composite.index(spec.OriginX+x, spec.OriginY+y), g.cells[i])
		}
	}
}

// solve searches a seeded chunk grid, retrying with fresh randomness if configured. Every attempt
// starts from a copy of the seeded grid.
func (c *Coordinator) solve(ctx context.Context, logger *log.Logger, spec ChunkSpec, seeded *Grid) (*Grid, ChunkResult) {
	result := ChunkResult{Index: spec.Index, X: spec.X, Y: spec.Y}
	logger = logger.With("chunk", spec.Index, "x", spec.X, "y", spec.Y)

	for attempt := 0; attempt <= c.Retries; attempt++ {
		result.Attempts = attempt + 1

		var r *rand.Rand
		if c.NewRand != nil {
			r = c.NewRand(spec.Index, attempt)
		}
		params := SearchParams{Budget: c.Budget, Rand: r, Logger: logger}
		if c.OnProgress != nil {
			params.OnProgress = func(p Progress) { c.OnProgress(spec.Index, p) }
		}

		grid := seeded.Clone()
		stats, err := NewStrategy(c.Algorithm, params).Solve(ctx, grid)
		result.Stats = stats
		result.Err = err
		if err == nil {
			logger.Debug("chunk done", "attempt", attempt, "steps", stats.Steps, "elapsed", stats.Duration)
			return grid, result
		}

		logger.Debug("chunk failed", "attempt", attempt, "err", err, "grid", grid.DebugString())
		if ctx.Err() != nil || r == nil || !(errors.Is(err, ErrUnsatisfiable) || errors.Is(err, ErrTimeout)) {
			break
		}
	}
	return nil, result
}
