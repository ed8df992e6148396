package tilegen

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/charmbracelet/log"
)

// RunHooks observes a GenerateMap call. Every field is optional. In chunked mode the callbacks are
// called from several goroutines.
type RunHooks struct {
	Logger *log.Logger
	// OnProgress reports a whole map search.
	OnProgress func(Progress)
	// OnChunkProgress and OnChunk report the chunks of a chunked map.
	OnChunkProgress func(chunk int, p Progress)
	OnChunk         func(ChunkResult)
}

// NewRand returns the randomness source for an attempt at a chunk, nil when seed is zero. A whole
// map uses chunk 0, attempt 0, so a single chunk layout draws the same candidates as a whole map.
func NewRand(seed uint64, chunk, attempt int) *rand.Rand {
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(seed, uint64(chunk)<<32|uint64(attempt)))
}

// LoadTemplate reads the config's template, if any, and checks it against the map size.
func (c RunConfig) LoadTemplate(ts *Tileset) (*Grid, error) {
	if c.Template == "" {
		return nil, nil
	}
	g, err := LoadTemplate(c.Template, ts)
	if err != nil {
		return nil, err
	}
	if err := c.checkBase(g); err != nil {
		return nil, err
	}
	return g, nil
}

func (c RunConfig) checkBase(g *Grid) error {
	if !c.Chunked() && c.MapSize.IsZero() {
		return nil
	}
	w, h := c.Size()
	if g.Width() != w || g.Height() != h {
		return fmt.Errorf("%w: template is %dx%d, map is %dx%d", ErrInvalidConfig, g.Width(), g.Height(), w, h)
	}
	return nil
}

// GenerateMap validates cfg and produces a complete map with the configured algorithm and sizing
// mode. base, if not nil, supplies pre-constrained cells for the whole map, as read by
// LoadTemplate.
func GenerateMap(ctx context.Context, ts *Tileset, cfg RunConfig, base *Grid, hooks RunHooks) (*Grid, Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Stats{}, err
	}
	if base != nil {
		if err := cfg.checkBase(base); err != nil {
			return nil, Stats{}, err
		}
	}
	logger := hooks.Logger
	if logger == nil {
		logger = log.Default()
	}
	budget := Budget{MaxSteps: cfg.MaxSteps, Timeout: cfg.Timeout}

	if cfg.Chunked() {
		c := &Coordinator{
			Tileset:    ts,
			Layout:     cfg.Layout(),
			Algorithm:  cfg.Algorithm,
			Budget:     budget,
			Base:       base,
			Workers:    cfg.Workers,
			Retries:    cfg.Retries,
			Logger:     logger,
			OnChunk:    hooks.OnChunk,
			OnProgress: hooks.OnChunkProgress,
		}
		if cfg.Seed != 0 {
			c.NewRand = func(chunk, attempt int) *rand.Rand {
				return NewRand(cfg.Seed, chunk, attempt)
			}
		}
		return c.Generate(ctx)
	}

	gen := &Generator{
		Tileset:   ts,
		Algorithm: cfg.Algorithm,
		Params: SearchParams{
			Budget:     budget,
			Rand:       NewRand(cfg.Seed, 0, 0),
			OnProgress: hooks.OnProgress,
			Logger:     logger,
		},
	}
	if base != nil {
		grid := base.Clone()
		stats, err := gen.Collapse(ctx, grid)
		return grid, stats, err
	}
	return gen.Generate(ctx, cfg.MapSize.W, cfg.MapSize.H)
}
