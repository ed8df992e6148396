package tilegen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Algorithm selects the search strategy.
type Algorithm int

const (
	AlgorithmBacktracking Algorithm = iota
	AlgorithmFast
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmBacktracking:
		return "backtracking"
	case AlgorithmFast:
		return "fast"
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(s) {
	case "backtracking":
		return AlgorithmBacktracking, nil
	case "fast":
		return AlgorithmFast, nil
	}
	return 0, fmt.Errorf("%w: unknown algorithm %q, want backtracking or fast", ErrInvalidConfig, s)
}

// Set implements flag.Value.
func (a *Algorithm) Set(s string) error {
	v, err := ParseAlgorithm(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Size is a WxH pair. The zero Size means unset.
type Size struct {
	W, H int
}

func ParseSize(s string) (Size, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return Size{}, fmt.Errorf("%w: size %q is not WxH", ErrInvalidConfig, s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return Size{}, fmt.Errorf("%w: size %q: %v", ErrInvalidConfig, s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return Size{}, fmt.Errorf("%w: size %q: %v", ErrInvalidConfig, s, err)
	}
	if w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("%w: size %q must be positive", ErrInvalidConfig, s)
	}
	if _, ok := area(w, h); !ok {
		return Size{}, fmt.Errorf("%w: size %q is too large", ErrInvalidConfig, s)
	}
	return Size{W: w, H: h}, nil
}

// area returns w*h for non-negative sides, and false if the product overflows.
func area(w, h int) (int, bool) {
	if w < 0 || h < 0 {
		return 0, false
	}
	if h > 0 && w > math.MaxInt/h {
		return 0, false
	}
	return w * h, true
}

func (s Size) IsZero() bool {
	return s == Size{}
}

func (s Size) String() string {
	if s.IsZero() {
		return ""
	}
	return fmt.Sprintf("%dx%d", s.W, s.H)
}

// Set implements flag.Value.
func (s *Size) Set(v string) error {
	parsed, err := ParseSize(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RunConfig is one map generation request, as given on the command line or over HTTP.
//
// Exactly one sizing mode is used: MapSize for a whole map, or ChunkSize with NumChunks for a
// chunked map. BorderSize means different things in each mode: the padding of the rendered image in
// pixels for a whole map, and the overlap between neighboring chunks in cells for a chunked map,
// where the image gets no padding.
type RunConfig struct {
	InputTileset   string
	OutputFilepath string
	Template       string

	Algorithm Algorithm
	MapSize   Size
	ChunkSize Size
	NumChunks Size

	TileSize   int
	BorderSize int

	Timeout  time.Duration
	MaxSteps int
	// Seed selects a frequency weighted candidate order. Zero keeps the deterministic tile order.
	Seed    uint64
	Workers int
	Retries int

	Verbose bool
}

// Chunked reports whether the config describes a chunked map.
func (c RunConfig) Chunked() bool {
	return !c.ChunkSize.IsZero() || !c.NumChunks.IsZero()
}

func (c RunConfig) Layout() ChunkLayout {
	return ChunkLayout{
		ChunkWidth:  c.ChunkSize.W,
		ChunkHeight: c.ChunkSize.H,
		ChunksX:     c.NumChunks.W,
		ChunksY:     c.NumChunks.H,
		Border:      c.BorderSize,
	}
}

// Size returns the size of the map in cells.
func (c RunConfig) Size() (int, int) {
	if c.Chunked() {
		return c.Layout().MapSize()
	}
	return c.MapSize.W, c.MapSize.H
}

// RenderPadding returns the padding of the rendered image in pixels.
func (c RunConfig) RenderPadding() int {
	if c.Chunked() {
		return 0
	}
	return c.BorderSize
}

// Validate checks the config. A template may stand in for MapSize, the two must agree if both are
// given, which is checked once the template is read.
func (c RunConfig) Validate() error {
	switch {
	case c.Algorithm != AlgorithmBacktracking && c.Algorithm != AlgorithmFast:
		return fmt.Errorf("%w: unknown algorithm %v", ErrInvalidConfig, c.Algorithm)
	case c.TileSize <= 0:
		return fmt.Errorf("%w: tile size %d must be positive", ErrInvalidConfig, c.TileSize)
	case c.BorderSize < 0:
		return fmt.Errorf("%w: border size %d must not be negative", ErrInvalidConfig, c.BorderSize)
	case c.MaxSteps < 0 || c.Timeout < 0 || c.Workers < 0 || c.Retries < 0:
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidConfig)
	}

	if !c.Chunked() {
		if c.MapSize.IsZero() && c.Template == "" {
			return fmt.Errorf("%w: one of map size or chunk size with chunk count is required", ErrInvalidConfig)
		}
	} else {
		if !c.MapSize.IsZero() {
			return fmt.Errorf("%w: map size cannot be combined with chunk size or chunk count", ErrInvalidConfig)
		}
		if c.ChunkSize.IsZero() || c.NumChunks.IsZero() {
			return fmt.Errorf("%w: chunk size and chunk count must be given together", ErrInvalidConfig)
		}
		if err := c.Layout().Validate(); err != nil {
			return err
		}
	}

	// A template-sized map is checked once the template is read.
	if w, h := c.Size(); w > 0 && h > 0 {
		if _, ok := area(w, h); !ok {
			return fmt.Errorf("%w: map of %dx%d cells is too large", ErrInvalidConfig, w, h)
		}
		if _, ok := imageSize(w, h, c.TileSize, c.RenderPadding()); !ok {
			return fmt.Errorf("%w: image of %dx%d tiles of %d pixels is too large", ErrInvalidConfig, w, h, c.TileSize)
		}
	}
	return nil
}
