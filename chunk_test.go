package tilegen

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestChunkLayout_Validate(t *testing.T) {
	for _, tc := range []struct {
		name         string
		layout       ChunkLayout
		wantErr      bool
		wantW, wantH int
	}{
		{"2x2 of 4x4", ChunkLayout{4, 4, 2, 2, 1}, false, 7, 7},
		{"3x1 of 5x3", ChunkLayout{5, 3, 3, 1, 2}, false, 11, 3},
		{"single chunk", ChunkLayout{6, 4, 1, 1, 1}, false, 6, 4},
		{"no border", ChunkLayout{4, 4, 2, 2, 0}, true, 0, 0},
		{"border as wide as chunk", ChunkLayout{4, 8, 2, 2, 4}, true, 0, 0},
		{"zero chunks", ChunkLayout{4, 4, 0, 2, 1}, true, 0, 0},
		{"negative size", ChunkLayout{-4, 4, 2, 2, 1}, true, 0, 0},
		{"map overflows", ChunkLayout{1<<32 + 1, 2, 1 << 32, 1, 1}, true, 0, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.layout.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v", err)
			}
			if w, h := tc.layout.MapSize(); w != tc.wantW || h != tc.wantH {
				t.Errorf("MapSize() = %dx%d, want %dx%d", w, h, tc.wantW, tc.wantH)
			}
		})
	}
}

func TestChunkLayout_Plan(t *testing.T) {
	plan, err := ChunkLayout{5, 4, 2, 2, 2}.Plan()
	if err != nil {
		t.Fatal(err)
	}
	want := []ChunkSpec{
		{Index: 0, X: 0, Y: 0, OriginX: 0, OriginY: 0},
		{Index: 1, X: 1, Y: 0, OriginX: 3, OriginY: 0, Deps: []int{0}},
		{Index: 2, X: 0, Y: 1, OriginX: 0, OriginY: 2, Deps: []int{0}},
		{Index: 3, X: 1, Y: 1, OriginX: 3, OriginY: 2, Deps: []int{2, 1}},
	}
	if diff := cmp.Diff(want, plan.Chunks); diff != "" {
		t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
	}

	if _, err := (ChunkLayout{4, 4, 2, 2, 0}).Plan(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Plan() of an invalid layout = %v, want ErrInvalidConfig", err)
	}
}

func TestChunkPlan_Order(t *testing.T) {
	plan, err := ChunkLayout{4, 4, 3, 2, 1}.Plan()
	if err != nil {
		t.Fatal(err)
	}
	order, err := plan.Order()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5}, order); diff != "" {
		t.Errorf("Order() mismatch (-want +got):\n%s", diff)
	}

	for _, tc := range []struct {
		name   string
		chunks []ChunkSpec
	}{
		{"cycle", []ChunkSpec{{Index: 0, Deps: []int{1}}, {Index: 1, Deps: []int{0}}}},
		{"self", []ChunkSpec{{Index: 0, Deps: []int{0}}}},
		{"out of range", []ChunkSpec{{Index: 0, Deps: []int{3}}}},
		{"wrong index", []ChunkSpec{{Index: 1}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := (&ChunkPlan{Chunks: tc.chunks}).Order(); err == nil {
				t.Errorf("Order() = nil, want an error")
			}
		})
	}
}

func TestChunkSpec_Owns(t *testing.T) {
	l := ChunkLayout{4, 4, 2, 2, 1}
	for _, tc := range []struct {
		chunk ChunkSpec
		x, y  int
		want  bool
	}{
		{ChunkSpec{X: 0, Y: 0}, 0, 0, true},
		{ChunkSpec{X: 1, Y: 0}, 0, 2, false},
		{ChunkSpec{X: 1, Y: 0}, 1, 0, true},
		{ChunkSpec{X: 0, Y: 1}, 3, 0, false},
		{ChunkSpec{X: 1, Y: 1}, 1, 1, true},
		{ChunkSpec{X: 1, Y: 1}, 3, 0, false},
	} {
		if got := tc.chunk.owns(l, tc.x, tc.y); got != tc.want {
			t.Errorf("chunk (%d, %d).owns(%d, %d) = %v, want %v", tc.chunk.X, tc.chunk.Y, tc.x, tc.y, got, tc.want)
		}
	}
}

func seededRand(seed uint64) func(chunk, attempt int) *rand.Rand {
	return func(chunk, attempt int) *rand.Rand {
		return NewRand(seed, chunk, attempt)
	}
}

func TestCoordinator_Generate(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmBacktracking, AlgorithmFast} {
		t.Run(alg.String(), func(t *testing.T) {
			var mu sync.Mutex
			var results []ChunkResult
			c := &Coordinator{
				Tileset:   coast(t),
				Layout:    ChunkLayout{6, 5, 3, 2, 2},
				Algorithm: alg,
				NewRand:   seededRand(11),
				OnChunk: func(r ChunkResult) {
					mu.Lock()
					defer mu.Unlock()
					results = append(results, r)
				},
			}
			grid, _, err := c.Generate(t.Context())
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if grid.Width() != 14 || grid.Height() != 8 {
				t.Errorf("map is %dx%d, want 14x8", grid.Width(), grid.Height())
			}
			if !grid.IsComplete() {
				t.Fatalf("map is incomplete:\n%s", grid.Repr())
			}
			if v := grid.Violations(); v != 0 {
				t.Errorf("%d violations across chunk seams:\n%s", v, grid.Repr())
			}
			if len(results) != 6 {
				t.Errorf("OnChunk called %d times, want 6", len(results))
			}
			for _, r := range results {
				if r.Err != nil || r.Attempts != 1 {
					t.Errorf("chunk %d: attempts %d, err %v", r.Index, r.Attempts, r.Err)
				}
			}
		})
	}
}

func TestCoordinator_SingleChunkMatchesWholeMap(t *testing.T) {
	ts := coast(t)
	c := &Coordinator{Tileset: ts, Layout: ChunkLayout{9, 7, 1, 1, 1}, NewRand: seededRand(99)}
	chunked, _, err := c.Generate(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	whole, _, err := CreateGenerator(ts, AlgorithmBacktracking, NewRand(99, 0, 0), GeneratorParams{}).Generate(t.Context(), 9, 7)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(whole.Repr(), chunked.Repr()); diff != "" {
		t.Errorf("single chunk differs from whole map (-whole +chunked):\n%s", diff)
	}
}

func TestCoordinator_WorkersDoNotChangeOutput(t *testing.T) {
	ts := coast(t)
	var reprs []string
	for _, workers := range []int{1, 2, 8} {
		c := &Coordinator{
			Tileset: ts,
			Layout:  ChunkLayout{5, 5, 3, 3, 1},
			NewRand: seededRand(2024),
			Workers: workers,
		}
		grid, _, err := c.Generate(t.Context())
		if err != nil {
			t.Fatalf("workers %d: %v", workers, err)
		}
		reprs = append(reprs, grid.Repr())
	}
	for i := 1; i < len(reprs); i++ {
		if diff := cmp.Diff(reprs[0], reprs[i]); diff != "" {
			t.Errorf("output depends on the worker count (-1 worker +more):\n%s", diff)
		}
	}
}

func TestCoordinator_Unsatisfiable(t *testing.T) {
	var mu sync.Mutex
	attempts := map[int]int{}
	c := &Coordinator{
		Tileset: isolated(t),
		Layout:  ChunkLayout{3, 3, 2, 2, 1},
		NewRand: seededRand(1),
		Retries: 2,
		OnChunk: func(r ChunkResult) {
			mu.Lock()
			defer mu.Unlock()
			attempts[r.Index] = r.Attempts
		},
	}
	_, _, err := c.Generate(t.Context())
	if !errors.Is(err, ErrChunkUnsatisfiable) || !errors.Is(err, ErrUnsatisfiable) {
		t.Fatalf("Generate() error = %v, want ErrChunkUnsatisfiable and ErrUnsatisfiable", err)
	}
	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("Generate() error = %T, want *ChunkError", err)
	}
	if chunkErr.Index != 0 || chunkErr.Attempts != 3 {
		t.Errorf("ChunkError = %+v, want chunk 0 after 3 attempts", chunkErr)
	}
	if diff := cmp.Diff(map[int]int{0: 3}, attempts); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
}

func TestCoordinator_NoRetriesWithoutRand(t *testing.T) {
	c := &Coordinator{Tileset: isolated(t), Layout: ChunkLayout{3, 3, 1, 1, 1}, Retries: 5}
	_, _, err := c.Generate(t.Context())
	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("Generate() error = %v, want *ChunkError", err)
	}
	if chunkErr.Attempts != 1 {
		t.Errorf("Attempts = %d, a deterministic search is not retried", chunkErr.Attempts)
	}
}

func TestCoordinator_FastNeverFails(t *testing.T) {
	c := &Coordinator{Tileset: isolated(t), Layout: ChunkLayout{3, 3, 2, 2, 1}, Algorithm: AlgorithmFast}
	grid, stats, err := c.Generate(t.Context())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !grid.IsComplete() {
		t.Errorf("map is incomplete:\n%s", grid.Repr())
	}
	if stats.Relaxed == 0 {
		t.Errorf("Relaxed = 0, want relaxed placements")
	}
}

func TestCoordinator_Budget(t *testing.T) {
	c := &Coordinator{Tileset: coast(t), Layout: ChunkLayout{8, 8, 2, 1, 1}, Budget: Budget{MaxSteps: 1}}
	_, _, err := c.Generate(t.Context())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Generate() error = %v, want ErrTimeout", err)
	}
}

func TestCoordinator_Base(t *testing.T) {
	ts := coast(t)
	base := NewGrid(7, 7, ts)
	base.Mask(0, 0)
	base.Mask(6, 6)
	if err := base.Assign(3, 3, mustLookup(t, ts, "W")); err != nil {
		t.Fatal(err)
	}

	c := &Coordinator{Tileset: ts, Layout: ChunkLayout{4, 4, 2, 2, 1}, Base: base, NewRand: seededRand(3)}
	grid, _, err := c.Generate(t.Context())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !grid.IsMasked(0, 0) || !grid.IsMasked(6, 6) {
		t.Errorf("masked cells were lost:\n%s", grid.Repr())
	}
	if got, _ := grid.Tile(3, 3); got != mustLookup(t, ts, "W") {
		t.Errorf("Tile(3, 3) = %d, want the fixed W", got)
	}
	if !grid.IsComplete() || grid.Violations() != 0 {
		t.Errorf("bad map:\n%s", grid.Repr())
	}
	if base.IsComplete() {
		t.Errorf("Generate modified the base grid")
	}

	c.Base = NewGrid(6, 6, ts)
	if _, _, err := c.Generate(t.Context()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Generate() with a mis-sized base = %v, want ErrInvalidConfig", err)
	}
}

func TestCoordinator_SeamsAreConsistent(t *testing.T) {
	ts := coast(t)
	layout := ChunkLayout{6, 5, 3, 2, 2}
	c := &Coordinator{Tileset: ts, Layout: layout, NewRand: seededRand(21)}
	composite, _, err := c.Generate(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	// Chunk k > 0 along an axis starts at k*step with Border cells copied from chunk k-1.
	seam := func(v, step, chunks int) bool {
		k := v / step
		return k > 0 && k < chunks && v%step < layout.Border
	}
	w, h := layout.MapSize()
	fixed := NewGrid(w, h, ts)
	var seams [][2]int
	for y := range h {
		for x := range w {
			if !seam(x, layout.ChunkWidth-layout.Border, layout.ChunksX) && !seam(y, layout.ChunkHeight-layout.Border, layout.ChunksY) {
				continue
			}
			tile, _ := composite.Tile(x, y)
			if err := fixed.Assign(x, y, tile); err != nil {
				t.Fatal(err)
			}
			seams = append(seams, [2]int{x, y})
		}
	}
	if len(seams) == 0 {
		t.Fatal("layout has no seam cells")
	}

	// The overlap cells alone must still leave the whole map solvable.
	gen := CreateGenerator(ts, AlgorithmBacktracking, NewRand(21, 0, 0), GeneratorParams{})
	if _, err := gen.Collapse(t.Context(), fixed); err != nil {
		t.Fatalf("Collapse with the seams fixed: %v", err)
	}
	for _, p := range seams {
		got, _ := fixed.Tile(p[0], p[1])
		want, _ := composite.Tile(p[0], p[1])
		if got != want {
			t.Errorf("seam cell (%d, %d) = %d, composite has %d", p[0], p[1], got, want)
		}
	}
	if v := fixed.Violations(); v != 0 {
		t.Errorf("%d violations:\n%s", v, fixed.Repr())
	}
}
