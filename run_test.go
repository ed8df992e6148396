package tilegen

import (
	"errors"
	"sync"
	"testing"
)

func TestNewRand(t *testing.T) {
	if NewRand(0, 3, 1) != nil {
		t.Errorf("NewRand(0, ...) != nil, seed 0 means deterministic order")
	}
	a, b := NewRand(5, 1, 0), NewRand(5, 1, 0)
	for range 10 {
		if a.Uint64() != b.Uint64() {
			t.Fatal("same seed, chunk and attempt gave different streams")
		}
	}
	if NewRand(5, 1, 0).Uint64() == NewRand(5, 1, 1).Uint64() {
		t.Errorf("retry attempts share a stream")
	}
	if NewRand(5, 0, 1).Uint64() == NewRand(5, 1, 0).Uint64() {
		t.Errorf("chunk and attempt collide")
	}
}

func TestGenerateMap_Whole(t *testing.T) {
	ts := coast(t)
	cfg := validWhole()
	cfg.Seed = 17
	calls := 0
	grid, _, err := GenerateMap(t.Context(), ts, cfg, nil, RunHooks{OnProgress: func(Progress) { calls++ }})
	if err != nil {
		t.Fatalf("GenerateMap: %v", err)
	}
	if grid.Width() != 10 || grid.Height() != 10 || !grid.IsComplete() {
		t.Errorf("bad map:\n%s", grid.Repr())
	}
	if calls == 0 {
		t.Errorf("OnProgress was never called")
	}

	again, _, err := GenerateMap(t.Context(), ts, cfg, nil, RunHooks{})
	if err != nil {
		t.Fatal(err)
	}
	if again.Repr() != grid.Repr() {
		t.Errorf("the same seed gave different maps")
	}
}

func TestGenerateMap_Chunked(t *testing.T) {
	cfg := validChunked()
	cfg.Seed = 4
	cfg.Algorithm = AlgorithmFast

	var mu sync.Mutex
	chunks := 0
	grid, _, err := GenerateMap(t.Context(), coast(t), cfg, nil, RunHooks{
		OnChunk: func(ChunkResult) {
			mu.Lock()
			defer mu.Unlock()
			chunks++
		},
	})
	if err != nil {
		t.Fatalf("GenerateMap: %v", err)
	}
	if grid.Width() != 20 || grid.Height() != 14 || !grid.IsComplete() {
		t.Errorf("bad map, %dx%d:\n%s", grid.Width(), grid.Height(), grid.Repr())
	}
	if chunks != 6 {
		t.Errorf("OnChunk called %d times, want 6", chunks)
	}
}

func TestGenerateMap_Template(t *testing.T) {
	ts := coast(t)
	cfg := RunConfig{Template: "testdata/island.template", TileSize: 1}
	base, err := cfg.LoadTemplate(ts)
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	grid, _, err := GenerateMap(t.Context(), ts, cfg, base, RunHooks{})
	if err != nil {
		t.Fatalf("GenerateMap: %v", err)
	}
	if grid.Width() != 6 || grid.Height() != 5 {
		t.Errorf("map is %dx%d, want the template's 6x5", grid.Width(), grid.Height())
	}
	if !grid.IsComplete() || grid.Violations() != 0 {
		t.Errorf("bad map:\n%s", grid.Repr())
	}
	if base.IsComplete() {
		t.Errorf("GenerateMap modified the template grid")
	}
}

func TestLoadTemplate_SizeMismatch(t *testing.T) {
	ts := coast(t)
	cfg := RunConfig{Template: "testdata/island.template", MapSize: Size{7, 5}, TileSize: 1}
	if _, err := cfg.LoadTemplate(ts); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadTemplate() = %v, want ErrInvalidConfig", err)
	}

	cfg.MapSize = Size{6, 5}
	if _, err := cfg.LoadTemplate(ts); err != nil {
		t.Errorf("LoadTemplate() = %v, want nil", err)
	}

	if g, err := (RunConfig{}).LoadTemplate(ts); g != nil || err != nil {
		t.Errorf("LoadTemplate() without a template = %v, %v", g, err)
	}
}

func TestGenerateMap_InvalidConfig(t *testing.T) {
	cfg := validWhole()
	cfg.TileSize = 0
	if _, _, err := GenerateMap(t.Context(), coast(t), cfg, nil, RunHooks{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("GenerateMap() = %v, want ErrInvalidConfig", err)
	}

	base := NewGrid(3, 3, coast(t))
	if _, _, err := GenerateMap(t.Context(), coast(t), validWhole(), base, RunHooks{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("GenerateMap() with a mis-sized base = %v, want ErrInvalidConfig", err)
	}
}

func TestGenerateMap_Unsatisfiable(t *testing.T) {
	_, _, err := GenerateMap(t.Context(), isolated(t), validWhole(), nil, RunHooks{})
	if !errors.Is(err, ErrUnsatisfiable) {
		t.Errorf("GenerateMap() = %v, want ErrUnsatisfiable", err)
	}

	_, _, err = GenerateMap(t.Context(), isolated(t), validChunked(), nil, RunHooks{})
	if !errors.Is(err, ErrChunkUnsatisfiable) {
		t.Errorf("GenerateMap() chunked = %v, want ErrChunkUnsatisfiable", err)
	}
}
