package tilegen

import (
	"strings"
	"testing"
)

func loadTestTileset(t testing.TB, name string) *Tileset {
	t.Helper()
	ts, err := LoadTileset("testdata/" + name)
	if err != nil {
		t.Fatalf("LoadTileset(%q): %v", name, err)
	}
	return ts
}

// grassWater is two tiles that may only neighbor themselves.
func grassWater(t testing.TB) *Tileset {
	return loadTestTileset(t, "grass_water.json")
}

// coast is grass, sand and water, where sand separates grass from water.
func coast(t testing.TB) *Tileset {
	return loadTestTileset(t, "coast.json")
}

// isolated is two tiles that may not neighbor anything.
func isolated(t testing.TB) *Tileset {
	t.Helper()
	ts, err := NewTileset([]TileSpec{{ID: "a"}, {ID: "b"}})
	if err != nil {
		t.Fatalf("NewTileset: %v", err)
	}
	return ts
}

func mustLookup(t testing.TB, ts *Tileset, id string) int {
	t.Helper()
	i, ok := ts.Lookup(id)
	if !ok {
		t.Fatalf("tile %q not found", id)
	}
	return i
}

func parseTemplate(t testing.TB, ts *Tileset, text string) *Grid {
	t.Helper()
	g, err := ParseTemplate(strings.NewReader(text), ts)
	if err != nil {
		t.Fatalf("ParseTemplate: %v", err)
	}
	return g
}
