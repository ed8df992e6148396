package tilegen

import "errors"

var (
	// ErrInvalidTileset is returned when a tileset is malformed or its adjacency rules are asymmetric.
	ErrInvalidTileset = errors.New("tilegen: invalid tileset")
	// ErrContradiction is returned when a cell runs out of candidate tiles.
	//
	// The search strategies recover from it, callers only see it from Grid and Propagate.
	ErrContradiction = errors.New("tilegen: contradiction")
	// ErrUnsatisfiable is returned when an exhaustive search found no solution.
	ErrUnsatisfiable = errors.New("tilegen: no solution exists")
	// ErrTimeout is returned when a search ran out of its step or time budget.
	ErrTimeout = errors.New("tilegen: search budget exceeded")
	// ErrChunkUnsatisfiable is returned when a chunk could not be generated after border seeding.
	ErrChunkUnsatisfiable = errors.New("tilegen: chunk unsatisfiable")
	// ErrIncompleteGrid is returned when rendering a grid with unresolved cells.
	ErrIncompleteGrid = errors.New("tilegen: grid is incomplete")
	// ErrInvalidConfig is returned when the sizes or limits of a run are out of range.
	ErrInvalidConfig = errors.New("tilegen: invalid configuration")
)
