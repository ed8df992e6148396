// Package store persists generated maps in a SQL database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"crosswarped.com/tilegen"
)

var ErrNotFound = errors.New("store: map not found")

// Record is a generated map.
type Record struct {
	ID        uuid.UUID
	Tileset   string
	Algorithm string
	Width     int
	Height    int
	Seed      uint64
	// Tiles holds the tile id of every cell row by row, "" for masked cells.
	Tiles     [][]string
	CreatedAt time.Time
}

// NewRecord describes a complete grid under a fresh id.
func NewRecord(g *tilegen.Grid, tileset string, alg tilegen.Algorithm, seed uint64) *Record {
	ts := g.Tileset()
	tiles := make([][]string, g.Height())
	for y, row := range g.Tiles() {
		tiles[y] = make([]string, len(row))
		for x, t := range row {
			if t >= 0 {
				tiles[y][x] = ts.Tile(t).ID
			}
		}
	}
	return &Record{
		ID:        uuid.New(),
		Tileset:   tileset,
		Algorithm: alg.String(),
		Width:     g.Width(),
		Height:    g.Height(),
		Seed:      seed,
		Tiles:     tiles,
		CreatedAt: time.Now(),
	}
}

// Store saves and loads map records.
type Store interface {
	SaveMap(ctx context.Context, r *Record) error
	LoadMap(ctx context.Context, id uuid.UUID) (*Record, error)
	// ListMaps returns the most recent records first, without their tiles.
	ListMaps(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore is a Store over sqlite3 or postgres.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database named by dsn: "sqlite:<path>" for a sqlite3 file, or a
// "postgres://" URL.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	var (
		driver, source string
		d              dialect
	)
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		driver, source, d = "sqlite3", strings.TrimPrefix(dsn, "sqlite:"), dialectSQLite
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver, source, d = "postgres", dsn, dialectPostgres
	default:
		return nil, fmt.Errorf("unsupported store %q, want sqlite:<path> or postgres://", dsn)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, dialect: d}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS maps (
		id TEXT PRIMARY KEY,
		tileset TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		seed BIGINT NOT NULL,
		tiles TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// rebind rewrites ? placeholders for the dialect.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) SaveMap(ctx context.Context, r *Record) error {
	tiles, err := json.Marshal(r.Tiles)
	if err != nil {
		return fmt.Errorf("failed to encode tiles: %w", err)
	}
	const insert = `INSERT INTO maps (id, tileset, algorithm, width, height, seed, tiles, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.rebind(insert),
		r.ID.String(), r.Tileset, r.Algorithm, r.Width, r.Height, int64(r.Seed), string(tiles), r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save map %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLStore) LoadMap(ctx context.Context, id uuid.UUID) (*Record, error) {
	const query = `SELECT id, tileset, algorithm, width, height, seed, tiles, created_at FROM maps WHERE id = ?`
	var (
		r     Record
		rawID string
		seed  int64
		tiles string
		ms    int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(query), id.String()).
		Scan(&rawID, &r.Tileset, &r.Algorithm, &r.Width, &r.Height, &seed, &tiles, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load map %s: %w", id, err)
	}
	if r.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("map %q has an invalid id: %w", rawID, err)
	}
	if err := json.Unmarshal([]byte(tiles), &r.Tiles); err != nil {
		return nil, fmt.Errorf("map %s has invalid tiles: %w", id, err)
	}
	r.Seed = uint64(seed)
	r.CreatedAt = time.UnixMilli(ms)
	return &r, nil
}

func (s *SQLStore) ListMaps(ctx context.Context, limit int) ([]Record, error) {
	const query = `SELECT id, tileset, algorithm, width, height, seed, created_at FROM maps
	ORDER BY created_at DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r     Record
			rawID string
			seed  int64
			ms    int64
		)
		if err := rows.Scan(&rawID, &r.Tileset, &r.Algorithm, &r.Width, &r.Height, &seed, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan map: %w", err)
		}
		if r.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("map %q has an invalid id: %w", rawID, err)
		}
		r.Seed = uint64(seed)
		r.CreatedAt = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
