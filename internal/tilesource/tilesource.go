// Package tilesource loads tilesets stored in a BigQuery table.
//
// The table has one row per tile:
//
//	tileset STRING, position INT64, tile_id STRING, color STRING, frequency INT64,
//	north STRING, east STRING, south STRING, west STRING
//
// where the direction columns are comma separated lists of the tile ids allowed on that side.
package tilesource

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"crosswarped.com/tilegen"
)

// Source reads tilesets from a BigQuery table.
type Source struct {
	client   *bigquery.Client
	table    string
	location string
}

// New connects to BigQuery. table is the fully qualified `project.dataset.table` name.
func New(ctx context.Context, project, table string) (*Source, error) {
	if strings.ContainsAny(table, "`;") {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	return &Source{client: client, table: table, location: "US"}, nil
}

func (s *Source) Close() error {
	return s.client.Close()
}

// Load reads the named tileset.
func (s *Source) Load(ctx context.Context, name string) (*tilegen.Tileset, error) {
	q := s.client.Query(fmt.Sprintf(
		"SELECT tile_id, color, frequency, north, east, south, west FROM `%s` WHERE tileset = @name ORDER BY position", s.table))
	q.Location = s.location
	q.Parameters = []bigquery.QueryParameter{{Name: "name", Value: name}}

	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("q.Run: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("job.Wait: %w", err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("status.Err: %w", err)
	}
	it, err := job.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("job.Read: %w", err)
	}

	file, err := DecodeRows(it)
	if err != nil {
		return nil, fmt.Errorf("tileset %q: %w", name, err)
	}
	if len(file.Tiles) == 0 {
		return nil, fmt.Errorf("%w: tileset %q not found", tilegen.ErrInvalidTileset, name)
	}
	return file.Compile(nil)
}

// RowIterator is the part of *bigquery.RowIterator DecodeRows reads from.
type RowIterator interface {
	Next(dst interface{}) error
}

var directionColumns = []string{"north", "east", "south", "west"}

// DecodeRows reads tile rows until the iterator is done.
func DecodeRows(it RowIterator) (tilegen.TilesetFile, error) {
	var file tilegen.TilesetFile
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return file, fmt.Errorf("it.Next: %w", err)
		}
		if len(row) != 3+len(directionColumns) {
			return file, fmt.Errorf("row has %d columns, want %d", len(row), 3+len(directionColumns))
		}

		id, ok := row[0].(string)
		if !ok {
			return file, fmt.Errorf("row[0] is not a string: %v", row[0])
		}
		tile := tilegen.TileFile{ID: id}
		if row[1] != nil {
			if tile.Color, ok = row[1].(string); !ok {
				return file, fmt.Errorf("tile %q: color is not a string: %v", id, row[1])
			}
		}
		if row[2] != nil {
			freq, ok := row[2].(int64)
			if !ok {
				return file, fmt.Errorf("tile %q: frequency is not an integer: %v", id, row[2])
			}
			tile.Frequency = int(freq)
		}

		for i, dir := range directionColumns {
			v := row[3+i]
			if v == nil {
				continue
			}
			list, ok := v.(string)
			if !ok {
				return file, fmt.Errorf("tile %q: %s is not a string: %v", id, dir, v)
			}
			for _, other := range strings.Split(list, ",") {
				if other = strings.TrimSpace(other); other == "" {
					continue
				}
				if tile.Rules == nil {
					tile.Rules = make(map[string][]string, len(directionColumns))
				}
				tile.Rules[dir] = append(tile.Rules[dir], other)
			}
		}
		file.Tiles = append(file.Tiles, tile)
	}
	return file, nil
}
