package tilegen

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

// TilesetFilename is the name SaveTileset gives the tileset description.
const TilesetFilename = "tileset.txt"

// BuildTiles cuts a sample image into tileSize x tileSize tiles, stepping tileSize-overlap pixels
// between neighboring tiles. Identical tiles are merged and their occurrences counted as the
// frequency. Tiles keep the order they were first seen in, scanning rows top to bottom, and are
// named by that index. The returned specs have no rules, see InferRules.
func BuildTiles(img image.Image, tileSize, overlap int) ([]TileSpec, error) {
	if tileSize <= 0 {
		return nil, fmt.Errorf("%w: tile size %d must be positive", ErrInvalidConfig, tileSize)
	}
	if overlap < 0 || overlap >= tileSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, overlap, tileSize)
	}
	b := img.Bounds()
	if b.Dx() < tileSize || b.Dy() < tileSize {
		return nil, fmt.Errorf("%w: image of %v is smaller than a %d pixel tile", ErrInvalidConfig, b.Size(), tileSize)
	}

	step := tileSize - overlap
	var specs []TileSpec
	seen := make(map[string]int)
	for y := b.Min.Y; y+tileSize <= b.Max.Y; y += step {
		for x := b.Min.X; x+tileSize <= b.Max.X; x += step {
			tile := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
			draw.Draw(tile, tile.Bounds(), img, image.Pt(x, y), draw.Src)

			key := string(tile.Pix)
			if i, ok := seen[key]; ok {
				specs[i].Frequency++
				continue
			}
			seen[key] = len(specs)
			specs = append(specs, TileSpec{ID: strconv.Itoa(len(specs)), Frequency: 1, Image: tile})
		}
	}
	return specs, nil
}

// WriteTextTileset encodes specs in the text format, with payloads[i] as the payload of tile i.
// Only east and north rules are written, the loader derives the other two.
func WriteTextTileset(out io.Writer, specs []TileSpec, payloads []string) error {
	if len(payloads) != len(specs) {
		return fmt.Errorf("%d payloads for %d tiles", len(payloads), len(specs))
	}
	index := make(map[string]int, len(specs))
	for i, s := range specs {
		index[s.ID] = i
	}

	row := func(ids []string) ([]string, error) {
		symbols := make([]string, len(specs))
		for i := range symbols {
			symbols[i] = adjacencyInvalidSymbol
		}
		for _, id := range ids {
			i, ok := index[id]
			if !ok {
				return nil, fmt.Errorf("%w: rule references unknown tile %q", ErrInvalidTileset, id)
			}
			symbols[i] = adjacencyValidSymbol
		}
		return symbols, nil
	}

	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "# payload frequency east(%d) north(%d)\n", len(specs), len(specs))
	for i, s := range specs {
		if strings.ContainsAny(payloads[i], " \t\n") || payloads[i] == "" {
			return fmt.Errorf("payload %q of tile %q must be a single field", payloads[i], s.ID)
		}
		east, err := row(s.Rules[East])
		if err != nil {
			return err
		}
		north, err := row(s.Rules[North])
		if err != nil {
			return err
		}
		fields := append([]string{payloads[i], strconv.Itoa(max(s.Frequency, 1))}, east...)
		fields = append(fields, north...)
		fmt.Fprintln(w, strings.Join(fields, " "))
	}
	return w.Flush()
}

// SaveTileset writes every tile image to dir as <index>.png and a text description referencing
// them, creating dir if needed. It returns the path of the description, which LoadTileset reads.
func SaveTileset(dir string, specs []TileSpec) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	width := len(strconv.Itoa(max(len(specs)-1, 0)))
	payloads := make([]string, len(specs))
	for i, s := range specs {
		if s.Image == nil {
			return "", fmt.Errorf("%w: tile %q has no image", ErrInvalidTileset, s.ID)
		}
		payloads[i] = fmt.Sprintf("%0*d.png", width, i)
		if err := WritePNG(filepath.Join(dir, payloads[i]), s.Image); err != nil {
			return "", fmt.Errorf("tile %q: %w", s.ID, err)
		}
	}

	var buf bytes.Buffer
	if err := WriteTextTileset(&buf, specs, payloads); err != nil {
		return "", err
	}
	path := filepath.Join(dir, TilesetFilename)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
