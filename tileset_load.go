package tilegen

import (
	"bufio"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Format is the encoding of a tileset description.
type Format int

const (
	FormatJSON Format = iota
	// FormatText is one line per tile: `payload frequency e_1 .. e_N n_1 .. n_N`, where e_i (n_i)
	// is 1 when tile i may be placed to the east (north) of the line's tile. The payload is an image
	// path or a '#rrggbb' colour, any other line starting with '#' is a comment. Tile ids are the
	// zero-based line numbers.
	FormatText
)

const (
	adjacencyValidSymbol   = "1"
	adjacencyInvalidSymbol = "0"
)

// TilesetFile is the JSON encoding of a tileset.
type TilesetFile struct {
	// ImageBorder crops this many pixels from each edge of every tile image before rendering.
	ImageBorder int `json:"image_border,omitempty"`
	// InferBorder derives adjacency rules by comparing strips of this many pixels along tile edges.
	InferBorder int        `json:"infer_border,omitempty"`
	Tiles       []TileFile `json:"tiles"`
}

type TileFile struct {
	ID        string              `json:"id"`
	Image     string              `json:"image,omitempty"`
	Color     string              `json:"color,omitempty"`
	Frequency int                 `json:"frequency,omitempty"`
	Rules     map[string][]string `json:"rules,omitempty"`
	Edges     map[string]string   `json:"edges,omitempty"`
}

// LoadTileset reads a tileset from a file, choosing the format from its extension. Image payloads
// are resolved relative to the file's directory.
func LoadTileset(filename string) (*Tileset, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format := FormatJSON
	if ext := strings.ToLower(filepath.Ext(filename)); ext == ".txt" {
		format = FormatText
	}
	return ParseTileset(f, format, os.DirFS(filepath.Dir(filename)))
}

// ParseTileset decodes a tileset description. Image payloads are read from fsys; if fsys is nil
// only colour payloads are accepted.
func ParseTileset(r io.Reader, format Format, fsys fs.FS) (*Tileset, error) {
	switch format {
	case FormatJSON:
		var file TilesetFile
		if err := json.NewDecoder(r).Decode(&file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTileset, err)
		}
		return file.Compile(fsys)
	case FormatText:
		specs, err := parseTextTileset(r, fsys)
		if err != nil {
			return nil, err
		}
		return NewTileset(specs)
	}
	return nil, fmt.Errorf("unknown tileset format %d", format)
}

// Compile resolves payloads and builds the Tileset.
func (file TilesetFile) Compile(fsys fs.FS) (*Tileset, error) {
	specs := make([]TileSpec, len(file.Tiles))
	for i, tf := range file.Tiles {
		img, err := loadPayload(fsys, tf.Image, tf.Color)
		if err != nil {
			return nil, fmt.Errorf("tile %q: %w", tf.ID, err)
		}
		spec := TileSpec{ID: tf.ID, Frequency: tf.Frequency, Image: img}
		if len(tf.Rules) > 0 {
			spec.Rules = make(map[Direction][]string, len(tf.Rules))
			for k, ids := range tf.Rules {
				d, err := ParseDirection(k)
				if err != nil {
					return nil, fmt.Errorf("%w: tile %q: %v", ErrInvalidTileset, tf.ID, err)
				}
				spec.Rules[d] = append(spec.Rules[d], ids...)
			}
		}
		if len(tf.Edges) > 0 {
			spec.Edges = make(map[Direction]string, len(tf.Edges))
			for k, label := range tf.Edges {
				d, err := ParseDirection(k)
				if err != nil {
					return nil, fmt.Errorf("%w: tile %q: %v", ErrInvalidTileset, tf.ID, err)
				}
				spec.Edges[d] = label
			}
		}
		specs[i] = spec
	}

	if file.InferBorder > 0 {
		if err := InferRules(specs, file.InferBorder); err != nil {
			return nil, err
		}
	}
	if file.ImageBorder > 0 {
		for i := range specs {
			if specs[i].Image == nil {
				continue
			}
			cropped, err := cropBorder(specs[i].Image, file.ImageBorder)
			if err != nil {
				return nil, fmt.Errorf("tile %q: %w", specs[i].ID, err)
			}
			specs[i].Image = cropped
		}
	}
	return NewTileset(specs)
}

func parseTextTileset(r io.Reader, fsys fs.FS) ([]TileSpec, error) {
	var lines [][]string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if _, err := ParseColor(fields[0]); err != nil && strings.HasPrefix(fields[0], "#") {
			continue
		}
		lines = append(lines, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	n := len(lines)
	specs := make([]TileSpec, n)
	for i := range specs {
		specs[i] = TileSpec{
			ID:    strconv.Itoa(i),
			Rules: make(map[Direction][]string, 4),
		}
	}

	for i, parts := range lines {
		if len(parts) != 2+2*n {
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d", ErrInvalidTileset, i+1, len(parts), 2+2*n)
		}

		var img image.Image
		var err error
		if strings.HasPrefix(parts[0], "#") {
			img, err = loadPayload(fsys, "", parts[0])
		} else {
			img, err = loadPayload(fsys, parts[0], "")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		specs[i].Image = img

		freq, err := strconv.Atoi(parts[1])
		if err != nil || freq <= 0 {
			return nil, fmt.Errorf("%w: line %d: invalid frequency %q", ErrInvalidTileset, i+1, parts[1])
		}
		specs[i].Frequency = freq

		for j := range n {
			east, north := parts[2+j], parts[2+n+j]
			if !validSymbol(east) || !validSymbol(north) {
				return nil, fmt.Errorf("%w: line %d: adjacency symbols must be %s or %s", ErrInvalidTileset, i+1, adjacencyValidSymbol, adjacencyInvalidSymbol)
			}
			// The matrix lists east and north neighbors, west and south are its transpose.
			if east == adjacencyValidSymbol {
				specs[i].Rules[East] = append(specs[i].Rules[East], specs[j].ID)
				specs[j].Rules[West] = append(specs[j].Rules[West], specs[i].ID)
			}
			if north == adjacencyValidSymbol {
				specs[i].Rules[North] = append(specs[i].Rules[North], specs[j].ID)
				specs[j].Rules[South] = append(specs[j].Rules[South], specs[i].ID)
			}
		}
	}
	return specs, nil
}

func validSymbol(s string) bool {
	return s == adjacencyValidSymbol || s == adjacencyInvalidSymbol
}

func loadPayload(fsys fs.FS, imagePath, hex string) (image.Image, error) {
	switch {
	case imagePath != "" && hex != "":
		return nil, fmt.Errorf("%w: both image and color given", ErrInvalidTileset)
	case hex != "":
		c, err := ParseColor(hex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTileset, err)
		}
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		img.Set(0, 0, c)
		return img, nil
	case imagePath != "":
		if fsys == nil {
			return nil, fmt.Errorf("%w: image payload %q not allowed here", ErrInvalidTileset, imagePath)
		}
		f, err := fsys.Open(path.Clean(filepath.ToSlash(imagePath)))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, err := png.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %v", ErrInvalidTileset, imagePath, err)
		}
		return img, nil
	}
	return nil, nil
}

// ParseColor parses #rgb, #rrggbb and #rrggbbaa.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// InferRules fills in the Rules of every TileSpec by comparing border pixel strips: tile B may sit east
// of tile A when the east-most `border` columns of A equal the west-most `border` columns of B, and
// likewise for the other directions. All images must have the same size.
func InferRules(specs []TileSpec, border int) error {
	if len(specs) == 0 {
		return nil
	}
	var size image.Point
	for i, s := range specs {
		if s.Image == nil {
			return fmt.Errorf("%w: tile %q has no image to infer rules from", ErrInvalidTileset, s.ID)
		}
		sz := s.Image.Bounds().Size()
		if i == 0 {
			size = sz
		} else if sz != size {
			return fmt.Errorf("%w: tile %q is %v, want %v", ErrInvalidTileset, s.ID, sz, size)
		}
	}
	if border <= 0 || border >= size.X || border >= size.Y {
		return fmt.Errorf("%w: infer border %d does not fit tiles of size %v", ErrInvalidTileset, border, size)
	}

	for i := range specs {
		if specs[i].Rules == nil {
			specs[i].Rules = make(map[Direction][]string, 4)
		}
	}
	for i, a := range specs {
		for _, b := range specs {
			for _, d := range AllDirections {
				if stripsEqual(a.Image, d, b.Image, d.Opposite(), border) {
					specs[i].Rules[d] = append(specs[i].Rules[d], b.ID)
				}
			}
		}
	}
	return nil
}

func borderStrip(img image.Image, d Direction, border int) image.Rectangle {
	b := img.Bounds()
	switch d {
	case North:
		return image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+border)
	case South:
		return image.Rect(b.Min.X, b.Max.Y-border, b.Max.X, b.Max.Y)
	case East:
		return image.Rect(b.Max.X-border, b.Min.Y, b.Max.X, b.Max.Y)
	default:
		return image.Rect(b.Min.X, b.Min.Y, b.Min.X+border, b.Max.Y)
	}
}

func stripsEqual(a image.Image, da Direction, b image.Image, db Direction, border int) bool {
	ra, rb := borderStrip(a, da, border), borderStrip(b, db, border)
	for y := 0; y < ra.Dy(); y++ {
		for x := 0; x < ra.Dx(); x++ {
			r1, g1, b1, a1 := a.At(ra.Min.X+x, ra.Min.Y+y).RGBA()
			r2, g2, b2, a2 := b.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				return false
			}
		}
	}
	return true
}

func cropBorder(img image.Image, border int) (image.Image, error) {
	inner := img.Bounds().Inset(border)
	if inner.Dx() != img.Bounds().Dx()-2*border || inner.Dy() != img.Bounds().Dy()-2*border || inner.Empty() {
		return nil, fmt.Errorf("%w: image border %d does not fit image of size %v", ErrInvalidTileset, border, img.Bounds().Size())
	}
	out := image.NewRGBA(image.Rect(0, 0, inner.Dx(), inner.Dy()))
	draw.Draw(out, out.Bounds(), img, inner.Min, draw.Src)
	return out, nil
}
