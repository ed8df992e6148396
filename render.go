package tilegen

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// RenderOptions controls how a grid is drawn.
type RenderOptions struct {
	// TileSize is the side of a tile in pixels.
	TileSize int
	// BorderSize is the padding around the map in pixels.
	BorderSize  int
	BorderColor color.Color
}

// Render draws a fully resolved grid with tileSize pixels per tile and a black padding of
// borderSize pixels on every side.
func Render(g *Grid, tileSize, borderSize int) (*image.RGBA, error) {
	return RenderWithOptions(g, RenderOptions{TileSize: tileSize, BorderSize: borderSize})
}

// RenderWithOptions draws a fully resolved grid. The image is
// (width*TileSize + 2*BorderSize) x (height*TileSize + 2*BorderSize) pixels, tile payloads are
// scaled with nearest neighbor and masked cells stay transparent. It fails with ErrIncompleteGrid if
// any unmasked cell is unresolved.
func RenderWithOptions(g *Grid, opts RenderOptions) (*image.RGBA, error) {
	if opts.TileSize <= 0 {
		return nil, fmt.Errorf("%w: tile size %d must be positive", ErrInvalidConfig, opts.TileSize)
	}
	if opts.BorderSize < 0 {
		return nil, fmt.Errorf("%w: border size %d must not be negative", ErrInvalidConfig, opts.BorderSize)
	}
	if !g.IsComplete() {
		resolved, total := g.Resolved()
		return nil, fmt.Errorf("%w: %d of %d cells resolved", ErrIncompleteGrid, resolved, total)
	}
	size, ok := imageSize(g.width, g.height, opts.TileSize, opts.BorderSize)
	if !ok {
		return nil, fmt.Errorf("%w: image of %dx%d tiles of %d pixels is too large", ErrInvalidConfig, g.width, g.height, opts.TileSize)
	}
	border := opts.BorderColor
	if border == nil {
		border = color.Black
	}

	ts, b := opts.TileSize, opts.BorderSize
	img := image.NewRGBA(image.Rectangle{Max: size})
	if b > 0 {
		draw.Draw(img, img.Bounds(), image.NewUniform(border), image.Point{}, draw.Src)
		draw.Draw(img, image.Rect(b, b, b+g.width*ts, b+g.height*ts), image.Transparent, image.Point{}, draw.Src)
	}

	for y := range g.height {
		for x := range g.width {
			tile, ok := g.Tile(x, y)
			if !ok {
				continue
			}
			dst := image.Rect(b+x*ts, b+y*ts, b+(x+1)*ts, b+(y+1)*ts)
			src := g.tileset.tiles[tile].Image
			if src == nil {
				draw.Draw(img, dst, image.NewUniform(TileColor(tile)), image.Point{}, draw.Src)
				continue
			}
			draw.NearestNeighbor.Scale(img, dst, src, src.Bounds(), draw.Src, nil)
		}
	}
	return img, nil
}

// imageSize returns the pixel size of a rendered map, and false if the image would not fit in
// memory addressable by an int.
func imageSize(width, height, tileSize, border int) (image.Point, bool) {
	w, okW := sideLength(width, tileSize, 2*border)
	h, okH := sideLength(height, tileSize, 2*border)
	if !okW || !okH {
		return image.Point{}, false
	}
	// Four bytes per pixel.
	if n, ok := area(w, h); !ok || n > math.MaxInt/4 {
		return image.Point{}, false
	}
	return image.Pt(w, h), true
}

var palette = []color.RGBA{
	{R: 0x3a, G: 0x9d, B: 0x23, A: 0xff},
	{R: 0x1f, G: 0x5f, B: 0xbf, A: 0xff},
	{R: 0xe3, G: 0xd2, B: 0x6f, A: 0xff},
	{R: 0x7a, G: 0x7a, B: 0x7a, A: 0xff},
	{R: 0x8b, G: 0x5a, B: 0x2b, A: 0xff},
	{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff},
	{R: 0xb0, G: 0x30, B: 0x30, A: 0xff},
	{R: 0x20, G: 0x20, B: 0x20, A: 0xff},
}

// TileColor is the colour drawn for a tile without an image.
func TileColor(tile int) color.RGBA {
	return palette[tile%len(palette)]
}

// AverageColor returns the mean colour of a tile's payload, or its TileColor if it has none.
func (ts *Tileset) AverageColor(tile int) color.RGBA {
	img := ts.tiles[tile].Image
	if img == nil {
		return TileColor(tile)
	}
	var r, g, b, a, n uint64
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, ca := img.At(x, y).RGBA()
			r, g, b, a = r+uint64(cr), g+uint64(cg), b+uint64(cb), a+uint64(ca)
			n++
		}
	}
	if n == 0 {
		return TileColor(tile)
	}
	return color.RGBA{R: uint8(r / n >> 8), G: uint8(g / n >> 8), B: uint8(b / n >> 8), A: uint8(a / n >> 8)}
}

// WritePNG encodes img to path. The image is written to a temporary file in the same directory and
// renamed into place, so a failed write never leaves a partial file behind.
func WritePNG(path string, img image.Image) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
