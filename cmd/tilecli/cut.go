package main

import (
	"errors"
	"flag"
	"image"
	_ "image/png"
	"os"

	"github.com/charmbracelet/log"

	"crosswarped.com/tilegen"
)

// runCut implements `tilecli cut`: it cuts a sample image into a tileset with inferred rules.
func runCut(args []string) int {
	flags := flag.NewFlagSet("cut", flag.ContinueOnError)
	inputImage := flags.String("input-image", "", "Sample PNG to cut tiles from")
	outputDir := flags.String("output-dir", "", "Directory for the tile images and "+tilegen.TilesetFilename)
	tileSize := flags.Int("tile-size", 0, "Side of a tile in pixels")
	overlap := flags.Int("overlap", 0, "Pixels shared by neighboring tiles of the sample")
	inferBorder := flags.Int("infer-border", 1, "Width of the edge strips compared to infer rules")
	verbose := flags.Bool("v", false, "Verbose output")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitBadInput
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "tilecli cut"})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}
	if *inputImage == "" || *outputDir == "" {
		logger.Error("-input-image and -output-dir are required")
		flags.Usage()
		return exitBadInput
	}

	f, err := os.Open(*inputImage)
	if err != nil {
		logger.Error("Error opening sample image", "err", err)
		return exitIOFailure
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		logger.Error("Error decoding sample image", "path", *inputImage, "err", err)
		return exitBadInput
	}
	logger.Debug("Loaded sample image", "path", *inputImage, "size", img.Bounds().Size())

	specs, err := tilegen.BuildTiles(img, *tileSize, *overlap)
	if err != nil {
		logger.Error("Error cutting tiles", "err", err)
		return exitCode(err)
	}
	if err := tilegen.InferRules(specs, *inferBorder); err != nil {
		logger.Error("Error inferring rules", "err", err)
		return exitCode(err)
	}
	path, err := tilegen.SaveTileset(*outputDir, specs)
	if err != nil {
		logger.Error("Error saving tileset", "dir", *outputDir, "err", err)
		if code := exitCode(err); code != exitOther {
			return code
		}
		return exitIOFailure
	}
	logger.Info("Tileset written", "path", path, "tiles", len(specs))
	return exitOK
}
