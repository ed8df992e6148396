package tilegen

import (
	"errors"
	"flag"
	"image"
	"io"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseSize(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Size
		wantErr bool
	}{
		{in: "10x20", want: Size{10, 20}},
		{in: "3X4", want: Size{3, 4}},
		{in: "1x1", want: Size{1, 1}},
		{in: "10", wantErr: true},
		{in: "0x5", wantErr: true},
		{in: "5x-1", wantErr: true},
		{in: "axb", wantErr: true},
		{in: "", wantErr: true},
		{in: "4294967296x4294967296", wantErr: true},
		{in: "9223372036854775807x2", wantErr: true},
	} {
		got, err := ParseSize(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ParseSize(%q) error = %v, want ErrInvalidConfig", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseSize(%q) = %v, %v, want %v", tc.in, got, err, tc.want)
		}
		if got.String() != strings.ToLower(tc.in) {
			t.Errorf("Size.String() = %q, want %q", got.String(), strings.ToLower(tc.in))
		}
	}
	if got := (Size{}).String(); got != "" {
		t.Errorf("zero Size.String() = %q, want empty", got)
	}
}

func TestParseAlgorithm(t *testing.T) {
	for in, want := range map[string]Algorithm{"backtracking": AlgorithmBacktracking, "fast": AlgorithmFast, "FAST": AlgorithmFast} {
		got, err := ParseAlgorithm(in)
		if err != nil || got != want {
			t.Errorf("ParseAlgorithm(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if _, err := ParseAlgorithm("annealing"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ParseAlgorithm(annealing) error = %v, want ErrInvalidConfig", err)
	}
	if got := Algorithm(7).String(); got != "Algorithm(7)" {
		t.Errorf("String() = %q", got)
	}
}

func TestFlagValues(t *testing.T) {
	var (
		alg  Algorithm
		size Size
	)
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Var(&alg, "algorithm", "")
	fs.Var(&size, "map-size", "")
	if err := fs.Parse([]string{"-algorithm", "fast", "-map-size", "12x7"}); err != nil {
		t.Fatal(err)
	}
	if alg != AlgorithmFast || size != (Size{12, 7}) {
		t.Errorf("parsed %v %v, want fast 12x7", alg, size)
	}
	if err := fs.Parse([]string{"-map-size", "12"}); err == nil {
		t.Errorf("Parse accepted a bad size")
	}
}

func validWhole() RunConfig {
	return RunConfig{MapSize: Size{10, 10}, TileSize: 8, BorderSize: 2, Timeout: time.Minute}
}

func validChunked() RunConfig {
	return RunConfig{ChunkSize: Size{8, 8}, NumChunks: Size{3, 2}, TileSize: 4, BorderSize: 2}
}

func TestRunConfig_Validate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		modify  func(*RunConfig)
		chunked bool
		wantErr bool
	}{
		{name: "whole"},
		{name: "chunked", chunked: true},
		{name: "template only", modify: func(c *RunConfig) { c.MapSize = Size{}; c.Template = "island.template" }},
		{name: "no size", modify: func(c *RunConfig) { c.MapSize = Size{} }, wantErr: true},
		{name: "unknown algorithm", modify: func(c *RunConfig) { c.Algorithm = 9 }, wantErr: true},
		{name: "zero tile size", modify: func(c *RunConfig) { c.TileSize = 0 }, wantErr: true},
		{name: "negative border", modify: func(c *RunConfig) { c.BorderSize = -1 }, wantErr: true},
		{name: "negative steps", modify: func(c *RunConfig) { c.MaxSteps = -1 }, wantErr: true},
		{name: "negative workers", modify: func(c *RunConfig) { c.Workers = -2 }, wantErr: true},
		{name: "whole with zero border", modify: func(c *RunConfig) { c.BorderSize = 0 }},
		{name: "both modes", chunked: true, modify: func(c *RunConfig) { c.MapSize = Size{5, 5} }, wantErr: true},
		{name: "chunk size only", chunked: true, modify: func(c *RunConfig) { c.NumChunks = Size{} }, wantErr: true},
		{name: "chunk count only", chunked: true, modify: func(c *RunConfig) { c.ChunkSize = Size{} }, wantErr: true},
		{name: "chunked zero border", chunked: true, modify: func(c *RunConfig) { c.BorderSize = 0 }, wantErr: true},
		{name: "chunked border too wide", chunked: true, modify: func(c *RunConfig) { c.BorderSize = 8 }, wantErr: true},
		{name: "cells overflow", modify: func(c *RunConfig) { c.MapSize = Size{math.MaxInt / 2, 3} }, wantErr: true},
		{name: "pixels overflow", modify: func(c *RunConfig) { c.MapSize = Size{1 << 20, 1 << 20}; c.TileSize = 1 << 30 }, wantErr: true},
		{name: "padding overflows", modify: func(c *RunConfig) { c.BorderSize = math.MaxInt / 2 }, wantErr: true},
		{name: "chunked map overflows", chunked: true, modify: func(c *RunConfig) {
			c.ChunkSize = Size{1 << 32, 4}
			c.NumChunks = Size{1 << 32, 1}
		}, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validWhole()
			if tc.chunked {
				cfg = validChunked()
			}
			if tc.modify != nil {
				tc.modify(&cfg)
			}
			err := cfg.Validate()
			if tc.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestRunConfig_Sizing(t *testing.T) {
	whole := validWhole()
	if whole.Chunked() {
		t.Errorf("whole config reports chunked")
	}
	if w, h := whole.Size(); w != 10 || h != 10 {
		t.Errorf("Size() = %dx%d, want 10x10", w, h)
	}
	if got := whole.RenderPadding(); got != 2 {
		t.Errorf("RenderPadding() = %d, want 2", got)
	}

	chunked := validChunked()
	if !chunked.Chunked() {
		t.Errorf("chunked config reports whole")
	}
	// 3*(8-2)+2 by 2*(8-2)+2.
	if w, h := chunked.Size(); w != 20 || h != 14 {
		t.Errorf("Size() = %dx%d, want 20x14", w, h)
	}
	if got := chunked.RenderPadding(); got != 0 {
		t.Errorf("RenderPadding() = %d, the border is chunk overlap and not image padding", got)
	}
}

func TestImageSize(t *testing.T) {
	for _, tc := range []struct {
		name               string
		w, h, tile, border int
		want               image.Point
		wantOK             bool
	}{
		{"padded", 10, 5, 3, 1, image.Pt(32, 17), true},
		{"no padding", 4, 4, 8, 0, image.Pt(32, 32), true},
		{"side overflows", math.MaxInt / 2, 1, 4, 0, image.Point{}, false},
		{"pixels overflow", 1 << 31, 1 << 31, 1, 0, image.Point{}, false},
		{"negative border", 2, 2, 2, -1, image.Point{}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := imageSize(tc.w, tc.h, tc.tile, tc.border)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("imageSize(%d, %d, %d, %d) = %v, %v, want %v, %v",
					tc.w, tc.h, tc.tile, tc.border, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}
