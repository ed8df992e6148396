package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime/pprof"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"crosswarped.com/tilegen"
	"crosswarped.com/tilegen/internal/preview"
	"crosswarped.com/tilegen/internal/progress"
	"crosswarped.com/tilegen/internal/store"
)

const (
	exitOK          = 0
	exitOther       = 1
	exitBadInput    = 2
	exitNoSolution  = 3
	exitTimeout     = 4
	exitIOFailure   = 5
	progressRefresh = 50 * time.Millisecond
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "cut" {
		os.Exit(runCut(os.Args[2:]))
	}
	os.Exit(run())
}

func run() int {
	var cfg tilegen.RunConfig
	flag.StringVar(&cfg.InputTileset, "input-tileset", "", "Path to the tileset description (.json or .txt)")
	flag.StringVar(&cfg.OutputFilepath, "output-filepath", "", "Path of the rendered PNG")
	flag.Var(&cfg.Algorithm, "algorithm", "Search algorithm, backtracking or fast")
	flag.Var(&cfg.MapSize, "map-size", "Size of a whole map in tiles, WxH")
	flag.Var(&cfg.ChunkSize, "chunk-size", "Size of a chunk in tiles, WxH")
	flag.Var(&cfg.NumChunks, "num-chunks", "Number of chunks along each axis, AxB")
	flag.IntVar(&cfg.TileSize, "tile-size", 16, "Pixels per tile side")
	flag.IntVar(&cfg.BorderSize, "border-size", 0, "Image padding in pixels for a whole map, chunk overlap in tiles for a chunked map")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose output")

	flag.StringVar(&cfg.Template, "template", "", "Text map of pre-set tiles, '*' free and '!' excluded cells")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "Seed of the frequency weighted candidate order, 0 for fixed order")
	flag.DurationVar(&cfg.Timeout, "timeout", 1*time.Minute, "Time budget of every search, 0 for none")
	flag.IntVar(&cfg.MaxSteps, "max-steps", 0, "Step budget of every search, 0 for none")
	flag.IntVar(&cfg.Workers, "workers", 0, "Chunks generated at once, 0 for one per CPU")
	flag.IntVar(&cfg.Retries, "retries", 0, "Extra attempts for a failing chunk, needs -seed")

	showProgress := flag.Bool("progress", false, "Show a progress bar")
	showPreview := flag.Bool("preview", false, "Print the map to the terminal")
	storeDSN := flag.String("store", "", "Save the map to sqlite:<path> or a postgres:// database")

	profile := flag.Bool("profile", false, "Profile the generator")
	profileFile := flag.String("profile-file", "cpu.pprof", "The file to write the CPU profile to")

	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "tilecli"})
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if cfg.InputTileset == "" || cfg.OutputFilepath == "" {
		logger.Error("-input-tileset and -output-filepath are required")
		flag.Usage()
		return exitBadInput
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "err", err)
		return exitCode(err)
	}

	ts, err := tilegen.LoadTileset(cfg.InputTileset)
	if err != nil {
		logger.Error("Error loading tileset", "path", cfg.InputTileset, "err", err)
		return exitCode(err)
	}
	logger.Debug("Loaded tileset", "path", cfg.InputTileset, "tiles", ts.Len())

	base, err := cfg.LoadTemplate(ts)
	if err != nil {
		logger.Error("Error loading template", "path", cfg.Template, "err", err)
		return exitCode(err)
	}
	if base != nil && !cfg.Chunked() && cfg.MapSize.IsZero() {
		cfg.MapSize = tilegen.Size{W: base.Width(), H: base.Height()}
	}

	if *profile {
		f, err := os.Create(*profileFile)
		if err != nil {
			logger.Error("Error creating profile file", "err", err)
			return exitIOFailure
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logger.Error("Error starting CPU profile", "err", err)
			return exitOther
		}
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w, h := cfg.Size()
	logger.Info("Generating map", "algorithm", cfg.Algorithm, "width", w, "height", h, "chunked", cfg.Chunked())

	var (
		grid  *tilegen.Grid
		stats tilegen.Stats
	)
	if *showProgress {
		grid, stats, err = generateWithProgress(ctx, ts, cfg, base, logger)
	} else {
		grid, stats, err = tilegen.GenerateMap(ctx, ts, cfg, base, tilegen.RunHooks{Logger: logger})
	}
	if err != nil {
		logger.Error("Error generating map", "err", err)
		return exitCode(err)
	}
	logger.Debug("Search finished", "steps", stats.Steps, "backtracks", stats.Backtracks, "relaxed", stats.Relaxed, "elapsed", stats.Duration)

	img, err := tilegen.Render(grid, cfg.TileSize, cfg.RenderPadding())
	if err != nil {
		logger.Error("Error rendering map", "err", err)
		return exitCode(err)
	}
	if err := tilegen.WritePNG(cfg.OutputFilepath, img); err != nil {
		logger.Error("Error writing image", "path", cfg.OutputFilepath, "err", err)
		return exitIOFailure
	}

	if *showPreview {
		fmt.Println(preview.Render(grid))
		fmt.Print(preview.Legend(ts))
	}
	if cfg.Verbose {
		fmt.Fprintln(os.Stderr, grid.Repr())
	}

	if *storeDSN != "" {
		s, err := store.Open(ctx, *storeDSN)
		if err != nil {
			logger.Error("Error opening store", "err", err)
			return exitIOFailure
		}
		defer s.Close()
		r := store.NewRecord(grid, cfg.InputTileset, cfg.Algorithm, cfg.Seed)
		if err := s.SaveMap(ctx, r); err != nil {
			logger.Error("Error saving map", "err", err)
			return exitIOFailure
		}
		logger.Info("Saved map", "id", r.ID)
	}

	logger.Info("Map written", "path", cfg.OutputFilepath, "violations", grid.Violations(), "elapsed", stats.Duration)
	return exitOK
}

// generateWithProgress runs the generation behind a progress bar. Quitting the bar cancels it.
func generateWithProgress(ctx context.Context, ts *tilegen.Tileset, cfg tilegen.RunConfig, base *tilegen.Grid, logger *log.Logger) (*tilegen.Grid, tilegen.Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := 0
	if cfg.Chunked() {
		chunks = cfg.NumChunks.W * cfg.NumChunks.H
	}
	p := tea.NewProgram(progress.New(cfg.InputTileset, chunks), tea.WithOutput(os.Stderr), tea.WithContext(ctx))

	// Searches report every step, the bar only needs a few updates per second.
	var (
		mu   sync.Mutex
		last time.Time
	)
	due := func() bool {
		mu.Lock()
		defer mu.Unlock()
		if time.Since(last) < progressRefresh {
			return false
		}
		last = time.Now()
		return true
	}

	hooks := tilegen.RunHooks{
		Logger: logger,
		OnProgress: func(pr tilegen.Progress) {
			if due() {
				p.Send(progress.Msg(pr))
			}
		},
		OnChunkProgress: func(chunk int, pr tilegen.Progress) {
			if due() {
				p.Send(progress.ChunkMsg{Chunk: chunk, Progress: pr})
			}
		},
		OnChunk: func(r tilegen.ChunkResult) {
			p.Send(progress.ChunkDoneMsg(r))
		},
	}

	var (
		grid  *tilegen.Grid
		stats tilegen.Stats
		err   error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		grid, stats, err = tilegen.GenerateMap(ctx, ts, cfg, base, hooks)
		p.Send(progress.DoneMsg{Err: err})
	}()

	final, runErr := p.Run()
	if m, ok := final.(progress.Model); ok && m.Interrupted() {
		cancel()
	}
	<-done
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		logger.Warn("Progress display failed", "err", runErr)
	}
	return grid, stats, err
}

func exitCode(err error) int {
	var pathErr *fs.PathError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, tilegen.ErrInvalidConfig), errors.Is(err, tilegen.ErrInvalidTileset):
		return exitBadInput
	case errors.Is(err, tilegen.ErrTimeout):
		return exitTimeout
	case errors.Is(err, tilegen.ErrUnsatisfiable), errors.Is(err, tilegen.ErrChunkUnsatisfiable):
		return exitNoSolution
	case errors.As(err, &pathErr):
		return exitIOFailure
	}
	return exitOther
}
