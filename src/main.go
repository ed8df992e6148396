package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"crosswarped.com/tilegen"
	"crosswarped.com/tilegen/internal/store"
	"crosswarped.com/tilegen/internal/tilesource"
)

const (
	maxCells    = 128 * 128
	maxTileSize = 32
)

type GenerateMapRequest struct {
	// Tileset is an inline tileset, colour payloads only.
	Tileset *tilegen.TilesetFile `json:"tileset,omitempty"`
	// TilesetName names a tileset in the BigQuery table.
	TilesetName string `json:"tilesetName,omitempty"`

	Algorithm  string `json:"algorithm"`
	MapSize    string `json:"mapSize,omitempty"`
	ChunkSize  string `json:"chunkSize,omitempty"`
	NumChunks  string `json:"numChunks,omitempty"`
	TileSize   int    `json:"tileSize"`
	BorderSize int    `json:"borderSize"`
	Seed       uint64 `json:"seed,omitempty"`
	MaxSteps   int    `json:"maxSteps,omitempty"`
	Template   string `json:"template,omitempty"`
}

type GenerateMapResponse struct {
	Success    bool   `json:"success"`
	ID         string `json:"id,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Map        string `json:"map,omitempty"`
	Image      string `json:"image,omitempty"`
	Steps      int    `json:"steps,omitempty"`
	Backtracks int    `json:"backtracks,omitempty"`
	Violations int    `json:"violations,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StreamEvent is a message of the websocket stream: progress and chunk events, then one result.
type StreamEvent struct {
	Type     string               `json:"type"`
	Chunk    *int                 `json:"chunk,omitempty"`
	Resolved int                  `json:"resolved,omitempty"`
	Total    int                  `json:"total,omitempty"`
	Result   *GenerateMapResponse `json:"result,omitempty"`
}

type server struct {
	logger *log.Logger
	// tilesets loads named tilesets, nil when no table is configured.
	tilesets func(ctx context.Context, name string) (*tilegen.Tileset, error)
	// store, if set, keeps every generated map.
	store    store.Store
	upgrader websocket.Upgrader
}

func (s *server) config(req GenerateMapRequest) (tilegen.RunConfig, error) {
	cfg := tilegen.RunConfig{
		TileSize:   req.TileSize,
		BorderSize: req.BorderSize,
		Seed:       req.Seed,
		MaxSteps:   req.MaxSteps,
	}
	if cfg.TileSize == 0 {
		cfg.TileSize = 8
	}
	if cfg.TileSize > maxTileSize {
		return cfg, fmt.Errorf("%w: tileSize must be at most %d", tilegen.ErrInvalidConfig, maxTileSize)
	}
	if req.Algorithm != "" {
		if err := cfg.Algorithm.Set(req.Algorithm); err != nil {
			return cfg, err
		}
	}
	for _, f := range []struct {
		value string
		dst   *tilegen.Size
	}{
		{req.MapSize, &cfg.MapSize},
		{req.ChunkSize, &cfg.ChunkSize},
		{req.NumChunks, &cfg.NumChunks},
	} {
		if f.value == "" {
			continue
		}
		if err := f.dst.Set(f.value); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (s *server) tileset(ctx context.Context, req GenerateMapRequest) (*tilegen.Tileset, error) {
	switch {
	case req.Tileset != nil && req.TilesetName != "":
		return nil, fmt.Errorf("%w: tileset and tilesetName are exclusive", tilegen.ErrInvalidConfig)
	case req.Tileset != nil:
		return req.Tileset.Compile(nil)
	case req.TilesetName != "":
		if s.tilesets == nil {
			return nil, fmt.Errorf("%w: no tileset table configured", tilegen.ErrInvalidConfig)
		}
		return s.tilesets(ctx, req.TilesetName)
	}
	return nil, fmt.Errorf("%w: tileset or tilesetName is required", tilegen.ErrInvalidConfig)
}

func (s *server) execute(ctx context.Context, req GenerateMapRequest, hooks tilegen.RunHooks) (*GenerateMapResponse, error) {
	cfg, err := s.config(req)
	if err != nil {
		return nil, err
	}
	ts, err := s.tileset(ctx, req)
	if err != nil {
		return nil, err
	}

	var base *tilegen.Grid
	if req.Template != "" {
		if base, err = tilegen.ParseTemplate(strings.NewReader(req.Template), ts); err != nil {
			return nil, err
		}
		if !cfg.Chunked() && cfg.MapSize.IsZero() {
			cfg.MapSize = tilegen.Size{W: base.Width(), H: base.Height()}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Validate guarantees positive sides, the division keeps the check from overflowing.
	if w, h := cfg.Size(); w > maxCells/h {
		return nil, fmt.Errorf("%w: map of %dx%d exceeds %d cells", tilegen.ErrInvalidConfig, w, h, maxCells)
	}

	deadline, ok := ctx.Deadline()
	timeout := 1 * time.Minute
	if ok {
		timeout = time.Until(deadline) - 5*time.Second
		s.logger.Debug("Setting timeout", "timeout", timeout)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hooks.Logger = s.logger
	grid, stats, err := tilegen.GenerateMap(ctx, ts, cfg, base, hooks)
	if err != nil {
		return nil, err
	}
	img, err := tilegen.Render(grid, cfg.TileSize, cfg.RenderPadding())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png.Encode: %w", err)
	}

	resp := &GenerateMapResponse{
		Success:    true,
		Width:      grid.Width(),
		Height:     grid.Height(),
		Map:        grid.Repr(),
		Image:      base64.StdEncoding.EncodeToString(buf.Bytes()),
		Steps:      stats.Steps,
		Backtracks: stats.Backtracks,
		Violations: grid.Violations(),
	}
	if s.store != nil {
		name := req.TilesetName
		if name == "" {
			name = "inline"
		}
		r := store.NewRecord(grid, name, cfg.Algorithm, cfg.Seed)
		if err := s.store.SaveMap(ctx, r); err != nil {
			s.logger.Warn("Error saving map", "err", err)
		} else {
			resp.ID = r.ID.String()
		}
	}
	return resp, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tilegen.ErrInvalidConfig), errors.Is(err, tilegen.ErrInvalidTileset):
		return http.StatusBadRequest
	case errors.Is(err, tilegen.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, tilegen.ErrUnsatisfiable), errors.Is(err, tilegen.ErrChunkUnsatisfiable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Content-Type", "application/json")
}

func (s *server) generateMap(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	// Handle OPTIONS request for CORS preflight
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		fmt.Fprintf(w, `{"success": false, "error": "Method %s not allowed"}`, r.Method)
		return
	}

	var req GenerateMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Debug("Error parsing JSON body", "err", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(GenerateMapResponse{Error: fmt.Sprintf("Invalid JSON: %v", err)})
		return
	}

	resp, err := s.execute(r.Context(), req, tilegen.RunHooks{})
	if err != nil {
		s.logger.Info("Map generation failed", "err", err)
		w.WriteHeader(statusFor(err))
		resp = &GenerateMapResponse{Error: err.Error()}
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Error encoding response", "err", err)
	}
}

// generateMapStream reads one request from the websocket, streams progress while the map is
// generated, and ends with the result.
func (s *server) generateMapStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	var req GenerateMapRequest
	if err := conn.ReadJSON(&req); err != nil {
		conn.WriteJSON(StreamEvent{Type: "result", Result: &GenerateMapResponse{Error: fmt.Sprintf("Invalid JSON: %v", err)}})
		return
	}

	// The connection has a single writer, events are funneled through a channel. Progress is dropped
	// when the client falls behind.
	events := make(chan StreamEvent, 64)
	written := make(chan struct{})
	go func() {
		defer close(written)
		for ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("Websocket write failed", "err", err)
				for range events {
				}
				return
			}
		}
	}()
	offer := func(ev StreamEvent) {
		select {
		case events <- ev:
		default:
		}
	}

	hooks := tilegen.RunHooks{
		OnProgress: func(p tilegen.Progress) {
			offer(StreamEvent{Type: "progress", Resolved: p.Resolved, Total: p.Total})
		},
		OnChunkProgress: func(chunk int, p tilegen.Progress) {
			offer(StreamEvent{Type: "progress", Chunk: &chunk, Resolved: p.Resolved, Total: p.Total})
		},
		OnChunk: func(res tilegen.ChunkResult) {
			index := res.Index
			events <- StreamEvent{Type: "chunk", Chunk: &index}
		},
	}
	resp, err := s.execute(r.Context(), req, hooks)
	if err != nil {
		resp = &GenerateMapResponse{Error: err.Error()}
	}
	events <- StreamEvent{Type: "result", Result: resp}
	close(events)
	<-written

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func newServer(ctx context.Context, logger *log.Logger) (*server, func(), error) {
	s := &server{logger: logger}
	var closers []func() error

	if table := os.Getenv("TILESET_TABLE"); table != "" {
		src, err := tilesource.New(ctx, os.Getenv("GOOGLE_CLOUD_PROJECT"), table)
		if err != nil {
			return nil, nil, err
		}
		s.tilesets = src.Load
		closers = append(closers, src.Close)
	}
	if dsn := os.Getenv("STORE_DSN"); dsn != "" {
		st, err := store.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		s.store = st
		closers = append(closers, st.Close)
	}
	return s, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "tilegen-fn"})
	if os.Getenv("DEBUG") == "true" {
		logger.SetLevel(log.DebugLevel)
	}

	s, cleanup, err := newServer(context.Background(), logger)
	if err != nil {
		logger.Fatal("Error configuring server", "err", err)
	}
	defer cleanup()

	funcframework.RegisterHTTPFunction("/generate-map", s.generateMap)
	funcframework.RegisterHTTPFunction("/generate-map/stream", s.generateMapStream)

	port := "8080"
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}
	hostname := ""
	if localOnly := os.Getenv("LOCAL_ONLY"); localOnly == "true" {
		hostname = "127.0.0.1"
	}
	if err := funcframework.StartHostPort(hostname, port); err != nil {
		logger.Fatal("funcframework.StartHostPort", "err", err)
	}
}
