// Package server exposes speech generation over HTTP: /health for probes
// and POST /speak returning WAV audio.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-csm/internal/audio"
	"github.com/example/go-csm/internal/csm"
	"github.com/example/go-csm/internal/text"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// SpeechGenerator produces PCM audio for an utterance conditioned on
// conversation history.
type SpeechGenerator interface {
	Generate(ctx context.Context, text string, speaker int, history []csm.Segment, opts csm.GenerateOptions) ([]float32, error)
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		workers:        1,
		requestTimeout: 120 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /speak.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent generation calls. The
// model's incremental-decode cache holds a single sequence, so anything
// above 1 requires one engine per worker.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request generation deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	gen  SpeechGenerator
	opts options
	sem  chan struct{} // semaphore for worker slots
	log  *slog.Logger
}

// NewHandler returns an http.Handler serving /health and POST /speak.
func NewHandler(gen SpeechGenerator, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		gen:  gen,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/speak", h.handleSpeak)

	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type speakRequest struct {
	Text             string  `json:"text"`
	Speaker          int     `json:"speaker"`
	MaxAudioLengthMs float64 `json:"max_audio_length_ms"`
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"topk"`
	Watermark        bool    `json:"watermark"`
}

func (h *handler) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	normalized, err := text.Normalize(req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}
	req.Text = normalized

	if req.Speaker < 0 {
		writeError(w, http.StatusBadRequest, "speaker must be a non-negative integer")
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	// Acquire a worker slot, honouring cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	opts := csm.GenerateOptions{
		MaxAudioLengthMs: req.MaxAudioLengthMs,
		Temperature:      req.Temperature,
		TopK:             req.TopK,
		ApplyWatermark:   req.Watermark,
	}

	start := time.Now()
	pcm, err := h.gen.Generate(ctx, req.Text, req.Speaker, nil, opts)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		switch {
		case errors.Is(err, csm.ErrInputTooLong):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			h.log.WarnContext(r.Context(), "generation timed out",
				slog.Int("speaker", req.Speaker),
				slog.Int("text_len", len(req.Text)),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusGatewayTimeout, "generation timed out")
		default:
			h.log.ErrorContext(r.Context(), "generation failed",
				slog.Int("speaker", req.Speaker),
				slog.Int("text_len", len(req.Text)),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, err.Error())
		}

		return
	}

	wav, err := audio.EncodeWAV(pcm)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode WAV: "+err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "generation complete",
		slog.Int("speaker", req.Speaker),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.Int("wav_bytes", len(wav)),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server — wires the handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Config narrows the server settings needed to serve.
type Config struct {
	ListenAddr     string
	Workers        int
	MaxTextBytes   int
	RequestTimeout time.Duration
}

// Server owns the HTTP listener lifecycle around a SpeechGenerator.
type Server struct {
	cfg             Config
	gen             SpeechGenerator
	shutdownTimeout time.Duration
}

func New(cfg Config, gen SpeechGenerator) *Server {
	return &Server{
		cfg:             cfg,
		gen:             gen,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Start serves until ctx is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	handlerOpts := []Option{
		WithWorkers(s.cfg.Workers),
		WithMaxTextBytes(s.cfg.MaxTextBytes),
		WithRequestTimeout(s.cfg.RequestTimeout),
	}

	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           NewHandler(s.gen, handlerOpts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http listen: %w", err)
	}
}
