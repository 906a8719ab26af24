// Package server exposes the thread-append service over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mvail/threadledger/pkg/sweeper"
	"github.com/mvail/threadledger/pkg/thread"
	"github.com/mvail/threadledger/pkg/types"
)

// TrackReader lists tracked writes for the status endpoint.
type TrackReader interface {
	EntriesForThread(ctx context.Context, threadID string) ([]types.TrackedWrite, error)
}

// Config holds server configuration.
type Config struct {
	Engine    *thread.Engine
	Tracker   TrackReader
	Sweeper   *sweeper.Sweeper
	Logger    *slog.Logger
	RateRPS   float64
	RateBurst int
}

// Option configures the server.
type Option func(*Config)

// WithEngine sets the thread append engine.
func WithEngine(e *thread.Engine) Option {
	return func(c *Config) { c.Engine = e }
}

// WithTracker sets the tracking store used by the writes endpoint.
func WithTracker(t TrackReader) Option {
	return func(c *Config) { c.Tracker = t }
}

// WithSweeper sets the sweeper behind the manual sweep endpoint.
// If nil (default), POST /sweep is not registered.
func WithSweeper(s *sweeper.Sweeper) Option {
	return func(c *Config) { c.Sweeper = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithRateLimit sets the per-sender rate limit. Zero rps disables
// limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Config) {
		c.RateRPS = rps
		c.RateBurst = burst
	}
}

// Server routes HTTP requests to the append engine, tracking store, and
// sweeper.
type Server struct {
	engine  *thread.Engine
	tracker TrackReader
	sweeper *sweeper.Sweeper
	logger  *slog.Logger
	limiter *senderLimiter
}

// New creates a Server from the given options.
func New(opts ...Option) (*Server, error) {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var limiter *senderLimiter
	if cfg.RateRPS > 0 {
		limiter = newSenderLimiter(cfg.RateRPS, cfg.RateBurst)
	}

	return &Server{
		engine:  cfg.Engine,
		tracker: cfg.Tracker,
		sweeper: cfg.Sweeper,
		logger:  cfg.Logger,
		limiter: limiter,
	}, nil
}

// Routes returns the handler for all service endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /threads/{threadID}/messages", s.handleAppend)
	mux.HandleFunc("GET /threads/{threadID}", s.handleGetThread)
	mux.HandleFunc("GET /threads/{threadID}/writes", s.handleListWrites)
	if s.sweeper != nil {
		mux.HandleFunc("POST /sweep", s.handleSweep)
	}
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.limiter != nil {
		return s.limiter.middleware(mux)
	}
	return mux
}
