// Package api provides the webhook HTTP surface of ChatWire.
//
// Handlers authenticate the integration, normalize the payload through the
// channel adapter, resolve a reply synchronously, and queue delivery and lead
// capture on the background worker pool. Payloads that cannot be processed
// are acknowledged with success so providers do not retry them; the only
// provider-visible failures are an unknown Telegram verify token (404) and a
// rejected Meta verification handshake (400/403).
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/conversation"
	"github.com/chatwire/chatwire/internal/leads"
	"github.com/chatwire/chatwire/internal/store"
	"github.com/chatwire/chatwire/internal/worker"
)

// Defaults for the HTTP server.
const (
	DefaultAddr = ":8080"
	// DefaultMaxBodyBytes caps one inbound webhook payload.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultReadHeaderTimeout bounds header parsing on new connections.
	DefaultReadHeaderTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	MaxBodyBytes  int64
	RatePerMinute int
	RateBurst     int
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithMaxBodyBytes caps the accepted webhook payload size.
func WithMaxBodyBytes(n int64) Option {
	return func(o *Opts) {
		o.MaxBodyBytes = n
	}
}

// WithRateLimit sets the per-sender inbound message budget.
func WithRateLimit(perMinute, burst int) Option {
	return func(o *Opts) {
		o.RatePerMinute = perMinute
		o.RateBurst = burst
	}
}

// Server routes provider webhooks into the conversation pipeline.
type Server struct {
	st        store.Store
	resolver  *conversation.Resolver
	extractor *leads.Extractor
	registry  *channel.Registry
	pool      *worker.Pool
	limiter   *senderLimiter
	maxBody   int64
	httpSrv   *http.Server
}

// NewServer assembles the webhook server from its collaborators, applying any
// provided options.
func NewServer(st store.Store, resolver *conversation.Resolver, extractor *leads.Extractor, registry *channel.Registry, pool *worker.Pool, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = DefaultRatePerMinute
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}

	s := &Server{
		st:        st,
		resolver:  resolver,
		extractor: extractor,
		registry:  registry,
		pool:      pool,
		limiter:   newSenderLimiter(cfg.RatePerMinute, cfg.RateBurst),
		maxBody:   cfg.MaxBodyBytes,
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	return s
}

// Handler returns the route table. It is exposed so tests can drive the
// server through httptest without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(telegramWebhookPrefix, s.telegramWebhookHandler)
	mux.HandleFunc("/webhooks/meta", s.metaWebhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("API server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down")
	return s.httpSrv.Shutdown(ctx)
}
