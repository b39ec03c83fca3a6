package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/craftmint/service/config"
	"github.com/brojonat/craftmint/service/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the purchase service.
type Server struct {
	addr         string
	cfg          *config.Config
	svc          PurchaseService
	db           Pinger
	ssePublisher *SSEPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The ssePublisher is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, svc PurchaseService, db Pinger, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		cfg:          cfg,
		svc:          svc,
		db:           db,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
	}
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Purchase routes
	route("POST /verify-payment", "verify_payment", handleVerifyPayment(s.svc, s.cfg.CraftTokenMintAddress, s.logger))
	route("GET /nfts/{ownerAccount}", "list_artifacts", handleListArtifacts(s.svc, s.logger))
	route("GET /payment-request", "payment_request", handlePaymentRequest(paymentRequestConfig{
		Recipient: s.cfg.RecipientAccount(),
		Network:   s.cfg.SolanaNetwork,
		Mint:      s.cfg.CraftTokenMintAddress,
		Decimals:  int32(s.cfg.CraftTokenDecimals),
	}, s.logger))

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		mux.Handle("GET /stream/purchases/{ownerAccount}", handleStreamPurchases(s.ssePublisher, s.logger))
		mux.Handle("GET /stream/purchases", handleStreamPurchases(s.ssePublisher, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	mux.Handle("GET /health", handleHealth(s.db, s.logger))

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return requestIDMiddleware(corsMiddleware(mux), s.logger)
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	if s.cfg.Identity == nil {
		s.logger.Warn("recipient identity unavailable, purchases will be refused", "error", s.cfg.IdentityErr)
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Verification and issuance each have their own timeout; leave room for both.
		WriteTimeout: s.cfg.VerifyTimeout + s.cfg.IssueTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type (
	requestIDKey     struct{}
	requestLoggerKey struct{}
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags each request with an ID, reusing the caller's
// X-Request-ID when it looks sane, and attaches a logger carrying it.
func requestIDMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = context.WithValue(ctx, requestLoggerKey{}, logger.With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestLogger returns the request-scoped logger, or fallback outside the
// middleware.
func requestLogger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(requestLoggerKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}
