package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/SandroAugusto/school-of-solana/internal/server/handler"
	"github.com/SandroAugusto/school-of-solana/internal/server/middleware"
	"github.com/SandroAugusto/school-of-solana/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr        string
	CORSOrigins []string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Events  *handler.EventHandler
	Metrics *handler.MetricsHandler
}

// Server is the HTTP + WebSocket API in front of the sequencer.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Mutations require a verified identity; reads and the event feed are public.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, verifier middleware.Verifier, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	auth := middleware.Auth(verifier)
	protected := func(fn http.HandlerFunc) http.Handler { return auth(fn) }

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/metrics", handlers.Metrics.GetMetrics)
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)

	// Market reads.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{key}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{key}/bets", handlers.Markets.ListBets)
	mux.HandleFunc("GET /api/markets/{key}/bets/{bettor}/quote", handlers.Markets.QuoteBet)

	// Lifecycle mutations.
	mux.Handle("POST /api/markets", protected(handlers.Markets.CreateMarket))
	mux.Handle("POST /api/markets/{key}/bets", protected(handlers.Markets.PlaceBet))
	mux.Handle("POST /api/markets/{key}/close", protected(handlers.Markets.CloseMarket))
	mux.Handle("POST /api/markets/{key}/resolve", protected(handlers.Markets.ResolveMarket))
	mux.Handle("POST /api/markets/{key}/withdraw", protected(handlers.Markets.Withdraw))

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins.
// No configured origins allows all of them.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if o == "*" || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+middleware.HeaderIdentity+", "+middleware.HeaderCapability)
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
