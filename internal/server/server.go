package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"spotarb/internal/balance"
	"spotarb/internal/config"
	"spotarb/internal/model"
	"spotarb/internal/trade"
)

// Scanner produces scan results on demand and keeps the latest one.
type Scanner interface {
	Scan(ctx context.Context) model.ScanResult
	Latest() (model.ScanResult, bool)
}

// Executor runs a trade.
type Executor interface {
	Execute(ctx context.Context, req trade.Request) (trade.Result, error)
}

// TradeLister reads trade history.
type TradeLister interface {
	List(ctx context.Context) ([]model.Trade, error)
}

// BalanceReporter queries every venue's quote balance.
type BalanceReporter interface {
	Refresh(ctx context.Context) map[string]balance.VenueBalance
}

// AutoTradeToggle switches scheduled trading on and off.
type AutoTradeToggle interface {
	Enabled() bool
	SetEnabled(on bool)
}

// Deps are the components the API exposes. AutoTrade, Hub and Metrics are
// optional; their routes are not mounted when nil.
type Deps struct {
	Scanner   Scanner
	Executor  Executor
	Trades    TradeLister
	Balances  BalanceReporter
	AutoTrade AutoTradeToggle
	Hub       *Hub
	Metrics   http.Handler
}

// Server is the HTTP API of the bot.
type Server struct {
	logger *slog.Logger
	cfg    config.ServerConfig
	deps   Deps
	router chi.Router
}

// New creates a Server and registers its routes.
func New(logger *slog.Logger, cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		logger: logger.With(slog.String("component", "server")),
		cfg:    cfg,
		deps:   deps,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/health", s.health)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}
	if s.deps.Hub != nil {
		r.Get("/ws", s.deps.Hub.HandleWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/opportunities", s.getOpportunities)
		r.Post("/opportunities/scan", s.scanNow)
		r.Get("/trades", s.listTrades)
		r.Post("/trades", s.executeTrade)
		r.Get("/balances", s.getBalances)
		if s.deps.AutoTrade != nil {
			r.Get("/auto-trade", s.getAutoTrade)
			r.Put("/auto-trade", s.putAutoTrade)
		}
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.Int("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
