package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ilemi-bj/foncier-geo/internal/core/config"
	"github.com/ilemi-bj/foncier-geo/internal/core/health"
	middleware "github.com/ilemi-bj/foncier-geo/internal/core/middleware"
	"github.com/ilemi-bj/foncier-geo/internal/core/router"
)

// Deps are the collaborators behind the HTTP surface. Readiness and Metrics
// are optional.
type Deps struct {
	Analyzer  router.Analyzer
	Extractor router.Extractor
	Readiness health.ReadinessReporter
	Checks    []health.Check
	Metrics   http.Handler
}

// NewHandler builds the full route tree.
func NewHandler(cfg config.Config, logger *slog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(deps.Readiness, deps.Checks...))
	r.Get("/metrics", metricsHandler.ServeHTTP)
	router.Mount(r, deps.Analyzer, deps.Extractor, router.Options{
		MaxBodyBytes: cfg.MaxUploadBytes,
		Logger:       logger,
	})
	return r
}

// Run serves the API on cfg.Addr, plus the metrics listener when enabled,
// until ctx is canceled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, deps Deps) error {
	api := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.AnalysisTimeout + cfg.Extraction.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	servers := []*http.Server{api}

	if cfg.Metrics.Enabled && deps.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, deps.Metrics)
		servers = append(servers, &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("http listen", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", "addr", srv.Addr, "err", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}
