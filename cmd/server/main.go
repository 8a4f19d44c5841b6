package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "poe/internal/jwt_token"
	"poe/internal/platform/config"
	"poe/internal/platform/httpserver"
	"poe/internal/platform/logger"
	httpmetrics "poe/internal/platform/metrics"
	"poe/internal/registry/handler"
	"poe/pkg/platform/httputil"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "poe: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer app.close()

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)

	router := chi.NewRouter()
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := app.health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())
	handler.New(
		app.service,
		log,
		httpmetrics.New(prometheus.DefaultRegisterer),
		jwttoken.NewJWTServiceAdapter(jwtService),
		cfg.RequestTimeout,
	).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting poe registry",
			"addr", cfg.Addr,
			"store_backend", cfg.StoreBackend,
			"height_source", cfg.Ledger.HeightSource,
		)
		err := httpserver.Run(gctx, srv, nil, cfg.ShutdownTimeout)
		log.Info("http server stopped")
		return err
	})
	if app.worker != nil {
		g.Go(func() error {
			return app.worker.Run(gctx)
		})
	}
	return g.Wait()
}
