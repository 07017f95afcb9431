// Package main is the entry point for the Tripline sync service.
// Its sole responsibility is wiring dependencies together and starting the
// HTTP server and the workspace poller. No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/hweiling/tripline/internal/config"
	"github.com/hweiling/tripline/internal/gcal"
	"github.com/hweiling/tripline/internal/handler"
	"github.com/hweiling/tripline/internal/middleware"
	"github.com/hweiling/tripline/internal/repo"
	"github.com/hweiling/tripline/internal/service"
	"github.com/hweiling/tripline/internal/sync"
	"github.com/hweiling/tripline/internal/workspace"
)

// requestBodyLimit bounds request bodies. Webhook notifications and itinerary
// edits are small JSON payloads; anything larger is not a real request.
const requestBodyLimit = 64 << 10

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// JSON handler writes machine-readable output suitable for log aggregators.
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Database ---------------------------------------------------------
	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately — the first query does.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(context.Background()); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	// --- External stores --------------------------------------------------
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
	}
	oauthClient := oauthCfg.Client(rootCtx, &oauth2.Token{RefreshToken: cfg.GoogleRefreshToken})

	calClient, err := gcal.NewClient(rootCtx, oauthClient, cfg.TimeZone)
	if err != nil {
		slog.Error("failed to create calendar client", "error", err)
		os.Exit(1)
	}
	wsClient := workspace.NewClient(cfg.NotionToken)

	// --- Repos, sync engine, services --------------------------------------
	tripRepo := repo.NewTripRepo(pool)
	itemRepo := repo.NewItemRepo(pool)
	syncRepo := repo.NewSyncRepo(pool)

	propagator := sync.NewPropagator(wsClient, calClient, itemRepo, logger)
	runner := sync.NewRunner(tripRepo, itemRepo, syncRepo, wsClient, calClient, propagator, logger)
	poller := sync.NewWorkspacePoller(tripRepo, runner, cfg.WorkspacePollInterval, logger)

	itinerarySvc := service.NewItineraryService(tripRepo, itemRepo, propagator, logger)
	tripSvc := service.NewTripService(tripRepo)

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(requestBodyLimit))

	srvHandlers := handler.NewServer(itinerarySvc, tripSvc, runner, cfg.TripMarker)
	srvHandlers.Routes(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// --- Workspace poller --------------------------------------------------
	go poller.Start(rootCtx)

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, stop accepting requests, then
	// cancel the poller and wait for its current cycle to finish.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	cancelRoot()
	poller.Wait()
	slog.Info("server stopped")
}
