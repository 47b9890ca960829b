package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/slidedeck/internal/api"
	"github.com/dgallion1/slidedeck/internal/config"
	"github.com/dgallion1/slidedeck/internal/course"
	"github.com/dgallion1/slidedeck/internal/extract"
	"github.com/dgallion1/slidedeck/internal/pipeline"
	"github.com/dgallion1/slidedeck/internal/render"
)

func main() {
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := cfg.ValidateElearning(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := course.Open(cfg.DatabasePath)
	if err != nil {
		log.Error("failed to open course database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	raster := render.NewRasterizer(render.Tools{
		Renderer:   cfg.RendererBin,
		Rasterizer: cfg.RasterizerBin,
		Timeout:    cfg.ToolTimeout,
	}, nil, nil, log)
	orch, err := pipeline.NewOrchestrator(cfg, raster, extract.NewExtractor(log), log)
	if err != nil {
		log.Error("invalid pipeline configuration", "error", err)
		os.Exit(1)
	}
	if err := raster.CheckTools(render.StrategyPDF); err != nil {
		log.Warn("rendering tools unavailable, imports will fail", "error", err)
	}
	orch.Start(ctx, course.NewImporter(store, orch, cfg.CoursesDir, log))

	// Initialize HTTP server.
	srv, err := api.NewElearningServer(orch, store, log, cfg)
	if err != nil {
		log.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  5 * time.Minute, // Large uploads
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		// Drain handlers first so none can Submit into a stopped queue.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		store.Close()
	}()

	log.Info("starting e-learning site", "port", cfg.Port, "db", cfg.DatabasePath, "courses_dir", cfg.CoursesDir)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
