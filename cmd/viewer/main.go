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
	"github.com/dgallion1/slidedeck/internal/extract"
	"github.com/dgallion1/slidedeck/internal/pipeline"
	"github.com/dgallion1/slidedeck/internal/render"
)

func main() {
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := cfg.ValidateViewer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

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
	if err := raster.CheckTools(orch.Options().Strategy); err != nil {
		log.Warn("rendering tools unavailable, slides will not be generated", "error", err)
	}

	srv, err := api.NewViewerServer(orch, log, cfg)
	if err != nil {
		log.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // First view may wait on a full conversion
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting slide viewer", "port", cfg.Port, "source", cfg.PPTXFile, "slides_dir", cfg.SlidesDir)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
