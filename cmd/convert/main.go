package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dgallion1/slidedeck/internal/config"
	"github.com/dgallion1/slidedeck/internal/extract"
	"github.com/dgallion1/slidedeck/internal/pipeline"
	"github.com/dgallion1/slidedeck/internal/render"
)

func main() {
	app := &cli.App{
		Name:  "convert",
		Usage: "render a presentation into slide images and extract its speaker notes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pptx", Usage: "path to the source presentation", EnvVars: []string{"PPTX_FILE"}, Required: true},
			&cli.StringFlag{Name: "out", Usage: "output directory", Value: "slides"},
			&cli.IntFlag{Name: "dpi", Usage: "rasterization resolution", EnvVars: []string{"SLIDE_DPI"}, Value: 150},
			&cli.StringFlag{Name: "mode", Usage: "render strategy: auto, pdf or direct", EnvVars: []string{"RENDER_MODE"}, Value: "auto"},
			&cli.StringFlag{Name: "freshness", Usage: "staleness check: mtime or hash", EnvVars: []string{"FRESHNESS"}, Value: "mtime"},
			&cli.BoolFlag{Name: "force", Usage: "re-render and re-extract even when outputs are current"},
			&cli.BoolFlag{Name: "verbose", Usage: "log pipeline progress to stderr"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Load()
	cfg.SlideDPI = c.Int("dpi")
	cfg.RenderMode = c.String("mode")
	cfg.Freshness = c.String("freshness")

	raster := render.NewRasterizer(render.Tools{
		Renderer:   cfg.RendererBin,
		Rasterizer: cfg.RasterizerBin,
		Timeout:    cfg.ToolTimeout,
	}, nil, nil, log)
	raster.SetEcho(os.Stdout)

	orch, err := pipeline.NewOrchestrator(cfg, raster, extract.NewExtractor(log), log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, out := c.String("pptx"), c.String("out")
	var res *pipeline.Result
	if c.Bool("force") {
		res, err = orch.Convert(ctx, src, out)
	} else {
		res, err = orch.Ensure(ctx, src, out)
		if err == nil && res.RenderErr != nil {
			err = res.RenderErr
		}
	}
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	absOut, _ := filepath.Abs(out)
	fmt.Printf("Converted '%s' -> '%s' (%d slides)\n", src, absOut, len(res.Images))
	return nil
}
