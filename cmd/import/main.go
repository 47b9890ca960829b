package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dgallion1/slidedeck/internal/config"
	"github.com/dgallion1/slidedeck/internal/course"
	"github.com/dgallion1/slidedeck/internal/extract"
	"github.com/dgallion1/slidedeck/internal/pipeline"
	"github.com/dgallion1/slidedeck/internal/render"
)

func main() {
	app := &cli.App{
		Name:  "import",
		Usage: "convert a presentation and store it as an e-learning course",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pptx", Usage: "path to the source presentation", Required: true},
			&cli.StringFlag{Name: "db", Usage: "course database path", EnvVars: []string{"ELEARN_DB"}, Value: "elearning.db"},
			&cli.StringFlag{Name: "courses", Usage: "directory that holds converted courses", EnvVars: []string{"COURSES_DIR"}, Value: "static/courses"},
			&cli.StringFlag{Name: "title", Usage: "course title (defaults to the first slide's notes)"},
			&cli.StringFlag{Name: "description", Usage: "course description text, or a path to a .docx handout"},
			&cli.IntFlag{Name: "dpi", Usage: "rasterization resolution", EnvVars: []string{"SLIDE_DPI"}, Value: 150},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := config.Load()
	cfg.DatabasePath = c.String("db")
	cfg.CoursesDir = c.String("courses")
	cfg.SlideDPI = c.Int("dpi")

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

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

	store, err := course.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := course.ImportRequest{SourcePath: c.String("pptx"), Title: c.String("title")}
	if d := c.String("description"); strings.HasSuffix(strings.ToLower(d), ".docx") {
		req.DescriptionDOCX = d
	} else {
		req.Description = d
	}

	imported, res, err := course.NewImporter(store, orch, cfg.CoursesDir, log).Import(ctx, req)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	fmt.Printf("Imported course %d %q with %d lessons\n", imported.ID, imported.Title, imported.LessonCount)
	return nil
}
