package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/slidedeck/internal/deck"
	"github.com/dgallion1/slidedeck/internal/parser"
)

// Tools names the external binaries used for rendering.
type Tools struct {
	Renderer   string        // Office renderer, e.g. soffice
	Rasterizer string        // PDF rasterizer, e.g. pdftoppm
	Timeout    time.Duration // Per invocation; 0 means no limit
}

// Rasterizer turns a presentation into slide_NNN.png files using external tools.
type Rasterizer struct {
	tools  Tools
	runner Runner
	stats  *ToolStats
	log    *slog.Logger
	echo   io.Writer
}

const pagePrefix = "slide"

var pagePattern = regexp.MustCompile(`^` + pagePrefix + `-(\d+)\.png$`)

func NewRasterizer(tools Tools, runner Runner, stats *ToolStats, log *slog.Logger) *Rasterizer {
	if tools.Renderer == "" {
		tools.Renderer = "soffice"
	}
	if tools.Rasterizer == "" {
		tools.Rasterizer = "pdftoppm"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if stats == nil {
		stats = NewToolStats(time.Hour)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Rasterizer{
		tools:  tools,
		runner: runner,
		stats:  stats,
		log:    log,
	}
}

// SetEcho makes the rasterizer print every command it runs to w.
func (r *Rasterizer) SetEcho(w io.Writer) {
	r.echo = w
}

// Stats returns the tool invocation statistics.
func (r *Rasterizer) Stats() *ToolStats {
	return r.stats
}

// Rasterize renders sourcePath into outDir as slide_001.png, slide_002.png, ...
// and returns the image paths in slide order. Pre-existing slide images are
// removed first; nothing in outDir is touched when the source or a required
// tool is missing.
func (r *Rasterizer) Rasterize(ctx context.Context, sourcePath, outDir string, dpi int, strategy Strategy) ([]string, error) {
	src, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", deck.ErrSourceNotFound, sourcePath)
		}
		return nil, fmt.Errorf("stat source: %w", err)
	}
	out, err := filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if dpi <= 0 {
		dpi = 150
	}

	if strategy == StrategyAuto {
		n := parser.SlideCount(src)
		strategy = strategy.resolve(n)
		r.log.Debug("resolved render strategy", "slides", n, "strategy", strategy)
	}

	renderer, err := r.lookPath(r.tools.Renderer)
	if err != nil {
		return nil, err
	}
	var rasterizer string
	if strategy == StrategyPDF {
		if rasterizer, err = r.lookPath(r.tools.Rasterizer); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := RemoveImages(out); err != nil {
		return nil, fmt.Errorf("remove stale images: %w", err)
	}

	switch strategy {
	case StrategyPDF:
		return r.viaPDF(ctx, renderer, rasterizer, src, out, dpi)
	case StrategyDirect:
		return r.direct(ctx, renderer, src, out)
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

// CheckTools reports whether the tools needed for strategy can be located.
func (r *Rasterizer) CheckTools(strategy Strategy) error {
	if _, err := r.lookPath(r.tools.Renderer); err != nil {
		return err
	}
	if strategy == StrategyPDF {
		if _, err := r.lookPath(r.tools.Rasterizer); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rasterizer) lookPath(tool string) (string, error) {
	p, err := r.runner.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", deck.ErrToolMissing, tool, err)
	}
	return p, nil
}

// viaPDF renders to an intermediate PDF and rasterizes every page.
func (r *Rasterizer) viaPDF(ctx context.Context, renderer, rasterizer, src, outDir string, dpi int) ([]string, error) {
	if err := r.run(ctx, renderer, "--headless", "--invisible", "--convert-to", "pdf", "--outdir", outDir, src); err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	pdfPath, err := findOutput(outDir, stem, ".pdf")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(pdfPath); err != nil && !os.IsNotExist(err) {
			r.log.Warn("failed to remove intermediate pdf", "path", pdfPath, "error", err)
		}
	}()

	pages, countErr := parser.PDFPageCount(pdfPath)
	if countErr != nil {
		r.log.Debug("pdf page count unavailable", "path", pdfPath, "error", countErr)
	}

	prefix := filepath.Join(outDir, pagePrefix)
	if err := r.run(ctx, rasterizer, "-png", "-r", strconv.Itoa(dpi), pdfPath, prefix); err != nil {
		return nil, err
	}

	images, err := renamePages(outDir)
	if err != nil {
		return nil, err
	}
	if countErr == nil && pages != len(images) {
		r.log.Warn("page count mismatch", "pdf_pages", pages, "images", len(images))
	}
	return images, nil
}

// direct asks the renderer for images in a single call. The renderer's own
// names are ordered by their trailing page number before renaming.
func (r *Rasterizer) direct(ctx context.Context, renderer, src, outDir string) ([]string, error) {
	stage, err := os.MkdirTemp(outDir, ".render-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stage)

	if err := r.run(ctx, renderer, "--headless", "--invisible", "--convert-to", "png", "--outdir", stage, src); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(stage)
	if err != nil {
		return nil, fmt.Errorf("read staging dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: renderer produced no images", deck.ErrConversionFailed)
	}
	SortByPageNumber(names)

	images := make([]string, 0, len(names))
	for i, name := range names {
		dst := filepath.Join(outDir, deck.ImageName(i+1))
		if err := os.Rename(filepath.Join(stage, name), dst); err != nil {
			return images, fmt.Errorf("rename %s: %w", name, err)
		}
		images = append(images, dst)
	}
	return images, nil
}

func (r *Rasterizer) run(ctx context.Context, tool string, args ...string) error {
	if r.tools.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.tools.Timeout)
		defer cancel()
	}

	line := strings.Join(append([]string{tool}, args...), " ")
	if r.echo != nil {
		fmt.Fprintln(r.echo, "Running:", line)
	}
	r.log.Info("running tool", "cmd", line)

	start := time.Now()
	out, err := r.runner.Run(ctx, tool, args...)
	r.stats.Record(filepath.Base(tool), time.Since(start), err != nil)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", r.tools.Timeout)
		}
		return fmt.Errorf("%w: %s: %v: %s", deck.ErrConversionFailed, filepath.Base(tool), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// findOutput locates the renderer's output: the exact <stem><ext> first, then
// any file in dir starting with stem and carrying ext.
func findOutput(dir, stem, ext string) (string, error) {
	exact := filepath.Join(dir, stem+ext)
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read output dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, stem) && strings.EqualFold(filepath.Ext(name), ext) {
			return filepath.Join(dir, name), nil
		}
	}
	return "", fmt.Errorf("%w: expected %s not found in %s", deck.ErrConversionFailed, stem+ext, dir)
}

// renamePages renames the rasterizer's slide-<n>.png outputs to slide_NNN.png.
func renamePages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	type page struct {
		name string
		num  int
	}
	var pages []page
	for _, e := range entries {
		m := pagePattern.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		pages = append(pages, page{name: e.Name(), num: n})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: rasterizer produced no pages", deck.ErrConversionFailed)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	images := make([]string, 0, len(pages))
	for _, p := range pages {
		dst := filepath.Join(dir, deck.ImageName(p.num))
		if err := os.Rename(filepath.Join(dir, p.name), dst); err != nil {
			return images, fmt.Errorf("rename %s: %w", p.name, err)
		}
		images = append(images, dst)
	}
	return images, nil
}

// RemoveImages deletes every slide_NNN.png in dir.
func RemoveImages(dir string) error {
	images, err := deck.ListImages(dir)
	if err != nil {
		return err
	}
	for _, p := range images {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// SortByPageNumber orders file names by their trailing number, falling back
// to lexicographic order. Names without a number sort before every numbered
// name, the way a renderer's unnumbered first page precedes page 1.
func SortByPageNumber(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := trailingNumber(names[i]), trailingNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})
}

func trailingNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	end := len(base)
	for end > 0 && base[end-1] >= '0' && base[end-1] <= '9' {
		end--
	}
	if end == len(base) {
		return -1
	}
	n, err := strconv.Atoi(base[end:])
	if err != nil {
		return -1
	}
	return n
}
