package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/dgallion1/slidedeck/internal/config"
	"github.com/dgallion1/slidedeck/internal/deck"
	"github.com/dgallion1/slidedeck/internal/extract"
	"github.com/dgallion1/slidedeck/internal/render"
)

// Options controls a conversion.
type Options struct {
	DPI       int
	Strategy  render.Strategy
	Freshness Freshness
	Force     bool // Treat every artifact as stale
}

// OptionsFromConfig derives conversion options from the loaded configuration.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	strategy, err := render.ParseStrategy(cfg.RenderMode)
	if err != nil {
		return Options{}, err
	}
	freshness, err := ParseFreshness(cfg.Freshness)
	if err != nil {
		return Options{}, err
	}
	return Options{DPI: cfg.SlideDPI, Strategy: strategy, Freshness: freshness}, nil
}

// Result describes the state of an output directory after a conversion.
type Result struct {
	Images    []string        `json:"images"`
	Manifest  deck.Manifest   `json:"manifest"`
	Rendered  bool            `json:"rendered"`
	Extracted bool            `json:"extracted"`
	Warnings  []string        `json:"warnings"`
	Report    *extract.Report `json:"-"`
	// RenderErr is the rasterization failure that Ensure tolerated.
	RenderErr error `json:"-"`
}

// ErrStopped is returned by Submit once Stop has been called.
var ErrStopped = errors.New("pipeline stopped")

// Orchestrator keeps output directories in sync with their source decks and
// runs background import jobs.
type Orchestrator struct {
	raster    *render.Rasterizer
	extractor *extract.Extractor
	opts      Options
	log       *slog.Logger
	cfg       config.Config

	jobs    *JobStore
	queue   chan *Job
	mu      sync.Mutex
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to run import workers.
func NewOrchestrator(cfg config.Config, raster *render.Rasterizer, extractor *extract.Extractor, log *slog.Logger) (*Orchestrator, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 1
	}
	return &Orchestrator{
		raster:    raster,
		extractor: extractor,
		opts:      opts,
		log:       log,
		cfg:       cfg,
		jobs:      NewJobStore(cfg.JobTTL),
		queue:     make(chan *Job, cfg.MaxQueueSize),
	}, nil
}

// Options returns the default conversion options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Stats returns external tool statistics.
func (o *Orchestrator) Stats() *render.ToolStats {
	return o.raster.Stats()
}

// Ensure brings outDir up to date with sourcePath using the default options.
func (o *Orchestrator) Ensure(ctx context.Context, sourcePath, outDir string) (*Result, error) {
	return o.EnsureWith(ctx, sourcePath, outDir, o.opts)
}

// Convert re-renders and re-extracts unconditionally. Unlike Ensure, a
// rasterization failure is returned as an error.
func (o *Orchestrator) Convert(ctx context.Context, sourcePath, outDir string) (*Result, error) {
	return o.ConvertWith(ctx, sourcePath, outDir, o.opts)
}

// ConvertWith is Convert with explicit options.
func (o *Orchestrator) ConvertWith(ctx context.Context, sourcePath, outDir string, opts Options) (*Result, error) {
	opts.Force = true
	res, err := o.EnsureWith(ctx, sourcePath, outDir, opts)
	if err != nil {
		return res, err
	}
	if res.RenderErr != nil {
		return res, res.RenderErr
	}
	return res, nil
}

// EnsureWith rasterizes when images are stale and extracts when the manifest
// is stale; the two checks are independent. A missing source or tool aborts
// before anything in outDir changes. A failed rasterization is recorded in
// the result and extraction still runs.
func (o *Orchestrator) EnsureWith(ctx context.Context, sourcePath, outDir string, opts Options) (*Result, error) {
	log := o.log.With("source", sourcePath, "out_dir", outDir)

	info, err := os.Stat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", deck.ErrSourceNotFound, sourcePath)
		}
		return nil, fmt.Errorf("stat source: %w", err)
	}

	unlock, err := lockDir(ctx, outDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	stale, err := checkStaleness(info, sourcePath, outDir, opts.Freshness)
	if err != nil {
		return nil, err
	}
	if opts.Force {
		stale.images, stale.notes = true, true
	}

	res := &Result{}
	if stale.images {
		log.Info("images stale, rasterizing", "strategy", opts.Strategy, "dpi", opts.DPI)
		images, err := o.raster.Rasterize(ctx, sourcePath, outDir, opts.DPI, opts.Strategy)
		switch {
		case errors.Is(err, deck.ErrSourceNotFound), errors.Is(err, deck.ErrToolMissing):
			return nil, err
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error("rasterization failed", "error", err)
			res.RenderErr = err
			res.Warnings = append(res.Warnings, err.Error())
		default:
			res.Rendered = true
		}
		res.Images = images
	}
	if res.Images == nil {
		if res.Images, err = deck.ListImages(outDir); err != nil {
			return nil, fmt.Errorf("list images: %w", err)
		}
	}

	if !stale.notes {
		res.Manifest, err = extract.ReadManifest(outDir)
		if err != nil {
			log.Warn("manifest unreadable, re-extracting", "error", err)
			stale.notes = true
		}
	}
	if stale.notes {
		manifest, report, err := o.extractor.Extract(ctx, sourcePath, outDir)
		if err != nil {
			return nil, err
		}
		res.Manifest = manifest
		res.Report = report
		res.Extracted = true
		res.Warnings = append(res.Warnings, report.Messages()...)
	}

	if opts.Freshness == FreshnessHash && res.RenderErr == nil {
		if err := writeStamp(outDir, stale.digest); err != nil {
			log.Warn("failed to write source stamp", "error", err)
		}
	}

	if len(res.Manifest) > 0 && len(res.Images) > 0 && len(res.Manifest) != len(res.Images) {
		log.Warn("manifest and image counts differ", "images", len(res.Images), "slides", len(res.Manifest))
	}
	log.Info("ensure complete", "images", len(res.Images), "slides", len(res.Manifest),
		"rendered", res.Rendered, "extracted", res.Extracted, "warnings", len(res.Warnings))
	return res, nil
}

// lockDir takes an exclusive advisory lock on <outDir>.lock, serializing
// conversions into the same directory across goroutines and processes.
func lockDir(ctx context.Context, outDir string) (func(), error) {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	return LockFile(ctx, abs+".lock")
}

// LockFile blocks until it holds an exclusive advisory lock on path or ctx is
// done. Each call opens its own handle, so two callers in one process exclude
// each other as well.
func LockFile(ctx context.Context, path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fileLock := flock.New(path)
	locked, err := fileLock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("could not acquire lock on %s", path)
	}
	return func() { fileLock.Unlock() }, nil
}

// Start launches import workers that hand each job to h.
func (o *Orchestrator) Start(ctx context.Context, h JobHandler) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	workers := o.cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	for range workers {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(h, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the workers.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		job.SetStatus(StatusFailed, "shutting_down")
		return ErrStopped
	}
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", cap(o.queue))
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
