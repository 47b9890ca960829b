package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgallion1/slidedeck/internal/deck"
	"github.com/dgallion1/slidedeck/internal/parser"
)

// Extractor pulls speaker notes and embedded pictures out of a presentation
// and writes them as assets/ plus notes.json.
type Extractor struct {
	log *slog.Logger
}

func NewExtractor(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{log: log}
}

// Extract reads sourcePath and replaces outDir's manifest and assets.
// Unreadable structure degrades to an empty manifest; only a missing source,
// cancellation or a failure to write the manifest is returned as an error.
func (e *Extractor) Extract(ctx context.Context, sourcePath, outDir string) (deck.Manifest, *Report, error) {
	log := e.log.With("source", sourcePath, "out_dir", outDir)

	if _, err := os.Stat(sourcePath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", deck.ErrSourceNotFound, sourcePath)
		}
		return nil, nil, fmt.Errorf("stat source: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create output dir: %w", err)
	}

	report := &Report{}
	manifest := deck.Manifest{}

	d, err := readDeck(sourcePath)
	if err != nil {
		log.Warn("structure unavailable, writing empty manifest", "error", err)
		report.Degraded = true
		report.warn(0, 0, "%v: %v", deck.ErrExtractionDegraded, err)
		d = &deck.Deck{}
	}

	// Assets are written to a staging directory and swapped in only once every
	// slide has been processed, so a cancelled run leaves the previous set.
	stage, err := os.MkdirTemp(outDir, ".assets-")
	if err != nil {
		return nil, report, fmt.Errorf("create assets staging dir: %w", err)
	}
	defer os.RemoveAll(stage)
	if err := os.Chmod(stage, 0o755); err != nil {
		return nil, report, fmt.Errorf("chmod assets staging dir: %w", err)
	}

	for _, slide := range d.Slides {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}

		rec := deck.SlideRecord{Index: slide.Index, Notes: slide.Notes, Assets: []string{}}
		if slide.NotesErr != nil {
			rec.Notes = ""
			report.warn(slide.Index, 0, "notes unreadable: %v", slide.NotesErr)
		}
		if slide.Err != nil {
			report.warn(slide.Index, 0, "%v: slide unreadable: %v", deck.ErrExtractionDegraded, slide.Err)
		}

		n := 0
		for k, pic := range slide.Pictures {
			if pic.Err != nil {
				report.warn(slide.Index, k+1, "picture unreadable: %v", pic.Err)
				continue
			}
			n++
			name := deck.AssetName(slide.Index, n, pic.Ext)
			if err := os.WriteFile(filepath.Join(stage, name), pic.Data, 0o644); err != nil {
				report.warn(slide.Index, k+1, "write %s: %v", name, err)
				continue
			}
			rec.Assets = append(rec.Assets, name)
			report.Assets++
		}
		manifest = append(manifest, rec)
	}
	report.Slides = len(manifest)
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	// Assets go in before the manifest: a failed manifest write leaves the
	// manifest stale, so the next ensure re-extracts.
	assetsDir := filepath.Join(outDir, deck.AssetsDir)
	if err := os.RemoveAll(assetsDir); err != nil {
		return nil, report, fmt.Errorf("clear assets: %w", err)
	}
	if err := os.Rename(stage, assetsDir); err != nil {
		return nil, report, fmt.Errorf("install assets: %w", err)
	}
	if err := WriteManifest(outDir, manifest); err != nil {
		return nil, report, err
	}
	for _, w := range report.Warnings {
		log.Warn("extraction warning", "slide", w.Slide, "picture", w.Shape, "message", w.Msg)
	}
	log.Info("extraction complete", "slides", report.Slides, "assets", report.Assets, "warnings", len(report.Warnings))
	return manifest, report, nil
}

func readDeck(path string) (*deck.Deck, error) {
	r, err := parser.ForFile(path)
	if err != nil {
		return nil, err
	}
	return r.Read(path)
}
