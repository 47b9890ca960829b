package course

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dgallion1/slidedeck/internal/deck"
	"github.com/dgallion1/slidedeck/internal/parser"
	"github.com/dgallion1/slidedeck/internal/pipeline"
	"github.com/dgallion1/slidedeck/internal/render"
)

// Converter produces slide images and a manifest for a deck.
type Converter interface {
	Options() pipeline.Options
	ConvertWith(ctx context.Context, sourcePath, outDir string, opts pipeline.Options) (*pipeline.Result, error)
}

// ImportRequest describes one deck to import as a course.
type ImportRequest struct {
	SourcePath      string
	Title           string // Optional; defaults to the first slide's notes, then the file stem
	Description     string
	DescriptionDOCX string // Optional .docx handout used when Description is empty
	Stem            string // Optional course directory name; defaults to the source stem
}

// Importer converts decks into per-course output directories and records
// them in the store.
type Importer struct {
	store      *Store
	conv       Converter
	coursesDir string
	log        *slog.Logger
}

func NewImporter(store *Store, conv Converter, coursesDir string, log *slog.Logger) *Importer {
	return &Importer{store: store, conv: conv, coursesDir: coursesDir, log: log}
}

// Import wipes <coursesDir>/<stem>, converts the deck through the PDF path and
// inserts one course with one lesson per slide image.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (*Course, *pipeline.Result, error) {
	return im.importDeck(ctx, req, nil)
}

func (im *Importer) importDeck(ctx context.Context, req ImportRequest, job *pipeline.Job) (*Course, *pipeline.Result, error) {
	if _, err := os.Stat(req.SourcePath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", deck.ErrSourceNotFound, req.SourcePath)
		}
		return nil, nil, fmt.Errorf("stat source: %w", err)
	}

	stem := req.Stem
	if stem == "" {
		stem = fileStem(req.SourcePath)
	}
	outDir := filepath.Join(im.coursesDir, stem)
	log := im.log.With("source", req.SourcePath, "out_dir", outDir)

	// The wipe, the conversion and the insert run under one lock so a
	// concurrent import of the same stem cannot pull files from under it.
	// ConvertWith takes <outDir>.lock itself, hence the separate name.
	unlock, err := pipeline.LockFile(ctx, outDir+".import.lock")
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	if _, err := os.Stat(outDir); err == nil {
		log.Info("removing existing output dir")
	}
	if err := os.RemoveAll(outDir); err != nil {
		return nil, nil, fmt.Errorf("remove output dir: %w", err)
	}

	if job != nil {
		job.SetStatus(pipeline.StatusRendering, "rendering")
	}
	opts := im.conv.Options()
	opts.Strategy = render.StrategyPDF
	res, err := im.conv.ConvertWith(ctx, req.SourcePath, outDir, opts)
	if err != nil {
		return nil, res, fmt.Errorf("convert: %w", err)
	}
	if job != nil {
		job.SetSlides(len(res.Images))
		job.AddWarnings(res.Warnings...)
	}

	c := Course{Title: courseTitle(req.Title, res.Manifest, stem)}
	c.Description = req.Description
	if c.Description == "" && req.DescriptionDOCX != "" {
		text, err := parser.DOCXFileText(req.DescriptionDOCX)
		if err != nil {
			log.Warn("description handout unreadable", "path", req.DescriptionDOCX, "error", err)
		} else {
			c.Description = text
		}
	}

	lessons := make([]Lesson, 0, len(res.Images))
	for i, img := range res.Images {
		name := filepath.Base(img)
		lessons = append(lessons, Lesson{
			Title:         strings.TrimSuffix(name, filepath.Ext(name)),
			SlideFilename: path.Join("courses", stem, name),
			Notes:         res.Manifest.Notes(i + 1),
			Index:         i + 1,
		})
	}

	if job != nil {
		job.SetStatus(pipeline.StatusStoring, "storing")
	}
	id, err := im.store.CreateCourse(ctx, c, lessons)
	if err != nil {
		return nil, res, err
	}
	c.ID = id
	c.Lessons = lessons
	c.LessonCount = len(lessons)
	if job != nil {
		job.SetCourse(id, len(lessons))
	}
	log.Info("imported course", "course_id", id, "title", c.Title, "lessons", len(lessons))
	return &c, res, nil
}

// Process implements pipeline.JobHandler for uploaded decks. The upload is
// staged in a private temp directory outside the served courses tree.
func (im *Importer) Process(ctx context.Context, job *pipeline.Job) error {
	stage, err := os.MkdirTemp("", "slidedeck-upload-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stage)

	src := filepath.Join(stage, filepath.Base(job.Filename))
	if err := os.WriteFile(src, job.FileData(), 0o644); err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}

	// Uploads get a directory of their own: re-uploading a file name must not
	// overwrite the images of a course that is already stored.
	_, _, err = im.importDeck(ctx, ImportRequest{
		SourcePath:  src,
		Title:       job.Title,
		Description: job.Description,
		Stem:        uploadStem(job),
	}, job)
	return err
}

// courseTitle picks the explicit title, else the first slide's notes when
// non-empty, else the file stem.
func courseTitle(explicit string, m deck.Manifest, stem string) string {
	if t := strings.TrimSpace(explicit); t != "" {
		return t
	}
	if len(m) > 0 {
		if n := strings.TrimSpace(m[0].Notes); n != "" {
			return n
		}
	}
	return stem
}

func fileStem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func uploadStem(job *pipeline.Job) string {
	id := strings.ReplaceAll(job.ID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fileStem(job.Filename) + "-" + id
}
