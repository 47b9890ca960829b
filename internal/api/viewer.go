package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/slidedeck/internal/config"
	"github.com/dgallion1/slidedeck/internal/deck"
	"github.com/dgallion1/slidedeck/internal/extract"
	"github.com/dgallion1/slidedeck/internal/pipeline"
)

// ViewerServer serves a single deck as a slide list and a presentation view.
type ViewerServer struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	pages        pages
	log          *slog.Logger
	cfg          config.Config
}

type slideView struct {
	Index  int      `json:"index"`
	Image  string   `json:"image"`
	Notes  string   `json:"notes"`
	Assets []string `json:"assets"`
}

// NewViewerServer creates the viewer. The deck is converted lazily on the
// first page view and refreshed whenever the source changes.
func NewViewerServer(orch *pipeline.Orchestrator, log *slog.Logger, cfg config.Config) (*ViewerServer, error) {
	p, err := loadPages("viewer_index.html", "viewer_reveal.html")
	if err != nil {
		return nil, err
	}
	s := &ViewerServer{
		orchestrator: orch,
		pages:        p,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s, nil
}

func (s *ViewerServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *ViewerServer) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", handleHealth)
	r.Get("/", s.handleIndex)
	r.Get("/reveal", s.handleReveal)
	r.Get("/slides/{file}", s.handleSlideFile)
	r.Get("/slides/assets/{file}", s.handleAssetFile)
	r.Get("/api/slides", s.handleSlidesJSON)
	r.Get("/api/stats/tools", toolStatsHandler(s.orchestrator))
	r.Handle("/static/*", staticHandler())

	s.router = r
}

// slides ensures the deck is converted and returns what is on disk. A failed
// conversion is logged and whatever images exist are still shown.
func (s *ViewerServer) slides(r *http.Request) ([]slideView, deck.Manifest, []string) {
	var warnings []string
	opts := s.orchestrator.Options()
	opts.Force = r.URL.Query().Get("refresh") == "true"

	res, err := s.orchestrator.EnsureWith(r.Context(), s.cfg.PPTXFile, s.cfg.SlidesDir, opts)
	if err != nil {
		s.log.Warn("slide conversion unavailable", "source", s.cfg.PPTXFile, "error", err)
		warnings = append(warnings, err.Error())
	} else {
		warnings = append(warnings, res.Warnings...)
	}

	images, err := deck.ListImages(s.cfg.SlidesDir)
	if err != nil {
		s.log.Warn("list slides failed", "dir", s.cfg.SlidesDir, "error", err)
	}
	manifest, err := extract.ReadManifest(s.cfg.SlidesDir)
	if err != nil {
		s.log.Warn("read manifest failed", "dir", s.cfg.SlidesDir, "error", err)
	}

	views := make([]slideView, 0, len(images))
	for _, img := range images {
		name := filepath.Base(img)
		idx := deck.ImageIndex(name)
		v := slideView{Index: idx, Image: name, Notes: manifest.Notes(idx), Assets: []string{}}
		if idx >= 1 && idx <= len(manifest) && manifest[idx-1].Assets != nil {
			v.Assets = manifest[idx-1].Assets
		}
		views = append(views, v)
	}
	if manifest == nil {
		manifest = deck.Manifest{}
	}
	return views, manifest, warnings
}

func (s *ViewerServer) title() string {
	base := filepath.Base(s.cfg.PPTXFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (s *ViewerServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	views, _, _ := s.slides(r)
	s.pages.render(w, s.log, "viewer_index.html", map[string]any{
		"Title":  s.title(),
		"Slides": views,
	})
}

func (s *ViewerServer) handleReveal(w http.ResponseWriter, r *http.Request) {
	views, _, _ := s.slides(r)
	thumbs := r.URL.Query().Get("thumbs") != "false"

	type thumb struct {
		Index int    `json:"index"`
		Image string `json:"image"`
	}
	data := make([]thumb, len(views))
	for i, v := range views {
		data[i] = thumb{Index: v.Index, Image: v.Image}
	}
	s.pages.render(w, s.log, "viewer_reveal.html", map[string]any{
		"Title":     s.title(),
		"Slides":    views,
		"Thumbs":    thumbs,
		"ThumbData": data,
	})
}

func (s *ViewerServer) handleSlidesJSON(w http.ResponseWriter, r *http.Request) {
	views, manifest, warnings := s.slides(r)
	images := make([]string, len(views))
	for i, v := range views {
		images[i] = v.Image
	}
	if warnings == nil {
		warnings = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"images":   images,
		"manifest": manifest,
		"warnings": warnings,
	})
}

func (s *ViewerServer) handleSlideFile(w http.ResponseWriter, r *http.Request) {
	serveFileFrom(w, r, s.cfg.SlidesDir, chi.URLParam(r, "file"))
}

func (s *ViewerServer) handleAssetFile(w http.ResponseWriter, r *http.Request) {
	serveFileFrom(w, r, filepath.Join(s.cfg.SlidesDir, deck.AssetsDir), chi.URLParam(r, "file"))
}

// serveFileFrom serves a single regular file directly inside dir. Hidden files
// and anything that is not a plain base name are not found.
func serveFileFrom(w http.ResponseWriter, r *http.Request, dir, name string) {
	if name == "" || name != sanitizeFilename(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
