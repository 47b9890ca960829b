package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/slidedeck/internal/config"
	"github.com/dgallion1/slidedeck/internal/deck/decktest"
	"github.com/dgallion1/slidedeck/internal/extract"
	"github.com/dgallion1/slidedeck/internal/pipeline"
	"github.com/dgallion1/slidedeck/internal/render"
	"github.com/dgallion1/slidedeck/internal/render/rendertest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(tmp string) config.Config {
	return config.Config{
		PPTXFile:       filepath.Join(tmp, "talk.pptx"),
		SlidesDir:      filepath.Join(tmp, "slides"),
		CoursesDir:     filepath.Join(tmp, "courses"),
		ElearnAPIKey:   "test-key",
		SlideDPI:       150,
		RenderMode:     "pdf",
		Freshness:      "mtime",
		WorkerCount:    1,
		MaxQueueSize:   4,
		MaxUploadBytes: 10 << 20,
		JobTTL:         time.Hour,
	}
}

func newOrchestrator(t *testing.T, cfg config.Config, runner *rendertest.Runner) *pipeline.Orchestrator {
	t.Helper()
	log := quietLogger()
	raster := render.NewRasterizer(render.Tools{}, runner, nil, log)
	orch, err := pipeline.NewOrchestrator(cfg, raster, extract.NewExtractor(log), log)
	if err != nil {
		t.Fatal(err)
	}
	return orch
}

func newTestViewer(t *testing.T, runner *rendertest.Runner, slides int) (*ViewerServer, config.Config) {
	t.Helper()
	tmp := t.TempDir()
	cfg := testConfig(tmp)
	if slides > 0 {
		decktest.Write(t, cfg.PPTXFile, decktest.Deck{Slides: []decktest.Slide{
			{Notes: "**Welcome** to the talk", Pictures: []decktest.Picture{{Ext: "png", Data: []byte("logo")}}},
			{Notes: "second"},
			{Notes: "third"},
		}[:slides]})
		past := time.Now().Add(-time.Hour)
		os.Chtimes(cfg.PPTXFile, past, past)
	}
	srv, err := NewViewerServer(newOrchestrator(t, cfg, runner), quietLogger(), cfg)
	if err != nil {
		t.Fatalf("new viewer: %v", err)
	}
	return srv, cfg
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestViewer_IndexConvertsAndLists(t *testing.T) {
	runner := &rendertest.Runner{Pages: 3}
	srv, _ := newTestViewer(t, runner, 3)

	w := get(t, srv, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`id="open-reveal"`,
		"openReveal.href = `/reveal?thumbs=${thumbs ?",
		`src="/slides/slide_001.png"`,
		`src="/slides/slide_003.png"`,
		"<strong>Welcome</strong> to the talk",
		`href="/slides/assets/slide_001_img_1.png"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q", want)
		}
	}

	// A second view does not reconvert.
	calls := runner.CallCount()
	get(t, srv, "/")
	if runner.CallCount() != calls {
		t.Errorf("expected no reconversion, got %d new calls", runner.CallCount()-calls)
	}
}

func TestViewer_IndexWithoutSourceIsEmpty(t *testing.T) {
	srv, _ := newTestViewer(t, &rendertest.Runner{}, 0)

	w := get(t, srv, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for missing source, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No slides available") {
		t.Error("expected empty slide list message")
	}
}

func TestViewer_IndexWithMissingToolIsEmpty(t *testing.T) {
	srv, _ := newTestViewer(t, &rendertest.Runner{Missing: map[string]bool{"soffice": true}}, 2)

	w := get(t, srv, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when tools are missing, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No slides available") {
		t.Error("expected empty slide list message")
	}
}

func TestViewer_Reveal(t *testing.T) {
	srv, _ := newTestViewer(t, &rendertest.Runner{Pages: 2}, 2)

	tests := []struct {
		target     string
		wantThumbs bool
	}{
		{"/reveal?thumbs=true", true},
		{"/reveal", true},
		{"/reveal?thumbs=false", false},
	}
	for _, tt := range tests {
		w := get(t, srv, tt.target)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tt.target, w.Code)
		}
		body := w.Body.String()
		if got := strings.Contains(body, `<div id="thumbs">`); got != tt.wantThumbs {
			t.Errorf("%s: thumbs strip present = %v, want %v", tt.target, got, tt.wantThumbs)
		}
		if !strings.Contains(body, `src="/slides/slide_002.png"`) {
			t.Errorf("%s: expected slide 2 section", tt.target)
		}
	}
}

func TestViewer_SlidesJSON(t *testing.T) {
	srv, _ := newTestViewer(t, &rendertest.Runner{Pages: 2}, 2)

	w := get(t, srv, "/api/slides")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Images   []string `json:"images"`
		Manifest []struct {
			Index int    `json:"index"`
			Notes string `json:"notes"`
		} `json:"manifest"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Images) != 2 || resp.Images[0] != "slide_001.png" {
		t.Errorf("unexpected images %v", resp.Images)
	}
	if len(resp.Manifest) != 2 || resp.Manifest[1].Notes != "second" {
		t.Errorf("unexpected manifest %+v", resp.Manifest)
	}
}

func TestViewer_ServesFiles(t *testing.T) {
	srv, _ := newTestViewer(t, &rendertest.Runner{Pages: 1}, 1)
	get(t, srv, "/")

	tests := []struct {
		target string
		code   int
		body   string
	}{
		{"/slides/slide_001.png", http.StatusOK, "page 1"},
		{"/slides/assets/slide_001_img_1.png", http.StatusOK, "logo"},
		{"/slides/notes.json", http.StatusOK, ""},
		{"/slides/missing.png", http.StatusNotFound, ""},
		{"/slides/..%2Ftalk.pptx", http.StatusNotFound, ""},
		{"/slides/.talk", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		w := get(t, srv, tt.target)
		if w.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.code, w.Code)
			continue
		}
		if tt.body != "" && w.Body.String() != tt.body {
			t.Errorf("%s: expected body %q, got %q", tt.target, tt.body, w.Body.String())
		}
	}
}

func TestViewer_StaticScript(t *testing.T) {
	srv, _ := newTestViewer(t, &rendertest.Runner{}, 0)
	w := get(t, srv, "/static/js/reveal-thumbs.js")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "window.slideThumbs") {
		t.Error("expected thumbs script")
	}
}

func TestViewer_HealthAndStats(t *testing.T) {
	srv, _ := newTestViewer(t, &rendertest.Runner{Pages: 2}, 2)
	get(t, srv, "/")

	if w := get(t, srv, "/health"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response %d %s", w.Code, w.Body.String())
	}

	w := get(t, srv, "/api/stats/tools")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Total int                       `json:"total"`
		Tools map[string]map[string]any `json:"tools"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("expected 2 recorded tool runs, got %d", resp.Total)
	}
	if _, ok := resp.Tools["pdftoppm"]; !ok {
		t.Errorf("expected pdftoppm stats, got %v", resp.Tools)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"deck.pptx", "deck.pptx"},
		{"../../etc/passwd", "passwd"},
		{"a..b.pptx", "a_b.pptx"},
		{"", "unnamed"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
