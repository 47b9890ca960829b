package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/slidedeck/internal/course"
	"github.com/dgallion1/slidedeck/internal/deck/decktest"
	"github.com/dgallion1/slidedeck/internal/pipeline"
	"github.com/dgallion1/slidedeck/internal/render/rendertest"
)

type elearningFixture struct {
	srv        *ElearningServer
	store      *course.Store
	orch       *pipeline.Orchestrator
	coursesDir string
}

func newTestElearning(t *testing.T, runner *rendertest.Runner) *elearningFixture {
	t.Helper()
	tmp := t.TempDir()
	cfg := testConfig(tmp)
	cfg.DatabasePath = filepath.Join(tmp, "elearning.db")

	store, err := course.Open(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	orch := newOrchestrator(t, cfg, runner)
	importer := course.NewImporter(store, orch, cfg.CoursesDir, quietLogger())
	orch.Start(context.Background(), importer)
	t.Cleanup(orch.Stop)

	srv, err := NewElearningServer(orch, store, quietLogger(), cfg)
	if err != nil {
		t.Fatalf("new elearning server: %v", err)
	}
	return &elearningFixture{srv: srv, store: store, orch: orch, coursesDir: cfg.CoursesDir}
}

func (f *elearningFixture) seedCourse(t *testing.T) (int64, []course.Lesson) {
	t.Helper()
	ctx := context.Background()
	id, err := f.store.CreateCourse(ctx, course.Course{Title: "Go Basics", Description: "An *intro* course"}, []course.Lesson{
		{Title: "slide_001", SlideFilename: "courses/basics/slide_001.png", Notes: "Say **hello**", Index: 1},
		{Title: "slide_002", SlideFilename: "courses/basics/slide_002.png", Notes: "", Index: 2},
		{Title: "slide_003", SlideFilename: "courses/basics/slide_003.png", Notes: "bye", Index: 3},
	})
	if err != nil {
		t.Fatalf("seed course: %v", err)
	}
	c, err := f.store.GetCourse(ctx, id)
	if err != nil {
		t.Fatalf("load seeded course: %v", err)
	}
	return id, c.Lessons
}

func uploadRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer test-key")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestElearning_CourseListEmpty(t *testing.T) {
	f := newTestElearning(t, &rendertest.Runner{})
	w := get(t, f.srv, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No courses yet.") {
		t.Error("expected empty course list")
	}
}

func TestElearning_CourseAndLessonPages(t *testing.T) {
	f := newTestElearning(t, &rendertest.Runner{})
	id, lessons := f.seedCourse(t)

	w := get(t, f.srv, "/")
	if !strings.Contains(w.Body.String(), "Go Basics") || !strings.Contains(w.Body.String(), "(3 lessons)") {
		t.Errorf("expected course in list, got %s", w.Body.String())
	}

	w = get(t, f.srv, "/courses/"+itoa(id))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<em>intro</em>") {
		t.Error("expected markdown description")
	}
	for _, l := range lessons {
		if !strings.Contains(body, `href="/lessons/`+itoa(l.ID)+`"`) {
			t.Errorf("expected link to lesson %d", l.ID)
		}
	}

	w = get(t, f.srv, "/lessons/"+itoa(lessons[0].ID))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body = w.Body.String()
	if !strings.Contains(body, "<strong>hello</strong>") {
		t.Error("expected markdown notes")
	}
	if !strings.Contains(body, `src="/static/courses/basics/slide_001.png"`) {
		t.Error("expected slide image")
	}
	if strings.Contains(body, `rel="prev"`) {
		t.Error("first lesson should have no previous link")
	}
	if !strings.Contains(body, `href="/lessons/`+itoa(lessons[1].ID)+`" rel="next"`) {
		t.Error("expected next link to second lesson")
	}

	w = get(t, f.srv, "/lessons/"+itoa(lessons[2].ID))
	body = w.Body.String()
	if !strings.Contains(body, `href="/lessons/`+itoa(lessons[1].ID)+`" rel="prev"`) {
		t.Error("expected previous link on last lesson")
	}
	if strings.Contains(body, `rel="next"`) {
		t.Error("last lesson should have no next link")
	}
}

func TestElearning_UnknownIDsRedirectHome(t *testing.T) {
	f := newTestElearning(t, &rendertest.Runner{})
	for _, target := range []string{"/courses/999", "/courses/abc", "/lessons/999", "/lessons/-1"} {
		w := get(t, f.srv, target)
		if w.Code != http.StatusFound {
			t.Errorf("%s: expected 302, got %d", target, w.Code)
			continue
		}
		if loc := w.Header().Get("Location"); loc != "/" {
			t.Errorf("%s: expected redirect to /, got %q", target, loc)
		}
	}
}

func TestElearning_AuthRequired(t *testing.T) {
	f := newTestElearning(t, &rendertest.Runner{})

	tests := []struct {
		name   string
		method string
		target string
		auth   string
	}{
		{"import no header", http.MethodPost, "/api/import", ""},
		{"import wrong key", http.MethodPost, "/api/import", "Bearer nope"},
		{"delete no header", http.MethodDelete, "/api/courses/1", ""},
		{"status basic auth", http.MethodGet, "/api/import/x/status", "Basic dGVzdA=="},
		{"tool stats", http.MethodGet, "/api/stats/tools", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			if w := serve(f.srv, req); w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestElearning_ImportUploadedDeck(t *testing.T) {
	runner := &rendertest.Runner{Pages: 2}
	f := newTestElearning(t, runner)

	data, err := decktest.Build(decktest.Deck{Slides: []decktest.Slide{{Notes: "First"}, {Notes: "Second"}}})
	if err != nil {
		t.Fatal(err)
	}
	w := serve(f.srv, uploadRequest(t, "lecture.pptx", data, map[string]string{"title": "Lecture One"}))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var accepted struct {
		JobID   string `json:"job_id"`
		Status  string `json:"status"`
		PollURL string `json:"poll_url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if accepted.Status != string(pipeline.StatusQueued) || accepted.PollURL != "/api/import/"+accepted.JobID+"/status" {
		t.Errorf("unexpected accept response %+v", accepted)
	}

	var status struct {
		Status   string `json:"status"`
		Progress struct {
			Slides   int   `json:"slides"`
			Lessons  int   `json:"lessons"`
			CourseID int64 `json:"course_id"`
		} `json:"progress"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, accepted.PollURL, nil)
		req.Header.Set("Authorization", "Bearer test-key")
		w := serve(f.srv, req)
		if w.Code != http.StatusOK {
			t.Fatalf("poll: expected 200, got %d", w.Code)
		}
		if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if status.Status == string(pipeline.StatusCompleted) || status.Status == string(pipeline.StatusFailed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, last status %q", status.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status.Status != string(pipeline.StatusCompleted) {
		t.Fatalf("expected completed job, got %q", status.Status)
	}
	if status.Progress.Lessons != 2 || status.Progress.CourseID == 0 {
		t.Errorf("unexpected progress %+v", status.Progress)
	}

	c, err := f.store.GetCourse(context.Background(), status.Progress.CourseID)
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if c.Title != "Lecture One" {
		t.Errorf("expected explicit title, got %q", c.Title)
	}
	if len(c.Lessons) != 2 || c.Lessons[1].Notes != "Second" {
		t.Errorf("unexpected lessons %+v", c.Lessons)
	}

	// Converted images are served under /static/courses.
	w = get(t, f.srv, "/static/"+c.Lessons[0].SlideFilename)
	if w.Code != http.StatusOK || w.Body.String() != "page 1" {
		t.Errorf("expected slide image, got %d %q", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(c.Lessons[0].SlideFilename, "courses/lecture-") {
		t.Errorf("expected upload directory named after the file, got %q", c.Lessons[0].SlideFilename)
	}
	if w := get(t, f.srv, "/static/"+path.Dir(c.Lessons[0].SlideFilename)+"/"); w.Code != http.StatusNotFound {
		t.Errorf("expected directory listing to be hidden, got %d", w.Code)
	}
}

func TestElearning_ImportRejectsBadUploads(t *testing.T) {
	f := newTestElearning(t, &rendertest.Runner{})

	w := serve(f.srv, uploadRequest(t, "notes.txt", []byte("hello"), nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("unsupported extension: expected 400, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("plain"))
	req.Header.Set("Authorization", "Bearer test-key")
	if w := serve(f.srv, req); w.Code != http.StatusBadRequest {
		t.Errorf("non-multipart body: expected 400, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/import/unknown/status", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	if w := serve(f.srv, req); w.Code != http.StatusNotFound {
		t.Errorf("unknown job: expected 404, got %d", w.Code)
	}
}

func TestElearning_ListAndDeleteCourse(t *testing.T) {
	f := newTestElearning(t, &rendertest.Runner{})
	id, _ := f.seedCourse(t)

	dir := filepath.Join(f.coursesDir, "basics")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "slide_001.png"), []byte("png"), 0o644)

	w := get(t, f.srv, "/api/courses")
	var list struct {
		Courses []course.Course `json:"courses"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Courses) != 1 || list.Courses[0].LessonCount != 3 {
		t.Fatalf("unexpected course list %+v", list.Courses)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/courses/"+itoa(id), nil)
	req.Header.Set("Authorization", "Bearer test-key")
	w = serve(f.srv, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected course files removed, stat err = %v", err)
	}
	if w := get(t, f.srv, "/courses/"+itoa(id)); w.Code != http.StatusFound {
		t.Errorf("expected deleted course to redirect, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/courses/"+itoa(id), nil)
	req.Header.Set("Authorization", "Bearer test-key")
	if w := serve(f.srv, req); w.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", w.Code)
	}
}

func TestElearning_Health(t *testing.T) {
	f := newTestElearning(t, &rendertest.Runner{})
	if w := get(t, f.srv, "/health"); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	f.store.Close()
	if w := get(t, f.srv, "/health"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after close, got %d", w.Code)
	}
}

func TestCourseDir(t *testing.T) {
	tests := []struct {
		slide string
		want  string
	}{
		{"courses/intro/slide_001.png", filepath.Join("root", "intro")},
		{"courses/../slide_001.png", ""},
		{"elsewhere/intro/slide_001.png", ""},
		{"courses/slide_001.png", ""},
	}
	for _, tt := range tests {
		c := &course.Course{Lessons: []course.Lesson{{SlideFilename: tt.slide}}}
		if got := courseDir("root", c); got != tt.want {
			t.Errorf("courseDir(%q) = %q, want %q", tt.slide, got, tt.want)
		}
	}
	if got := courseDir("root", &course.Course{}); got != "" {
		t.Errorf("expected empty dir for course without lessons, got %q", got)
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := string(renderMarkdown("# Title\n\n<script>alert(1)</script>"))
	if !strings.Contains(got, "<h1>Title</h1>") {
		t.Errorf("expected heading, got %q", got)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("expected raw html to be omitted, got %q", got)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
