package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/slidedeck/internal/config"
	"github.com/dgallion1/slidedeck/internal/course"
	"github.com/dgallion1/slidedeck/internal/pipeline"
)

// ElearningServer serves courses and lessons and accepts deck uploads.
type ElearningServer struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	store        *course.Store
	pages        pages
	log          *slog.Logger
	cfg          config.Config
}

func NewElearningServer(orch *pipeline.Orchestrator, store *course.Store, log *slog.Logger, cfg config.Config) (*ElearningServer, error) {
	p, err := loadPages("courses.html", "course.html", "lesson.html")
	if err != nil {
		return nil, err
	}
	s := &ElearningServer{
		orchestrator: orch,
		store:        store,
		pages:        p,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s, nil
}

func (s *ElearningServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *ElearningServer) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleCourses)
	r.Get("/courses/{id}", s.handleCourse)
	r.Get("/lessons/{id}", s.handleLesson)
	r.Handle("/static/courses/*", courseFiles(s.cfg.CoursesDir))
	r.Get("/api/courses", s.handleListCourses)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.ElearnAPIKey, s.log))

		r.Post("/api/import", s.handleImport)
		r.Get("/api/import/{jobID}/status", s.handleImportStatus)
		r.Delete("/api/courses/{id}", s.handleDeleteCourse)
		r.Get("/api/stats/tools", toolStatsHandler(s.orchestrator))
	})

	s.router = r
}

func (s *ElearningServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		jsonError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	handleHealth(w, r)
}

func (s *ElearningServer) handleCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.store.ListCourses(r.Context())
	if err != nil {
		s.log.Error("list courses failed", "error", err)
		http.Error(w, "failed to list courses", http.StatusInternalServerError)
		return
	}
	s.pages.render(w, s.log, "courses.html", map[string]any{"Courses": courses})
}

func (s *ElearningServer) handleCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	c, err := s.store.GetCourse(r.Context(), id)
	if errors.Is(err, course.ErrNotFound) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if err != nil {
		s.log.Error("get course failed", "course_id", id, "error", err)
		http.Error(w, "failed to load course", http.StatusInternalServerError)
		return
	}
	s.pages.render(w, s.log, "course.html", map[string]any{"Course": c})
}

func (s *ElearningServer) handleLesson(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	ctx := r.Context()
	l, err := s.store.GetLesson(ctx, id)
	if errors.Is(err, course.ErrNotFound) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if err != nil {
		s.log.Error("get lesson failed", "lesson_id", id, "error", err)
		http.Error(w, "failed to load lesson", http.StatusInternalServerError)
		return
	}

	prev, next, err := s.store.Neighbors(ctx, l)
	if err != nil {
		s.log.Warn("lesson navigation unavailable", "lesson_id", id, "error", err)
	}
	courseTitle := ""
	if c, err := s.store.GetCourse(ctx, l.CourseID); err == nil {
		courseTitle = c.Title
	}
	s.pages.render(w, s.log, "lesson.html", map[string]any{
		"Lesson":      l,
		"CourseTitle": courseTitle,
		"Prev":        prev,
		"Next":        next,
	})
}

func (s *ElearningServer) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, "invalid course id", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	c, err := s.store.GetCourse(ctx, id)
	if errors.Is(err, course.ErrNotFound) {
		jsonError(w, "course not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to load course: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.store.DeleteCourse(ctx, id); err != nil {
		jsonError(w, "failed to delete course: "+err.Error(), http.StatusInternalServerError)
		return
	}

	filesDeleted := false
	if dir := courseDir(s.cfg.CoursesDir, c); dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn("failed to remove course files", "dir", dir, "error", err)
		} else {
			filesDeleted = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"course_id":     id,
		"lessons":       len(c.Lessons),
		"files_deleted": filesDeleted,
	})
}

func (s *ElearningServer) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.store.ListCourses(r.Context())
	if err != nil {
		jsonError(w, "failed to list courses: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

// courseDir maps a course back to its output directory via the first
// lesson's slide path (courses/<stem>/<image>).
func courseDir(coursesDir string, c *course.Course) string {
	if len(c.Lessons) == 0 {
		return ""
	}
	parts := strings.Split(path.Clean(c.Lessons[0].SlideFilename), "/")
	if len(parts) != 3 || parts[0] != "courses" || parts[1] == ".." || parts[1] == "." {
		return ""
	}
	return filepath.Join(coursesDir, parts[1])
}

// courseFiles serves converted course images; directory listings are not exposed.
func courseFiles(dir string) http.Handler {
	fs := http.StripPrefix("/static/courses/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
