package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Viewer
	PPTXFile  string
	SlidesDir string

	// E-learning
	CoursesDir   string
	DatabasePath string
	ElearnAPIKey string

	// Rendering
	RendererBin   string
	RasterizerBin string
	SlideDPI      int
	RenderMode    string
	ToolTimeout   time.Duration
	Freshness     string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	LogLevel slog.Level
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set take precedence.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port: envOr("PORT", "8000"),

		PPTXFile:  os.Getenv("PPTX_FILE"),
		SlidesDir: envOr("SLIDES_DIR", "static/slides"),

		CoursesDir:   envOr("COURSES_DIR", "static/courses"),
		DatabasePath: envOr("ELEARN_DB", "elearning.db"),
		ElearnAPIKey: os.Getenv("ELEARN_API_KEY"),

		RendererBin:   envOr("RENDERER_BIN", "soffice"),
		RasterizerBin: envOr("RASTERIZER_BIN", "pdftoppm"),
		SlideDPI:      envInt("SLIDE_DPI", 150),
		RenderMode:    strings.ToLower(envOr("RENDER_MODE", "auto")),
		ToolTimeout:   envDuration("TOOL_TIMEOUT", 0),
		Freshness:     strings.ToLower(envOr("FRESHNESS", "mtime")),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 20),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 104857600), // 100MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		LogLevel: parseLogLevel(os.Getenv("LOG_LEVEL")),
	}

	if cfg.SlideDPI <= 0 {
		cfg.SlideDPI = 150
	}
	if cfg.ToolTimeout < 0 {
		cfg.ToolTimeout = 0
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 20
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) validateRendering() error {
	switch c.RenderMode {
	case "auto", "pdf", "direct":
	default:
		return fmt.Errorf("RENDER_MODE must be auto, pdf or direct, got %q", c.RenderMode)
	}
	switch c.Freshness {
	case "mtime", "hash":
	default:
		return fmt.Errorf("FRESHNESS must be mtime or hash, got %q", c.Freshness)
	}
	return nil
}

// ValidateViewer checks the settings the single-deck viewer needs.
func (c Config) ValidateViewer() error {
	if c.PPTXFile == "" {
		return fmt.Errorf("PPTX_FILE is required")
	}
	if c.SlidesDir == "" {
		return fmt.Errorf("SLIDES_DIR is required")
	}
	return c.validateRendering()
}

// ValidateElearning checks the settings the course site needs.
func (c Config) ValidateElearning() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("ELEARN_DB is required")
	}
	if c.CoursesDir == "" {
		return fmt.Errorf("COURSES_DIR is required")
	}
	if c.ElearnAPIKey == "" {
		return fmt.Errorf("ELEARN_API_KEY is required")
	}
	return c.validateRendering()
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
