package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "SLIDE_DPI", "RENDER_MODE", "FRESHNESS", "TOOL_TIMEOUT", "WORKER_COUNT", "JOB_TTL", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	if cfg.Port != "8000" {
		t.Errorf("expected port 8000, got %q", cfg.Port)
	}
	if cfg.SlideDPI != 150 {
		t.Errorf("expected dpi 150, got %d", cfg.SlideDPI)
	}
	if cfg.RenderMode != "auto" {
		t.Errorf("expected auto render mode, got %q", cfg.RenderMode)
	}
	if cfg.Freshness != "mtime" {
		t.Errorf("expected mtime freshness, got %q", cfg.Freshness)
	}
	if cfg.ToolTimeout != 0 {
		t.Errorf("expected no tool timeout, got %s", cfg.ToolTimeout)
	}
	if cfg.RendererBin != "soffice" || cfg.RasterizerBin != "pdftoppm" {
		t.Errorf("unexpected tool defaults %q %q", cfg.RendererBin, cfg.RasterizerBin)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("expected info log level, got %v", cfg.LogLevel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SLIDE_DPI", "300")
	t.Setenv("RENDER_MODE", "PDF")
	t.Setenv("TOOL_TIMEOUT", "90s")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.SlideDPI != 300 {
		t.Errorf("expected dpi 300, got %d", cfg.SlideDPI)
	}
	if cfg.RenderMode != "pdf" {
		t.Errorf("expected lower-cased render mode, got %q", cfg.RenderMode)
	}
	if cfg.ToolTimeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %s", cfg.ToolTimeout)
	}
	if cfg.WorkerCount != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.WorkerCount)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug log level, got %v", cfg.LogLevel)
	}
}

func TestLoad_ClampsInvalidValues(t *testing.T) {
	t.Setenv("SLIDE_DPI", "-5")
	t.Setenv("WORKER_COUNT", "0")
	t.Setenv("MAX_QUEUE_SIZE", "nope")
	t.Setenv("TOOL_TIMEOUT", "-1s")

	cfg := Load()
	if cfg.SlideDPI != 150 {
		t.Errorf("expected dpi clamped to 150, got %d", cfg.SlideDPI)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("expected worker count clamped to 2, got %d", cfg.WorkerCount)
	}
	if cfg.MaxQueueSize != 20 {
		t.Errorf("expected default queue size, got %d", cfg.MaxQueueSize)
	}
	if cfg.ToolTimeout != 0 {
		t.Errorf("expected negative timeout clamped to 0, got %s", cfg.ToolTimeout)
	}
}

func TestValidateViewer(t *testing.T) {
	base := Config{PPTXFile: "deck.pptx", SlidesDir: "slides", RenderMode: "auto", Freshness: "mtime"}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing source", func(c *Config) { c.PPTXFile = "" }, "PPTX_FILE"},
		{"bad mode", func(c *Config) { c.RenderMode = "svg" }, "RENDER_MODE"},
		{"bad freshness", func(c *Config) { c.Freshness = "ctime" }, "FRESHNESS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.ValidateViewer()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateElearning(t *testing.T) {
	cfg := Config{DatabasePath: "e.db", CoursesDir: "courses", RenderMode: "pdf", Freshness: "hash"}
	if err := cfg.ValidateElearning(); err == nil || !strings.Contains(err.Error(), "ELEARN_API_KEY") {
		t.Errorf("expected missing API key error, got %v", err)
	}
	cfg.ElearnAPIKey = "secret"
	if err := cfg.ValidateElearning(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
