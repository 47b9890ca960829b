package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseFreshness(t *testing.T) {
	tests := []struct {
		in      string
		want    Freshness
		wantErr bool
	}{
		{"", FreshnessMtime, false},
		{"MTIME", FreshnessMtime, false},
		{" hash ", FreshnessHash, false},
		{"ctime", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFreshness(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFreshness(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFreshness(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOldestModTime(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().Truncate(time.Second)
	var paths []string
	for i, age := range []time.Duration{time.Minute, time.Hour, time.Second} {
		p := filepath.Join(dir, string(rune('a'+i)))
		os.WriteFile(p, nil, 0o644)
		os.Chtimes(p, now.Add(-age), now.Add(-age))
		paths = append(paths, p)
	}
	if got := oldestModTime(paths); !got.Equal(now.Add(-time.Hour)) {
		t.Errorf("expected oldest %v, got %v", now.Add(-time.Hour), got)
	}
	if got := oldestModTime(append(paths, filepath.Join(dir, "gone"))); !got.IsZero() {
		t.Errorf("expected zero time for unreadable file, got %v", got)
	}
}

func TestStamp(t *testing.T) {
	dir := t.TempDir()
	if got := readStamp(dir); got != "" {
		t.Errorf("expected empty stamp, got %q", got)
	}
	if err := writeStamp(dir, "abc123"); err != nil {
		t.Fatal(err)
	}
	if got := readStamp(dir); got != "abc123" {
		t.Errorf("expected stamp abc123, got %q", got)
	}
}
