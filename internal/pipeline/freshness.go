package pipeline

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/slidedeck/internal/deck"
)

// Freshness selects how derived artifacts are compared against their source.
type Freshness string

const (
	// FreshnessMtime compares modification times. Touching the source forces
	// a refresh.
	FreshnessMtime Freshness = "mtime"
	// FreshnessHash compares a SHA-256 digest of the source with the one
	// stamped when the artifacts were produced.
	FreshnessHash Freshness = "hash"
)

// stampName holds the source digest in hash mode.
const stampName = ".source.sha256"

// ParseFreshness converts a policy name. Empty means mtime.
func ParseFreshness(s string) (Freshness, error) {
	switch Freshness(strings.ToLower(strings.TrimSpace(s))) {
	case "", FreshnessMtime:
		return FreshnessMtime, nil
	case FreshnessHash:
		return FreshnessHash, nil
	default:
		return "", fmt.Errorf("unknown freshness policy %q (want mtime or hash)", s)
	}
}

// staleness is the outcome of comparing outDir with the source.
type staleness struct {
	images bool
	notes  bool
	digest string // set in hash mode
}

func checkStaleness(src os.FileInfo, sourcePath, outDir string, policy Freshness) (staleness, error) {
	var s staleness

	images, err := deck.ListImages(outDir)
	if err != nil {
		return s, fmt.Errorf("list images: %w", err)
	}
	manifest, manifestErr := os.Stat(filepath.Join(outDir, deck.ManifestName))

	if policy == FreshnessHash {
		s.digest, err = fileDigest(sourcePath)
		if err != nil {
			return s, fmt.Errorf("hash source: %w", err)
		}
		changed := readStamp(outDir) != s.digest
		s.images = len(images) == 0 || changed
		s.notes = manifestErr != nil || changed
		return s, nil
	}

	s.images = len(images) == 0 || src.ModTime().After(oldestModTime(images))
	s.notes = manifestErr != nil || src.ModTime().After(manifest.ModTime())
	return s, nil
}

// oldestModTime returns the earliest modification time among paths. An
// unreadable file counts as infinitely old.
func oldestModTime(paths []string) time.Time {
	var oldest time.Time
	for i, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return time.Time{}
		}
		if i == 0 || info.ModTime().Before(oldest) {
			oldest = info.ModTime()
		}
	}
	return oldest
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func readStamp(outDir string) string {
	data, err := os.ReadFile(filepath.Join(outDir, stampName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func writeStamp(outDir, digest string) error {
	return os.WriteFile(filepath.Join(outDir, stampName), []byte(digest+"\n"), 0o644)
}
