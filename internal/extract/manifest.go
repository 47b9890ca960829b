package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgallion1/slidedeck/internal/deck"
)

// WriteManifest atomically writes m to dir/notes.json (temp file, sync, rename).
func WriteManifest(dir string, m deck.Manifest) error {
	if m == nil {
		m = deck.Manifest{}
	}
	for i := range m {
		if m[i].Assets == nil {
			m[i].Assets = []string{}
		}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".notes-*.json")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, deck.ManifestName)); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// ReadManifest loads dir/notes.json. A missing manifest yields an empty one.
func ReadManifest(dir string) (deck.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, deck.ManifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return deck.Manifest{}, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m deck.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}
