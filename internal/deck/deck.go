package deck

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Deck is the structural view of a presentation: slides in document order.
type Deck struct {
	Slides []*Slide // Document order
}

// Slide is one page of a deck with its speaker notes and embedded pictures.
type Slide struct {
	Index    int        // 1-based position in the deck
	Notes    string     // Speaker notes text (empty if none)
	NotesErr error      // Set when the notes part exists but could not be read
	Err      error      // Set when the slide part itself could not be read; Pictures is then empty
	Pictures []*Picture // Picture shapes in document order
}

// Picture is an embedded image referenced by a slide shape.
type Picture struct {
	Part string // Zip part name, e.g. ppt/media/image3.png
	Ext  string // Native extension without dot, lower case
	Data []byte
	Err  error // Set when the part could not be read
}

// SlideRecord is one manifest entry.
type SlideRecord struct {
	Index  int      `json:"index"`
	Notes  string   `json:"notes"`
	Assets []string `json:"assets"`
}

// Manifest is the ordered list of slide records written to notes.json.
type Manifest []SlideRecord

const (
	ManifestName = "notes.json"
	AssetsDir    = "assets"
)

var imagePattern = regexp.MustCompile(`^slide_(\d{3})\.png$`)

// ImageName returns the strict image filename for a 1-based slide index.
func ImageName(index int) string {
	return fmt.Sprintf("slide_%03d.png", index)
}

// AssetName returns the filename for the n-th picture of a slide.
func AssetName(index, n int, ext string) string {
	return fmt.Sprintf("slide_%03d_img_%d.%s", index, n, ext)
}

// IsImageName reports whether name follows the strict slide image pattern.
func IsImageName(name string) bool {
	return imagePattern.MatchString(name)
}

// ImageIndex returns the slide index encoded in a strict image name, or 0.
func ImageIndex(name string) int {
	m := imagePattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// ListImages returns the strict-pattern images in dir, sorted by slide index.
// A missing directory yields an empty list.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsImageName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool { return ImageIndex(names[i]) < ImageIndex(names[j]) })

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// Validate checks the manifest invariants: indices start at 1 and are contiguous.
func (m Manifest) Validate() error {
	for i, rec := range m {
		if rec.Index != i+1 {
			return fmt.Errorf("manifest entry %d has index %d", i, rec.Index)
		}
	}
	return nil
}

// Notes returns the notes of slide index, or "" when absent.
func (m Manifest) Notes(index int) string {
	if index < 1 || index > len(m) {
		return ""
	}
	return m[index-1].Notes
}
