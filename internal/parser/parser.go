package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgallion1/slidedeck/internal/deck"
)

// StructureReader reads the slide structure (notes, pictures) of a presentation.
type StructureReader interface {
	Read(path string) (*deck.Deck, error)
}

// ErrNoStructureReader is returned for presentation formats the renderer
// accepts but whose structure cannot be read here.
var ErrNoStructureReader = errors.New("no structure reader for format")

// SupportedExtensions lists presentation formats the renderer can convert.
var SupportedExtensions = map[string]bool{
	".pptx": true,
	".pptm": true,
	".ppsx": true,
	".ppt":  true,
	".pps":  true,
	".odp":  true,
}

// ForFile returns the structure reader for a presentation filename.
func ForFile(filename string) (StructureReader, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pptx", ".pptm", ".ppsx":
		return &PPTXReader{}, nil
	case ".ppt", ".pps", ".odp":
		return nil, fmt.Errorf("%w: %s", ErrNoStructureReader, ext)
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// SlideCount returns the number of slides in a presentation using a cheap
// structural read. It returns 0 when the count cannot be determined.
func SlideCount(path string) int {
	r, err := ForFile(path)
	if err != nil {
		return 0
	}
	pr, ok := r.(*PPTXReader)
	if !ok {
		return 0
	}
	n, err := pr.SlideCount(path)
	if err != nil {
		return 0
	}
	return n
}
