package render

import (
	"fmt"
	"strings"
)

// Strategy selects the external tool sequence that produces slide images.
type Strategy string

const (
	// StrategyAuto uses the PDF path for multi-slide decks and direct otherwise.
	StrategyAuto Strategy = "auto"
	// StrategyPDF renders to PDF, then rasterizes each page.
	StrategyPDF Strategy = "pdf"
	// StrategyDirect asks the renderer for images in one call.
	StrategyDirect Strategy = "direct"
)

// ParseStrategy converts a mode name into a Strategy. Empty means auto.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyPDF:
		return StrategyPDF, nil
	case StrategyDirect:
		return StrategyDirect, nil
	default:
		return "", fmt.Errorf("unknown render mode %q (want auto, pdf or direct)", s)
	}
}

// resolve picks the concrete path for auto given a slide count (0 = unknown).
func (s Strategy) resolve(slideCount int) Strategy {
	if s != StrategyAuto {
		return s
	}
	if slideCount > 1 {
		return StrategyPDF
	}
	return StrategyDirect
}
