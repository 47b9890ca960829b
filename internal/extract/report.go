package extract

import (
	"fmt"
	"strings"
)

// Warning is one non-fatal extraction problem. Slide and Shape are 1-based;
// zero means the warning is not tied to a slide or shape.
type Warning struct {
	Slide int    `json:"slide,omitempty"`
	Shape int    `json:"shape,omitempty"`
	Msg   string `json:"message"`
}

func (w Warning) String() string {
	var b strings.Builder
	if w.Slide > 0 {
		fmt.Fprintf(&b, "slide %d: ", w.Slide)
	}
	if w.Shape > 0 {
		fmt.Fprintf(&b, "picture %d: ", w.Shape)
	}
	b.WriteString(w.Msg)
	return b.String()
}

// Report summarizes an extraction run.
type Report struct {
	Slides   int       `json:"slides"`
	Assets   int       `json:"assets"`
	Degraded bool      `json:"degraded"`
	Warnings []Warning `json:"warnings"`
}

func (r *Report) warn(slide, shape int, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{Slide: slide, Shape: shape, Msg: fmt.Sprintf(format, args...)})
}

// Messages returns the warnings as plain strings.
func (r *Report) Messages() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.String()
	}
	return out
}
