// Package rendertest provides a fake Runner that emulates the office renderer
// and the PDF rasterizer by writing placeholder files.
package rendertest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Runner is a fake render.Runner.
type Runner struct {
	// Pages is the number of pages the rasterizer emits.
	Pages int
	// Missing lists tool names LookPath cannot find.
	Missing map[string]bool
	// Fail names a tool (base name) whose invocations exit non-zero.
	Fail string
	// DirectOutputs are the file names written for a direct png conversion.
	// Defaults to <stem>.png.
	DirectOutputs []string
	// PDFName overrides the name of the PDF the renderer writes.
	PDFName string
	// SkipPDF makes the renderer exit 0 without writing a PDF.
	SkipPDF bool

	mu    sync.Mutex
	calls [][]string
}

func (f *Runner) LookPath(file string) (string, error) {
	if f.Missing[file] {
		return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
	}
	return filepath.Join("/usr/bin", file), nil
}

func (f *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	tool := filepath.Base(name)
	if f.Fail == tool {
		return []byte(tool + ": simulated failure"), fmt.Errorf("exit status 1")
	}

	if format := argAfter(args, "--convert-to"); format != "" {
		outDir := argAfter(args, "--outdir")
		src := args[len(args)-1]
		stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		switch format {
		case "pdf":
			if f.SkipPDF {
				return nil, nil
			}
			pdf := f.PDFName
			if pdf == "" {
				pdf = stem + ".pdf"
			}
			return nil, os.WriteFile(filepath.Join(outDir, pdf), []byte("%PDF-fake"), 0o644)
		case "png":
			outputs := f.DirectOutputs
			if len(outputs) == 0 {
				outputs = []string{stem + ".png"}
			}
			for _, o := range outputs {
				if err := os.WriteFile(filepath.Join(outDir, o), []byte("direct "+o), 0o644); err != nil {
					return nil, err
				}
			}
			return nil, nil
		}
		return nil, fmt.Errorf("unsupported format %s", format)
	}

	// pdftoppm -png -r <dpi> <pdf> <prefix>; pads numbers to the page count width.
	if len(args) < 2 {
		return nil, fmt.Errorf("bad rasterizer args %v", args)
	}
	if _, err := os.Stat(args[len(args)-2]); err != nil {
		return nil, err
	}
	prefix := args[len(args)-1]
	width := len(strconv.Itoa(f.Pages))
	for i := 1; i <= f.Pages; i++ {
		name := fmt.Sprintf("%s-%0*d.png", prefix, width, i)
		if err := os.WriteFile(name, []byte(fmt.Sprintf("page %d", i)), 0o644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// Calls returns the recorded invocations.
func (f *Runner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of recorded invocations.
func (f *Runner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
