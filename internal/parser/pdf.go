package parser

import (
	"fmt"

	pdflib "github.com/ledongthuc/pdf"
)

// PDFPageCount returns the number of pages in the PDF at path.
func PDFPageCount(path string) (n int, err error) {
	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("read pdf %s: %v", path, r)
		}
	}()

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}
