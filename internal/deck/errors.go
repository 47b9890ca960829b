package deck

import "errors"

var (
	// ErrSourceNotFound means the presentation file does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrToolMissing means a required external binary could not be located.
	ErrToolMissing = errors.New("tool missing")

	// ErrConversionFailed means an external process exited non-zero or left no output.
	ErrConversionFailed = errors.New("conversion failed")

	// ErrExtractionDegraded marks non-fatal extraction problems.
	ErrExtractionDegraded = errors.New("extraction degraded")
)
