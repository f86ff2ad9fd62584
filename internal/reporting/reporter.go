// File: internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// ToolName identifies the producer in rendered reports.
const ToolName = "dialtone"

// Reporter defines the interface for writing scan outputs.
type Reporter interface {
	// Write renders a single scan output.
	Write(out *schemas.ScanOutput) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// Formats lists the accepted --format values.
var Formats = []string{"json", "markdown"}

// New creates a new reporter based on the specified format and output path.
// An empty path or "stdout" writes to standard output.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	format, err := normalizeFormat(format)
	if err != nil {
		return nil, err
	}

	if outputPath == "" || outputPath == "stdout" {
		return newReporter(format, &nopWriteCloser{os.Stdout}, toolVersion), nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}
	return newReporter(format, f, toolVersion), nil
}

// NewForWriter creates a reporter on w. Closing the reporter leaves w open.
func NewForWriter(format string, w io.Writer, toolVersion string) (Reporter, error) {
	format, err := normalizeFormat(format)
	if err != nil {
		return nil, err
	}
	return newReporter(format, &nopWriteCloser{w}, toolVersion), nil
}

func normalizeFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "json", "":
		return "json", nil
	case "markdown", "md":
		return "markdown", nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func newReporter(format string, w io.WriteCloser, toolVersion string) Reporter {
	if format == "markdown" {
		return NewMarkdownReporter(w, toolVersion)
	}
	return NewJSONReporter(w, toolVersion)
}
