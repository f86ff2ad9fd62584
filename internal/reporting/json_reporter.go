// File: internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// Document is the top level JSON written by JSONReporter.
type Document struct {
	Tool        string                `json:"tool"`
	Version     string                `json:"version"`
	GeneratedAt time.Time             `json:"generated_at"`
	Scans       []*schemas.ScanOutput `json:"scans"`
}

// JSONReporter buffers outputs and writes one document on Close. It is
// safe for concurrent use.
type JSONReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
	doc    Document
	closed bool
	now    func() time.Time
}

// NewJSONReporter takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		doc: Document{
			Tool:    ToolName,
			Version: toolVersion,
			// Initialize empty slices (not nil) for proper JSON marshalling.
			Scans: []*schemas.ScanOutput{},
		},
		now: time.Now,
	}
}

// Write queues out for the final document.
func (r *JSONReporter) Write(out *schemas.ScanOutput) error {
	if out == nil || out.Report == nil {
		return fmt.Errorf("cannot report an empty scan output")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("reporter already closed")
	}
	r.doc.Scans = append(r.doc.Scans, out)
	return nil
}

// Close encodes the document and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.doc.GeneratedAt = r.now().UTC()

	enc := json.ConfigCompatibleWithStandardLibrary.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	encodeErr := enc.Encode(r.doc)
	closeErr := r.writer.Close()
	if encodeErr != nil {
		return fmt.Errorf("failed to encode JSON report: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close report output: %w", closeErr)
	}
	return nil
}
