// File: internal/reporting/markdown_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// MarkdownReporter renders each output as a markdown section as soon as it
// is written. It is safe for concurrent use.
type MarkdownReporter struct {
	writer      io.WriteCloser
	toolVersion string
	mu          sync.Mutex
	written     int
	closed      bool
}

// NewMarkdownReporter takes ownership of writer.
func NewMarkdownReporter(writer io.WriteCloser, toolVersion string) *MarkdownReporter {
	return &MarkdownReporter{writer: writer, toolVersion: toolVersion}
}

// Write renders out.
func (r *MarkdownReporter) Write(out *schemas.ScanOutput) error {
	if out == nil || out.Report == nil {
		return fmt.Errorf("cannot report an empty scan output")
	}

	var b strings.Builder
	renderMarkdown(&b, out)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("reporter already closed")
	}
	if r.written > 0 {
		if _, err := io.WriteString(r.writer, "\n---\n\n"); err != nil {
			return fmt.Errorf("failed to write markdown report: %w", err)
		}
	}
	if _, err := io.WriteString(r.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write markdown report: %w", err)
	}
	r.written++
	return nil
}

// Close appends the footer and closes the writer.
func (r *MarkdownReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var writeErr error
	if r.written > 0 {
		_, writeErr = fmt.Fprintf(r.writer, "\n_Generated by %s %s_\n", ToolName, r.toolVersion)
	}
	closeErr := r.writer.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write markdown report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close report output: %w", closeErr)
	}
	return nil
}

func renderMarkdown(b *strings.Builder, out *schemas.ScanOutput) {
	rep := out.Report
	fmt.Fprintf(b, "# Scan report: %s\n\n", orDash(rep.Subject.String()))

	b.WriteString("| Scan ID | Tier | State | Started | Duration |\n")
	b.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n\n",
		orDash(rep.ScanID), rep.Tier, rep.State,
		rep.StartedAt.UTC().Format(time.RFC3339),
		(time.Duration(rep.DurationMs) * time.Millisecond).String())

	if risk := rep.Risk; risk != nil {
		b.WriteString("## Risk\n\n")
		fmt.Fprintf(b, "**Score:** %.2f (%s)", risk.Score, risk.Level)
		if risk.Degraded {
			b.WriteString(" _degraded_")
		}
		b.WriteString("\n\n")
		if len(risk.Contributing) > 0 {
			b.WriteString("| Factor | Contribution |\n|---|---|\n")
			for _, name := range risk.Contributing {
				fmt.Fprintf(b, "| %s | %.3f |\n", name, risk.Factors[name])
			}
			b.WriteString("\n")
		}
		if len(risk.Recommendations) > 0 {
			b.WriteString("### Recommendations\n\n")
			for _, rec := range risk.Recommendations {
				fmt.Fprintf(b, "- %s\n", rec)
			}
			b.WriteString("\n")
		}
	}

	if rec := rep.Record; rec != nil {
		renderFields(b, rec)
		renderSources(b, rec)
	}
	renderPatterns(b, rep.Patterns)

	warnings := append(append([]string(nil), rep.Warnings...), out.Warnings...)
	if len(warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range warnings {
			fmt.Fprintf(b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	if narrative := strings.TrimSpace(out.Narrative); narrative != "" {
		b.WriteString("## Analysis\n\n")
		b.WriteString(narrative)
		b.WriteString("\n")
	}
}

func renderFields(b *strings.Builder, rec *schemas.ScanRecord) {
	if len(rec.MergedFields) == 0 {
		return
	}
	names := make([]string, 0, len(rec.MergedFields))
	for name := range rec.MergedFields {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("## Merged fields\n\n")
	b.WriteString("| Field | Value | Source | Trust | Conflict |\n|---|---|---|---|---|\n")
	for _, name := range names {
		f := rec.MergedFields[name]
		conflict := ""
		if f.Conflict {
			var alts []string
			for _, alt := range f.Alternates {
				alts = append(alts, fmt.Sprintf("%s: %s", alt.Source, cell(alt.Value)))
			}
			conflict = "yes (" + strings.Join(alts, "; ") + ")"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %.2f | %s |\n", name, cell(f.Value), f.Source, f.Trust, conflict)
	}
	b.WriteString("\n")
}

func renderSources(b *strings.Builder, rec *schemas.ScanRecord) {
	if len(rec.Results) == 0 {
		return
	}
	b.WriteString("## Sources\n\n")
	b.WriteString("| Source | Category | Status | Attempts | Latency | Detail |\n|---|---|---|---|---|---|\n")
	for _, id := range rec.SortedSourceIDs() {
		res := rec.Results[id]
		detail := res.Error
		if res.CacheHit {
			detail = "cached"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %d | %dms | %s |\n",
			id, res.Category, res.Status, res.Attempts, res.LatencyMs, cell(detail))
	}
	b.WriteString("\n")
}

func renderPatterns(b *strings.Builder, clusters []schemas.PatternCluster) {
	if len(clusters) == 0 {
		return
	}
	b.WriteString("## Patterns\n\n")
	b.WriteString("| Dimension | Clusters | Clustered points | Noise |\n|---|---|---|---|\n")
	for _, pc := range clusters {
		if pc.Skipped {
			fmt.Fprintf(b, "| %s | skipped | %d | %d |\n", pc.Dimension, len(pc.Members), len(pc.Noise))
			continue
		}
		fmt.Fprintf(b, "| %s | %d | %d | %d |\n", pc.Dimension, pc.ClusterCount, len(pc.Members), len(pc.Noise))
	}
	b.WriteString("\n")
}

// cell renders v for a table cell.
func cell(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = cell(item)
		}
		s = strings.Join(parts, ", ")
	default:
		s = fmt.Sprint(t)
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
