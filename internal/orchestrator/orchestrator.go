// File: internal/orchestrator/orchestrator.go
// Description: Manages the lifecycle of a single scan. It is injected with
// fully configured components via interfaces so each stage can be replaced in tests.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/observability"
)

// scanNamespace seeds the name-based scan IDs.
var scanNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/xkilldash9x/dialtone/scan"))

// SubjectNormalizer canonicalizes raw input.
type SubjectNormalizer interface {
	Normalize(raw string) (schemas.SubjectIdentifier, error)
}

// RecordDispatcher queries the sources of a tier.
type RecordDispatcher interface {
	Dispatch(ctx context.Context, tier schemas.Tier, subject schemas.SubjectIdentifier) (*schemas.ScanRecord, error)
}

// RecordMerger fills the merged fields and observations of a record.
type RecordMerger interface {
	Merge(rec *schemas.ScanRecord) *schemas.ScanRecord
}

// RiskScorer derives the composite risk of a record.
type RiskScorer interface {
	Score(rec *schemas.ScanRecord) *schemas.RiskAssessment
}

// PatternAnalyzer clusters the observations of a record.
type PatternAnalyzer interface {
	Analyze(rec *schemas.ScanRecord, dims []schemas.PatternDimension) []schemas.PatternCluster
}

// Components bundles the stages of a scan. Narrator and Metrics are optional.
type Components struct {
	Normalizer SubjectNormalizer
	Dispatcher RecordDispatcher
	Aggregator RecordMerger
	Scorer     RiskScorer
	Analyzer   PatternAnalyzer
	Narrator   schemas.ReportGenerator
	Metrics    *observability.Metrics
}

// Orchestrator runs scans through the state machine
// created → normalizing → dispatching → aggregating → scoring → completed.
type Orchestrator struct {
	logger *zap.Logger
	c      Components
	now    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides time.Now for scan timestamps and durations.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// New creates a new Orchestrator.
func New(logger *zap.Logger, c Components, opts ...Option) (*Orchestrator, error) {
	if logger == nil ||
		c.Normalizer == nil ||
		c.Dispatcher == nil ||
		c.Aggregator == nil ||
		c.Scorer == nil ||
		c.Analyzer == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		logger: logger.Named("orchestrator"),
		c:      c,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// DimensionsForTier returns the pattern dimensions analyzed at tier. Basic
// scans only score risk.
func DimensionsForTier(tier schemas.Tier) []schemas.PatternDimension {
	switch tier {
	case schemas.TierDeep:
		return []schemas.PatternDimension{schemas.DimensionTemporal, schemas.DimensionGeographic}
	case schemas.TierComprehensive:
		return append([]schemas.PatternDimension(nil), schemas.AllDimensions...)
	default:
		return nil
	}
}

// NewScanID derives a stable ID from the subject and start time.
func NewScanID(subject schemas.SubjectIdentifier, startedAt time.Time) string {
	name := subject.String() + "|" + startedAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(scanNamespace, []byte(name)).String()
}

// allowed lists the legal transitions of the scan state machine.
var allowed = map[schemas.ScanState][]schemas.ScanState{
	schemas.StateCreated:     {schemas.StateNormalizing},
	schemas.StateNormalizing: {schemas.StateDispatching, schemas.StateFailed},
	schemas.StateDispatching: {schemas.StateAggregating},
	schemas.StateAggregating: {schemas.StateScoring},
	schemas.StateScoring:     {schemas.StateCompleted},
}

// scan carries the mutable state of one run until the report is returned.
type scan struct {
	report *schemas.ScanReport
	logger *zap.Logger
}

func (s *scan) transition(to schemas.ScanState) {
	from := s.report.State
	for _, next := range allowed[from] {
		if next == to {
			s.report.State = to
			s.logger.Debug("Scan state transition", zap.String("from", string(from)), zap.String("to", string(to)))
			return
		}
	}
	// Only reachable through a programming error in Scan.
	panic(fmt.Sprintf("illegal scan state transition %s -> %s", from, to))
}

// Scan runs one subject through every stage enabled for tier. The only
// error it returns is a ValidationError, alongside a report in the failed
// state. Source failures are folded into the report.
func (o *Orchestrator) Scan(ctx context.Context, raw string, tier schemas.Tier) (report *schemas.ScanReport, err error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("unsupported scan tier %q", tier.String())
	}

	startedAt := o.now().UTC()
	s := &scan{
		report: &schemas.ScanReport{
			Tier:      tier,
			State:     schemas.StateCreated,
			StartedAt: startedAt,
		},
		logger: o.logger.With(zap.String("tier", tier.String())),
	}

	ctx, span := observability.StartOperation(ctx, "orchestrator.Scan", attribute.String("scan.tier", tier.String()))
	defer func() {
		elapsed := o.now().Sub(startedAt)
		report.DurationMs = elapsed.Milliseconds()
		level := ""
		if report.Risk != nil {
			level = string(report.Risk.Level)
		}
		o.c.Metrics.ObserveScan(tier.String(), string(report.State), level, elapsed)
		observability.FinishOperation(span, err,
			attribute.String("scan.id", report.ScanID),
			attribute.String("scan.state", string(report.State)))
	}()

	// -- Normalizing --
	s.transition(schemas.StateNormalizing)
	subject, err := o.c.Normalizer.Normalize(raw)
	if err != nil {
		s.transition(schemas.StateFailed)
		s.logger.Warn("Subject failed validation", zap.String("input", raw), zap.Error(err))
		return s.report, err
	}
	s.report.Subject = subject
	s.report.ScanID = NewScanID(subject, startedAt)
	s.logger = s.logger.With(zap.String("scan_id", s.report.ScanID), zap.String("subject", subject.String()))
	s.logger.Info("Scan started")

	// -- Dispatching --
	s.transition(schemas.StateDispatching)
	rec, err := o.c.Dispatcher.Dispatch(ctx, tier, subject)
	if err != nil {
		// The normalizer already vetted the subject, so this is a wiring fault.
		return s.report, fmt.Errorf("dispatch failed for %s: %w", subject, err)
	}

	// -- Aggregating --
	s.transition(schemas.StateAggregating)
	rec = o.c.Aggregator.Merge(rec)
	s.report.Record = rec

	// -- Scoring --
	s.transition(schemas.StateScoring)
	s.report.Risk = o.c.Scorer.Score(rec)
	if dims := DimensionsForTier(tier); len(dims) > 0 {
		s.report.Patterns = o.c.Analyzer.Analyze(rec, dims)
	}
	s.report.Warnings = recordWarnings(rec, s.report.Risk)

	s.transition(schemas.StateCompleted)
	counts := rec.StatusCounts()
	s.logger.Info("Scan completed",
		zap.Int("sources", len(rec.Results)),
		zap.Int("succeeded", counts[schemas.StatusSuccess]),
		zap.Int("timed_out", counts[schemas.StatusTimeout]),
		zap.Int("failed", counts[schemas.StatusError]),
		zap.Int("rate_limited", counts[schemas.StatusRateLimited]),
		zap.Float64("risk_score", s.report.Risk.Score),
		zap.String("risk_level", string(s.report.Risk.Level)))
	return s.report, nil
}

// Narrate wraps report into the CLI output, adding a narrative when a
// generator is configured and the report completed. A generation failure
// becomes a warning; the report itself is never modified.
func (o *Orchestrator) Narrate(ctx context.Context, report *schemas.ScanReport) *schemas.ScanOutput {
	out := &schemas.ScanOutput{Report: report}
	if report == nil || report.State != schemas.StateCompleted || o.c.Narrator == nil {
		return out
	}

	ctx, span := observability.StartOperation(ctx, "orchestrator.Narrate", attribute.String("scan.id", report.ScanID))
	narrative, err := o.c.Narrator.Generate(ctx, report)
	if err != nil {
		genErr := &schemas.GenerationError{Err: err}
		o.logger.Warn("Narrative generation failed", zap.String("scan_id", report.ScanID), zap.Error(err))
		out.Warnings = append(out.Warnings, genErr.Error())
		o.c.Metrics.ObserveNarrative(genErr)
		observability.FinishOperation(span, genErr)
		return out
	}

	out.Narrative = narrative
	o.c.Metrics.ObserveNarrative(nil)
	observability.FinishOperation(span, nil)
	return out
}

// recordWarnings lists the soft problems worth surfacing next to a report.
func recordWarnings(rec *schemas.ScanRecord, risk *schemas.RiskAssessment) []string {
	var warnings []string

	var conflicts []string
	for name, f := range rec.MergedFields {
		if f.Conflict {
			conflicts = append(conflicts, name)
		}
	}
	sort.Strings(conflicts)
	for _, name := range conflicts {
		warnings = append(warnings, fmt.Sprintf("sources disagree on %s", name))
	}

	counts := rec.StatusCounts()
	if total := len(rec.Results); total > 0 && counts[schemas.StatusSuccess] == 0 {
		warnings = append(warnings, fmt.Sprintf("all %d sources failed", total))
	}
	if risk != nil && risk.Degraded {
		warnings = append(warnings, "risk score degraded: no factor could be computed")
	}
	return warnings
}

// IsValidationError reports whether err should stop the CLI with a
// non-zero exit code.
func IsValidationError(err error) bool { return errors.Is(err, schemas.ErrValidation) }
