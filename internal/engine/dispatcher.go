// File: internal/engine/dispatcher.go
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/config"
	"github.com/xkilldash9x/dialtone/internal/normalize"
	"github.com/xkilldash9x/dialtone/internal/observability"
)

// -- Interfaces for Dependency Inversion --

// SourceFetcher queries one source. It must always return a result.
type SourceFetcher interface {
	Fetch(ctx context.Context, spec schemas.SourceSpec, subject schemas.SubjectIdentifier) schemas.SourceResult
}

// SourceSelector picks the sources enabled for a tier.
type SourceSelector interface {
	ForTier(t schemas.Tier) []schemas.SourceSpec
}

const (
	defaultConcurrency = 5
	defaultScanTimeout = 60 * time.Second
)

// Dispatcher fans the selected sources of a tier out to a bounded pool of
// workers and fans the results back into a ScanRecord.
type Dispatcher struct {
	cfg     config.EngineConfig
	logger  *zap.Logger
	sources SourceSelector
	fetcher SourceFetcher
	now     func() time.Time
}

// New creates a Dispatcher.
func New(cfg config.EngineConfig, logger *zap.Logger, sources SourceSelector, fetcher SourceFetcher) (*Dispatcher, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if sources == nil {
		return nil, errors.New("source selector cannot be nil")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher cannot be nil")
	}
	if cfg.ConcurrentRequests <= 0 {
		cfg.ConcurrentRequests = defaultConcurrency
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = defaultScanTimeout
	}

	return &Dispatcher{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "dispatcher")),
		sources: sources,
		fetcher: fetcher,
		now:     time.Now,
	}, nil
}

// Dispatch queries every source enabled for tier and returns one result per
// source. Source failures never fail the dispatch; only a subject that is
// not in canonical form does. Sources still outstanding when the scan
// deadline passes are recorded as timeouts.
func (d *Dispatcher) Dispatch(ctx context.Context, tier schemas.Tier, subject schemas.SubjectIdentifier) (*schemas.ScanRecord, error) {
	if !normalize.IsCanonical(subject.String()) {
		return nil, schemas.NewValidationError(subject.String(), "subject is not in canonical form", nil)
	}

	specs := d.sources.ForTier(tier)
	record := schemas.NewScanRecord(subject, tier)
	if len(specs) == 0 {
		d.logger.Warn("No sources enabled for tier", zap.String("tier", tier.String()))
		return record, nil
	}

	ctx, span := observability.StartOperation(ctx, "engine.Dispatch",
		attribute.String("scan.tier", tier.String()),
		attribute.Int("scan.sources", len(specs)))
	defer func() {
		observability.FinishOperation(span, nil, attribute.Int("scan.results", len(record.Results)))
	}()

	scanCtx, cancel := context.WithTimeout(ctx, d.cfg.ScanTimeout)
	var wg sync.WaitGroup
	defer func() {
		// Stop outstanding fetches and wait so no worker outlives the dispatch.
		cancel()
		wg.Wait()
	}()

	// Both channels hold every spec so neither producer nor workers block.
	tasks := make(chan schemas.SourceSpec, len(specs))
	for _, spec := range specs {
		tasks <- spec
	}
	close(tasks)
	results := make(chan schemas.SourceResult, len(specs))

	concurrency := min(d.cfg.ConcurrentRequests, len(specs))
	d.logger.Info("Dispatching sources",
		zap.String("tier", tier.String()),
		zap.Int("sources", len(specs)),
		zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go d.runWorker(scanCtx, &wg, i+1, subject, tasks, results)
	}

	d.collect(scanCtx, record, specs, results)
	return record, nil
}

// runWorker is the loop for a single worker goroutine.
func (d *Dispatcher) runWorker(ctx context.Context, wg *sync.WaitGroup, workerID int, subject schemas.SubjectIdentifier, tasks <-chan schemas.SourceSpec, results chan<- schemas.SourceResult) {
	defer wg.Done()
	logger := d.logger.With(zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Scan context done, worker exiting", zap.Error(ctx.Err()))
			return
		case spec, ok := <-tasks:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			results <- d.fetcher.Fetch(ctx, spec, subject)
		}
	}
}

// collect fans results into record until every source has reported or the
// scan context ends. Results already buffered at that point are kept; the
// rest are forced to Timeout.
func (d *Dispatcher) collect(ctx context.Context, record *schemas.ScanRecord, specs []schemas.SourceSpec, results <-chan schemas.SourceResult) {
	for len(record.Results) < len(specs) {
		select {
		case res := <-results:
			d.add(record, res)
		case <-ctx.Done():
			d.drain(record, results)
			d.forceTimeouts(ctx, record, specs)
			return
		}
	}
}

func (d *Dispatcher) drain(record *schemas.ScanRecord, results <-chan schemas.SourceResult) {
	for {
		select {
		case res := <-results:
			d.add(record, res)
		default:
			return
		}
	}
}

func (d *Dispatcher) add(record *schemas.ScanRecord, res schemas.SourceResult) {
	if !record.Add(res) {
		d.logger.Warn("Duplicate result discarded", zap.String("source", res.SourceID))
	}
}

func (d *Dispatcher) forceTimeouts(ctx context.Context, record *schemas.ScanRecord, specs []schemas.SourceSpec) {
	msg := "scan deadline exceeded"
	if errors.Is(ctx.Err(), context.Canceled) {
		msg = "scan cancelled"
	}
	now := d.now()
	forced := 0
	for _, spec := range specs {
		if _, ok := record.Results[spec.ID]; ok {
			continue
		}
		record.Add(schemas.NewFailedResult(spec, schemas.StatusTimeout, msg, now))
		forced++
	}
	if forced > 0 {
		d.logger.Warn("Sources did not report before the scan ended",
			zap.Int("forced_timeouts", forced),
			zap.String("reason", msg))
	}
}
