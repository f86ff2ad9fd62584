// File: internal/fetcher/fetcher.go
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/cache"
	"github.com/xkilldash9x/dialtone/internal/config"
	"github.com/xkilldash9x/dialtone/internal/observability"
)

const errNoEndpoint = "no endpoint configured"

// Options is the retry, timeout and caching policy applied to every source.
type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	BackoffInitial    time.Duration
	BackoffMultiplier float64
	BackoffMax        time.Duration
	CacheEnabled      bool
	CacheTTL          time.Duration
}

// OptionsFromConfig maps the fetch section of the application config.
func OptionsFromConfig(cfg config.FetchConfig) Options {
	return Options{
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		BackoffInitial:    cfg.BackoffInitial,
		BackoffMultiplier: cfg.BackoffMultiplier,
		BackoffMax:        cfg.BackoffMax,
		CacheEnabled:      cfg.CacheEnabled,
		CacheTTL:          cfg.CacheTTL,
	}
}

// Fetcher queries one source for one subject and always produces exactly
// one SourceResult. It is safe for concurrent use and is meant to be shared
// across scans so the cache and limiters carry over.
type Fetcher struct {
	http     schemas.HTTPFetcher
	opts     Options
	logger   *zap.Logger
	clock    cache.Clock
	cache    *cache.TTLCache[schemas.SourceResult]
	group    singleflight.Group
	limiters *LimiterSet
	locals   map[string]schemas.LocalSource
	phone    schemas.PhoneValidator
	metrics  *observability.Metrics
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithClock injects the clock used for timestamps, latency and cache expiry.
func WithClock(c cache.Clock) Option { return func(f *Fetcher) { f.clock = c } }

// WithCache replaces the cache built from Options.
func WithCache(c *cache.TTLCache[schemas.SourceResult]) Option {
	return func(f *Fetcher) { f.cache = c }
}

// WithLimiters shares a limiter set between fetchers.
func WithLimiters(l *LimiterSet) Option { return func(f *Fetcher) { f.limiters = l } }

// WithLocalSource registers an in-process source reachable through local://<name>.
func WithLocalSource(src schemas.LocalSource) Option {
	return func(f *Fetcher) { f.locals[src.Name()] = src }
}

// WithPhone enables the {national} template placeholder.
func WithPhone(v schemas.PhoneValidator) Option { return func(f *Fetcher) { f.phone = v } }

// WithMetrics records fetch metrics on m.
func WithMetrics(m *observability.Metrics) Option { return func(f *Fetcher) { f.metrics = m } }

// New creates a Fetcher on top of the HTTP capability.
func New(httpFetcher schemas.HTTPFetcher, opts Options, logger *zap.Logger, options ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		http:     httpFetcher,
		opts:     opts,
		logger:   logger.Named("fetcher"),
		clock:    cache.SystemClock{},
		limiters: NewLimiterSet(),
		locals:   make(map[string]schemas.LocalSource),
	}
	for _, o := range options {
		o(f)
	}
	if f.cache == nil && opts.CacheEnabled && opts.CacheTTL > 0 {
		f.cache = cache.New[schemas.SourceResult](opts.CacheTTL, f.clock)
	}
	return f
}

// CacheStats reports cache effectiveness, zero when caching is disabled.
func (f *Fetcher) CacheStats() cache.Stats {
	if f.cache == nil {
		return cache.Stats{}
	}
	return f.cache.Stats()
}

// Fetch queries spec for subject. It never returns an error: every failure
// is expressed through the result status.
func (f *Fetcher) Fetch(ctx context.Context, spec schemas.SourceSpec, subject schemas.SubjectIdentifier) schemas.SourceResult {
	ctx, span := observability.StartOperation(ctx, "fetcher.Fetch",
		attribute.String("source.id", spec.ID),
		attribute.String("source.category", string(spec.Category)))
	done := f.metrics.TrackInFlight()

	res := f.fetch(ctx, spec, subject)

	done()
	f.metrics.ObserveFetch(res.SourceID, string(res.Status), time.Duration(res.LatencyMs)*time.Millisecond, res.Attempts)
	var spanErr error
	if res.Status != schemas.StatusSuccess {
		spanErr = errors.New(res.Error)
	}
	observability.FinishOperation(span, spanErr,
		attribute.String("source.status", string(res.Status)),
		attribute.Int("source.attempts", res.Attempts),
		attribute.Bool("source.cache_hit", res.CacheHit))
	return res
}

func (f *Fetcher) fetch(ctx context.Context, spec schemas.SourceSpec, subject schemas.SubjectIdentifier) schemas.SourceResult {
	if !spec.HasEndpoint() {
		return schemas.NewFailedResult(spec, schemas.StatusError, errNoEndpoint, f.clock.Now())
	}

	if f.cache == nil {
		return f.fetchUncached(ctx, spec, subject)
	}

	key := spec.ID + "|" + subject.String()
	if cached, ok := f.cache.Get(key); ok {
		f.metrics.ObserveCache(true)
		cached.CacheHit = true
		cached.Attempts = 0
		cached.LatencyMs = 0
		return cached
	}
	f.metrics.ObserveCache(false)

	// Concurrent misses for the same key share one network fetch.
	ch := f.group.DoChan(key, func() (interface{}, error) {
		res := f.fetchUncached(ctx, spec, subject)
		if res.Status == schemas.StatusSuccess {
			f.cache.Set(key, res)
		}
		return res, nil
	})

	select {
	case out := <-ch:
		return out.Val.(schemas.SourceResult)
	case <-ctx.Done():
		return schemas.NewFailedResult(spec, schemas.StatusTimeout, "scan deadline exceeded", f.clock.Now())
	}
}

func (f *Fetcher) fetchUncached(ctx context.Context, spec schemas.SourceSpec, subject schemas.SubjectIdentifier) schemas.SourceResult {
	if spec.IsLocal() {
		return f.fetchLocal(ctx, spec, subject)
	}
	return f.fetchRemote(ctx, spec, subject)
}

func (f *Fetcher) fetchLocal(ctx context.Context, spec schemas.SourceSpec, subject schemas.SubjectIdentifier) schemas.SourceResult {
	start := f.clock.Now()
	src, ok := f.locals[spec.LocalName()]
	if !ok {
		return schemas.NewFailedResult(spec, schemas.StatusError,
			fmt.Sprintf("unknown local source %q", spec.LocalName()), start)
	}

	attemptCtx, cancel := f.attemptContext(ctx)
	defer cancel()

	doc, err := src.Lookup(attemptCtx, subject)
	var res schemas.SourceResult
	switch {
	case err == nil:
		res = schemas.NewSuccessResult(spec, &schemas.Payload{
			ContentType: "application/x-local",
			Document:    doc,
			Facts:       ExtractFacts(spec, doc),
		}, f.clock.Now())
	case ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded):
		res = schemas.NewFailedResult(spec, schemas.StatusTimeout, err.Error(), f.clock.Now())
	default:
		res = schemas.NewFailedResult(spec, schemas.StatusError, err.Error(), f.clock.Now())
	}
	res.Attempts = 1
	res.LatencyMs = f.clock.Now().Sub(start).Milliseconds()
	return res
}

func (f *Fetcher) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.opts.Timeout > 0 {
		return context.WithTimeout(ctx, f.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// attemptError carries the classification of a failed attempt through the
// backoff loop.
type attemptError struct {
	kind   error
	status int
	msg    string
}

func (e *attemptError) Error() string { return e.msg }
func (e *attemptError) Unwrap() error { return e.kind }

func (f *Fetcher) fetchRemote(ctx context.Context, spec schemas.SourceSpec, subject schemas.SubjectIdentifier) schemas.SourceResult {
	start := f.clock.Now()
	target := f.expandTemplate(spec.QueryTemplate, subject)
	logger := f.logger.With(zap.String("source", spec.ID))

	var (
		attempts   int
		lastStatus int
		payload    *schemas.Payload
	)

	operation := func() error {
		if err := f.limiters.Wait(ctx, spec); err != nil {
			return backoff.Permanent(&attemptError{kind: schemas.ErrSourceTimeout, msg: "rate limiter wait aborted: " + err.Error()})
		}
		attempts++

		resp, err := f.http.Get(ctx, target, f.expandParams(spec.Params, subject), spec.Headers, f.opts.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(&attemptError{kind: schemas.ErrSourceTimeout, msg: ctx.Err().Error()})
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return &attemptError{kind: schemas.ErrSourceTimeout, msg: "attempt timed out: " + err.Error()}
			}
			return &attemptError{kind: schemas.ErrSourceError, msg: "network error: " + err.Error()}
		}
		lastStatus = resp.StatusCode

		switch {
		case resp.StatusCode == 429:
			msg := "rate limited (HTTP 429)"
			if resp.RetryAfter > 0 {
				msg += ", retry after " + resp.RetryAfter.String()
			}
			return backoff.Permanent(&attemptError{kind: schemas.ErrRateLimited, status: resp.StatusCode, msg: msg})
		case resp.StatusCode >= 500:
			return &attemptError{kind: schemas.ErrSourceError, status: resp.StatusCode, msg: fmt.Sprintf("server error (HTTP %d)", resp.StatusCode)}
		case resp.StatusCode >= 300:
			return backoff.Permanent(&attemptError{kind: schemas.ErrSourceError, status: resp.StatusCode, msg: fmt.Sprintf("request rejected (HTTP %d)", resp.StatusCode)})
		}

		doc, err := DecodeDocument(resp.ContentType, resp.Body)
		if err != nil {
			return backoff.Permanent(&attemptError{kind: schemas.ErrSourceError, status: resp.StatusCode, msg: err.Error()})
		}
		payload = &schemas.Payload{
			ContentType: resp.ContentType,
			Document:    doc,
			Facts:       ExtractFacts(spec, doc),
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.Debug("Source attempt failed, backing off",
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(f.newBackOff(), ctx), notify)

	var res schemas.SourceResult
	switch {
	case err == nil:
		res = schemas.NewSuccessResult(spec, payload, f.clock.Now())
	case errors.Is(err, schemas.ErrRateLimited):
		res = schemas.NewFailedResult(spec, schemas.StatusRateLimited, err.Error(), f.clock.Now())
	case errors.Is(err, schemas.ErrSourceTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		res = schemas.NewFailedResult(spec, schemas.StatusTimeout, err.Error(), f.clock.Now())
	default:
		res = schemas.NewFailedResult(spec, schemas.StatusError, err.Error(), f.clock.Now())
	}
	res.HTTPStatus = lastStatus
	res.Attempts = attempts
	res.LatencyMs = f.clock.Now().Sub(start).Milliseconds()

	if err != nil {
		logger.Info("Source query failed",
			zap.String("status", string(res.Status)),
			zap.Int("attempts", attempts),
			zap.Error(err))
	}
	return res
}

// newBackOff builds the retry schedule. Jitter is disabled so successive
// waits never shrink, and MaxElapsedTime is off because the attempt count
// and the scan deadline bound the loop.
func (f *Fetcher) newBackOff() backoff.BackOff {
	return newBackOff(f.opts)
}

func newBackOff(opts Options) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if opts.BackoffInitial > 0 {
		b.InitialInterval = opts.BackoffInitial
	}
	if opts.BackoffMultiplier >= 1 {
		b.Multiplier = opts.BackoffMultiplier
	}
	if opts.BackoffMax > 0 {
		b.MaxInterval = opts.BackoffMax
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

func (f *Fetcher) national(subject schemas.SubjectIdentifier) string {
	if f.phone != nil {
		if n, err := f.phone.Parse(subject.String(), ""); err == nil {
			return strconv.FormatUint(n.NationalNumber, 10)
		}
	}
	return subject.Digits()
}

// expandTemplate substitutes the subject into a URL template. Values are
// query-escaped so "+" survives in query strings.
func (f *Fetcher) expandTemplate(tmpl string, subject schemas.SubjectIdentifier) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	return strings.NewReplacer(
		"{number}", url.QueryEscape(subject.String()),
		"{digits}", subject.Digits(),
		"{national}", f.national(subject),
	).Replace(tmpl)
}

// expandParams substitutes the subject into parameter values. The HTTP
// capability escapes them.
func (f *Fetcher) expandParams(params map[string]string, subject schemas.SubjectIdentifier) map[string]string {
	if len(params) == 0 {
		return nil
	}
	r := strings.NewReplacer(
		"{number}", subject.String(),
		"{digits}", subject.Digits(),
		"{national}", f.national(subject),
	)
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = r.Replace(v)
	}
	return out
}
