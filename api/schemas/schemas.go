package schemas

import (
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"
)

// SubjectIdentifier is the canonical form of a phone number under
// investigation: a leading '+' followed by digits only.
type SubjectIdentifier string

func (s SubjectIdentifier) String() string { return string(s) }

// Digits returns the identifier without its leading '+'.
func (s SubjectIdentifier) Digits() string { return strings.TrimPrefix(string(s), "+") }

// Tier defines the depth of a scan. Tiers are ordered: a source registered
// for a lower tier is also selected by every higher tier.
type Tier int

const (
	TierBasic Tier = iota + 1
	TierDeep
	TierComprehensive
)

var tierNames = map[Tier]string{
	TierBasic:         "basic",
	TierDeep:          "deep",
	TierComprehensive: "comprehensive",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Includes reports whether a scan at tier t selects sources registered at other.
func (t Tier) Includes(other Tier) bool { return other >= TierBasic && other <= t }

// Valid reports whether t is one of the declared tiers.
func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

// ParseTier resolves the textual tier used at the CLI and config boundary.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic", "":
		return TierBasic, nil
	case "deep":
		return TierDeep, nil
	case "comprehensive", "full":
		return TierComprehensive, nil
	default:
		return 0, fmt.Errorf("unknown scan tier %q (want basic, deep or comprehensive)", s)
	}
}

// MarshalText encodes the tier by name so reports stay readable.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SourceCategory classifies what kind of signal a source provides.
type SourceCategory string

const (
	CategoryDirectory    SourceCategory = "directory"
	CategorySearchEngine SourceCategory = "search-engine"
	CategorySocial       SourceCategory = "social"
	CategoryReputation   SourceCategory = "reputation"
	CategoryBreach       SourceCategory = "breach"
)

// Valid reports whether c is a known category.
func (c SourceCategory) Valid() bool {
	switch c {
	case CategoryDirectory, CategorySearchEngine, CategorySocial, CategoryReputation, CategoryBreach:
		return true
	}
	return false
}

// SourceSpec describes one external signal provider. Specs are immutable
// once registered.
type SourceSpec struct {
	ID       string         `json:"id" yaml:"id"`
	Category SourceCategory `json:"category" yaml:"category"`
	Tier     Tier           `json:"tier" yaml:"tier"`
	// QueryTemplate is a URL containing {number}, {digits} or {national}
	// placeholders. The local:// scheme routes to an in-process source and an
	// empty template declares a source with no backing endpoint.
	QueryTemplate string            `json:"query_template" yaml:"query_template"`
	Trust         float64           `json:"trust" yaml:"trust"`
	Fields        map[string]string `json:"fields,omitempty" yaml:"fields"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers"`
	Params        map[string]string `json:"params,omitempty" yaml:"params"`
	// RateLimit is the maximum request rate in requests per second. Zero
	// disables limiting.
	RateLimit   float64 `json:"rate_limit,omitempty" yaml:"rate_limit"`
	Description string  `json:"description,omitempty" yaml:"description"`
}

// LocalScheme prefixes query templates served by in-process sources.
const LocalScheme = "local://"

// IsLocal reports whether the source is answered in-process.
func (s SourceSpec) IsLocal() bool { return strings.HasPrefix(s.QueryTemplate, LocalScheme) }

// LocalName returns the in-process source name for local specs.
func (s SourceSpec) LocalName() string { return strings.TrimPrefix(s.QueryTemplate, LocalScheme) }

// HasEndpoint reports whether the source is backed by anything at all.
func (s SourceSpec) HasEndpoint() bool { return strings.TrimSpace(s.QueryTemplate) != "" }

// SourceStatus is the terminal outcome of one source query.
type SourceStatus string

const (
	StatusSuccess     SourceStatus = "success"
	StatusTimeout     SourceStatus = "timeout"
	StatusError       SourceStatus = "error"
	StatusRateLimited SourceStatus = "rate_limited"
)

// Payload is the decoded body of a successful source response together
// with the canonical facts extracted from it.
type Payload struct {
	ContentType string         `json:"content_type,omitempty"`
	Document    map[string]any `json:"document,omitempty"`
	Facts       map[string]any `json:"facts"`
}

// SourceResult is the outcome of querying one source during one scan.
type SourceResult struct {
	SourceID   string         `json:"source_id"`
	Category   SourceCategory `json:"category"`
	Status     SourceStatus   `json:"status"`
	Error      string         `json:"error,omitempty"`
	HTTPStatus int            `json:"http_status,omitempty"`
	LatencyMs  int64          `json:"latency_ms"`
	Attempts   int            `json:"attempts"`
	CacheHit   bool           `json:"cache_hit,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	// payload is only reachable through Facts/Document so callers must
	// check the status first.
	payload *Payload
}

// NewSuccessResult builds a successful result carrying p.
func NewSuccessResult(spec SourceSpec, p *Payload, at time.Time) SourceResult {
	return SourceResult{
		SourceID:  spec.ID,
		Category:  spec.Category,
		Status:    StatusSuccess,
		Timestamp: at,
		payload:   p,
	}
}

// NewFailedResult builds a non-success result. Payloads never accompany failures.
func NewFailedResult(spec SourceSpec, status SourceStatus, msg string, at time.Time) SourceResult {
	return SourceResult{
		SourceID:  spec.ID,
		Category:  spec.Category,
		Status:    status,
		Error:     msg,
		Timestamp: at,
	}
}

// Succeeded reports whether the source produced usable data.
func (r SourceResult) Succeeded() bool { return r.Status == StatusSuccess && r.payload != nil }

// Facts returns the canonical facts of a successful result.
func (r SourceResult) Facts() (map[string]any, bool) {
	if !r.Succeeded() {
		return nil, false
	}
	return r.payload.Facts, true
}

// Payload returns the full payload of a successful result.
func (r SourceResult) Payload() (*Payload, bool) {
	if !r.Succeeded() {
		return nil, false
	}
	return r.payload, true
}

// sourceResultJSON mirrors SourceResult for encoding, exposing the payload.
type sourceResultJSON struct {
	SourceID   string         `json:"source_id"`
	Category   SourceCategory `json:"category"`
	Status     SourceStatus   `json:"status"`
	Error      string         `json:"error,omitempty"`
	HTTPStatus int            `json:"http_status,omitempty"`
	LatencyMs  int64          `json:"latency_ms"`
	Attempts   int            `json:"attempts"`
	CacheHit   bool           `json:"cache_hit,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    *Payload       `json:"payload,omitempty"`
}

// MarshalJSON includes the payload for successful results only.
func (r SourceResult) MarshalJSON() ([]byte, error) {
	out := sourceResultJSON{
		SourceID:   r.SourceID,
		Category:   r.Category,
		Status:     r.Status,
		Error:      r.Error,
		HTTPStatus: r.HTTPStatus,
		LatencyMs:  r.LatencyMs,
		Attempts:   r.Attempts,
		CacheHit:   r.CacheHit,
		Timestamp:  r.Timestamp,
	}
	if p, ok := r.Payload(); ok {
		out.Payload = p
	}
	return json.Marshal(out)
}
