package schemas

import (
	"context"
	"time"
)

// -- Phone Validation Capability --

// LineType is the kind of line a number is assigned to.
type LineType string

const (
	LineMobile   LineType = "mobile"
	LineLandline LineType = "landline"
	LineVoip     LineType = "voip"
	LineUnknown  LineType = "unknown"
)

// ParsedNumber is the capability's view of a parsed number. Callers treat
// it as opaque apart from the two code fields.
type ParsedNumber struct {
	CountryCode    int32
	NationalNumber uint64
	// Raw holds the capability's own representation.
	Raw any
}

// PhoneValidator wraps the phone numbering library. Its internals are a
// black box to the engine.
//
//go:generate mockery --name PhoneValidator --output ../../internal/mocks --outpkg mocks
type PhoneValidator interface {
	// Parse interprets raw, using defaultRegion when raw carries no country code.
	Parse(raw, defaultRegion string) (ParsedNumber, error)
	IsValid(n ParsedNumber) bool
	// CarrierName returns the original carrier, or "" when unknown.
	CarrierName(n ParsedNumber) string
	// RegionDescription returns a human readable location, or "" when unknown.
	RegionDescription(n ParsedNumber) string
	LineType(n ParsedNumber) LineType
	// CountryCodeForRegion maps an ISO region to its calling code, 0 if unknown.
	CountryCodeForRegion(region string) int
}

// -- HTTP Fetch Capability --

// HTTPResponse is the raw outcome of a single HTTP exchange.
type HTTPResponse struct {
	StatusCode  int
	Body        []byte
	ContentType string
	// RetryAfter is the parsed Retry-After header, zero if absent.
	RetryAfter time.Duration
}

// HTTPFetcher performs one GET request. It is used exclusively by the
// fetcher; transport errors come back as a non-nil error.
type HTTPFetcher interface {
	Get(ctx context.Context, url string, params, headers map[string]string, timeout time.Duration) (*HTTPResponse, error)
}

// LocalSource answers a source query in-process instead of over HTTP.
type LocalSource interface {
	Name() string
	Lookup(ctx context.Context, subject SubjectIdentifier) (map[string]any, error)
}

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed or capability.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls sampling for a single request.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	TopP            float32 `json:"top_p,omitempty"`
	TopK            int     `json:"top_k,omitempty"`
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model.
//
//go:generate mockery --name LLMClient --output ../../internal/mocks --outpkg mocks
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}

// ReportGenerator turns a completed report into a markdown narrative.
type ReportGenerator interface {
	Generate(ctx context.Context, report *ScanReport) (string, error)
}
