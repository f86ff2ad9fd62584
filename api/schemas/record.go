package schemas

import (
	"sort"
	"time"
)

// -- Scan Record --

// Provenance identifies where a merged value came from.
type Provenance struct {
	Source     string    `json:"source"`
	Value      any       `json:"value"`
	Trust      float64   `json:"trust"`
	ObservedAt time.Time `json:"observed_at"`
}

// MergedField is the resolved value of one canonical field along with the
// alternates that lost the precedence contest.
type MergedField struct {
	Value      any          `json:"value"`
	Source     string       `json:"source"`
	Trust      float64      `json:"trust"`
	ObservedAt time.Time    `json:"observed_at"`
	Alternates []Provenance `json:"alternates,omitempty"`
	// Conflict is set when at least one alternate disagrees with the winner.
	Conflict bool `json:"conflict,omitempty"`
}

// PatternDimension names the feature space an observation belongs to.
type PatternDimension string

const (
	DimensionTemporal   PatternDimension = "temporal"
	DimensionGeographic PatternDimension = "geographic"
	DimensionBehavioral PatternDimension = "behavioral"
)

// AllDimensions lists the dimensions in analysis order.
var AllDimensions = []PatternDimension{DimensionTemporal, DimensionGeographic, DimensionBehavioral}

// Observation is a numeric data point extracted from a source's list-valued facts.
type Observation struct {
	Source    string           `json:"source"`
	Dimension PatternDimension `json:"dimension"`
	Label     string           `json:"label,omitempty"`
	Vector    []float64        `json:"vector"`
}

// ScanRecord accumulates everything one scan learned about a subject. It is
// owned by a single scan and frozen once aggregation completes.
type ScanRecord struct {
	Subject      SubjectIdentifier       `json:"subject"`
	Tier         Tier                    `json:"tier"`
	Results      map[string]SourceResult `json:"results"`
	Order        []string                `json:"order"`
	MergedFields map[string]MergedField  `json:"merged_fields"`
	Observations []Observation           `json:"observations,omitempty"`
}

// NewScanRecord returns an empty record for subject.
func NewScanRecord(subject SubjectIdentifier, tier Tier) *ScanRecord {
	return &ScanRecord{
		Subject:      subject,
		Tier:         tier,
		Results:      make(map[string]SourceResult),
		MergedFields: make(map[string]MergedField),
	}
}

// Add records r unless the source already has a result. It reports whether r was stored.
func (r *ScanRecord) Add(res SourceResult) bool {
	if _, exists := r.Results[res.SourceID]; exists {
		return false
	}
	r.Results[res.SourceID] = res
	r.Order = append(r.Order, res.SourceID)
	return true
}

// SortedSourceIDs returns result keys in lexical order.
func (r *ScanRecord) SortedSourceIDs() []string {
	ids := make([]string, 0, len(r.Results))
	for id := range r.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StatusCounts tallies results by status.
func (r *ScanRecord) StatusCounts() map[SourceStatus]int {
	counts := make(map[SourceStatus]int, 4)
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// Field returns the merged value for name, if any.
func (r *ScanRecord) Field(name string) (any, bool) {
	f, ok := r.MergedFields[name]
	if !ok {
		return nil, false
	}
	return f.Value, true
}

// ObservationsFor returns the observations belonging to dim.
func (r *ScanRecord) ObservationsFor(dim PatternDimension) []Observation {
	var out []Observation
	for _, o := range r.Observations {
		if o.Dimension == dim {
			out = append(out, o)
		}
	}
	return out
}

// -- Risk Assessment --

// RiskLevel is the categorical bucket of a composite risk score.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "very_low"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

// LevelForScore buckets a score. Boundaries belong to the higher bucket.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score < 0.2:
		return RiskVeryLow
	case score < 0.4:
		return RiskLow
	case score < 0.6:
		return RiskMedium
	case score < 0.8:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// RiskAssessment is the composite score derived from a frozen ScanRecord.
type RiskAssessment struct {
	Score float64   `json:"score"`
	Level RiskLevel `json:"level"`
	// Factors maps factor name to weight*value for every contributing factor.
	Factors         map[string]float64 `json:"factors"`
	Contributing    []string           `json:"contributing"`
	Degraded        bool               `json:"degraded,omitempty"`
	Recommendations []string           `json:"recommendations"`
}

// -- Patterns --

// ClusterMember assigns one point to a cluster index.
type ClusterMember struct {
	Cluster int         `json:"cluster"`
	Point   Observation `json:"point"`
}

// PatternCluster is the clustering outcome for one dimension.
type PatternCluster struct {
	Dimension    PatternDimension `json:"dimension"`
	ClusterCount int              `json:"cluster_count"`
	Members      []ClusterMember  `json:"members"`
	Noise        []Observation    `json:"noise"`
	Skipped      bool             `json:"skipped,omitempty"`
}

// -- Report --

// ScanState tracks a scan through its lifecycle.
type ScanState string

const (
	StateCreated     ScanState = "created"
	StateNormalizing ScanState = "normalizing"
	StateDispatching ScanState = "dispatching"
	StateAggregating ScanState = "aggregating"
	StateScoring     ScanState = "scoring"
	StateCompleted   ScanState = "completed"
	StateFailed      ScanState = "failed"
)

// ScanReport is the final product of one scan. It is never mutated after
// the scan completes.
type ScanReport struct {
	ScanID     string            `json:"scan_id"`
	Subject    SubjectIdentifier `json:"subject"`
	Tier       Tier              `json:"tier"`
	State      ScanState         `json:"state"`
	Record     *ScanRecord       `json:"record,omitempty"`
	Risk       *RiskAssessment   `json:"risk,omitempty"`
	Patterns   []PatternCluster  `json:"patterns,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMs int64             `json:"duration_ms"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// ScanOutput is what the CLI renders for one subject.
type ScanOutput struct {
	Report    *ScanReport `json:"report"`
	Narrative string      `json:"narrative,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
}
