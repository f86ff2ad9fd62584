// File: internal/aggregate/aggregate.go
package aggregate

import (
	"fmt"
	"maps"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// Aggregator merges per-source facts into one record-level view. The
// outcome depends only on the set of results, never on the order they
// arrived in.
type Aggregator struct {
	trust  map[string]float64
	logger *zap.Logger
}

// New creates an Aggregator using trust (source id -> weight) for
// precedence. Sources missing from trust rank with weight zero.
func New(trust map[string]float64, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		trust:  maps.Clone(trust),
		logger: logger.With(zap.String("component", "aggregator")),
	}
}

// Merge fills record.MergedFields and record.Observations from the
// successful results, fixes record.Order, and returns the same record. Previous merge output is
// replaced, so merging twice is harmless.
func (a *Aggregator) Merge(record *schemas.ScanRecord) *schemas.ScanRecord {
	candidates := make(map[string][]schemas.Provenance)
	var observations []schemas.Observation

	for _, id := range record.SortedSourceIDs() {
		res := record.Results[id]
		facts, ok := res.Facts()
		if !ok {
			continue
		}
		for _, field := range sortedKeys(facts) {
			value := facts[field]
			if schemas.IsListField(field) {
				observations = append(observations, extractObservations(id, field, value)...)
				continue
			}
			candidates[field] = append(candidates[field], schemas.Provenance{
				Source:     id,
				Value:      value,
				Trust:      a.trust[id],
				ObservedAt: res.Timestamp,
			})
		}
	}

	merged := make(map[string]schemas.MergedField, len(candidates))
	for field, provs := range candidates {
		mf := resolve(provs)
		if mf.Conflict {
			a.logger.Warn("Conflicting values for field",
				zap.String("subject", record.Subject.String()),
				zap.String("field", field),
				zap.String("winner", mf.Source),
				zap.Int("alternates", len(mf.Alternates)))
		}
		merged[field] = mf
	}

	record.MergedFields = merged
	record.Observations = observations
	// A merged record lists its sources lexically, not in arrival order.
	record.Order = record.SortedSourceIDs()
	return record
}

// resolve picks the winner: highest trust, then earliest observation, then
// lowest source id.
func resolve(provs []schemas.Provenance) schemas.MergedField {
	sorted := make([]schemas.Provenance, len(provs))
	copy(sorted, provs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Trust != b.Trust {
			return a.Trust > b.Trust
		}
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.Before(b.ObservedAt)
		}
		return a.Source < b.Source
	})

	winner := sorted[0]
	mf := schemas.MergedField{
		Value:      winner.Value,
		Source:     winner.Source,
		Trust:      winner.Trust,
		ObservedAt: winner.ObservedAt,
	}
	if len(sorted) > 1 {
		mf.Alternates = sorted[1:]
		for _, alt := range mf.Alternates {
			if !sameValue(winner.Value, alt.Value) {
				mf.Conflict = true
				break
			}
		}
	}
	return mf
}

// sameValue compares loosely: strings ignore case and surrounding space,
// numbers compare numerically whatever their Go type.
func sameValue(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return math.Abs(fa-fb) < 1e-9
		}
	}
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		return strings.EqualFold(strings.TrimSpace(sa), strings.TrimSpace(sb))
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
