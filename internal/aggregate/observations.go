// File: internal/aggregate/observations.go
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// extractObservations converts one list-valued fact into observations.
// Entries that cannot be interpreted are skipped.
func extractObservations(source, field string, value any) []schemas.Observation {
	items, ok := value.([]any)
	if !ok {
		items = []any{value}
	}

	var out []schemas.Observation
	for i, item := range items {
		var (
			dim schemas.PatternDimension
			vec []float64
		)
		switch field {
		case schemas.FieldGeoPoints:
			dim, vec = schemas.DimensionGeographic, geoVector(item)
		case schemas.FieldActivityHours:
			dim, vec = schemas.DimensionTemporal, hourVector(item)
		case schemas.FieldActivityTimes:
			dim, vec = schemas.DimensionTemporal, timeVector(item)
		case schemas.FieldBehaviorSamples:
			dim, vec = schemas.DimensionBehavioral, numericVector(item)
		}
		if vec == nil {
			continue
		}
		out = append(out, schemas.Observation{
			Source:    source,
			Dimension: dim,
			Label:     fmt.Sprintf("%s[%d]", source, i),
			Vector:    vec,
		})
	}
	return out
}

// geoVector accepts [lat, lon] pairs, {"lat": .., "lon": ..} style objects
// and "lat,lon" strings.
func geoVector(item any) []float64 {
	var lat, lon float64
	var ok1, ok2 bool

	switch t := item.(type) {
	case []any:
		if len(t) != 2 {
			return nil
		}
		lat, ok1 = number(t[0])
		lon, ok2 = number(t[1])
	case map[string]any:
		lat, ok1 = firstNumber(t, "lat", "latitude")
		lon, ok2 = firstNumber(t, "lon", "lng", "long", "longitude")
	case string:
		parts := strings.Split(t, ",")
		if len(parts) != 2 {
			return nil
		}
		lat, ok1 = number(strings.TrimSpace(parts[0]))
		lon, ok2 = number(strings.TrimSpace(parts[1]))
	}

	if !ok1 || !ok2 || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil
	}
	return []float64{lat, lon}
}

func hourVector(item any) []float64 {
	h, ok := number(item)
	if !ok || h < 0 || h >= 24 {
		return nil
	}
	return []float64{h}
}

// timeVector reduces a timestamp to its fractional UTC hour of day.
func timeVector(item any) []float64 {
	var at time.Time
	switch t := item.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(t))
		if err != nil {
			secs, ok := number(t)
			if !ok {
				return nil
			}
			parsed = time.Unix(int64(secs), 0)
		}
		at = parsed
	default:
		secs, ok := number(t)
		if !ok {
			return nil
		}
		at = time.Unix(int64(secs), 0)
	}
	at = at.UTC()
	return []float64{float64(at.Hour()) + float64(at.Minute())/60 + float64(at.Second())/3600}
}

// numericVector accepts numeric arrays and flat objects of numbers. Object
// keys are ordered lexically so vectors from different sources line up.
func numericVector(item any) []float64 {
	switch t := item.(type) {
	case []any:
		vec := make([]float64, 0, len(t))
		for _, v := range t {
			f, ok := number(v)
			if !ok {
				return nil
			}
			vec = append(vec, f)
		}
		if len(vec) == 0 {
			return nil
		}
		return vec
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vec := make([]float64, 0, len(keys))
		for _, k := range keys {
			f, ok := number(t[k])
			if !ok {
				return nil
			}
			vec = append(vec, f)
		}
		if len(vec) == 0 {
			return nil
		}
		return vec
	default:
		if f, ok := number(t); ok {
			return []float64{f}
		}
	}
	return nil
}

func firstNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return number(v)
		}
	}
	return 0, false
}

// number reads a coordinate or sample component. NaN and infinities are
// rejected: they cannot be clustered or encoded.
func number(v any) (float64, bool) {
	f, ok := toFloat(v)
	if !ok {
		s, isString := v.(string)
		if !isString {
			return 0, false
		}
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
