// File: internal/risk/factors.go
package risk

import (
	"math"
	"strconv"
	"strings"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// Factor names. They double as keys under risk.weights.
const (
	FactorLineType           = "line_type"
	FactorCarrierReliability = "carrier_reliability"
	FactorSpamProbability    = "spam_probability"
	FactorFraudScore         = "fraud_score"
	FactorReportVolume       = "report_volume"
	FactorBreachExposure     = "breach_exposure"
)

// Factor is one named risk signal. Compute returns a value in [0,1] and
// false when the record holds nothing to derive it from. Recommend maps the
// computed value to advice, or "" for none.
type Factor struct {
	Name      string
	Compute   func(rec *schemas.ScanRecord) (float64, bool)
	Recommend func(value float64) string
}

// DefaultFactors returns the built-in factor set in evaluation order.
// highRiskCarriers are case-insensitive substrings marking carriers that
// hand out disposable or virtual numbers.
func DefaultFactors(highRiskCarriers []string) []Factor {
	return []Factor{
		{
			Name:    FactorLineType,
			Compute: lineTypeRisk,
			Recommend: func(v float64) string {
				if v >= 0.8 {
					return "Number is VoIP; verify the caller through an independent channel."
				}
				return ""
			},
		},
		{
			Name:    FactorCarrierReliability,
			Compute: carrierRisk(highRiskCarriers),
			Recommend: func(v float64) string {
				if v >= 0.8 {
					return "Carrier commonly issues disposable numbers; treat unsolicited contact with caution."
				}
				return ""
			},
		},
		{
			Name:    FactorSpamProbability,
			Compute: probability(schemas.FieldSpamProbability),
			Recommend: func(v float64) string {
				if v > 0.5 {
					return "Spam probability is above 50%; screen or block calls from this number."
				}
				return ""
			},
		},
		{
			Name:    FactorFraudScore,
			Compute: probability(schemas.FieldFraudScore),
			Recommend: func(v float64) string {
				if v >= 0.75 {
					return "Fraud score is high; never share credentials or payment details with this caller."
				}
				return ""
			},
		},
		{
			Name: FactorReportVolume,
			Compute: func(rec *schemas.ScanRecord) (float64, bool) {
				n, ok := fieldNumber(rec, schemas.FieldReportCount)
				if !ok || n < 0 {
					return 0, false
				}
				return n / (n + 5), true
			},
			Recommend: func(v float64) string {
				if v >= 0.5 {
					return "Number has been reported repeatedly by other users."
				}
				return ""
			},
		},
		{
			Name: FactorBreachExposure,
			Compute: func(rec *schemas.ScanRecord) (float64, bool) {
				n, ok := fieldNumber(rec, schemas.FieldBreachCount)
				if !ok || n < 0 {
					return 0, false
				}
				return min(1, n/5), true
			},
			Recommend: func(v float64) string {
				if v > 0 {
					return "Number appears in breach data; expect targeted phishing."
				}
				return ""
			},
		},
	}
}

var lineTypeScores = map[string]float64{
	"voip":                 0.8,
	"mobile":               0.3,
	"landline":             0.2,
	"fixed_line":           0.2,
	"fixed_line_or_mobile": 0.3,
}

func lineTypeRisk(rec *schemas.ScanRecord) (float64, bool) {
	v, ok := rec.Field(schemas.FieldLineType)
	if !ok {
		return 0, false
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(strings.ReplaceAll(s, "-", "_"), " ", "_")
	if s == "" || s == string(schemas.LineUnknown) {
		return 0, false
	}
	if score, known := lineTypeScores[s]; known {
		return score, true
	}
	return 0.5, true
}

func carrierRisk(highRisk []string) func(*schemas.ScanRecord) (float64, bool) {
	return func(rec *schemas.ScanRecord) (float64, bool) {
		v, ok := rec.Field(schemas.FieldCarrier)
		if !ok {
			return 0, false
		}
		name, ok := v.(string)
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			return 0, false
		}
		for _, marker := range highRisk {
			if marker = strings.ToLower(strings.TrimSpace(marker)); marker != "" && strings.Contains(name, marker) {
				return 0.8, true
			}
		}
		return 0.2, true
	}
}

// probability reads a field reported either as a fraction or a percentage.
func probability(field string) func(*schemas.ScanRecord) (float64, bool) {
	return func(rec *schemas.ScanRecord) (float64, bool) {
		n, ok := fieldNumber(rec, field)
		if !ok {
			return 0, false
		}
		if n > 1 {
			n /= 100
		}
		return n, true
	}
}

// fieldNumber reads a numeric field. Non-finite values count as absent.
func fieldNumber(rec *schemas.ScanRecord, field string) (float64, bool) {
	v, ok := rec.Field(field)
	if !ok {
		return 0, false
	}
	f, ok := asNumber(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		return f, err == nil
	}
	return 0, false
}
