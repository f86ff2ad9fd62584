// File: internal/risk/scorer.go
package risk

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/config"
)

// Scorer turns a frozen ScanRecord into a RiskAssessment as the weighted
// mean of its registered factors.
type Scorer struct {
	factors []Factor
	weights map[string]float64
	logger  *zap.Logger
}

// NewScorer creates a scorer with the default factors and the weights from cfg.
func NewScorer(cfg config.RiskConfig, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scorer{
		weights: cfg.Weights,
		logger:  logger.With(zap.String("component", "risk_scorer")),
	}
	for _, f := range DefaultFactors(cfg.HighRiskCarriers) {
		// Default names are unique.
		_ = s.Register(f)
	}
	return s
}

// Register appends a factor. Names must be unique.
func (s *Scorer) Register(f Factor) error {
	if f.Name == "" || f.Compute == nil {
		return fmt.Errorf("risk factor needs a name and a compute function")
	}
	for _, existing := range s.factors {
		if existing.Name == f.Name {
			return fmt.Errorf("risk factor %q already registered", f.Name)
		}
	}
	s.factors = append(s.factors, f)
	return nil
}

// Factors returns the registered factor names in evaluation order.
func (s *Scorer) Factors() []string {
	names := make([]string, len(s.factors))
	for i, f := range s.factors {
		names[i] = f.Name
	}
	return names
}

// Weight returns the configured weight for a factor, 1 when unset.
func (s *Scorer) Weight(name string) float64 {
	if w, ok := s.weights[name]; ok {
		return w
	}
	return 1
}

// Score computes the assessment. With no contributing factor the result is
// the degraded default: score 0, level very_low, Degraded set.
func (s *Scorer) Score(rec *schemas.ScanRecord) *schemas.RiskAssessment {
	out := &schemas.RiskAssessment{
		Factors:         make(map[string]float64),
		Contributing:    []string{},
		Recommendations: []string{},
	}

	var weighted, total float64
	for _, f := range s.factors {
		v, ok := f.Compute(rec)
		if !ok || math.IsNaN(v) {
			continue
		}
		w := s.Weight(f.Name)
		if !(w > 0) || math.IsInf(w, 0) {
			continue
		}
		v = clamp01(v)

		out.Factors[f.Name] = w * v
		out.Contributing = append(out.Contributing, f.Name)
		weighted += w * v
		total += w

		if f.Recommend != nil {
			if advice := f.Recommend(v); advice != "" {
				out.Recommendations = append(out.Recommendations, advice)
			}
		}
	}

	if total == 0 {
		out.Degraded = true
		out.Score = 0
	} else {
		out.Score = clamp01(weighted / total)
	}
	out.Level = schemas.LevelForScore(out.Score)

	s.logger.Debug("Risk scored",
		zap.String("subject", rec.Subject.String()),
		zap.Float64("score", out.Score),
		zap.String("level", string(out.Level)),
		zap.Strings("contributing", out.Contributing),
		zap.Bool("degraded", out.Degraded))
	return out
}

// clamp01 bounds v to [0,1]; NaN maps to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
