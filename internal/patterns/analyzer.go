// File: internal/patterns/analyzer.go
package patterns

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/config"
)

// Analyzer clusters the observations of a record per dimension.
type Analyzer struct {
	cfg    config.PatternsConfig
	logger *zap.Logger
}

// NewAnalyzer creates an Analyzer with per-dimension eps/minPts.
func NewAnalyzer(cfg config.PatternsConfig, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{cfg: cfg, logger: logger.With(zap.String("component", "pattern_analyzer"))}
}

// Analyze returns one PatternCluster per requested dimension, in the
// order requested.
func (a *Analyzer) Analyze(rec *schemas.ScanRecord, dims []schemas.PatternDimension) []schemas.PatternCluster {
	out := make([]schemas.PatternCluster, 0, len(dims))
	for _, dim := range dims {
		out = append(out, a.analyzeDimension(dim, rec.ObservationsFor(dim)))
	}
	return out
}

func (a *Analyzer) params(dim schemas.PatternDimension) config.DimensionConfig {
	switch dim {
	case schemas.DimensionGeographic:
		return a.cfg.Geographic
	case schemas.DimensionTemporal:
		return a.cfg.Temporal
	default:
		return a.cfg.Behavioral
	}
}

func (a *Analyzer) analyzeDimension(dim schemas.PatternDimension, obs []schemas.Observation) schemas.PatternCluster {
	pc := schemas.PatternCluster{
		Dimension: dim,
		Members:   []schemas.ClusterMember{},
		Noise:     []schemas.Observation{},
	}

	obs = a.consistent(dim, obs, &pc)
	if len(obs) < 2 {
		pc.Skipped = true
		pc.Noise = append(pc.Noise, obs...)
		return pc
	}

	points := make([][]float64, len(obs))
	for i, o := range obs {
		points[i] = o.Vector
	}

	var dist Distance
	switch dim {
	case schemas.DimensionGeographic:
		dist = Haversine
	case schemas.DimensionTemporal:
		dist = CircularHours
	default:
		dist = StandardizedEuclidean(points)
	}

	p := a.params(dim)
	labels, clusters := DBSCAN(points, p.Eps, p.MinPts, dist)
	pc.ClusterCount = clusters
	for i, label := range labels {
		if label == noise {
			pc.Noise = append(pc.Noise, obs[i])
			continue
		}
		pc.Members = append(pc.Members, schemas.ClusterMember{Cluster: label, Point: obs[i]})
	}

	a.logger.Debug("Dimension clustered",
		zap.String("dimension", string(dim)),
		zap.Int("points", len(points)),
		zap.Int("clusters", clusters),
		zap.Int("noise", len(pc.Noise)))
	return pc
}

// consistent drops observations whose vector length does not match the
// dimension (or, for behavioural data, the first observation). Dropped
// points are reported as noise.
func (a *Analyzer) consistent(dim schemas.PatternDimension, obs []schemas.Observation, pc *schemas.PatternCluster) []schemas.Observation {
	want := 0
	switch dim {
	case schemas.DimensionGeographic:
		want = 2
	case schemas.DimensionTemporal:
		want = 1
	default:
		if len(obs) > 0 {
			want = len(obs[0].Vector)
		}
	}

	kept := make([]schemas.Observation, 0, len(obs))
	for _, o := range obs {
		if len(o.Vector) != want {
			a.logger.Debug("Observation has unexpected shape",
				zap.String("dimension", string(dim)),
				zap.String("label", o.Label),
				zap.Int("len", len(o.Vector)))
			pc.Noise = append(pc.Noise, o)
			continue
		}
		kept = append(kept, o)
	}
	return kept
}
