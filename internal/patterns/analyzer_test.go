// File: internal/patterns/analyzer_test.go
package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/config"
)

func defaultPatterns() config.PatternsConfig {
	return config.PatternsConfig{
		Geographic: config.DimensionConfig{Eps: 25, MinPts: 1},
		Temporal:   config.DimensionConfig{Eps: 1.5, MinPts: 1},
		Behavioral: config.DimensionConfig{Eps: 1.0, MinPts: 1},
	}
}

func obs(dim schemas.PatternDimension, label string, vec ...float64) schemas.Observation {
	return schemas.Observation{Source: "src", Dimension: dim, Label: label, Vector: vec}
}

func recordWith(o ...schemas.Observation) *schemas.ScanRecord {
	rec := schemas.NewScanRecord("+15555550123", schemas.TierComprehensive)
	rec.Observations = o
	return rec
}

func TestAnalyze_SingleGeographicPoint(t *testing.T) {
	point := obs(schemas.DimensionGeographic, "p0", 40.7128, -74.0060)
	a := NewAnalyzer(defaultPatterns(), zaptest.NewLogger(t))

	got := a.Analyze(recordWith(point), []schemas.PatternDimension{schemas.DimensionGeographic})

	require.Len(t, got, 1)
	assert.Equal(t, schemas.DimensionGeographic, got[0].Dimension)
	assert.Equal(t, 0, got[0].ClusterCount)
	assert.Empty(t, got[0].Members)
	assert.Equal(t, []schemas.Observation{point}, got[0].Noise)
	assert.True(t, got[0].Skipped)
}

func TestAnalyze_EmptyDimension(t *testing.T) {
	a := NewAnalyzer(defaultPatterns(), zaptest.NewLogger(t))
	got := a.Analyze(recordWith(), schemas.AllDimensions)

	require.Len(t, got, 3)
	for i, pc := range got {
		assert.Equal(t, schemas.AllDimensions[i], pc.Dimension)
		assert.True(t, pc.Skipped)
		assert.Zero(t, pc.ClusterCount)
		assert.NotNil(t, pc.Members)
		assert.NotNil(t, pc.Noise)
	}
}

func TestAnalyze_Geographic(t *testing.T) {
	rec := recordWith(
		obs(schemas.DimensionGeographic, "nyc-1", 40.7128, -74.0060),
		obs(schemas.DimensionGeographic, "nyc-2", 40.7306, -73.9352), // ~6km away
		obs(schemas.DimensionGeographic, "london", 51.5074, -0.1278),
		obs(schemas.DimensionGeographic, "paris", 48.8566, 2.3522), // ~340km from London
	)
	got := NewAnalyzer(defaultPatterns(), zaptest.NewLogger(t)).
		Analyze(rec, []schemas.PatternDimension{schemas.DimensionGeographic})[0]

	assert.Equal(t, 1, got.ClusterCount)
	require.Len(t, got.Members, 2)
	assert.Equal(t, "nyc-1", got.Members[0].Point.Label)
	assert.Equal(t, "nyc-2", got.Members[1].Point.Label)
	assert.Len(t, got.Noise, 2)
	assert.False(t, got.Skipped)
}

func TestAnalyze_TemporalWrapsMidnight(t *testing.T) {
	rec := recordWith(
		obs(schemas.DimensionTemporal, "late", 23.5),
		obs(schemas.DimensionTemporal, "early", 0.5),
		obs(schemas.DimensionTemporal, "noon", 12),
		obs(schemas.DimensionTemporal, "noon-ish", 13),
	)
	got := NewAnalyzer(defaultPatterns(), zaptest.NewLogger(t)).
		Analyze(rec, []schemas.PatternDimension{schemas.DimensionTemporal})[0]

	assert.Equal(t, 2, got.ClusterCount)
	assert.Empty(t, got.Noise)
	assert.Equal(t, got.Members[0].Cluster, got.Members[1].Cluster, "23:30 and 00:30 are one hour apart")
}

func TestAnalyze_BehavioralDropsMisshapenVectors(t *testing.T) {
	rec := recordWith(
		obs(schemas.DimensionBehavioral, "a", 10, 1),
		obs(schemas.DimensionBehavioral, "b", 11, 1),
		obs(schemas.DimensionBehavioral, "odd", 1, 2, 3),
	)
	got := NewAnalyzer(defaultPatterns(), zaptest.NewLogger(t)).
		Analyze(rec, []schemas.PatternDimension{schemas.DimensionBehavioral})[0]

	// Standardized, a and b sit exactly 2 apart on the only varying axis.
	assert.Equal(t, 0, got.ClusterCount)
	require.Len(t, got.Noise, 3)
	assert.Equal(t, "odd", got.Noise[0].Label)
}

func TestDBSCAN(t *testing.T) {
	line := func(a, b []float64) float64 {
		d := a[0] - b[0]
		if d < 0 {
			return -d
		}
		return d
	}

	t.Run("chain grows through core points", func(t *testing.T) {
		points := [][]float64{{0}, {1}, {2}, {3}, {10}}
		labels, clusters := DBSCAN(points, 1, 1, line)
		assert.Equal(t, 1, clusters)
		assert.Equal(t, []int{0, 0, 0, 0, -1}, labels)
	})

	t.Run("border point is not expanded", func(t *testing.T) {
		// With minPts 2 only {1} is core; {0} and {2} are border points
		// so {3.5} is never reached.
		points := [][]float64{{0}, {1}, {2}, {3.5}}
		labels, clusters := DBSCAN(points, 1, 2, line)
		assert.Equal(t, 1, clusters)
		assert.Equal(t, []int{0, 0, 0, -1}, labels)
	})

	t.Run("noise later claimed as border", func(t *testing.T) {
		points := [][]float64{{0}, {1}, {1.5}, {2}}
		// 0 has one neighbour (1) so it starts as noise; 1 is core.
		labels, clusters := DBSCAN(points, 1, 2, line)
		assert.Equal(t, 1, clusters)
		assert.Equal(t, []int{0, 0, 0, 0}, labels)
	})

	t.Run("no points", func(t *testing.T) {
		labels, clusters := DBSCAN(nil, 1, 1, line)
		assert.Empty(t, labels)
		assert.Zero(t, clusters)
	})
}

func TestMetrics(t *testing.T) {
	assert.InDelta(t, 343.5, Haversine([]float64{51.5074, -0.1278}, []float64{48.8566, 2.3522}), 1.0)
	assert.Zero(t, Haversine([]float64{10, 10}, []float64{10, 10}))

	assert.Equal(t, 1.0, CircularHours([]float64{23.5}, []float64{0.5}))
	assert.Equal(t, 12.0, CircularHours([]float64{0}, []float64{12}))
	assert.Equal(t, 3.0, CircularHours([]float64{2}, []float64{5}))

	dist := StandardizedEuclidean([][]float64{{0, 5}, {2, 5}})
	assert.InDelta(t, 2.0, dist([]float64{0, 5}, []float64{2, 5}), 1e-9)
	assert.InDelta(t, 0.0, dist([]float64{1, 5}, []float64{1, 900}), 1e-9, "zero-variance axes are ignored")
}
