// File: internal/aggregate/aggregate_test.go
package aggregate

import (
	"bytes"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/config"
	"github.com/xkilldash9x/dialtone/internal/reporting"
	"github.com/xkilldash9x/dialtone/internal/risk"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func success(id string, at time.Time, facts map[string]any) schemas.SourceResult {
	spec := schemas.SourceSpec{ID: id, Category: schemas.CategoryDirectory, Tier: schemas.TierBasic}
	return schemas.NewSuccessResult(spec, &schemas.Payload{Facts: facts}, at)
}

func failure(id string, status schemas.SourceStatus) schemas.SourceResult {
	spec := schemas.SourceSpec{ID: id, Category: schemas.CategoryDirectory, Tier: schemas.TierBasic}
	return schemas.NewFailedResult(spec, status, "nope", t0)
}

func record(results ...schemas.SourceResult) *schemas.ScanRecord {
	r := schemas.NewScanRecord("+15555550123", schemas.TierDeep)
	for _, res := range results {
		r.Add(res)
	}
	return r
}

func TestMerge_Precedence(t *testing.T) {
	trust := map[string]float64{"alpha": 0.5, "bravo": 0.9, "charlie": 0.5, "delta": 0.5}

	t.Run("highest trust wins", func(t *testing.T) {
		rec := New(trust, zaptest.NewLogger(t)).Merge(record(
			success("alpha", t0, map[string]any{schemas.FieldCarrier: "Alpha Mobile"}),
			success("bravo", t0.Add(time.Minute), map[string]any{schemas.FieldCarrier: "Bravo Telecom"}),
		))
		mf := rec.MergedFields[schemas.FieldCarrier]
		assert.Equal(t, "Bravo Telecom", mf.Value)
		assert.Equal(t, "bravo", mf.Source)
		assert.Equal(t, 0.9, mf.Trust)
		require.Len(t, mf.Alternates, 1)
		assert.Equal(t, "alpha", mf.Alternates[0].Source)
		assert.True(t, mf.Conflict)
	})

	t.Run("trust tie goes to earliest observation", func(t *testing.T) {
		rec := New(trust, zaptest.NewLogger(t)).Merge(record(
			success("alpha", t0.Add(time.Second), map[string]any{schemas.FieldOwnerName: "A"}),
			success("charlie", t0, map[string]any{schemas.FieldOwnerName: "C"}),
		))
		assert.Equal(t, "charlie", rec.MergedFields[schemas.FieldOwnerName].Source)
	})

	t.Run("full tie goes to lowest source id", func(t *testing.T) {
		rec := New(trust, zaptest.NewLogger(t)).Merge(record(
			success("delta", t0, map[string]any{schemas.FieldOwnerName: "D"}),
			success("charlie", t0, map[string]any{schemas.FieldOwnerName: "C"}),
		))
		assert.Equal(t, "charlie", rec.MergedFields[schemas.FieldOwnerName].Source)
		assert.Equal(t, "C", rec.MergedFields[schemas.FieldOwnerName].Value)
	})

	t.Run("unknown sources rank last", func(t *testing.T) {
		rec := New(trust, zaptest.NewLogger(t)).Merge(record(
			success("zulu", t0.Add(-time.Hour), map[string]any{schemas.FieldRegion: "Z"}),
			success("alpha", t0, map[string]any{schemas.FieldRegion: "A"}),
		))
		assert.Equal(t, "alpha", rec.MergedFields[schemas.FieldRegion].Source)
	})
}

func TestMerge_ConflictDetection(t *testing.T) {
	trust := map[string]float64{"a": 0.9, "b": 0.5, "c": 0.4}

	rec := New(trust, zaptest.NewLogger(t)).Merge(record(
		success("a", t0, map[string]any{schemas.FieldCarrier: "Verizon", schemas.FieldSpamProbability: 0.5}),
		success("b", t0, map[string]any{schemas.FieldCarrier: " verizon ", schemas.FieldSpamProbability: 50}),
		success("c", t0, map[string]any{schemas.FieldCarrier: "VERIZON"}),
	))

	carrier := rec.MergedFields[schemas.FieldCarrier]
	assert.False(t, carrier.Conflict, "values differing only in case and space agree")
	assert.Len(t, carrier.Alternates, 2)

	spam := rec.MergedFields[schemas.FieldSpamProbability]
	assert.True(t, spam.Conflict)
	assert.Equal(t, 0.5, spam.Value)
}

func TestMerge_IgnoresFailedSources(t *testing.T) {
	rec := New(map[string]float64{"ok": 0.1, "bad": 1}, zaptest.NewLogger(t)).Merge(record(
		success("ok", t0, map[string]any{schemas.FieldCarrier: "X"}),
		failure("bad", schemas.StatusTimeout),
		failure("limited", schemas.StatusRateLimited),
	))

	assert.Len(t, rec.Results, 3, "failed sources stay in the record")
	require.Contains(t, rec.MergedFields, schemas.FieldCarrier)
	assert.Equal(t, "ok", rec.MergedFields[schemas.FieldCarrier].Source)
	assert.Empty(t, rec.MergedFields[schemas.FieldCarrier].Alternates)
}

func TestMerge_OrderIndependent(t *testing.T) {
	trust := map[string]float64{"s1": 0.7, "s2": 0.7, "s3": 0.4, "s4": 0.9}
	results := []schemas.SourceResult{
		success("s1", t0, map[string]any{
			schemas.FieldCarrier:   "One",
			schemas.FieldGeoPoints: []any{[]any{40.7, -74.0}, []any{40.71, -74.01}},
		}),
		success("s2", t0, map[string]any{
			schemas.FieldCarrier:       "Two",
			schemas.FieldActivityHours: []any{1.0, 2.5, 23.0},
		}),
		success("s3", t0.Add(-time.Minute), map[string]any{schemas.FieldOwnerName: "Three"}),
		failure("s4", schemas.StatusError),
		success("s5", t0, map[string]any{schemas.FieldBehaviorSamples: []any{map[string]any{"calls": 3.0, "sms": 1.0}}}),
	}

	want := New(trust, zaptest.NewLogger(t)).Merge(record(results...))
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]schemas.SourceResult, len(results))
		copy(shuffled, results)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := New(trust, zaptest.NewLogger(t)).Merge(record(shuffled...))
		if diff := cmp.Diff(want.MergedFields, got.MergedFields); diff != "" {
			t.Fatalf("merged fields depend on arrival order (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(want.Observations, got.Observations); diff != "" {
			t.Fatalf("observations depend on arrival order (-want +got):\n%s", diff)
		}
	}
}

func TestMergeAndScore_ByteIdentical(t *testing.T) {
	trust := map[string]float64{"dir": 0.8, "rep": 0.6, "fraud": 0.6, "web": 0.4}
	results := []schemas.SourceResult{
		success("dir", t0, map[string]any{
			schemas.FieldCarrier:  "TextNow",
			schemas.FieldLineType: "voip",
		}),
		success("rep", t0.Add(time.Second), map[string]any{
			schemas.FieldSpamProbability: 0.7,
			schemas.FieldReportCount:     12.0,
			schemas.FieldLineType:        "mobile",
		}),
		success("fraud", t0, map[string]any{
			schemas.FieldFraudScore: "81%",
			schemas.FieldGeoPoints:  []any{"40.7,-74.0"},
		}),
		success("web", t0, map[string]any{schemas.FieldActivityTimes: []any{"2024-05-01T03:00:00Z"}}),
		failure("breach", schemas.StatusTimeout),
	}
	scorer := risk.NewScorer(config.RiskConfig{
		Weights:          map[string]float64{risk.FactorSpamProbability: 2},
		HighRiskCarriers: []string{"textnow"},
	}, zaptest.NewLogger(t))

	encode := func(in []schemas.SourceResult) []byte {
		rec := New(trust, zaptest.NewLogger(t)).Merge(record(in...))
		out, err := json.ConfigCompatibleWithStandardLibrary.Marshal(struct {
			Record *schemas.ScanRecord     `json:"record"`
			Risk   *schemas.RiskAssessment `json:"risk"`
		}{rec, scorer.Score(rec)})
		require.NoError(t, err)
		return out
	}

	want := encode(results)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 25; i++ {
		shuffled := make([]schemas.SourceResult, len(results))
		copy(shuffled, results)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		if diff := cmp.Diff(string(want), string(encode(shuffled))); diff != "" {
			t.Fatalf("merge+score output depends on arrival order (-want +got):\n%s", diff)
		}
	}
}

func TestMerge_Idempotent(t *testing.T) {
	a := New(map[string]float64{"s": 0.5}, zaptest.NewLogger(t))
	rec := record(success("s", t0, map[string]any{
		schemas.FieldCarrier:       "X",
		schemas.FieldActivityHours: []any{3.0},
	}))
	first := a.Merge(rec)
	fields, obs := first.MergedFields, first.Observations

	second := a.Merge(rec)
	assert.Equal(t, fields, second.MergedFields)
	assert.Equal(t, obs, second.Observations)
}

func TestMerge_NonFiniteValuesStayEncodable(t *testing.T) {
	rec := New(map[string]float64{"xml-geo": 0.5}, zaptest.NewLogger(t)).Merge(record(
		success("xml-geo", t0, map[string]any{
			schemas.FieldGeoPoints:       []any{"NaN,NaN", "Inf, 2", "51.5,-0.12"},
			schemas.FieldActivityHours:   []any{"NaN", "+Inf", 3.0},
			schemas.FieldBehaviorSamples: []any{map[string]any{"calls": "NaN"}, []any{1.0, 2.0}},
		}),
	))

	require.Len(t, rec.Observations, 3, "only the finite entries survive")
	for _, o := range rec.Observations {
		for _, v := range o.Vector {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s: %v", o.Label, o.Vector)
		}
	}

	var buf bytes.Buffer
	reporter, err := reporting.NewForWriter("json", &buf, "test")
	require.NoError(t, err)
	require.NoError(t, reporter.Write(&schemas.ScanOutput{Report: &schemas.ScanReport{
		Subject: rec.Subject,
		Tier:    rec.Tier,
		State:   schemas.StateCompleted,
		Record:  rec,
	}}))
	require.NoError(t, reporter.Close(), "the whole document must stay encodable")
	assert.Contains(t, buf.String(), "51.5")
}

func TestNumber(t *testing.T) {
	for _, in := range []any{"NaN", "nan", "Inf", "-Infinity", math.NaN(), math.Inf(-1), "x", nil} {
		_, ok := number(in)
		assert.False(t, ok, "%v", in)
	}
	f, ok := number(" 2.5 ")
	require.True(t, ok)
	assert.Equal(t, 2.5, f)
}

func TestExtractObservations(t *testing.T) {
	t.Run("geo points in several shapes", func(t *testing.T) {
		obs := extractObservations("web", schemas.FieldGeoPoints, []any{
			[]any{51.5, -0.12},
			map[string]any{"latitude": "48.85", "lng": 2.35},
			"35.68, 139.69",
			[]any{91.0, 0.0},
			"nowhere",
		})
		require.Len(t, obs, 3)
		assert.Equal(t, []float64{51.5, -0.12}, obs[0].Vector)
		assert.Equal(t, []float64{48.85, 2.35}, obs[1].Vector)
		assert.Equal(t, []float64{35.68, 139.69}, obs[2].Vector)
		assert.Equal(t, "web[2]", obs[2].Label)
		assert.Equal(t, schemas.DimensionGeographic, obs[0].Dimension)
	})

	t.Run("activity times become hours", func(t *testing.T) {
		obs := extractObservations("spam", schemas.FieldActivityTimes, []any{
			"2024-05-01T13:30:00Z",
			float64(t0.Unix()),
			"garbage",
		})
		require.Len(t, obs, 2)
		assert.Equal(t, []float64{13.5}, obs[0].Vector)
		assert.Equal(t, []float64{12}, obs[1].Vector)
		assert.Equal(t, schemas.DimensionTemporal, obs[1].Dimension)
	})

	t.Run("activity hours are range checked", func(t *testing.T) {
		obs := extractObservations("s", schemas.FieldActivityHours, []any{0.0, 23.9, 24.0, -1.0})
		assert.Len(t, obs, 2)
	})

	t.Run("scalar is treated as one entry", func(t *testing.T) {
		obs := extractObservations("s", schemas.FieldActivityHours, 7.0)
		require.Len(t, obs, 1)
		assert.Equal(t, []float64{7}, obs[0].Vector)
	})

	t.Run("behaviour samples", func(t *testing.T) {
		obs := extractObservations("s", schemas.FieldBehaviorSamples, []any{
			[]any{1.0, 2.0},
			map[string]any{"b": 2.0, "a": 1.0},
			[]any{"x"},
		})
		require.Len(t, obs, 2)
		assert.Equal(t, []float64{1, 2}, obs[1].Vector, "object keys are ordered")
	})
}
