// File: internal/llmclient/narrator_test.go
package llmclient

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/mocks"
)

func sampleReport() *schemas.ScanReport {
	rec := schemas.NewScanRecord("+15555550123", schemas.TierBasic)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec.Add(schemas.NewSuccessResult(schemas.SourceSpec{ID: "a", Category: schemas.CategoryDirectory},
		&schemas.Payload{Facts: map[string]any{"line_type": "mobile"}}, at))
	rec.Add(schemas.NewFailedResult(schemas.SourceSpec{ID: "b", Category: schemas.CategorySearchEngine},
		schemas.StatusTimeout, "attempt timed out", at))
	rec.MergedFields["line_type"] = schemas.MergedField{Value: "mobile", Source: "a", Trust: 0.8}
	rec.MergedFields["carrier"] = schemas.MergedField{Value: "Acme", Source: "a", Conflict: true}

	return &schemas.ScanReport{
		ScanID:  "scan-1",
		Subject: rec.Subject,
		Tier:    schemas.TierBasic,
		State:   schemas.StateCompleted,
		Record:  rec,
		Risk:    &schemas.RiskAssessment{Score: 0.3, Level: schemas.RiskLow},
		Patterns: []schemas.PatternCluster{
			{Dimension: schemas.DimensionGeographic, Skipped: true},
		},
	}
}

func TestNarrator_Generate(t *testing.T) {
	client := new(mocks.MockLLMClient)
	isNarrativeRequest := mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Tier == schemas.TierFast &&
			req.SystemPrompt == narratorSystemPrompt &&
			strings.Contains(req.UserPrompt, "+15555550123") &&
			strings.Contains(req.UserPrompt, `"conflicts": [`) &&
			strings.Contains(req.UserPrompt, `"status": "timeout"`)
	})
	client.On("Generate", mock.Anything, isNarrativeRequest).Return("  ## Summary\nLow risk.\n", nil).Once()

	out, err := NewNarrator(client, nil).Generate(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Equal(t, "## Summary\nLow risk.", out)
	client.AssertExpectations(t)
}

func TestNarrator_ModelTierFollowsScanTier(t *testing.T) {
	tests := []struct {
		scan schemas.Tier
		want schemas.ModelTier
	}{
		{schemas.TierBasic, schemas.TierFast},
		{schemas.TierDeep, schemas.TierPowerful},
		{schemas.TierComprehensive, schemas.TierPowerful},
	}
	for _, tt := range tests {
		t.Run(tt.scan.String(), func(t *testing.T) {
			client := new(mocks.MockLLMClient)
			client.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
				return req.Tier == tt.want
			})).Return("ok", nil).Once()

			report := sampleReport()
			report.Tier = tt.scan
			_, err := NewNarrator(client, nil).Generate(context.Background(), report)
			require.NoError(t, err)
			client.AssertExpectations(t)
		})
	}
}

func TestNarrator_RoutesBasicScansToFastClient(t *testing.T) {
	fast, powerful := new(mocks.MockLLMClient), new(mocks.MockLLMClient)
	fast.On("Generate", mock.Anything, mock.Anything).Return("fast narrative", nil).Once()
	router, err := NewLLMRouter(nil, fast, powerful)
	require.NoError(t, err)

	out, err := NewNarrator(router, nil).Generate(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Equal(t, "fast narrative", out)
	fast.AssertExpectations(t)
	powerful.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestNarrator_Generate_Failures(t *testing.T) {
	t.Run("client error", func(t *testing.T) {
		client := new(mocks.MockLLMClient)
		client.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("quota")).Once()

		_, err := NewNarrator(client, nil).Generate(context.Background(), sampleReport())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "narrative generation failed: quota")
	})

	t.Run("blank output", func(t *testing.T) {
		client := new(mocks.MockLLMClient)
		client.On("Generate", mock.Anything, mock.Anything).Return(" \n ", nil).Once()

		_, err := NewNarrator(client, nil).Generate(context.Background(), sampleReport())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no text")
	})

	t.Run("nil report", func(t *testing.T) {
		client := new(mocks.MockLLMClient)
		_, err := NewNarrator(client, nil).Generate(context.Background(), nil)
		require.Error(t, err)
		client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})
}

func TestBuildNarrativePrompt_OmitsPayloads(t *testing.T) {
	report := sampleReport()
	prompt, err := buildNarrativePrompt(report)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prompt, "Assess the following basic tier scan of +15555550123."))
	assert.Contains(t, prompt, `"line_type": "mobile"`)
	assert.Contains(t, prompt, `"dimension": "geographic"`)
	assert.NotContains(t, prompt, "document")
}
