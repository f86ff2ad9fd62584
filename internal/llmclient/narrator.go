// File: internal/llmclient/narrator.go
package llmclient

import (
	"context"
	"fmt"
	"sort"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

const narratorSystemPrompt = `You are an OSINT analyst reviewing an automated phone number enrichment scan.
Write a concise markdown assessment with the sections "Summary", "Key Findings",
"Risk" and "Recommended Actions". Only use facts present in the scan data. Call out
conflicting source values and sources that failed. Do not invent owners, addresses
or accounts.`

// Narrator implements schemas.ReportGenerator on top of an LLMClient.
type Narrator struct {
	client schemas.LLMClient
	logger *zap.Logger
}

var _ schemas.ReportGenerator = (*Narrator)(nil)

// NewNarrator wraps client.
func NewNarrator(client schemas.LLMClient, logger *zap.Logger) *Narrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Narrator{
		client: client,
		logger: logger.Named("narrator"),
	}
}

// modelTierFor picks the model for a scan tier. Basic scans carry only a few
// directory and reputation facts, so the fast model is enough for them.
func modelTierFor(t schemas.Tier) schemas.ModelTier {
	if t == schemas.TierBasic {
		return schemas.TierFast
	}
	return schemas.TierPowerful
}

// Generate produces a markdown narrative for a completed report.
func (n *Narrator) Generate(ctx context.Context, report *schemas.ScanReport) (string, error) {
	if report == nil {
		return "", fmt.Errorf("cannot narrate a nil report")
	}

	prompt, err := buildNarrativePrompt(report)
	if err != nil {
		return "", err
	}

	tier := modelTierFor(report.Tier)
	n.logger.Debug("Requesting scan narrative",
		zap.String("scan_id", report.ScanID),
		zap.String("model_tier", string(tier)),
		zap.Int("prompt_bytes", len(prompt)))

	out, err := n.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: narratorSystemPrompt,
		UserPrompt:   prompt,
		Tier:         tier,
		Options:      schemas.GenerationOptions{Temperature: 0.2},
	})
	if err != nil {
		return "", fmt.Errorf("narrative generation failed: %w", err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("narrative generation returned no text")
	}
	return out, nil
}

// narrativeInput is the trimmed view of a report sent to the model. Raw
// payloads stay out of the prompt.
type narrativeInput struct {
	Subject   string                   `json:"subject"`
	Tier      string                   `json:"tier"`
	Fields    map[string]any           `json:"fields"`
	Conflicts []string                 `json:"conflicts,omitempty"`
	Sources   []narrativeSource        `json:"sources"`
	Risk      *schemas.RiskAssessment  `json:"risk,omitempty"`
	Patterns  []narrativePatternDigest `json:"patterns,omitempty"`
}

type narrativeSource struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type narrativePatternDigest struct {
	Dimension string `json:"dimension"`
	Clusters  int    `json:"clusters"`
	Noise     int    `json:"noise"`
	Skipped   bool   `json:"skipped,omitempty"`
}

func buildNarrativePrompt(report *schemas.ScanReport) (string, error) {
	in := narrativeInput{
		Subject: report.Subject.String(),
		Tier:    report.Tier.String(),
		Fields:  map[string]any{},
		Risk:    report.Risk,
	}

	if rec := report.Record; rec != nil {
		for name, f := range rec.MergedFields {
			in.Fields[name] = f.Value
			if f.Conflict {
				in.Conflicts = append(in.Conflicts, name)
			}
		}
		sort.Strings(in.Conflicts)
		for _, id := range rec.SortedSourceIDs() {
			res := rec.Results[id]
			in.Sources = append(in.Sources, narrativeSource{
				ID:       id,
				Category: string(res.Category),
				Status:   string(res.Status),
				Error:    res.Error,
			})
		}
	}
	for _, p := range report.Patterns {
		in.Patterns = append(in.Patterns, narrativePatternDigest{
			Dimension: string(p.Dimension),
			Clusters:  p.ClusterCount,
			Noise:     len(p.Noise),
			Skipped:   p.Skipped,
		})
	}

	data, err := json.ConfigCompatibleWithStandardLibrary.MarshalIndent(in, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode scan for narrative: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Assess the following %s tier scan of %s.\n\n", in.Tier, in.Subject)
	b.WriteString("```json\n")
	b.Write(data)
	b.WriteString("\n```\n")
	return b.String(), nil
}
