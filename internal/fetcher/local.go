// File: internal/fetcher/local.go
package fetcher

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/registry"
)

// regionCoder is implemented by validators that can name the ISO region.
type regionCoder interface {
	RegionCode(n schemas.ParsedNumber) string
}

// NumberingPlan answers the numbering-plan source from the phone library's
// offline metadata.
type NumberingPlan struct {
	phone schemas.PhoneValidator
}

var _ schemas.LocalSource = (*NumberingPlan)(nil)

// NewNumberingPlan creates the local numbering-plan source.
func NewNumberingPlan(phone schemas.PhoneValidator) *NumberingPlan {
	return &NumberingPlan{phone: phone}
}

// Name implements schemas.LocalSource.
func (n *NumberingPlan) Name() string { return registry.NumberingPlanSource }

// Lookup implements schemas.LocalSource.
func (n *NumberingPlan) Lookup(ctx context.Context, subject schemas.SubjectIdentifier) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := n.phone.Parse(subject.String(), "")
	if err != nil {
		return nil, fmt.Errorf("numbering plan lookup failed: %w", err)
	}

	doc := map[string]any{
		"country_code": float64(parsed.CountryCode),
		"line_type":    string(n.phone.LineType(parsed)),
		"valid":        n.phone.IsValid(parsed),
	}
	if carrier := n.phone.CarrierName(parsed); carrier != "" {
		doc["carrier"] = carrier
	}
	if region := n.phone.RegionDescription(parsed); region != "" {
		doc["region"] = region
	}
	if rc, ok := n.phone.(regionCoder); ok {
		if code := rc.RegionCode(parsed); code != "" {
			doc["region_code"] = code
		}
	}
	return doc, nil
}
