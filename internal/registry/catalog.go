package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/config"
)

// NumberingPlanSource is the in-process source backed by the phone library.
const NumberingPlanSource = "numbering-plan"

// DefaultCatalog returns the built-in sources. Only the numbering plan is
// backed out of the box; the rest are declared so deployments can point them
// at real endpoints through sources.endpoints or a catalog file.
func DefaultCatalog() []schemas.SourceSpec {
	return []schemas.SourceSpec{
		{
			ID:            NumberingPlanSource,
			Category:      schemas.CategoryDirectory,
			Tier:          schemas.TierBasic,
			QueryTemplate: schemas.LocalScheme + NumberingPlanSource,
			Trust:         0.9,
			Fields: map[string]string{
				schemas.FieldCarrier:     "carrier",
				schemas.FieldRegion:      "region",
				schemas.FieldRegionCode:  "region_code",
				schemas.FieldLineType:    "line_type",
				schemas.FieldCountryCode: "country_code",
			},
			Description: "Numbering plan metadata from libphonenumber",
		},
		{
			ID:       "carrier-lookup",
			Category: schemas.CategoryDirectory,
			Tier:     schemas.TierBasic,
			Trust:    0.8,
			Fields: map[string]string{
				schemas.FieldCarrier:   "carrier.name",
				schemas.FieldLineType:  "carrier.type",
				schemas.FieldRegion:    "location",
				schemas.FieldOwnerName: "caller_name",
			},
			Description: "HLR / CNAM style carrier lookup",
		},
		{
			ID:       "spam-reports",
			Category: schemas.CategoryReputation,
			Tier:     schemas.TierBasic,
			Trust:    0.6,
			Fields: map[string]string{
				schemas.FieldSpamProbability: "spam_score",
				schemas.FieldReportCount:     "reports.total",
				schemas.FieldActivityTimes:   "reports.timestamps",
			},
			RateLimit:   2,
			Description: "Crowd-sourced spam and scam reports",
		},
		{
			ID:       "web-search",
			Category: schemas.CategorySearchEngine,
			Tier:     schemas.TierDeep,
			Trust:    0.4,
			Fields: map[string]string{
				schemas.FieldMentions:      "total_results",
				schemas.FieldOwnerName:     "results.0.title",
				schemas.FieldGeoPoints:     "locations",
				schemas.FieldActivityTimes: "results_dates",
			},
			RateLimit:   1,
			Description: "Search engine mentions of the number",
		},
		{
			ID:       "fraud-score",
			Category: schemas.CategoryReputation,
			Tier:     schemas.TierDeep,
			Trust:    0.7,
			Fields: map[string]string{
				schemas.FieldFraudScore: "fraud_score",
				schemas.FieldLineType:   "line_type",
				schemas.FieldCarrier:    "carrier",
				schemas.FieldGeoPoints:  "recent_locations",
			},
			Description: "Commercial fraud scoring API",
		},
		{
			ID:       "social-footprint",
			Category: schemas.CategorySocial,
			Tier:     schemas.TierDeep,
			Trust:    0.5,
			Fields: map[string]string{
				schemas.FieldSocialProfiles:  "profiles",
				schemas.FieldActivityHours:   "activity.hours",
				schemas.FieldBehaviorSamples: "activity.sessions",
			},
			Description: "Registered accounts on social platforms",
		},
		{
			ID:       "breach-check",
			Category: schemas.CategoryBreach,
			Tier:     schemas.TierComprehensive,
			Trust:    0.7,
			Fields: map[string]string{
				schemas.FieldBreachCount: "breaches.count",
			},
			Description: "Known credential or data breach exposure",
		},
		{
			ID:       "deep-web-index",
			Category: schemas.CategoryBreach,
			Tier:     schemas.TierComprehensive,
			Trust:    0.3,
			Fields: map[string]string{
				schemas.FieldBreachCount:     "hits",
				schemas.FieldBehaviorSamples: "listings",
			},
			Description: "Paste site and marketplace listings",
		},
	}
}

// catalogFile is the on-disk YAML layout.
type catalogFile struct {
	Sources []schemas.SourceSpec `yaml:"sources"`
}

// LoadCatalogFile reads a YAML catalog.
func LoadCatalogFile(path string) ([]schemas.SourceSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse source catalog %s: %w", path, err)
	}
	for i, s := range file.Sources {
		if s.Tier == 0 {
			file.Sources[i].Tier = schemas.TierBasic
		}
		if err := Validate(file.Sources[i]); err != nil {
			return nil, fmt.Errorf("source catalog %s: %w", path, err)
		}
	}
	return file.Sources, nil
}

// Build assembles the registry used by a run: the default catalog, then the
// optional catalog file (same ID replaces in place, new IDs append), then
// per-source endpoint and trust overrides, then removals.
func Build(cfg config.SourcesConfig) (*Registry, error) {
	reg, err := NewWithSpecs(DefaultCatalog()...)
	if err != nil {
		return nil, err
	}

	if cfg.CatalogFile != "" {
		extra, err := LoadCatalogFile(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		for _, s := range extra {
			if _, exists := reg.Get(s.ID); exists {
				err = reg.Replace(s)
			} else {
				err = reg.Register(s)
			}
			if err != nil {
				return nil, err
			}
		}
	}

	for id, endpoint := range cfg.Endpoints {
		spec, ok := reg.Get(id)
		if !ok {
			return nil, fmt.Errorf("sources.endpoints.%s: unknown source", id)
		}
		spec.QueryTemplate = endpoint
		if err := reg.Replace(spec); err != nil {
			return nil, err
		}
	}
	for id, trust := range cfg.Trust {
		spec, ok := reg.Get(id)
		if !ok {
			return nil, fmt.Errorf("sources.trust.%s: unknown source", id)
		}
		spec.Trust = trust
		if err := reg.Replace(spec); err != nil {
			return nil, err
		}
	}
	for _, id := range cfg.Disabled {
		reg.Remove(id)
	}
	return reg, nil
}
