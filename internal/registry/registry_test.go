package registry

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/config"
)

func spec(id string, tier schemas.Tier) schemas.SourceSpec {
	return schemas.SourceSpec{ID: id, Category: schemas.CategoryDirectory, Tier: tier, Trust: 0.5}
}

func ids(specs []schemas.SourceSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.ID
	}
	return out
}

func TestForTierIsCumulativeAndOrdered(t *testing.T) {
	reg, err := NewWithSpecs(
		spec("c-deep", schemas.TierDeep),
		spec("a-basic", schemas.TierBasic),
		spec("d-comp", schemas.TierComprehensive),
		spec("b-basic", schemas.TierBasic),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"a-basic", "b-basic"}, ids(reg.ForTier(schemas.TierBasic)))
	assert.Equal(t, []string{"c-deep", "a-basic", "b-basic"}, ids(reg.ForTier(schemas.TierDeep)))
	assert.Equal(t, []string{"c-deep", "a-basic", "d-comp", "b-basic"}, ids(reg.ForTier(schemas.TierComprehensive)))
	assert.Empty(t, reg.ForTier(schemas.Tier(0)))
}

func TestRegisterRejects(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register(spec("a", schemas.TierBasic)))

	assert.ErrorContains(t, reg.Register(spec("a", schemas.TierDeep)), "already registered")
	assert.Error(t, reg.Register(spec("", schemas.TierBasic)))
	assert.Error(t, reg.Register(spec("bad-tier", schemas.Tier(7))))

	bad := spec("bad-cat", schemas.TierBasic)
	bad.Category = "tea-leaves"
	assert.Error(t, reg.Register(bad))

	bad = spec("bad-trust", schemas.TierBasic)
	bad.Trust = 1.2
	assert.Error(t, reg.Register(bad))
	assert.Equal(t, 1, reg.Len())
}

func TestSpecsAreImmutable(t *testing.T) {
	s := spec("a", schemas.TierBasic)
	s.Fields = map[string]string{"carrier": "carrier.name"}
	reg, err := NewWithSpecs(s)
	require.NoError(t, err)

	s.Fields["carrier"] = "mutated"
	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, "carrier.name", got.Fields["carrier"])

	got.Fields["carrier"] = "mutated again"
	again, _ := reg.Get("a")
	assert.Equal(t, "carrier.name", again.Fields["carrier"])
}

func TestReplaceAndRemoveKeepOrder(t *testing.T) {
	reg, err := NewWithSpecs(spec("a", schemas.TierBasic), spec("b", schemas.TierBasic), spec("c", schemas.TierBasic))
	require.NoError(t, err)

	updated := spec("b", schemas.TierDeep)
	require.NoError(t, reg.Replace(updated))
	assert.Error(t, reg.Replace(spec("zz", schemas.TierBasic)))
	assert.Equal(t, []string{"a", "b", "c"}, ids(reg.All()))
	assert.Equal(t, []string{"a", "c"}, ids(reg.ForTier(schemas.TierBasic)))

	assert.True(t, reg.Remove("a"))
	assert.False(t, reg.Remove("a"))
	got, ok := reg.Get("c")
	require.True(t, ok)
	assert.Equal(t, "c", got.ID)
	assert.Equal(t, []string{"b", "c"}, ids(reg.All()))
}

func TestTrust(t *testing.T) {
	a := spec("a", schemas.TierBasic)
	a.Trust = 0.9
	reg, err := NewWithSpecs(a, spec("b", schemas.TierBasic))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"a": 0.9, "b": 0.5}, reg.Trust())
}

func TestConcurrentReads(t *testing.T) {
	reg, err := NewWithSpecs(DefaultCatalog()...)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.ForTier(schemas.TierComprehensive)
			_ = reg.Trust()
		}()
	}
	wg.Wait()
}

func TestDefaultCatalog(t *testing.T) {
	reg, err := NewWithSpecs(DefaultCatalog()...)
	require.NoError(t, err)

	basic := reg.ForTier(schemas.TierBasic)
	require.NotEmpty(t, basic)
	assert.Equal(t, NumberingPlanSource, basic[0].ID)
	assert.True(t, basic[0].IsLocal())

	for _, id := range []string{"breach-check", "deep-web-index"} {
		s, ok := reg.Get(id)
		require.True(t, ok, id)
		assert.False(t, s.HasEndpoint(), "%s ships without an endpoint", id)
		assert.Equal(t, schemas.TierComprehensive, s.Tier)
	}
	assert.Greater(t, len(reg.ForTier(schemas.TierComprehensive)), len(reg.ForTier(schemas.TierDeep)))
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `
sources:
  - id: carrier-lookup
    category: directory
    tier: basic
    trust: 0.95
    query_template: "https://lookup.example.test/v1/{digits}"
    headers:
      Authorization: "Bearer abc"
    fields:
      carrier: data.carrier
  - id: community-blocklist
    category: reputation
    query_template: "https://blocklist.example.test/check?n={number}"
    trust: 0.4
    rate_limit: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	specs, err := LoadCatalogFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, schemas.TierBasic, specs[0].Tier)
	assert.Equal(t, "Bearer abc", specs[0].Headers["Authorization"])
	assert.Equal(t, schemas.TierBasic, specs[1].Tier, "tier defaults to basic")
	assert.Equal(t, 0.5, specs[1].RateLimit)

	t.Run("build merges catalog and overrides", func(t *testing.T) {
		reg, err := Build(config.SourcesConfig{
			CatalogFile: path,
			Endpoints:   map[string]string{"breach-check": "https://breach.example.test/{digits}"},
			Trust:       map[string]float64{"spam-reports": 0.2},
			Disabled:    []string{"deep-web-index"},
		})
		require.NoError(t, err)

		carrier, _ := reg.Get("carrier-lookup")
		assert.Equal(t, 0.95, carrier.Trust)
		assert.Equal(t, "https://lookup.example.test/v1/{digits}", carrier.QueryTemplate)

		all := ids(reg.All())
		assert.Equal(t, "community-blocklist", all[len(all)-1], "new sources append")
		assert.Equal(t, 1, indexOf(all, "carrier-lookup"), "replaced sources keep their slot")

		breach, _ := reg.Get("breach-check")
		assert.True(t, breach.HasEndpoint())
		assert.Equal(t, 0.2, reg.Trust()["spam-reports"])
		_, ok := reg.Get("deep-web-index")
		assert.False(t, ok)
	})

	t.Run("unknown override target", func(t *testing.T) {
		_, err := Build(config.SourcesConfig{Endpoints: map[string]string{"nope": "x"}})
		assert.ErrorContains(t, err, "unknown source")
	})
}

func TestLoadCatalogFileErrors(t *testing.T) {
	_, err := LoadCatalogFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources:\n  - id: x\n    category: nonsense\n"), 0o600))
	_, err = LoadCatalogFile(path)
	assert.ErrorContains(t, err, "unknown category")

	require.NoError(t, os.WriteFile(path, []byte("sources:\n  - id: x\n    category: social\n    tier: ultra\n"), 0o600))
	_, err = LoadCatalogFile(path)
	assert.Error(t, err)
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
