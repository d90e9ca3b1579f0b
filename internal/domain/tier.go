package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tier selects the fixed shot-count, duration and price combination for a job.
type Tier string

const (
	TierShort    Tier = "short"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// TierSpec describes what a tier buys.
type TierSpec struct {
	CutCount     int `yaml:"cuts"`
	TotalSeconds int `yaml:"seconds"`
	PriceCredits int `yaml:"credits"`
}

// TierCatalog maps tiers to their specs.
type TierCatalog map[Tier]TierSpec

// DefaultTierCatalog returns the built-in tier definitions.
func DefaultTierCatalog() TierCatalog {
	return TierCatalog{
		TierShort:    {CutCount: 4, TotalSeconds: 16, PriceCredits: 40},
		TierStandard: {CutCount: 6, TotalSeconds: 25, PriceCredits: 80},
		TierPremium:  {CutCount: 8, TotalSeconds: 40, PriceCredits: 150},
	}
}

// LoadTierCatalog reads tier overrides from a YAML file. An empty path returns
// the defaults unchanged; overrides are merged per tier so a partial file only
// replaces the tiers it names.
func LoadTierCatalog(path string) (TierCatalog, error) {
	catalog := DefaultTierCatalog()
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tier catalog: read %s: %w", path, err)
	}
	var file struct {
		Tiers map[Tier]TierSpec `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("tier catalog: parse %s: %w", path, err)
	}
	for tier, spec := range file.Tiers {
		if spec.CutCount < 2 {
			return nil, fmt.Errorf("tier catalog: tier %q needs at least 2 cuts", tier)
		}
		catalog[tier] = spec
	}
	return catalog, nil
}

// Lookup resolves a tier by name, falling back to standard for unknown values.
func (c TierCatalog) Lookup(tier Tier) (Tier, TierSpec) {
	if spec, ok := c[tier]; ok {
		return tier, spec
	}
	return TierStandard, c[TierStandard]
}
