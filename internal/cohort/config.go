package cohort

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// #region file-format

// profilesFile is the on-disk YAML shape. Absent tiers keep their defaults;
// a present tier replaces its whole coefficient table.
type profilesFile struct {
	Tiers   map[string]Coefficients `yaml:"tiers"`
	Cohorts map[int]string          `yaml:"cohorts"`
}

// #endregion

// #region load

// LoadFile reads a profiles YAML and overlays it on the defaults.
func LoadFile(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}
	return Parse(data)
}

// Parse overlays YAML bytes on DefaultProfiles.
func Parse(data []byte) (*Profiles, error) {
	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	p := DefaultProfiles()
	for name, c := range f.Tiers {
		tier, err := parseTier(name)
		if err != nil {
			return nil, err
		}
		p.coeffs[tier] = c
	}
	for id, name := range f.Cohorts {
		tier, err := parseTier(name)
		if err != nil {
			return nil, err
		}
		p.cohortTier[id] = tier
	}
	return p, nil
}

func parseTier(name string) (Tier, error) {
	switch Tier(name) {
	case TierWeak, TierMedium, TierStrong:
		return Tier(name), nil
	}
	return "", fmt.Errorf("unknown tier %q", name)
}

// #endregion
