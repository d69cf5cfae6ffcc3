package demography

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/inference-sim/episim/sim"
)

// Profile draws the creation-time traits of individuals: age from the age
// table, a key location weighted by population, a position scattered around
// that anchor, and the real-valued traits from their distributions. It
// implements sim.TraitDrawer.
type Profile struct {
	ages      *AgeTable
	anchors   []sim.Location
	cdf       []float64
	placement float64

	vulnerability ValueSampler
	immunity      ValueSampler
	mobility      ValueSampler
	radius        ValueSampler
}

// NewProfile builds a Profile from a validated Spec and the transport key
// locations.
func NewProfile(spec Spec, locations []sim.KeyLocation) (*Profile, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("profile requires at least one key location")
	}
	groups := spec.AgeGroups
	if spec.AgeGroupsFile != "" {
		loaded, err := LoadAgeGroups(spec.AgeGroupsFile)
		if err != nil {
			return nil, err
		}
		groups = loaded
	}
	if len(groups) == 0 {
		groups = DefaultAgeGroups()
	}
	ages, err := NewAgeTable(groups)
	if err != nil {
		return nil, err
	}
	p := &Profile{ages: ages, placement: spec.PlacementSigma}

	total := 0.0
	for _, k := range locations {
		total += k.Population
	}
	cumulative := 0.0
	for _, k := range locations {
		p.anchors = append(p.anchors, k.Location())
		if total > 0 {
			cumulative += k.Population / total
		} else {
			cumulative += 1 / float64(len(locations))
		}
		p.cdf = append(p.cdf, cumulative)
	}
	p.cdf[len(p.cdf)-1] = 1.0

	for _, s := range []struct {
		name string
		spec DistSpec
		dst  *ValueSampler
	}{
		{"vulnerability", spec.Vulnerability, &p.vulnerability},
		{"immunity", spec.Immunity, &p.immunity},
		{"mobility", spec.Mobility, &p.mobility},
		{"infection_radius", spec.InfectionRadius, &p.radius},
	} {
		sampler, err := NewValueSampler(s.spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		*s.dst = sampler
	}
	return p, nil
}

// Draw implements sim.TraitDrawer. Draw order is fixed so a given generator
// state always yields the same individual.
func (p *Profile) Draw(rng *rand.Rand) (sim.Traits, error) {
	age := p.ages.Sample(rng)
	k := sort.SearchFloat64s(p.cdf, rng.Float64())
	if k >= len(p.anchors) {
		k = len(p.anchors) - 1
	}
	anchor := p.anchors[k]
	loc := sim.Location{
		X: anchor.X + rng.NormFloat64()*p.placement,
		Y: anchor.Y + rng.NormFloat64()*p.placement,
	}
	return sim.Traits{
		Age:             age,
		Location:        loc,
		KeyLocation:     k,
		Vulnerability:   p.vulnerability.Sample(rng),
		Immunity:        p.immunity.Sample(rng),
		Mobility:        p.mobility.Sample(rng),
		InfectionRadius: p.radius.Sample(rng),
	}, nil
}
