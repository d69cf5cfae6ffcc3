package demography

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// AgeGroup is one row of an age distribution table: the proportion of the
// population with age in [MinAge, MaxAge].
type AgeGroup struct {
	MinAge     int     `yaml:"min_age" csv:"min_age"`
	MaxAge     int     `yaml:"max_age" csv:"max_age"`
	Proportion float64 `yaml:"proportion" csv:"proportion"`
}

// AgeTable samples ages by inverse CDF over groups, then uniformly within the
// chosen group.
type AgeTable struct {
	groups []AgeGroup
	cdf    []float64
}

// NewAgeTable normalizes proportions into a CDF. Groups with zero proportion
// are dropped.
func NewAgeTable(groups []AgeGroup) (*AgeTable, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("age table requires at least one group")
	}
	total := 0.0
	for i, g := range groups {
		if g.MinAge < 0 || g.MaxAge < g.MinAge {
			return nil, fmt.Errorf("age_groups[%d]: invalid age range [%d, %d]", i, g.MinAge, g.MaxAge)
		}
		if !(g.Proportion >= 0) {
			return nil, fmt.Errorf("age_groups[%d]: proportion must be non-negative, got %v", i, g.Proportion)
		}
		total += g.Proportion
	}
	if !(total > 0) {
		return nil, fmt.Errorf("age table proportions sum to %v, want > 0", total)
	}

	t := &AgeTable{}
	cumulative := 0.0
	for _, g := range groups {
		if g.Proportion == 0 {
			continue
		}
		cumulative += g.Proportion / total
		t.groups = append(t.groups, g)
		t.cdf = append(t.cdf, cumulative)
	}
	// Ensure last CDF entry is exactly 1.0
	t.cdf[len(t.cdf)-1] = 1.0
	return t, nil
}

// Sample draws one age. Consumes two draws.
func (t *AgeTable) Sample(rng *rand.Rand) int {
	idx := sort.SearchFloat64s(t.cdf, rng.Float64())
	if idx >= len(t.groups) {
		idx = len(t.groups) - 1
	}
	g := t.groups[idx]
	return g.MinAge + rng.IntN(g.MaxAge-g.MinAge+1)
}

// DefaultAgeGroups is a generic four-band pyramid.
func DefaultAgeGroups() []AgeGroup {
	return []AgeGroup{
		{MinAge: 0, MaxAge: 19, Proportion: 0.22},
		{MinAge: 20, MaxAge: 49, Proportion: 0.40},
		{MinAge: 50, MaxAge: 69, Proportion: 0.25},
		{MinAge: 70, MaxAge: 95, Proportion: 0.13},
	}
}
