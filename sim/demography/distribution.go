package demography

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ValueSampler draws one real-valued trait.
type ValueSampler interface {
	Sample(rng *rand.Rand) float64
}

// clampRange optionally bounds a sampler's output.
type clampRange struct {
	min, max float64
}

func (c clampRange) apply(v float64) float64 {
	return math.Min(c.max, math.Max(c.min, v))
}

// BetaSampler draws from Beta(alpha, beta); support [0,1].
type BetaSampler struct {
	alpha, beta float64
}

func (s *BetaSampler) Sample(rng *rand.Rand) float64 {
	return distuv.Beta{Alpha: s.alpha, Beta: s.beta, Src: rng}.Rand()
}

// UniformSampler draws from U[min, max).
type UniformSampler struct {
	min, max float64
}

func (s *UniformSampler) Sample(rng *rand.Rand) float64 {
	if s.min == s.max {
		return s.min
	}
	return distuv.Uniform{Min: s.min, Max: s.max, Src: rng}.Rand()
}

// NormalSampler draws from N(mean, std_dev²) clipped to [min, max].
type NormalSampler struct {
	mean, stdDev float64
	clamp        clampRange
}

func (s *NormalSampler) Sample(rng *rand.Rand) float64 {
	return s.clamp.apply(distuv.Normal{Mu: s.mean, Sigma: s.stdDev, Src: rng}.Rand())
}

// LogNormalSampler draws exp(N(mu, sigma²)) clipped to [min, max].
type LogNormalSampler struct {
	mu, sigma float64
	clamp     clampRange
}

func (s *LogNormalSampler) Sample(rng *rand.Rand) float64 {
	return s.clamp.apply(distuv.LogNormal{Mu: s.mu, Sigma: s.sigma, Src: rng}.Rand())
}

// ConstantSampler always returns the same fixed value and consumes no draws.
type ConstantSampler struct {
	value float64
}

func (s *ConstantSampler) Sample(_ *rand.Rand) float64 {
	return s.value
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

// optionalClamp reads the optional min/max params, defaulting to the whole
// real line.
func optionalClamp(params map[string]float64) (clampRange, error) {
	c := clampRange{min: math.Inf(-1), max: math.Inf(1)}
	if v, ok := params["min"]; ok {
		c.min = v
	}
	if v, ok := params["max"]; ok {
		c.max = v
	}
	if c.min > c.max {
		return c, fmt.Errorf("min %v exceeds max %v", c.min, c.max)
	}
	return c, nil
}

// NewValueSampler creates a ValueSampler from a DistSpec.
func NewValueSampler(spec DistSpec) (ValueSampler, error) {
	switch spec.Type {
	case "beta":
		if err := requireParam(spec.Params, "alpha", "beta"); err != nil {
			return nil, err
		}
		a, b := spec.Params["alpha"], spec.Params["beta"]
		if !(a > 0) || !(b > 0) {
			return nil, fmt.Errorf("beta distribution requires positive alpha and beta, got %v and %v", a, b)
		}
		return &BetaSampler{alpha: a, beta: b}, nil

	case "uniform":
		if err := requireParam(spec.Params, "min", "max"); err != nil {
			return nil, err
		}
		lo, hi := spec.Params["min"], spec.Params["max"]
		if lo > hi {
			return nil, fmt.Errorf("uniform distribution min %v exceeds max %v", lo, hi)
		}
		return &UniformSampler{min: lo, max: hi}, nil

	case "normal":
		if err := requireParam(spec.Params, "mean", "std_dev"); err != nil {
			return nil, err
		}
		if sd := spec.Params["std_dev"]; !(sd > 0) {
			return nil, fmt.Errorf("normal distribution requires positive std_dev, got %v", sd)
		}
		c, err := optionalClamp(spec.Params)
		if err != nil {
			return nil, err
		}
		return &NormalSampler{mean: spec.Params["mean"], stdDev: spec.Params["std_dev"], clamp: c}, nil

	case "lognormal":
		if err := requireParam(spec.Params, "mu", "sigma"); err != nil {
			return nil, err
		}
		if s := spec.Params["sigma"]; !(s > 0) {
			return nil, fmt.Errorf("lognormal distribution requires positive sigma, got %v", s)
		}
		c, err := optionalClamp(spec.Params)
		if err != nil {
			return nil, err
		}
		return &LogNormalSampler{mu: spec.Params["mu"], sigma: spec.Params["sigma"], clamp: c}, nil

	case "constant":
		if err := requireParam(spec.Params, "value"); err != nil {
			return nil, err
		}
		return &ConstantSampler{value: spec.Params["value"]}, nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}
