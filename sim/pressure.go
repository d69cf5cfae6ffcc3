package sim

import "math"

// DecayWeight returns the shedding attenuation of an individual infected
// elapsed steps ago. It is 1 at elapsed 0, non-increasing, and exactly 0 for
// elapsed >= lifeExpectancy.
func DecayWeight(mode string, elapsed, lifeExpectancy int) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= lifeExpectancy {
		return 0
	}
	frac := float64(elapsed) / float64(lifeExpectancy)
	switch mode {
	case DecayExponential:
		return math.Exp(-3 * frac)
	default:
		return 1 - frac
	}
}

// InfectiousRate scales the base rate by temperature: colder than the
// reference raises transmission, warmer lowers it, never below zero.
func InfectiousRate(d DiseaseConfig, temperature float64) float64 {
	return d.InfectiousRate * math.Max(0, 1+d.TemperatureSensitivity*(d.ReferenceTemperature-temperature))
}

// PressureField is the virus pressure snapshot for exactly one step. It is
// read-only once built and safe for concurrent queries. A field built by the
// simulator is valid until the next Step, which may rebuild its index.
type PressureField struct {
	Step           int
	InfectiousRate float64
	index          *SpatialIndex
}

// At returns the pressure at l. Always >= 0; exactly 0 without sources.
func (f *PressureField) At(l Location) float64 {
	if f == nil || f.index == nil || f.index.Len() == 0 {
		return 0
	}
	return f.index.Sum(l)
}

// Sources returns the number of infectious contributors.
func (f *PressureField) Sources() int {
	if f == nil || f.index == nil {
		return 0
	}
	return f.index.Len()
}

// fieldBuilder owns the reusable index and source buffer.
type fieldBuilder struct {
	disease DiseaseConfig
	index   *SpatialIndex
	sources []InfectiousSource
}

func newFieldBuilder(bounds Bounds, disease DiseaseConfig) *fieldBuilder {
	return &fieldBuilder{
		disease: disease,
		index:   NewSpatialIndex(bounds, disease.NegligibleWeight, disease.FullScanBelow),
		sources: make([]InfectiousSource, 0, 64),
	}
}

// build collects infectious individuals at their staged locations and
// rebuilds the index. locations[i] is the location of arena[i] after this
// step's movement.
func (b *fieldBuilder) build(step int, temperature float64, arena []Individual, locations []Location) *PressureField {
	rate := InfectiousRate(b.disease, temperature)
	b.sources = b.sources[:0]
	for i := range arena {
		ind := &arena[i]
		if !ind.State.Infectious() {
			continue
		}
		w := rate * DecayWeight(b.disease.Decay, step-ind.InfectionStep, b.disease.VirusLifeExpectancy)
		if w == 0 {
			continue
		}
		b.sources = append(b.sources, InfectiousSource{
			ID:       ind.ID,
			Location: locations[i],
			Sigma:    ind.InfectionRadius * b.disease.KernelScale,
			Radius:   ind.InfectionRadius,
			Weight:   w,
		})
	}
	b.index.Rebuild(b.sources)
	return &PressureField{Step: step, InfectiousRate: rate, index: b.index}
}

// NewPressureField builds a standalone field from individuals at their
// current locations.
func NewPressureField(step int, temperature float64, bounds Bounds, disease DiseaseConfig, individuals []Individual) *PressureField {
	locations := make([]Location, len(individuals))
	for i := range individuals {
		locations[i] = individuals[i].Location
	}
	return newFieldBuilder(bounds, disease).build(step, temperature, individuals, locations)
}
