// Package climate provides ambient temperature series consumed by the
// engine as a sim.TemperatureSource.
package climate

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/ojrac/opensimplex-go"
)

// Config describes a seasonal temperature series with smooth day-to-day
// noise.
type Config struct {
	Mean           float64 `yaml:"mean"`            // annual mean in °C
	Amplitude      float64 `yaml:"amplitude"`       // half the seasonal swing
	PeriodDays     float64 `yaml:"period_days"`     // season length; 0 = 365
	WarmestDay     float64 `yaml:"warmest_day"`     // step of the seasonal maximum
	NoiseAmplitude float64 `yaml:"noise_amplitude"` // peak deviation of the noise term
	NoiseScale     float64 `yaml:"noise_scale"`     // steps per noise feature; 0 = 7
	File           string  `yaml:"file,omitempty"`  // CSV step,temperature table; overrides the model
}

// Validate checks that all fields are finite and in range.
func (c *Config) Validate() error {
	for _, q := range []struct {
		name string
		v    float64
	}{
		{"mean", c.Mean}, {"amplitude", c.Amplitude}, {"period_days", c.PeriodDays},
		{"warmest_day", c.WarmestDay}, {"noise_amplitude", c.NoiseAmplitude}, {"noise_scale", c.NoiseScale},
	} {
		if math.IsNaN(q.v) || math.IsInf(q.v, 0) {
			return fmt.Errorf("climate.%s must be a finite number, got %v", q.name, q.v)
		}
	}
	if c.Amplitude < 0 || c.NoiseAmplitude < 0 {
		return fmt.Errorf("climate amplitudes must be non-negative, got %v and %v", c.Amplitude, c.NoiseAmplitude)
	}
	if c.PeriodDays < 0 || c.NoiseScale < 0 {
		return fmt.Errorf("climate period_days and noise_scale must be non-negative, got %v and %v", c.PeriodDays, c.NoiseScale)
	}
	return nil
}

// Series is a seasonal cosine plus OpenSimplex noise. It is a pure function
// of (seed, step), so it is safe for concurrent use.
type Series struct {
	cfg   Config
	noise opensimplex.Noise
}

// NewSeries builds a Series; the noise is seeded from seed.
func NewSeries(cfg Config, seed int64) (*Series, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PeriodDays == 0 {
		cfg.PeriodDays = 365
	}
	if cfg.NoiseScale == 0 {
		cfg.NoiseScale = 7
	}
	return &Series{cfg: cfg, noise: opensimplex.New(seed)}, nil
}

// Temperature implements sim.TemperatureSource.
func (s *Series) Temperature(step int) float64 {
	phase := 2 * math.Pi * (float64(step) - s.cfg.WarmestDay) / s.cfg.PeriodDays
	t := s.cfg.Mean + s.cfg.Amplitude*math.Cos(phase)
	if s.cfg.NoiseAmplitude > 0 {
		t += s.cfg.NoiseAmplitude * s.noise.Eval2(float64(step)/s.cfg.NoiseScale, 0)
	}
	return t
}

// Reading is one row of a temperature table.
type Reading struct {
	Step        int     `csv:"step"`
	Temperature float64 `csv:"temperature"`
}

// Table is a measured temperature series. Steps between readings take the
// last earlier reading; steps before the first take the first.
type Table struct {
	readings []Reading
}

// NewTable sorts readings by step.
func NewTable(readings []Reading) (*Table, error) {
	if len(readings) == 0 {
		return nil, fmt.Errorf("temperature table has no readings")
	}
	r := append([]Reading(nil), readings...)
	sort.SliceStable(r, func(i, j int) bool { return r[i].Step < r[j].Step })
	for i := range r {
		if math.IsNaN(r[i].Temperature) || math.IsInf(r[i].Temperature, 0) {
			return nil, fmt.Errorf("temperature at step %d must be finite, got %v", r[i].Step, r[i].Temperature)
		}
	}
	return &Table{readings: r}, nil
}

// LoadTable reads a step,temperature CSV file.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading temperature table: %w", err)
	}
	defer f.Close()
	var readings []Reading
	if err := gocsv.UnmarshalFile(f, &readings); err != nil {
		return nil, fmt.Errorf("loading temperature table: %w", err)
	}
	return NewTable(readings)
}

// Temperature implements sim.TemperatureSource.
func (t *Table) Temperature(step int) float64 {
	idx := sort.Search(len(t.readings), func(i int) bool { return t.readings[i].Step > step })
	if idx == 0 {
		return t.readings[0].Temperature
	}
	return t.readings[idx-1].Temperature
}
