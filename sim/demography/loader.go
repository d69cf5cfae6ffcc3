package demography

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/inference-sim/episim/sim"
)

// LoadAgeGroups reads an age distribution table from a CSV file with a
// min_age,max_age,proportion header.
func LoadAgeGroups(path string) ([]AgeGroup, error) {
	var groups []AgeGroup
	if err := unmarshalCSV(path, &groups); err != nil {
		return nil, fmt.Errorf("loading age groups: %w", err)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("loading age groups: %s has no rows", path)
	}
	return groups, nil
}

// LoadKeyLocations reads key locations from a CSV file with a
// name,x,y,population header.
func LoadKeyLocations(path string) ([]sim.KeyLocation, error) {
	var locations []sim.KeyLocation
	if err := unmarshalCSV(path, &locations); err != nil {
		return nil, fmt.Errorf("loading key locations: %w", err)
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("loading key locations: %s has no rows", path)
	}
	seen := make(map[string]bool, len(locations))
	for i, k := range locations {
		if k.Name == "" {
			return nil, fmt.Errorf("loading key locations: row %d has no name", i+1)
		}
		if seen[k.Name] {
			return nil, fmt.Errorf("loading key locations: duplicate name %q", k.Name)
		}
		seen[k.Name] = true
	}
	return locations, nil
}

func unmarshalCSV(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.UnmarshalFile(f, out)
}
