package catalog

import "context"

// Local returns the built-in catalog. Each call returns a fresh copy.
func Local() Catalog {
	std := []Note{{"E2", 82.41}, {"A2", 110.00}, {"D3", 146.83}, {"G3", 196.00}, {"B3", 246.94}, {"E4", 329.63}}
	flat := []Note{{"Eb2", 77.78}, {"Ab2", 103.83}, {"Db3", 138.59}, {"Gb3", 184.99}, {"Bb3", 233.08}, {"Eb4", 311.13}}

	return Catalog{Tunings: []Tuning{
		{Name: "Standard", Notes: std},
		{Name: "Drop D", Notes: []Note{{"D2", 73.42}, {"A2", 110.00}, {"D3", 146.83}, {"G3", 196.00}, {"B3", 246.94}, {"E4", 329.63}}},
		{Name: "E Flat Tuning", Notes: flat},
		{Name: "D Standard Tuning", Notes: []Note{{"D2", 73.42}, {"G2", 97.99}, {"C3", 130.81}, {"F3", 174.61}, {"A3", 220.00}, {"D4", 293.66}}},
		{Name: "Open G Tuning", Notes: []Note{{"D2", 73.42}, {"G2", 97.99}, {"D3", 146.83}, {"G3", 196.00}, {"B3", 246.94}, {"D4", 293.66}}},
		{Name: "Slash Tuning", Notes: append([]Note(nil), flat...)},
	}}
}

// LocalProvider serves the built-in catalog. It never fails.
type LocalProvider struct{}

func (LocalProvider) Tunings(context.Context) (Catalog, error) {
	return Local(), nil
}

// Static serves a fixed catalog, typically one loaded once at startup.
type Static Catalog

func (s Static) Tunings(context.Context) (Catalog, error) {
	return Catalog(s), nil
}
