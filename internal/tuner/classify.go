// Package tuner implements the detection engine: classification of pitch
// deviation, the detection session and the background loop that drives it.
package tuner

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidThresholds indicates the green/red band is malformed
	ErrInvalidThresholds = errors.New("green threshold must be non-negative and below red threshold")
)

// Indicator is the discrete tuning indication for one reading.
type Indicator int

const (
	Idle Indicator = iota
	InTune
	NearFlat
	NearSharp
	FarFlat
	FarSharp
)

var indicatorNames = [...]string{
	Idle:      "Idle",
	InTune:    "InTune",
	NearFlat:  "NearFlat",
	NearSharp: "NearSharp",
	FarFlat:   "FarFlat",
	FarSharp:  "FarSharp",
}

func (i Indicator) String() string {
	if i < 0 || int(i) >= len(indicatorNames) {
		return fmt.Sprintf("Indicator(%d)", int(i))
	}
	return indicatorNames[i]
}

// Flat reports whether the observed pitch is below the target.
func (i Indicator) Flat() bool { return i == NearFlat || i == FarFlat }

// Sharp reports whether the observed pitch is above the target.
func (i Indicator) Sharp() bool { return i == NearSharp || i == FarSharp }

// Thresholds is the hysteresis band around the target, in Hz.
type Thresholds struct {
	Green float64 // deviation below this is in tune
	Red   float64 // deviation above this is far off
}

// DefaultThresholds matches the tuner's shipped configuration.
var DefaultThresholds = Thresholds{Green: 2, Red: 50}

// Validate checks 0 <= Green < Red.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Green) || math.IsNaN(t.Red) || t.Green < 0 || t.Green >= t.Red {
		return fmt.Errorf("%w: green=%v red=%v", ErrInvalidThresholds, t.Green, t.Red)
	}
	return nil
}

// Classify maps the deviation between target and observed frequencies to an
// indicator. A deviation strictly below Green is in tune, strictly above Red
// is far, anything else is near. Flat means observed is below target.
func Classify(target, observed float64, th Thresholds) Indicator {
	d := math.Abs(target - observed)
	flat := target > observed

	switch {
	case d < th.Green:
		return InTune
	case d > th.Red:
		if flat {
			return FarFlat
		}
		return FarSharp
	default:
		if flat {
			return NearFlat
		}
		return NearSharp
	}
}
