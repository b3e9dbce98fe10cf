package catalog

import (
	"fmt"
	"math"
)

// ConcertA is the reference pitch A4 in Hz.
const ConcertA = 440.0

var pitchClasses = [12]string{"C", "Db", "D", "Eb", "E", "F", "Gb", "G", "Ab", "A", "Bb", "B"}

// Pitch is the equal-tempered note closest to a frequency.
type Pitch struct {
	Name      string  // e.g. "A4", "Eb2"
	Frequency float64 // exact frequency of the note
	Cents     float64 // deviation of the input from the note, -50..+50
}

func (p Pitch) String() string {
	return fmt.Sprintf("%s %+.0f¢", p.Name, p.Cents)
}

// Nearest returns the equal-tempered note nearest to freq. Frequencies
// below C0 (or non-finite) have no nearest note.
func Nearest(freq float64) (Pitch, bool) {
	if math.IsNaN(freq) || math.IsInf(freq, 0) || freq <= 0 {
		return Pitch{}, false
	}
	semitones := math.Round(12 * math.Log2(freq/ConcertA))
	midi := 69 + int(semitones)
	if midi < 12 {
		return Pitch{}, false
	}
	ref := ConcertA * math.Pow(2, semitones/12)
	return Pitch{
		Name:      fmt.Sprintf("%s%d", pitchClasses[midi%12], midi/12-1),
		Frequency: ref,
		Cents:     1200 * math.Log2(freq/ref),
	}, true
}
