// internal/dsp/spectrum.go
// Package dsp extracts the dominant frequency of a captured buffer.
package dsp

import (
	"errors"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/ColonelBlimp/stringtuner/internal/audio"
)

var (
	// ErrEmptyBuffer indicates the buffer holds no samples
	ErrEmptyBuffer = errors.New("audio buffer is empty")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
)

// Analyzer computes the magnitude spectrum of a buffer and reports the
// frequency of its strongest bin. The result depends only on the buffer.
//
// The FFT plan for the most recent buffer length is cached; the cache is
// guarded so an Analyzer may be shared between goroutines.
type Analyzer struct {
	mu   sync.Mutex
	plan *fourier.FFT
	in   []float64
	out  []complex128
}

// NewAnalyzer creates an Analyzer with an empty plan cache.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Resolution returns the bin width in Hz for n samples at sampleRate.
func Resolution(n int, sampleRate uint32) float64 {
	if n <= 0 {
		return 0
	}
	return float64(sampleRate) / float64(n)
}

// Magnitudes returns the N/2+1 bin magnitudes of the buffer's real DFT.
func (a *Analyzer) Magnitudes(buf *audio.Buffer) ([]float64, error) {
	if err := validate(buf); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	coeffs := a.transform(buf.Samples)
	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplx.Abs(c)
	}
	return mags, nil
}

// Analyze returns the dominant frequency of buf in Hz. Ties resolve to the
// lowest bin, so a silent buffer reports 0 Hz.
func (a *Analyzer) Analyze(buf *audio.Buffer) (float64, error) {
	mags, err := a.Magnitudes(buf)
	if err != nil {
		return 0, err
	}

	maxBin := 0
	for i, m := range mags {
		if m > mags[maxBin] {
			maxBin = i
		}
	}

	n := len(buf.Samples)
	return float64(maxBin) * float64(buf.SampleRate) / float64(n), nil
}

// transform runs the real FFT over samples. Caller holds a.mu.
func (a *Analyzer) transform(samples []float32) []complex128 {
	n := len(samples)
	if a.plan == nil || a.plan.Len() != n {
		a.plan = fourier.NewFFT(n)
		a.in = make([]float64, n)
		a.out = make([]complex128, n/2+1)
	}

	for i, s := range samples {
		a.in[i] = float64(s)
	}
	a.out = a.plan.Coefficients(a.out, a.in)
	return a.out
}

func validate(buf *audio.Buffer) error {
	if buf == nil || len(buf.Samples) == 0 {
		return ErrEmptyBuffer
	}
	if buf.SampleRate == 0 {
		return ErrInvalidSampleRate
	}
	return nil
}
