package tuner

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ColonelBlimp/stringtuner/internal/audio"
	"github.com/ColonelBlimp/stringtuner/internal/recovery"
)

var (
	// ErrInvalidCadence indicates the cycle duration must be positive
	ErrInvalidCadence = errors.New("cadence must be positive")
	// ErrInvalidTarget indicates the target frequency must be a non-negative number
	ErrInvalidTarget = errors.New("target frequency must be non-negative")

	// errCycleAbandoned is returned by Cycle when the session stopped
	// running while the capture was in flight.
	errCycleAbandoned = errors.New("cycle abandoned: session no longer running")
)

// DefaultCadence is the capture length of one detection cycle.
const DefaultCadence = 400 * time.Millisecond

// DefaultSampleRate is the capture sample rate in Hz.
const DefaultSampleRate = 44100

// Source captures one mono buffer. Implementations block for roughly
// duration and are not interruptible.
type Source interface {
	Capture(duration time.Duration, sampleRate uint32, deviceID string) (*audio.Buffer, error)
}

// Analyzer returns the dominant frequency of a buffer.
type Analyzer interface {
	Analyze(buf *audio.Buffer) (float64, error)
}

// State is the lifecycle state of a detection session.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Target is the pitch the musician is tuning to.
type Target struct {
	Note      string
	Frequency float64
}

// NoTarget is shown before a string has been selected.
var NoTarget = Target{Note: "Note"}

func (t Target) String() string {
	return fmt.Sprintf("%s - %.2f Hz", t.Note, t.Frequency)
}

// Validate checks the frequency is a finite non-negative number.
func (t Target) Validate() error {
	if math.IsNaN(t.Frequency) || math.IsInf(t.Frequency, 0) || t.Frequency < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, t.Frequency)
	}
	return nil
}

// Params are the session parameters supplied at start.
type Params struct {
	Target     Target
	Cadence    time.Duration
	Thresholds Thresholds
	DeviceID   string
}

// Validate checks every parameter and joins the failures.
func (p Params) Validate() error {
	var errs []error
	if err := p.Target.Validate(); err != nil {
		errs = append(errs, err)
	}
	if p.Cadence <= 0 {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidCadence, p.Cadence))
	}
	if err := p.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Reading is delivered to the observer once per cycle.
type Reading struct {
	Frequency float64
	Indicator Indicator
	Target    Target
	Err       error // set on the final reading of a failed session
	At        time.Time
}

// Session owns the detection state and the parameters read by each cycle.
// Parameters may be changed from any goroutine while a cycle runs; the
// change is picked up by the next cycle.
type Session struct {
	source     Source
	analyzer   Analyzer
	sampleRate uint32

	state atomic.Int32

	mu     sync.RWMutex
	params Params
}

// NewSession creates an idle session with default parameters.
func NewSession(src Source, an Analyzer, sampleRate uint32) *Session {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	return &Session{
		source:     src,
		analyzer:   an,
		sampleRate: sampleRate,
		params: Params{
			Target:     NoTarget,
			Cadence:    DefaultCadence,
			Thresholds: DefaultThresholds,
		},
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// SampleRate returns the capture sample rate.
func (s *Session) SampleRate() uint32 {
	return s.sampleRate
}

// Params returns a snapshot of the current parameters.
func (s *Session) Params() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

func (s *Session) apply(p Params) {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
}

// SetTarget replaces the target pitch.
func (s *Session) SetTarget(t Target) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params.Target = t
	s.mu.Unlock()
	return nil
}

// SetThresholds replaces the hysteresis band.
func (s *Session) SetThresholds(th Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params.Thresholds = th
	s.mu.Unlock()
	return nil
}

// SetCadence replaces the capture duration of subsequent cycles.
func (s *Session) SetCadence(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCadence, d)
	}
	s.mu.Lock()
	s.params.Cadence = d
	s.mu.Unlock()
	return nil
}

// SetDevice selects the capture device for subsequent cycles.
func (s *Session) SetDevice(id string) {
	s.mu.Lock()
	s.params.DeviceID = id
	s.mu.Unlock()
}

// cycleStats carries timing and the failing stage for instrumentation.
type cycleStats struct {
	capture time.Duration // wall time spent blocked in Capture
	audio   time.Duration // span of the samples returned
	stage   string
}

// Cycle runs one capture, analysis and classification. The capture uses the
// parameters current when it starts; classification uses those current when
// the capture returns. If the session left the running state during the
// capture the result is discarded and errCycleAbandoned is returned.
func (s *Session) Cycle() (r Reading, stats cycleStats, err error) {
	defer func() {
		if perr := recovery.Error(recover()); perr != nil {
			stats.stage = "panic"
			err = perr
		}
	}()

	p := s.Params()

	start := time.Now()
	buf, err := s.source.Capture(p.Cadence, s.sampleRate, p.DeviceID)
	stats.capture = time.Since(start)
	if s.State() != StateRunning {
		return Reading{}, stats, errCycleAbandoned
	}
	if err != nil {
		stats.stage = "capture"
		return Reading{}, stats, fmt.Errorf("capture: %w", err)
	}
	stats.audio = buf.Duration()

	freq, err := s.analyzer.Analyze(buf)
	if err != nil {
		stats.stage = "analyze"
		return Reading{}, stats, fmt.Errorf("analyze: %w", err)
	}

	p = s.Params()
	return Reading{
		Frequency: freq,
		Indicator: Classify(p.Target.Frequency, freq, p.Thresholds),
		Target:    p.Target,
		At:        time.Now(),
	}, stats, nil
}
