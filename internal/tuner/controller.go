package tuner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ColonelBlimp/stringtuner/internal/observe"
	"github.com/ColonelBlimp/stringtuner/internal/recovery"
)

var (
	// ErrAlreadyRunning indicates Start was called while a session is running or stopping
	ErrAlreadyRunning = errors.New("detection already running")
	// ErrNotRunning indicates Stop was called with no running session
	ErrNotRunning = errors.New("detection not running")
	// ErrInvalidParams indicates the start parameters failed validation
	ErrInvalidParams = errors.New("invalid detection parameters")
	// ErrNilObserver indicates Start was called without an observer
	ErrNilObserver = errors.New("observer must not be nil")
)

const tracerName = "github.com/ColonelBlimp/stringtuner/internal/tuner"

// Observer receives one Reading per completed cycle and a final reading with
// Indicator Idle when the session ends. It is called from the worker
// goroutine (or from Stop for the final reset) and never concurrently.
// An observer must not call Start or Stop.
type Observer func(Reading)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithSampleRate sets the capture sample rate in Hz.
func WithSampleRate(sr uint32) Option {
	return func(c *Controller) { c.sampleRate = sr }
}

// WithTracer overrides the tracer used for per-cycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// Controller runs at most one detection worker at a time and mediates
// between the caller and the session it owns.
type Controller struct {
	session    *Session
	logger     *slog.Logger
	metrics    *observe.Metrics
	tracer     trace.Tracer
	sampleRate uint32

	mu   sync.Mutex // serializes Start and Stop
	done chan struct{}
	obs  Observer

	// deliverMu orders observer calls against the Running→Stopping
	// transition: once Stop has made it, no worker delivery can follow.
	deliverMu sync.Mutex
}

// NewController creates an idle controller reading from src and analysing
// with an.
func NewController(src Source, an Analyzer, opts ...Option) *Controller {
	c := &Controller{
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		sampleRate: DefaultSampleRate,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = NewSession(src, an, c.sampleRate)
	return c
}

// State returns the lifecycle state of the session.
func (c *Controller) State() State {
	return c.session.State()
}

// Params returns a snapshot of the session parameters.
func (c *Controller) Params() Params {
	return c.session.Params()
}

// SetTarget changes the target; the next cycle classifies against it.
func (c *Controller) SetTarget(t Target) error {
	if err := c.session.SetTarget(t); err != nil {
		return err
	}
	c.logger.Debug("target changed", "target", t.String())
	return nil
}

// SetThresholds changes the hysteresis band for subsequent cycles.
func (c *Controller) SetThresholds(th Thresholds) error {
	return c.session.SetThresholds(th)
}

// SetCadence changes the capture length for subsequent cycles.
func (c *Controller) SetCadence(d time.Duration) error {
	return c.session.SetCadence(d)
}

// SetDevice changes the capture device for subsequent cycles.
func (c *Controller) SetDevice(id string) {
	c.session.SetDevice(id)
}

// Start validates p and spawns the worker. It fails with ErrAlreadyRunning
// unless the session is idle, in which case nothing changes.
func (c *Controller) Start(p Params, obs Observer) error {
	// Fail fast without queueing behind a Stop that is joining the worker.
	if st := c.session.State(); st != StateIdle {
		return fmt.Errorf("%w (state %s)", ErrAlreadyRunning, st)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.session.State(); st != StateIdle {
		return fmt.Errorf("%w (state %s)", ErrAlreadyRunning, st)
	}
	if obs == nil {
		return ErrNilObserver
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	// A worker that halted on its own may still be unwinding.
	if c.done != nil {
		<-c.done
		c.done = nil
	}

	c.session.apply(p)
	if !c.session.transition(StateIdle, StateRunning) {
		return ErrAlreadyRunning
	}

	done := make(chan struct{})
	c.done = done
	c.obs = obs
	if c.metrics != nil {
		c.metrics.SessionStarted(context.Background())
	}
	c.logger.Info("detection started",
		"target", p.Target.String(),
		"cadence", p.Cadence,
		"green", p.Thresholds.Green,
		"red", p.Thresholds.Red,
		"device", p.DeviceID,
	)

	go c.run(obs, done)
	return nil
}

// Stop requests cancellation, waits for the worker to exit, returns the
// session to Idle and delivers a final reset reading. No observer call
// happens after Stop returns. Cancellation latency is bounded by one
// cadence plus analysis time.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deliverMu.Lock()
	ok := c.session.transition(StateRunning, StateStopping)
	c.deliverMu.Unlock()

	done := c.done
	c.done = nil
	if done != nil {
		<-done
	}
	if !ok {
		return ErrNotRunning
	}

	c.session.setState(StateIdle)
	c.logger.Info("detection stopped")

	if err := deliver(c.obs, Reading{Indicator: Idle, Target: c.session.Params().Target, At: time.Now()}); err != nil {
		c.logger.Error("observer panicked on reset", "error", err)
	}
	return nil
}

func (c *Controller) run(obs Observer, done chan struct{}) {
	halted := false
	defer func() {
		if c.metrics != nil {
			c.metrics.SessionEnded(context.Background())
		}
		if halted {
			c.session.setState(StateIdle)
		}
		close(done)
	}()

	for c.session.State() == StateRunning {
		r, err := c.cycle()
		if errors.Is(err, errCycleAbandoned) {
			return
		}

		c.deliverMu.Lock()
		if c.session.State() != StateRunning {
			c.deliverMu.Unlock()
			return
		}
		if err != nil {
			c.session.transition(StateRunning, StateStopping)
			halted = true
			c.logger.Error("detection halted", "error", err)
			if perr := deliver(obs, Reading{Indicator: Idle, Target: c.session.Params().Target, Err: err, At: time.Now()}); perr != nil {
				c.logger.Error("observer panicked on error report", "error", perr)
			}
			c.deliverMu.Unlock()
			return
		}
		if perr := deliver(obs, r); perr != nil {
			c.session.transition(StateRunning, StateStopping)
			halted = true
			c.deliverMu.Unlock()
			c.logger.Error("observer panicked, detection halted", "error", perr)
			if c.metrics != nil {
				c.metrics.RecordError(context.Background(), "observer")
			}
			return
		}
		c.deliverMu.Unlock()
	}
}

func (c *Controller) cycle() (Reading, error) {
	ctx, span := c.tracer.Start(context.Background(), "tuner.cycle")
	defer span.End()

	start := time.Now()
	r, stats, err := c.session.Cycle()
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, errCycleAbandoned):
		span.SetAttributes(attribute.Bool("tuner.abandoned", true))
		return r, err
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, stats.stage)
		if c.metrics != nil {
			c.metrics.RecordError(ctx, stats.stage)
		}
		return r, err
	}

	span.SetAttributes(
		attribute.Float64("tuner.audio_seconds", stats.audio.Seconds()),
		attribute.Float64("tuner.frequency", r.Frequency),
		attribute.String("tuner.indicator", r.Indicator.String()),
		attribute.String("tuner.target", r.Target.Note),
	)
	if c.metrics != nil {
		c.metrics.RecordCycle(ctx, elapsed, stats.capture)
		c.metrics.RecordReading(ctx, r.Indicator.String())
	}
	c.logger.Debug("cycle",
		"frequency", r.Frequency,
		"indicator", r.Indicator.String(),
		"target", r.Target.String(),
		"elapsed", elapsed,
	)
	return r, nil
}

// deliver calls obs, converting a panic into an error.
func deliver(obs Observer, r Reading) (err error) {
	defer func() {
		err = recovery.Error(recover())
	}()
	obs(r)
	return nil
}
