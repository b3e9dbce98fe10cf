// internal/audio/capture.go
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

var (
	ErrNotInitialized  = errors.New("audio input not initialized")
	ErrDeviceNotFound  = errors.New("audio input device not found")
	ErrCaptureTimeout  = errors.New("audio capture timed out")
	ErrInvalidDuration = errors.New("capture duration must be positive")
	ErrInvalidRate     = errors.New("capture sample rate must be positive")
)

// captureGrace is added to the requested duration before a capture that
// stopped delivering frames is reported as failed.
const captureGrace = 2 * time.Second

// DeviceError reports a capture device that could not be resolved or opened.
type DeviceError struct {
	DeviceID string
	Err      error
}

func (e *DeviceError) Error() string {
	id := e.DeviceID
	if id == "" {
		id = "default"
	}
	return fmt.Sprintf("audio device %s: %v", id, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Buffer holds one mono capture. It belongs to the detection cycle that
// requested it.
type Buffer struct {
	Samples    []float32
	SampleRate uint32
}

// Duration returns the time span covered by the samples.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Device describes a capture-capable input device.
type Device struct {
	Name    string
	ID      string // opaque, pass back to Capture unchanged
	Default bool
}

// Input captures fixed-length mono buffers from malgo capture devices.
type Input struct {
	mu  sync.RWMutex
	ctx *malgo.AllocatedContext
}

// NewInput creates an uninitialised Input. Call Init before use.
func NewInput() *Input {
	return &Input{}
}

// Init initializes the audio backend
func (in *Input) Init() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.ctx != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	in.ctx = ctx
	return nil
}

// InputDevices returns the capture devices known to the backend. Only
// devices with at least one input channel are enumerated by malgo for the
// Capture device type.
func (in *Input) InputDevices() ([]Device, error) {
	infos, err := in.captureInfos()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			Name:    info.Name(),
			ID:      info.ID.String(),
			Default: info.IsDefault != 0,
		})
	}
	return devices, nil
}

func (in *Input) captureInfos() ([]malgo.DeviceInfo, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if in.ctx == nil {
		return nil, ErrNotInitialized
	}

	infos, err := in.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	return infos, nil
}

// resolveDevice finds the capture device with the given opaque id. An empty
// id selects the backend default and yields a nil DeviceID.
func resolveDevice(infos []malgo.DeviceInfo, id string) (*malgo.DeviceID, error) {
	if id == "" {
		return nil, nil
	}
	for i := range infos {
		if infos[i].ID.String() == id {
			return &infos[i].ID, nil
		}
	}
	return nil, ErrDeviceNotFound
}

// Capture records duration worth of mono samples at sampleRate from the
// device identified by deviceID. It blocks until the buffer is full and
// cannot be interrupted once the device has started.
func (in *Input) Capture(duration time.Duration, sampleRate uint32, deviceID string) (*Buffer, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if sampleRate == 0 {
		return nil, ErrInvalidRate
	}

	infos, err := in.captureInfos()
	if err != nil {
		return nil, err
	}
	id, err := resolveDevice(infos, deviceID)
	if err != nil {
		return nil, &DeviceError{DeviceID: deviceID, Err: err}
	}

	want := frameCount(duration, sampleRate)
	acc := newAccumulator(want)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	if id != nil {
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, _ uint32) {
			if len(inputSamples) == 0 {
				return
			}
			acc.write(bytesToFloat32(inputSamples))
		},
	}

	in.mu.RLock()
	ctx := in.ctx
	in.mu.RUnlock()
	if ctx == nil {
		return nil, ErrNotInitialized
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, &DeviceError{DeviceID: deviceID, Err: fmt.Errorf("init device: %w", err)}
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return nil, &DeviceError{DeviceID: deviceID, Err: fmt.Errorf("start device: %w", err)}
	}

	timer := time.NewTimer(duration + captureGrace)
	defer timer.Stop()

	select {
	case <-acc.done:
	case <-timer.C:
		_ = device.Stop()
		return nil, &DeviceError{DeviceID: deviceID, Err: ErrCaptureTimeout}
	}
	_ = device.Stop()

	return &Buffer{Samples: acc.samples(), SampleRate: sampleRate}, nil
}

// Close releases all audio resources
func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.ctx == nil {
		return nil
	}
	if err := in.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninit context: %w", err)
	}
	in.ctx.Free()
	in.ctx = nil
	return nil
}

func frameCount(duration time.Duration, sampleRate uint32) int {
	return int(math.Round(duration.Seconds() * float64(sampleRate)))
}

// accumulator gathers samples delivered on the audio thread until the
// requested count is reached, then closes done exactly once.
type accumulator struct {
	mu   sync.Mutex
	buf  []float32
	want int
	once sync.Once
	done chan struct{}
}

func newAccumulator(want int) *accumulator {
	a := &accumulator{
		buf:  make([]float32, 0, want),
		want: want,
		done: make(chan struct{}),
	}
	if want <= 0 {
		a.once.Do(func() { close(a.done) })
	}
	return a
}

func (a *accumulator) write(samples []float32) {
	a.mu.Lock()
	room := a.want - len(a.buf)
	if room <= 0 {
		a.mu.Unlock()
		return
	}
	if len(samples) > room {
		samples = samples[:room]
	}
	a.buf = append(a.buf, samples...)
	full := len(a.buf) >= a.want
	a.mu.Unlock()

	if full {
		a.once.Do(func() { close(a.done) })
	}
}

func (a *accumulator) samples() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float32, len(a.buf))
	copy(out, a.buf)
	return out
}

// bytesToFloat32 converts little-endian F32 frames to samples. Trailing
// bytes that do not form a whole sample are ignored.
func bytesToFloat32(data []byte) []float32 {
	numSamples := len(data) / 4
	samples := make([]float32, numSamples)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}
