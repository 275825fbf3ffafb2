// Package camera implements StructureCamera, the controller that owns one
// capture session, its settings and the sample cache.
//
// Configuration reads and writes are serialized with session calls by a
// single mutex. Settings changes take effect at the next Start; changing
// them while streaming is allowed and logged.
package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dj-oyu/structure-camera/internal/config"
	"github.com/dj-oyu/structure-camera/internal/delegate"
	"github.com/dj-oyu/structure-camera/internal/logger"
	"github.com/dj-oyu/structure-camera/internal/metrics"
	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/internal/session/sim"
	"github.com/dj-oyu/structure-camera/internal/session/structure"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

var log = logger.Module("Camera")

var (
	// ErrNoFrame is returned by the copy-out methods before any valid frame arrived
	ErrNoFrame = errors.New("no frame available")
	// ErrShortBuffer is returned when the destination cannot hold the frame
	ErrShortBuffer = errors.New("buffer too small for frame")
)

// State is the controller lifecycle state
type State int

const (
	StateStopped State = iota
	StateStreaming
	// StateFaulted is a started camera whose session reported an error
	// after Start and has delivered no sample since
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateFaulted:
		return "faulted"
	default:
		return "stopped"
	}
}

// Option configures a StructureCamera
type Option func(*StructureCamera)

// WithSettings replaces the default settings
func WithSettings(s session.Settings) Option {
	return func(c *StructureCamera) {
		c.settings = s
	}
}

// WithMetrics attaches sample, event and copy-out counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *StructureCamera) {
		c.metrics = m
	}
}

// StructureCamera drives a capture session
type StructureCamera struct {
	mu       sync.Mutex
	session  session.Session
	settings session.Settings
	state    State
	delegate *delegate.SessionDelegate

	startedAt    time.Time
	startSamples uint64
	metrics  *metrics.Metrics
}

// New takes ownership of s and installs the sample cache as its delegate
func New(s session.Session, opts ...Option) *StructureCamera {
	c := &StructureCamera{
		session:  s,
		settings: session.DefaultSettings(),
		delegate: delegate.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.metrics != nil {
		c.delegate.OnSample(c.metrics.ObserveSample)
		c.delegate.OnEvent(c.metrics.ObserveEvent)
		c.metrics.BindCamera(c.reading)
	}
	s.SetDelegate(c.delegate)
	return c
}

// OpenSession creates the session selected by cfg.Backend
func OpenSession(cfg *config.Config) (session.Session, error) {
	switch cfg.Backend {
	case config.BackendSim:
		return sim.New(
			sim.WithFrameRate(cfg.Sim.FrameRate),
			sim.WithIMURateLimit(cfg.Sim.IMURateLimit),
		), nil
	case config.BackendStructure:
		s, err := structure.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open structure session: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// NewFromConfig opens the configured backend and applies cfg.Camera
func NewFromConfig(cfg *config.Config, opts ...Option) (*StructureCamera, error) {
	s, err := OpenSession(cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithSettings(cfg.Camera)}, opts...)
	return New(s, opts...), nil
}

// Start begins monitoring with the current settings. Streaming starts when
// the session reports Ready.
func (c *StructureCamera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Startup events may arrive before StartMonitoring returns
	c.startedAt = time.Now()
	c.startSamples = sampleTotal(c.delegate.Stats())
	if err := c.session.StartMonitoring(c.settings); err != nil {
		return fmt.Errorf("failed to start monitoring: %w", err)
	}
	c.state = StateStreaming
	log.Info("Camera started (depth %s, range %s)", c.settings.DepthResolution, c.settings.DepthRangeMode)
	return nil
}

// Stop stops streaming
func (c *StructureCamera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *StructureCamera) stopLocked() {
	c.session.StopStreaming()
	if c.state == StateStreaming {
		log.Info("Camera stopped")
	}
	c.state = StateStopped
}

// Close stops streaming and releases the session
func (c *StructureCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return c.session.Close()
}

// State returns the lifecycle state. A started camera reports StateFaulted
// while the latest session error is newer than Start and no sample has
// arrived since Start.
func (c *StructureCamera) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *StructureCamera) stateLocked() State {
	if c.state != StateStreaming {
		return c.state
	}
	e := c.delegate.LastError()
	if e != nil && !e.At.Before(c.startedAt) && sampleTotal(c.delegate.Stats()) == c.startSamples {
		return StateFaulted
	}
	return StateStreaming
}

func sampleTotal(s delegate.Stats) uint64 {
	return s.DepthFrames + s.VisibleFrames + s.InfraredFrames + s.AccelerometerEvents + s.GyroscopeEvents
}

// Settings returns a copy of the current settings
func (c *StructureCamera) Settings() session.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings applies fn to the settings under the controller lock
func (c *StructureCamera) UpdateSettings(fn func(*session.Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnIfStreaming("settings")
	fn(&c.settings)
}

// TryUpdateSettings applies fn to a copy of the settings under the controller
// lock and keeps the copy only when fn returns nil. It returns the settings
// in effect afterwards.
func (c *StructureCamera) TryUpdateSettings(fn func(*session.Settings) error) (session.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.settings
	if err := fn(&next); err != nil {
		return c.settings, err
	}
	c.warnIfStreaming("settings")
	c.settings = next
	return next, nil
}

func (c *StructureCamera) warnIfStreaming(what string) {
	if c.state == StateStreaming {
		log.Warn("%s changed while streaming; takes effect on the next start", what)
	}
}

func (c *StructureCamera) reading() metrics.CameraReading {
	c.mu.Lock()
	defer c.mu.Unlock()
	ve, vg := c.session.VisibleCameraExposureAndGain()
	ie, ig := c.session.InfraredCamerasExposureAndGain()
	return metrics.CameraReading{
		Streaming:        c.state == StateStreaming,
		VisibleExposure:  ve,
		VisibleGain:      vg,
		InfraredExposure: ie,
		InfraredGain:     ig,
	}
}

// Frame snapshots. Frame buffers are never mutated after delivery, so the
// returned values can be read without further locking.

// DepthFrame returns the latest depth frame, invalid if none arrived
func (c *StructureCamera) DepthFrame() types.DepthFrame {
	return c.delegate.LastDepthFrame()
}

// VisibleFrame returns the latest color frame
func (c *StructureCamera) VisibleFrame() types.ColorFrame {
	return c.delegate.LastVisibleFrame()
}

// InfraredFrame returns the latest infrared frame
func (c *StructureCamera) InfraredFrame() types.InfraredFrame {
	return c.delegate.LastInfraredFrame()
}

// LastAccelerometerEvent returns the latest accelerometer reading
func (c *StructureCamera) LastAccelerometerEvent() types.AccelerometerEvent {
	return c.delegate.LastAccelerometerEvent()
}

// LastGyroscopeEvent returns the latest gyroscope reading
func (c *StructureCamera) LastGyroscopeEvent() types.GyroscopeEvent {
	return c.delegate.LastGyroscopeEvent()
}

// LastError returns the sticky session error, or nil
func (c *StructureCamera) LastError() *delegate.SessionError {
	return c.delegate.LastError()
}

// ErrorCode returns the coarse error code
func (c *StructureCamera) ErrorCode() delegate.ErrorCode {
	return c.delegate.ErrorCode()
}

// Stats returns the sample counters
func (c *StructureCamera) Stats() delegate.Stats {
	return c.delegate.Stats()
}
