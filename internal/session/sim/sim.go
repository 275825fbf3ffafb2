// Package sim provides a capture session that synthesizes depth, color,
// infrared and IMU samples. It follows the vendor delivery model: events and
// samples arrive on session-owned goroutines, frames and IMU on separate ones.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/structure-camera/internal/logger"
	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

var log = logger.Module("SimSession")

const (
	defaultFrameRate = 30

	// Device limits the vendor clamps to
	minExposure     = 0.001
	maxExposure     = 0.033
	minVisibleGain  = 1
	maxVisibleGain  = 8
	minInfraredGain = 0
	maxInfraredGain = 3

	autoExposureTarget = 0.010
)

// Option configures a simulated session
type Option func(*Session)

// WithFrameRate sets the frame delivery rate in frames per second
func WithFrameRate(fps int) Option {
	return func(s *Session) {
		if fps > 0 {
			s.frameRate = fps
		}
	}
}

// WithStartupEvents replaces the events emitted after StartMonitoring.
// The default is a single Ready event.
func WithStartupEvents(events ...session.EventID) Option {
	return func(s *Session) {
		s.startupEvents = append([]session.EventID(nil), events...)
	}
}

// WithIMURateLimit caps IMU delivery regardless of the configured update rate
func WithIMURateLimit(hz int) Option {
	return func(s *Session) {
		s.imuRateLimit = hz
	}
}

// Session is a simulated capture session
type Session struct {
	mu         sync.Mutex
	delegate   session.Delegate
	settings   session.Settings
	monitoring bool
	streaming  bool
	closed     bool
	cancel     context.CancelFunc

	visibleExposure  float32
	visibleGain      float32
	infraredExposure float32
	infraredGain     float32

	frameRate     int
	imuRateLimit  int
	startupEvents []session.EventID

	wg       sync.WaitGroup // delivery goroutines
	eventsWG sync.WaitGroup // startup event goroutines
	frameNum atomic.Uint64
}

// New creates a simulated session
func New(opts ...Option) *Session {
	s := &Session{
		frameRate:        defaultFrameRate,
		startupEvents:    []session.EventID{session.EventReady},
		visibleExposure:  0.016,
		visibleGain:      2,
		infraredExposure: 0.014,
		infraredGain:     1.5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDelegate installs the callback receiver
func (s *Session) SetDelegate(d session.Delegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate = d
}

// StartMonitoring stores the settings and emits the startup events
// asynchronously. A session that is already streaming is restarted.
func (s *Session) StartMonitoring(settings session.Settings) error {
	if settings.Source != session.SourceStructureCore {
		return fmt.Errorf("unsupported source %s", settings.Source)
	}

	s.StopStreaming()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return session.ErrClosed
	}
	s.settings = settings
	s.monitoring = true
	d := s.delegate
	events := append([]session.EventID(nil), s.startupEvents...)
	s.mu.Unlock()

	log.Info("Monitoring started (depth=%v %s, visible=%v, infrared=%v, imu=%v/%v)",
		settings.DepthEnabled, settings.DepthResolution, settings.VisibleEnabled,
		settings.InfraredEnabled, settings.AccelerometerEnabled, settings.GyroscopeEnabled)

	if d == nil {
		return nil
	}

	s.eventsWG.Add(1)
	go func() {
		defer s.eventsWG.Done()
		for _, ev := range events {
			d.EventDidOccur(s, ev)
		}
	}()
	return nil
}

// StartStreaming launches the delivery goroutines
func (s *Session) StartStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return session.ErrClosed
	}
	if !s.monitoring {
		return session.ErrNotMonitoring
	}
	if s.streaming {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.streaming = true

	settings := s.settings
	d := s.delegate

	if settings.DepthEnabled || settings.VisibleEnabled || settings.InfraredEnabled {
		s.wg.Add(1)
		go s.deliverFrames(ctx, d, settings)
	}
	if settings.AccelerometerEnabled || settings.GyroscopeEnabled {
		s.wg.Add(1)
		go s.deliverIMU(ctx, d, settings)
	}

	log.Info("Streaming started at %d fps", s.frameRate)
	return nil
}

// StopStreaming halts delivery and waits for in-flight callbacks to return.
// It must not be called from inside a delegate callback.
func (s *Session) StopStreaming() {
	s.mu.Lock()
	s.monitoring = false
	if !s.streaming {
		s.mu.Unlock()
		return
	}
	s.streaming = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	log.Info("Streaming stopped")
}

// IsStreaming reports whether delivery goroutines are running
func (s *Session) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Emit delivers an event to the delegate on the calling goroutine
func (s *Session) Emit(event session.EventID) {
	s.mu.Lock()
	d := s.delegate
	s.mu.Unlock()
	if d != nil {
		d.EventDidOccur(s, event)
	}
}

// VisibleCameraExposureAndGain returns the visible camera exposure (seconds) and gain
func (s *Session) VisibleCameraExposureAndGain() (float32, float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleExposure, s.visibleGain
}

// SetVisibleCameraExposureAndGain sets both values, clamped to device limits
func (s *Session) SetVisibleCameraExposureAndGain(exposure, gain float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibleExposure = clamp(exposure, minExposure, maxExposure)
	s.visibleGain = clamp(gain, minVisibleGain, maxVisibleGain)
}

// InfraredCamerasExposureAndGain returns the infrared exposure (seconds) and gain
func (s *Session) InfraredCamerasExposureAndGain() (float32, float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infraredExposure, s.infraredGain
}

// SetInfraredCamerasExposureAndGain sets both values, clamped to device limits
func (s *Session) SetInfraredCamerasExposureAndGain(exposure, gain float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infraredExposure = clamp(exposure, minExposure, maxExposure)
	s.infraredGain = clamp(gain, minInfraredGain, maxInfraredGain)
}

// Close stops streaming and rejects further use
func (s *Session) Close() error {
	s.StopStreaming()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.eventsWG.Wait()
	return nil
}

func (s *Session) deliverFrames(ctx context.Context, d session.Delegate, settings session.Settings) {
	defer s.wg.Done()

	var scene *depthScene
	if settings.DepthEnabled {
		w, h := settings.DepthResolution.Dimensions()
		scene = newDepthScene(w, h, settings.DepthRangeMode)
	}

	ticker := time.NewTicker(time.Second / time.Duration(s.frameRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			num := s.frameNum.Add(1)
			sample := types.Sample{}
			kinds := 0

			if scene != nil {
				sample.DepthFrame = scene.render(num, now)
				sample.Type = types.SampleDepthFrame
				kinds++
			}
			if settings.VisibleEnabled {
				exposure, gain := s.VisibleCameraExposureAndGain()
				sample.VisibleFrame = renderColor(settings, num, now, exposure, gain)
				sample.Type = types.SampleVisibleFrame
				kinds++
			}
			if settings.InfraredEnabled {
				if settings.InfraredAutoExposureEnabled {
					s.stepAutoExposure()
				}
				exposure, gain := s.InfraredCamerasExposureAndGain()
				sample.InfraredFrame = renderInfrared(settings, num, now, exposure, gain)
				sample.Type = types.SampleInfraredFrame
				kinds++
			}
			if kinds > 1 {
				sample.Type = types.SampleSynchronizedFrames
			}
			if d != nil {
				d.DidOutputSample(s, sample)
			}
		}
	}
}

func (s *Session) deliverIMU(ctx context.Context, d session.Delegate, settings session.Settings) {
	defer s.wg.Done()

	hz := settings.IMUUpdateRate.Hz()
	if s.imuRateLimit > 0 && hz > s.imuRateLimit {
		hz = s.imuRateLimit
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if d == nil {
				continue
			}
			t := now.Sub(start).Seconds()
			if settings.AccelerometerEnabled {
				d.DidOutputSample(s, types.Sample{
					Type: types.SampleAccelerometerEvent,
					AccelerometerEvent: types.AccelerometerEvent{
						Timestamp: now,
						Acceleration: types.Vec3{
							X: 0.01 * math.Sin(2*math.Pi*0.5*t),
							Y: -1.0,
							Z: 0.01 * math.Cos(2*math.Pi*0.5*t),
						},
					},
				})
			}
			if settings.GyroscopeEnabled {
				d.DidOutputSample(s, types.Sample{
					Type: types.SampleGyroscopeEvent,
					GyroscopeEvent: types.GyroscopeEvent{
						Timestamp: now,
						RotationRate: types.Vec3{
							X: 0.002 * math.Sin(2*math.Pi*0.2*t),
							Y: 0.001,
							Z: -0.002 * math.Cos(2*math.Pi*0.2*t),
						},
					},
				})
			}
		}
	}
}

// stepAutoExposure moves the infrared exposure toward a fixed target, the
// way the device's auto exposure adjusts it between frames.
func (s *Session) stepAutoExposure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infraredExposure += (autoExposureTarget - s.infraredExposure) * 0.25
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
