// Package delegate holds the latest sample of each kind delivered by a
// capture session.
//
// The cache is read from render/polling goroutines and written from the
// session's delivery goroutines (frame delivery, and a dedicated IMU goroutine
// when low-latency IMU is on). A single mutex guards all five slots and the
// error; writers only assign under it and never wait on readers.
package delegate

import (
	"fmt"
	"sync"
	"time"

	"github.com/dj-oyu/structure-camera/internal/logger"
	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

var log = logger.Module("Delegate")

// ErrorCode is the coarse error reported across the C boundary
type ErrorCode int

const (
	ErrorNone ErrorCode = iota
	ErrorUnknown
)

// SessionError records the most recent non-ready session event. Once an
// error is recorded it is never cleared.
type SessionError struct {
	Event session.EventID `json:"event"`
	At    time.Time       `json:"at"`
	Count uint64          `json:"count"`
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("capture session event %s (seen %d non-ready events)", e.Event, e.Count)
}

// Stats counts slot updates since the delegate was created
type Stats struct {
	DepthFrames         uint64 `json:"depth_frames"`
	VisibleFrames       uint64 `json:"visible_frames"`
	InfraredFrames      uint64 `json:"infrared_frames"`
	AccelerometerEvents uint64 `json:"accelerometer_events"`
	GyroscopeEvents     uint64 `json:"gyroscope_events"`
	Events              uint64 `json:"events"`
}

// SessionDelegate implements session.Delegate and caches the latest samples
type SessionDelegate struct {
	sampleLock sync.Mutex

	lastDepthFrame         types.DepthFrame
	lastVisibleFrame       types.ColorFrame
	lastInfraredFrame      types.InfraredFrame
	lastAccelerometerEvent types.AccelerometerEvent
	lastGyroscopeEvent     types.GyroscopeEvent

	lastError *SessionError
	stats     Stats

	onSample func(types.Sample)
	onEvent  func(session.EventID)
}

// New creates an empty delegate
func New() *SessionDelegate {
	return &SessionDelegate{}
}

// OnSample registers an observer called after each sample is stored, outside
// the lock. It runs on the delivery goroutine and must not block.
// Register before the session starts delivering.
func (d *SessionDelegate) OnSample(fn func(types.Sample)) {
	d.onSample = fn
}

// OnEvent registers an observer for session events. Same rules as OnSample.
func (d *SessionDelegate) OnEvent(fn func(session.EventID)) {
	d.onEvent = fn
}

// EventDidOccur starts streaming when the session reports Ready and records
// every other event as an error.
func (d *SessionDelegate) EventDidOccur(s session.Session, event session.EventID) {
	if event == session.EventReady {
		log.Info("Session ready, starting streaming")
		if err := s.StartStreaming(); err != nil {
			log.Error("Failed to start streaming: %v", err)
		}
	} else {
		d.sampleLock.Lock()
		count := uint64(1)
		if d.lastError != nil {
			count = d.lastError.Count + 1
		}
		d.lastError = &SessionError{Event: event, At: time.Now(), Count: count}
		d.sampleLock.Unlock()
		log.Warn("Session event %s recorded as error", event)
	}

	d.sampleLock.Lock()
	d.stats.Events++
	d.sampleLock.Unlock()

	if d.onEvent != nil {
		d.onEvent(event)
	}
}

// DidOutputSample stores every valid frame and IMU event the sample carries
func (d *SessionDelegate) DidOutputSample(_ session.Session, sample types.Sample) {
	d.sampleLock.Lock()
	if sample.DepthFrame.IsValid() {
		d.lastDepthFrame = sample.DepthFrame
		d.stats.DepthFrames++
	}
	if sample.VisibleFrame.IsValid() {
		d.lastVisibleFrame = sample.VisibleFrame
		d.stats.VisibleFrames++
	}
	if sample.InfraredFrame.IsValid() {
		d.lastInfraredFrame = sample.InfraredFrame
		d.stats.InfraredFrames++
	}
	if sample.Type == types.SampleAccelerometerEvent {
		d.lastAccelerometerEvent = sample.AccelerometerEvent
		d.stats.AccelerometerEvents++
	}
	if sample.Type == types.SampleGyroscopeEvent {
		d.lastGyroscopeEvent = sample.GyroscopeEvent
		d.stats.GyroscopeEvents++
	}
	d.sampleLock.Unlock()

	if d.onSample != nil {
		d.onSample(sample)
	}
}

// LastDepthFrame returns the most recent depth frame, invalid if none arrived
func (d *SessionDelegate) LastDepthFrame() types.DepthFrame {
	d.sampleLock.Lock()
	defer d.sampleLock.Unlock()
	return d.lastDepthFrame
}

// LastVisibleFrame returns the most recent color frame
func (d *SessionDelegate) LastVisibleFrame() types.ColorFrame {
	d.sampleLock.Lock()
	defer d.sampleLock.Unlock()
	return d.lastVisibleFrame
}

// LastInfraredFrame returns the most recent infrared frame
func (d *SessionDelegate) LastInfraredFrame() types.InfraredFrame {
	d.sampleLock.Lock()
	defer d.sampleLock.Unlock()
	return d.lastInfraredFrame
}

// LastAccelerometerEvent returns the most recent accelerometer reading
func (d *SessionDelegate) LastAccelerometerEvent() types.AccelerometerEvent {
	d.sampleLock.Lock()
	defer d.sampleLock.Unlock()
	return d.lastAccelerometerEvent
}

// LastGyroscopeEvent returns the most recent gyroscope reading
func (d *SessionDelegate) LastGyroscopeEvent() types.GyroscopeEvent {
	d.sampleLock.Lock()
	defer d.sampleLock.Unlock()
	return d.lastGyroscopeEvent
}

// LastError returns a copy of the recorded error, or nil
func (d *SessionDelegate) LastError() *SessionError {
	d.sampleLock.Lock()
	defer d.sampleLock.Unlock()
	if d.lastError == nil {
		return nil
	}
	e := *d.lastError
	return &e
}

// ErrorCode reduces LastError to the coarse code
func (d *SessionDelegate) ErrorCode() ErrorCode {
	if d.LastError() != nil {
		return ErrorUnknown
	}
	return ErrorNone
}

// Stats returns the slot update counters
func (d *SessionDelegate) Stats() Stats {
	d.sampleLock.Lock()
	defer d.sampleLock.Unlock()
	return d.stats
}
