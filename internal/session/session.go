// Package session defines the capture session contract shared by the
// vendor-backed and simulated backends.
package session

import (
	"errors"
	"fmt"

	"github.com/dj-oyu/structure-camera/pkg/types"
)

var (
	// ErrNotMonitoring is returned when streaming is requested before
	// StartMonitoring succeeded
	ErrNotMonitoring = errors.New("session is not monitoring")
	// ErrClosed is returned by calls on a closed session
	ErrClosed = errors.New("session closed")
)

// EventID is a session lifecycle event
type EventID int

const (
	EventBooting EventID = iota
	EventConnected
	EventReady
	EventStreaming
	EventDisconnected
	EventError
	EventEndOfFile
	EventUnknown
)

var eventNames = map[EventID]string{
	EventBooting:      "Booting",
	EventConnected:    "Connected",
	EventReady:        "Ready",
	EventStreaming:    "Streaming",
	EventDisconnected: "Disconnected",
	EventError:        "Error",
	EventEndOfFile:    "EndOfFile",
	EventUnknown:      "Unknown",
}

func (e EventID) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EventID(%d)", int(e))
}

// Delegate receives session callbacks. DidOutputSample may be invoked
// concurrently from several delivery goroutines.
type Delegate interface {
	EventDidOccur(s Session, event EventID)
	DidOutputSample(s Session, sample types.Sample)
}

// Session is a capture session managing a camera's streaming lifecycle
type Session interface {
	SetDelegate(d Delegate)

	// StartMonitoring connects to the source with the given settings.
	// Streaming begins once StartStreaming is called, usually from the
	// delegate's Ready handler.
	StartMonitoring(settings Settings) error
	StartStreaming() error
	StopStreaming()

	VisibleCameraExposureAndGain() (exposure, gain float32)
	SetVisibleCameraExposureAndGain(exposure, gain float32)
	InfraredCamerasExposureAndGain() (exposure, gain float32)
	SetInfraredCamerasExposureAndGain(exposure, gain float32)

	Close() error
}
