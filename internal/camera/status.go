package camera

import (
	"math"
	"time"

	"github.com/dj-oyu/structure-camera/internal/delegate"
	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

// FrameInfo describes the latest frame of one stream
type FrameInfo struct {
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	FrameNum  uint64   `json:"frame_num"`
	Timestamp float64  `json:"timestamp"`
	CenterMM  *float64 `json:"center_mm,omitempty"` // depth only, absent when invalid
}

// IMUReading is one accelerometer or gyroscope sample
type IMUReading struct {
	Timestamp float64 `json:"timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

// ExposureStatus holds the current exposure (seconds) and gain of both cameras
type ExposureStatus struct {
	VisibleExposure  float32 `json:"visible_exposure"`
	VisibleGain      float32 `json:"visible_gain"`
	InfraredExposure float32 `json:"infrared_exposure"`
	InfraredGain     float32 `json:"infrared_gain"`
}

// ErrorStatus is the sticky session error in reporting form
type ErrorStatus struct {
	Event     string  `json:"event"`
	EventID   int     `json:"event_id"`
	Count     uint64  `json:"count"`
	Timestamp float64 `json:"timestamp"`
}

// Status is a point-in-time view of the controller
type Status struct {
	State         string           `json:"state"`
	Settings      session.Settings `json:"settings"`
	Exposure      ExposureStatus   `json:"exposure"`
	Depth         *FrameInfo       `json:"depth"`
	Visible       *FrameInfo       `json:"visible"`
	Infrared      *FrameInfo       `json:"infrared"`
	Accelerometer *IMUReading      `json:"accelerometer"`
	Gyroscope     *IMUReading      `json:"gyroscope"`
	Samples       delegate.Stats   `json:"samples"`
	Error         *ErrorStatus     `json:"error"`
}

// Status collects the current state, settings, exposure and latest samples
func (c *StructureCamera) Status() Status {
	r := c.reading()
	st := Status{
		State:    c.State().String(),
		Settings: c.Settings(),
		Exposure: ExposureStatus{
			VisibleExposure:  r.VisibleExposure,
			VisibleGain:      r.VisibleGain,
			InfraredExposure: r.InfraredExposure,
			InfraredGain:     r.InfraredGain,
		},
		Samples: c.Stats(),
	}

	if f := c.DepthFrame(); f.IsValid() {
		st.Depth = &FrameInfo{Width: f.Width, Height: f.Height, FrameNum: f.FrameNum, Timestamp: Seconds(f.Timestamp)}
		if center := f.Center(); !math.IsNaN(float64(center)) {
			mm := float64(center)
			st.Depth.CenterMM = &mm
		}
	}
	if f := c.VisibleFrame(); f.IsValid() {
		st.Visible = &FrameInfo{Width: f.Width, Height: f.Height, FrameNum: f.FrameNum, Timestamp: Seconds(f.Timestamp)}
	}
	if f := c.InfraredFrame(); f.IsValid() {
		st.Infrared = &FrameInfo{Width: f.Width, Height: f.Height, FrameNum: f.FrameNum, Timestamp: Seconds(f.Timestamp)}
	}
	if e := c.LastAccelerometerEvent(); e.IsValid() {
		st.Accelerometer = imuReading(e.Timestamp, e.Acceleration)
	}
	if e := c.LastGyroscopeEvent(); e.IsValid() {
		st.Gyroscope = imuReading(e.Timestamp, e.RotationRate)
	}
	if e := c.LastError(); e != nil {
		st.Error = &ErrorStatus{
			Event:     e.Event.String(),
			EventID:   int(e.Event),
			Count:     e.Count,
			Timestamp: Seconds(e.At),
		}
	}
	return st
}

func imuReading(ts time.Time, v types.Vec3) *IMUReading {
	return &IMUReading{Timestamp: Seconds(ts), X: v.X, Y: v.Y, Z: v.Z}
}

// Seconds converts t to fractional Unix seconds
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
