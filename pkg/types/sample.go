package types

import (
	"fmt"
	"time"
)

// SampleType identifies what a capture session sample carries
type SampleType int

const (
	SampleInvalid SampleType = iota
	SampleDepthFrame
	SampleVisibleFrame
	SampleInfraredFrame
	SampleSynchronizedFrames
	SampleAccelerometerEvent
	SampleGyroscopeEvent
)

var sampleTypeNames = map[SampleType]string{
	SampleInvalid:            "Invalid",
	SampleDepthFrame:         "DepthFrame",
	SampleVisibleFrame:       "VisibleFrame",
	SampleInfraredFrame:      "InfraredFrame",
	SampleSynchronizedFrames: "SynchronizedFrames",
	SampleAccelerometerEvent: "AccelerometerEvent",
	SampleGyroscopeEvent:     "GyroscopeEvent",
}

func (t SampleType) String() string {
	if name, ok := sampleTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SampleType(%d)", int(t))
}

// DepthFrame holds depth in millimeters, row-major. Invalid pixels are NaN.
type DepthFrame struct {
	Width     int
	Height    int
	Depth     []float32
	Timestamp time.Time
	FrameNum  uint64
}

// IsValid reports whether the frame carries a full depth image
func (f DepthFrame) IsValid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Depth) == f.Width*f.Height
}

// At returns the depth at (x, y) in millimeters
func (f DepthFrame) At(x, y int) float32 {
	return f.Depth[y*f.Width+x]
}

// Center returns the depth at the middle pixel. NaN when the pixel is invalid.
func (f DepthFrame) Center() float32 {
	return f.At(f.Width/2, f.Height/2)
}

// ColorFrame holds a packed RGB8 image from the visible camera
type ColorFrame struct {
	Width     int
	Height    int
	RGB       []byte
	Timestamp time.Time
	FrameNum  uint64
}

// RGBSize returns the number of bytes of packed RGB data
func (f ColorFrame) RGBSize() int {
	return f.Width * f.Height * 3
}

// IsValid reports whether the frame carries a full RGB image
func (f ColorFrame) IsValid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.RGB) == f.RGBSize()
}

// InfraredFrame holds 16-bit infrared intensities. With both cameras enabled
// the right and left images are stored side by side.
type InfraredFrame struct {
	Width     int
	Height    int
	Data      []uint16
	Timestamp time.Time
	FrameNum  uint64
}

// IsValid reports whether the frame carries a full infrared image
func (f InfraredFrame) IsValid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Data) == f.Width*f.Height
}

// Vec3 is a three-axis IMU reading
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// AccelerometerEvent is a single accelerometer reading in g
type AccelerometerEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Acceleration Vec3      `json:"acceleration"`
}

// IsValid reports whether the event was ever set
func (e AccelerometerEvent) IsValid() bool {
	return !e.Timestamp.IsZero()
}

// GyroscopeEvent is a single gyroscope reading in rad/s
type GyroscopeEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	RotationRate Vec3      `json:"rotation_rate"`
}

// IsValid reports whether the event was ever set
func (e GyroscopeEvent) IsValid() bool {
	return !e.Timestamp.IsZero()
}

// Sample is one unit of data delivered by a capture session. Frames may come
// individually or together in a SynchronizedFrames sample; consumers should
// check each frame's validity rather than relying on Type alone.
type Sample struct {
	Type               SampleType
	DepthFrame         DepthFrame
	VisibleFrame       ColorFrame
	InfraredFrame      InfraredFrame
	AccelerometerEvent AccelerometerEvent
	GyroscopeEvent     GyroscopeEvent
}
