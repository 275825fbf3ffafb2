//go:build structure && cgo

package structure

/*
#cgo CXXFLAGS: -std=c++14 -I${SRCDIR}/../../../third_party/structure/include
#cgo LDFLAGS: -L${SRCDIR}/../../../third_party/structure/lib -lStructure -lstdc++
#include <stdlib.h>
#include "bridge.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime/cgo"
	"sync"
	"time"
	"unsafe"

	"github.com/dj-oyu/structure-camera/internal/logger"
	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

var log = logger.Module("Structure")

// Available reports whether the SDK binding is compiled in
func Available() bool { return true }

// Session wraps a vendor ST::CaptureSession. Callbacks arrive on SDK threads
// and are forwarded to the delegate after the borrowed buffers are copied.
type Session struct {
	mu       sync.Mutex
	c        *C.st_session
	handle   cgo.Handle
	delegate session.Delegate
	frameNum uint64
}

// Open creates a vendor capture session
func Open() (session.Session, error) {
	s := &Session{}
	s.handle = cgo.NewHandle(s)
	s.c = C.st_session_new(C.uintptr_t(s.handle))
	if s.c == nil {
		s.handle.Delete()
		return nil, errors.New("structure: failed to create capture session")
	}
	return s, nil
}

func (s *Session) SetDelegate(d session.Delegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate = d
}

func (s *Session) currentDelegate() session.Delegate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delegate
}

func (s *Session) live() (*C.st_session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil, session.ErrClosed
	}
	return s.c, nil
}

func (s *Session) StartMonitoring(settings session.Settings) error {
	c, err := s.live()
	if err != nil {
		return err
	}

	cs := C.st_settings{
		source:                     C.int(settings.Source),
		depth_enabled:              cbool(settings.DepthEnabled),
		visible_enabled:            cbool(settings.VisibleEnabled),
		infrared_enabled:           cbool(settings.InfraredEnabled),
		accelerometer_enabled:      cbool(settings.AccelerometerEnabled),
		gyroscope_enabled:          cbool(settings.GyroscopeEnabled),
		infrared_mode:              C.int(settings.InfraredMode),
		demosaic_method:            C.int(settings.DemosaicMethod),
		depth_resolution:           C.int(settings.DepthResolution),
		imu_update_rate:            C.int(settings.IMUUpdateRate),
		depth_range_mode:           C.int(settings.DepthRangeMode),
		dynamic_calibration_mode:   C.int(settings.DynamicCalibrationMode),
		infrared_auto_exposure:     cbool(settings.InfraredAutoExposureEnabled),
		visible_gamma_correction:   cbool(settings.VisibleApplyGammaCorrection),
		apply_expensive_correction: cbool(settings.ApplyExpensiveCorrection),
		low_latency_imu:            cbool(settings.LowLatencyIMU),
	}
	if C.st_session_start_monitoring(c, &cs) == 0 {
		return fmt.Errorf("structure: startMonitoring rejected settings")
	}
	log.Info("Monitoring started (depth %s, range %s)", settings.DepthResolution, settings.DepthRangeMode)
	return nil
}

func (s *Session) StartStreaming() error {
	c, err := s.live()
	if err != nil {
		return err
	}
	if C.st_session_start_streaming(c) == 0 {
		return errors.New("structure: startStreaming failed")
	}
	return nil
}

func (s *Session) StopStreaming() {
	if c, err := s.live(); err == nil {
		C.st_session_stop_streaming(c)
	}
}

func (s *Session) VisibleCameraExposureAndGain() (float32, float32) {
	c, err := s.live()
	if err != nil {
		return 0, 0
	}
	var exposure, gain C.float
	C.st_session_visible_exposure_gain(c, &exposure, &gain)
	return float32(exposure), float32(gain)
}

func (s *Session) SetVisibleCameraExposureAndGain(exposure, gain float32) {
	if c, err := s.live(); err == nil {
		C.st_session_set_visible_exposure_gain(c, C.float(exposure), C.float(gain))
	}
}

func (s *Session) InfraredCamerasExposureAndGain() (float32, float32) {
	c, err := s.live()
	if err != nil {
		return 0, 0
	}
	var exposure, gain C.float
	C.st_session_infrared_exposure_gain(c, &exposure, &gain)
	return float32(exposure), float32(gain)
}

func (s *Session) SetInfraredCamerasExposureAndGain(exposure, gain float32) {
	if c, err := s.live(); err == nil {
		C.st_session_set_infrared_exposure_gain(c, C.float(exposure), C.float(gain))
	}
}

// Close stops streaming and frees the vendor session. The SDK joins its
// callback threads before the free returns.
func (s *Session) Close() error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	C.st_session_free(c)
	s.handle.Delete()
	return nil
}

//export goStructureEvent
func goStructureEvent(handle C.uintptr_t, event C.int) {
	s := cgo.Handle(handle).Value().(*Session)
	if d := s.currentDelegate(); d != nil {
		d.EventDidOccur(s, session.EventID(event))
	}
}

//export goStructureSample
func goStructureSample(handle C.uintptr_t, view *C.st_sample_view) {
	s := cgo.Handle(handle).Value().(*Session)
	d := s.currentDelegate()
	if d == nil {
		return
	}
	d.DidOutputSample(s, s.convertSample(view))
}

// convertSample copies the borrowed vendor buffers into Go memory
func (s *Session) convertSample(v *C.st_sample_view) types.Sample {
	sample := types.Sample{Type: types.SampleType(v._type)}

	hasFrame := v.depth_valid != 0 || v.visible_valid != 0 || v.infrared_valid != 0
	var num uint64
	if hasFrame {
		s.mu.Lock()
		s.frameNum++
		num = s.frameNum
		s.mu.Unlock()
	}

	if v.depth_valid != 0 && v.depth_mm != nil {
		w, h := int(v.depth_width), int(v.depth_height)
		depth := make([]float32, w*h)
		copy(depth, unsafe.Slice((*float32)(unsafe.Pointer(v.depth_mm)), w*h))
		sample.DepthFrame = types.DepthFrame{
			Width: w, Height: h, Depth: depth,
			Timestamp: sdkTime(v.depth_timestamp), FrameNum: num,
		}
	}
	if v.visible_valid != 0 && v.rgb != nil {
		rgb := C.GoBytes(unsafe.Pointer(v.rgb), v.rgb_size)
		sample.VisibleFrame = types.ColorFrame{
			Width: int(v.visible_width), Height: int(v.visible_height), RGB: rgb,
			Timestamp: sdkTime(v.visible_timestamp), FrameNum: num,
		}
	}
	if v.infrared_valid != 0 && v.infrared != nil {
		w, h := int(v.infrared_width), int(v.infrared_height)
		data := make([]uint16, w*h)
		copy(data, unsafe.Slice((*uint16)(unsafe.Pointer(v.infrared)), w*h))
		sample.InfraredFrame = types.InfraredFrame{
			Width: w, Height: h, Data: data,
			Timestamp: sdkTime(v.infrared_timestamp), FrameNum: num,
		}
	}
	switch sample.Type {
	case types.SampleAccelerometerEvent:
		sample.AccelerometerEvent = types.AccelerometerEvent{
			Timestamp:    sdkTime(v.accel_timestamp),
			Acceleration: types.Vec3{X: float64(v.accel[0]), Y: float64(v.accel[1]), Z: float64(v.accel[2])},
		}
	case types.SampleGyroscopeEvent:
		sample.GyroscopeEvent = types.GyroscopeEvent{
			Timestamp:    sdkTime(v.gyro_timestamp),
			RotationRate: types.Vec3{X: float64(v.gyro[0]), Y: float64(v.gyro[1]), Z: float64(v.gyro[2])},
		}
	}
	return sample
}

// sdkTime converts an SDK timestamp in seconds to a time.Time
func sdkTime(ts C.double) time.Time {
	sec := float64(ts)
	return time.Unix(0, int64(sec*float64(time.Second)))
}

func cbool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}
