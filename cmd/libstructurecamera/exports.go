package main

/*
#include <stdbool.h>
#include <stdint.h>
*/
import "C"

import (
	"unsafe"

	"github.com/dj-oyu/structure-camera/internal/capi"
)

// Buffers passed to the frame functions must hold a whole frame at the
// current resolution; the copy is sized from the frame itself.

//export startCamera
func startCamera() C.bool { return C.bool(capi.StartCamera()) }

//export stopCamera
func stopCamera() { capi.StopCamera() }

//export lastDepthFrame
func lastDepthFrame(buffer *C.float) C.bool {
	if buffer == nil {
		return false
	}
	w, h, ok := capi.DepthFrameSize()
	if !ok {
		return false
	}
	dst := unsafe.Slice((*float32)(unsafe.Pointer(buffer)), w*h)
	return C.bool(capi.LastDepthFrame(dst))
}

//export lastVisibleFrame
func lastVisibleFrame(buffer *C.uint8_t) C.bool {
	if buffer == nil {
		return false
	}
	w, h, ok := capi.VisibleFrameSize()
	if !ok {
		return false
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buffer)), w*h*3)
	return C.bool(capi.LastVisibleFrame(dst))
}

//export lastInfraredFrame
func lastInfraredFrame(buffer *C.uint16_t) C.bool {
	if buffer == nil {
		return false
	}
	w, h, ok := capi.InfraredFrameSize()
	if !ok {
		return false
	}
	dst := unsafe.Slice((*uint16)(unsafe.Pointer(buffer)), w*h)
	return C.bool(capi.LastInfraredFrame(dst))
}

//export lastDepthFrameSize
func lastDepthFrameSize(width, height *C.int) C.bool {
	return frameSize(width, height, capi.DepthFrameSize)
}

//export lastVisibleFrameSize
func lastVisibleFrameSize(width, height *C.int) C.bool {
	return frameSize(width, height, capi.VisibleFrameSize)
}

// Both-camera infrared mode doubles the width
//
//export lastInfraredFrameSize
func lastInfraredFrameSize(width, height *C.int) C.bool {
	return frameSize(width, height, capi.InfraredFrameSize)
}

func frameSize(width, height *C.int, size func() (int, int, bool)) C.bool {
	if width == nil || height == nil {
		return false
	}
	w, h, ok := size()
	if !ok {
		return false
	}
	*width, *height = C.int(w), C.int(h)
	return true
}

//export lastAccelerometerEvent
func lastAccelerometerEvent(out *C.double) C.bool {
	return imuEvent(out, capi.LastAccelerometerEvent)
}

//export lastGyroscopeEvent
func lastGyroscopeEvent(out *C.double) C.bool {
	return imuEvent(out, capi.LastGyroscopeEvent)
}

// imuEvent writes x, y, z and the timestamp in seconds to out[0..3]
func imuEvent(out *C.double, get func() ([4]float64, bool)) C.bool {
	if out == nil {
		return false
	}
	v, ok := get()
	if !ok {
		return false
	}
	copy(unsafe.Slice((*float64)(unsafe.Pointer(out)), 4), v[:])
	return true
}

//export getLastError
func getLastError() C.int { return C.int(capi.LastError()) }

//export getLastErrorEvent
func getLastErrorEvent() C.int { return C.int(capi.LastErrorEvent()) }

//export setVisibleExposure
func setVisibleExposure(v C.float) { capi.SetVisibleExposure(float32(v)) }

//export getVisibleExposure
func getVisibleExposure() C.float { return C.float(capi.GetVisibleExposure()) }

//export setVisibleGain
func setVisibleGain(v C.float) { capi.SetVisibleGain(float32(v)) }

//export getVisibleGain
func getVisibleGain() C.float { return C.float(capi.GetVisibleGain()) }

//export setInfraredExposure
func setInfraredExposure(v C.float) { capi.SetInfraredExposure(float32(v)) }

//export getInfraredExposure
func getInfraredExposure() C.float { return C.float(capi.GetInfraredExposure()) }

//export setInfraredGain
func setInfraredGain(v C.float) { capi.SetInfraredGain(float32(v)) }

//export getInfraredGain
func getInfraredGain() C.float { return C.float(capi.GetInfraredGain()) }

//export setDepthResolution
func setDepthResolution(v C.int) { capi.SetDepthResolution(int(v)) }

//export getDepthResolution
func getDepthResolution() C.int { return C.int(capi.GetDepthResolution()) }

//export setDepthRange
func setDepthRange(v C.int) { capi.SetDepthRange(int(v)) }

//export getDepthRange
func getDepthRange() C.int { return C.int(capi.GetDepthRange()) }

//export setCalibrationMode
func setCalibrationMode(v C.int) { capi.SetCalibrationMode(int(v)) }

//export getCalibrationMode
func getCalibrationMode() C.int { return C.int(capi.GetCalibrationMode()) }

//export setInfraredMode
func setInfraredMode(v C.int) { capi.SetInfraredMode(int(v)) }

//export getInfraredMode
func getInfraredMode() C.int { return C.int(capi.GetInfraredMode()) }

//export setDepthCorrection
func setDepthCorrection(v C.bool) { capi.SetDepthCorrection(bool(v)) }

//export getDepthCorrection
func getDepthCorrection() C.bool { return C.bool(capi.GetDepthCorrection()) }

//export setInfraredAutoExposure
func setInfraredAutoExposure(v C.bool) { capi.SetInfraredAutoExposure(bool(v)) }

//export getInfraredAutoExposure
func getInfraredAutoExposure() C.bool { return C.bool(capi.GetInfraredAutoExposure()) }

//export setGammaCorrection
func setGammaCorrection(v C.bool) { capi.SetGammaCorrection(bool(v)) }

//export getGammaCorrection
func getGammaCorrection() C.bool { return C.bool(capi.GetGammaCorrection()) }

//export setDepthEnabled
func setDepthEnabled(v C.bool) { capi.SetDepthEnabled(bool(v)) }

//export getDepthEnabled
func getDepthEnabled() C.bool { return C.bool(capi.GetDepthEnabled()) }

//export setVisibleEnabled
func setVisibleEnabled(v C.bool) { capi.SetVisibleEnabled(bool(v)) }

//export getVisibleEnabled
func getVisibleEnabled() C.bool { return C.bool(capi.GetVisibleEnabled()) }

//export setInfraredEnabled
func setInfraredEnabled(v C.bool) { capi.SetInfraredEnabled(bool(v)) }

//export getInfraredEnabled
func getInfraredEnabled() C.bool { return C.bool(capi.GetInfraredEnabled()) }

//export setAccelerometerEnabled
func setAccelerometerEnabled(v C.bool) { capi.SetAccelerometerEnabled(bool(v)) }

//export getAccelerometerEnabled
func getAccelerometerEnabled() C.bool { return C.bool(capi.GetAccelerometerEnabled()) }

//export setGyroscopeEnabled
func setGyroscopeEnabled(v C.bool) { capi.SetGyroscopeEnabled(bool(v)) }

//export getGyroscopeEnabled
func getGyroscopeEnabled() C.bool { return C.bool(capi.GetGyroscopeEnabled()) }
