// Package capi is the Go side of the flat C interface exported by
// cmd/libstructurecamera. Every exported C symbol forwards to one function
// here. The process-wide camera is built from the environment on first use.
package capi

import (
	"os"
	"sync"
	"time"

	"github.com/dj-oyu/structure-camera/internal/camera"
	"github.com/dj-oyu/structure-camera/internal/config"
	"github.com/dj-oyu/structure-camera/internal/logger"
	"github.com/dj-oyu/structure-camera/internal/metrics"
	"github.com/dj-oyu/structure-camera/internal/session"
)

var log = logger.Module("CAPI")

type lazyCamera struct {
	once sync.Once
	cam  *camera.StructureCamera
	err  error
}

var global = &lazyCamera{}

func (l *lazyCamera) get() (*camera.StructureCamera, error) {
	l.once.Do(func() {
		l.cam, l.err = open()
		if l.err != nil {
			log.Error("Failed to create camera: %v", l.err)
		}
	})
	return l.cam, l.err
}

func open() (*camera.StructureCamera, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	// An unknown level falls back to INFO
	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(level, os.Stderr, cfg.LogColor)

	m := metrics.New()
	// Only listen when the host asked for it
	if addr := os.Getenv(config.EnvMetricsAddr); addr != "" {
		go func() {
			log.Info("Starting metrics server on %s", addr)
			if err := m.StartServer(addr); err != nil {
				log.Error("Metrics server error: %v", err)
			}
		}()
	}

	c, err := camera.NewFromConfig(cfg, camera.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	log.Info("Camera created (backend=%s, instance=%s)", cfg.Backend, cfg.InstanceID)
	return c, nil
}

// with runs fn on the process camera, doing nothing if it could not be built
func with(fn func(c *camera.StructureCamera)) {
	c, err := global.get()
	if err != nil {
		return
	}
	fn(c)
}

// StartCamera starts monitoring. Streaming begins on the Ready event.
func StartCamera() bool {
	c, err := global.get()
	if err != nil {
		return false
	}
	if err := c.Start(); err != nil {
		log.Error("startCamera: %v", err)
		return false
	}
	return true
}

func StopCamera() {
	with(func(c *camera.StructureCamera) { c.Stop() })
}

// DepthFrameSize reports the dimensions of the latest depth frame
func DepthFrameSize() (width, height int, ok bool) {
	with(func(c *camera.StructureCamera) {
		f := c.DepthFrame()
		width, height, ok = f.Width, f.Height, f.IsValid()
	})
	return width, height, ok
}

// VisibleFrameSize reports the dimensions of the latest color frame
func VisibleFrameSize() (width, height int, ok bool) {
	with(func(c *camera.StructureCamera) {
		f := c.VisibleFrame()
		width, height, ok = f.Width, f.Height, f.IsValid()
	})
	return width, height, ok
}

// InfraredFrameSize reports the dimensions of the latest infrared frame
func InfraredFrameSize() (width, height int, ok bool) {
	with(func(c *camera.StructureCamera) {
		f := c.InfraredFrame()
		width, height, ok = f.Width, f.Height, f.IsValid()
	})
	return width, height, ok
}

func LastDepthFrame(dst []float32) (ok bool) {
	with(func(c *camera.StructureCamera) {
		_, _, err := c.LastDepthFrame(dst)
		ok = copied("lastDepthFrame", err)
	})
	return ok
}

func LastVisibleFrame(dst []byte) (ok bool) {
	with(func(c *camera.StructureCamera) {
		_, _, err := c.LastVisibleFrame(dst)
		ok = copied("lastVisibleFrame", err)
	})
	return ok
}

func LastInfraredFrame(dst []uint16) (ok bool) {
	with(func(c *camera.StructureCamera) {
		_, _, err := c.LastInfraredFrame(dst)
		ok = copied("lastInfraredFrame", err)
	})
	return ok
}

func copied(name string, err error) bool {
	switch err {
	case nil:
		return true
	case camera.ErrNoFrame:
		return false
	default:
		log.Warn("%s: %v", name, err)
		return false
	}
}

// LastAccelerometerEvent returns x, y, z in g and the timestamp in seconds
func LastAccelerometerEvent() (v [4]float64, ok bool) {
	with(func(c *camera.StructureCamera) {
		e := c.LastAccelerometerEvent()
		if !e.IsValid() {
			return
		}
		v = [4]float64{e.Acceleration.X, e.Acceleration.Y, e.Acceleration.Z, seconds(e.Timestamp)}
		ok = true
	})
	return v, ok
}

// LastGyroscopeEvent returns x, y, z in rad/s and the timestamp in seconds
func LastGyroscopeEvent() (v [4]float64, ok bool) {
	with(func(c *camera.StructureCamera) {
		e := c.LastGyroscopeEvent()
		if !e.IsValid() {
			return
		}
		v = [4]float64{e.RotationRate.X, e.RotationRate.Y, e.RotationRate.Z, seconds(e.Timestamp)}
		ok = true
	})
	return v, ok
}

func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// LastError returns 0 when no session error was recorded and 1 otherwise
func LastError() int {
	code := 0
	with(func(c *camera.StructureCamera) { code = int(c.ErrorCode()) })
	return code
}

// LastErrorEvent returns the event id of the recorded error, or -1
func LastErrorEvent() int {
	id := -1
	with(func(c *camera.StructureCamera) {
		if e := c.LastError(); e != nil {
			id = int(e.Event)
		}
	})
	return id
}

func SetVisibleExposure(v float32) {
	with(func(c *camera.StructureCamera) { c.SetVisibleExposure(v) })
}

func GetVisibleExposure() (v float32) {
	with(func(c *camera.StructureCamera) { v = c.VisibleExposure() })
	return v
}

func SetVisibleGain(v float32) {
	with(func(c *camera.StructureCamera) { c.SetVisibleGain(v) })
}

func GetVisibleGain() (v float32) {
	with(func(c *camera.StructureCamera) { v = c.VisibleGain() })
	return v
}

func SetInfraredExposure(v float32) {
	with(func(c *camera.StructureCamera) { c.SetInfraredExposure(v) })
}

func GetInfraredExposure() (v float32) {
	with(func(c *camera.StructureCamera) { v = c.InfraredExposure() })
	return v
}

func SetInfraredGain(v float32) {
	with(func(c *camera.StructureCamera) { c.SetInfraredGain(v) })
}

func GetInfraredGain() (v float32) {
	with(func(c *camera.StructureCamera) { v = c.InfraredGain() })
	return v
}

func SetDepthResolution(v int) {
	with(func(c *camera.StructureCamera) { c.SetDepthResolution(session.DepthResolution(v)) })
}

func GetDepthResolution() (v int) {
	with(func(c *camera.StructureCamera) { v = int(c.DepthResolution()) })
	return v
}

func SetDepthRange(v int) {
	with(func(c *camera.StructureCamera) { c.SetDepthRangeMode(session.DepthRangeMode(v)) })
}

func GetDepthRange() (v int) {
	with(func(c *camera.StructureCamera) { v = int(c.DepthRangeMode()) })
	return v
}

func SetCalibrationMode(v int) {
	with(func(c *camera.StructureCamera) { c.SetCalibrationMode(session.DynamicCalibrationMode(v)) })
}

func GetCalibrationMode() (v int) {
	with(func(c *camera.StructureCamera) { v = int(c.CalibrationMode()) })
	return v
}

func SetInfraredMode(v int) {
	with(func(c *camera.StructureCamera) { c.SetInfraredMode(session.InfraredMode(v)) })
}

func GetInfraredMode() (v int) {
	with(func(c *camera.StructureCamera) { v = int(c.InfraredMode()) })
	return v
}

func SetDepthCorrection(v bool) {
	with(func(c *camera.StructureCamera) { c.SetDepthCorrection(v) })
}

func GetDepthCorrection() (v bool) {
	with(func(c *camera.StructureCamera) { v = c.DepthCorrection() })
	return v
}

func SetInfraredAutoExposure(v bool) {
	with(func(c *camera.StructureCamera) { c.SetInfraredAutoExposure(v) })
}

func GetInfraredAutoExposure() (v bool) {
	with(func(c *camera.StructureCamera) { v = c.InfraredAutoExposure() })
	return v
}

func SetGammaCorrection(v bool) {
	with(func(c *camera.StructureCamera) { c.SetGammaCorrection(v) })
}

func GetGammaCorrection() (v bool) {
	with(func(c *camera.StructureCamera) { v = c.GammaCorrection() })
	return v
}

func SetDepthEnabled(v bool) {
	with(func(c *camera.StructureCamera) { c.SetDepthEnabled(v) })
}

func GetDepthEnabled() (v bool) {
	with(func(c *camera.StructureCamera) { v = c.DepthEnabled() })
	return v
}

func SetVisibleEnabled(v bool) {
	with(func(c *camera.StructureCamera) { c.SetVisibleEnabled(v) })
}

func GetVisibleEnabled() (v bool) {
	with(func(c *camera.StructureCamera) { v = c.VisibleEnabled() })
	return v
}

func SetInfraredEnabled(v bool) {
	with(func(c *camera.StructureCamera) { c.SetInfraredEnabled(v) })
}

func GetInfraredEnabled() (v bool) {
	with(func(c *camera.StructureCamera) { v = c.InfraredEnabled() })
	return v
}

func SetAccelerometerEnabled(v bool) {
	with(func(c *camera.StructureCamera) { c.SetAccelerometerEnabled(v) })
}

func GetAccelerometerEnabled() (v bool) {
	with(func(c *camera.StructureCamera) { v = c.AccelerometerEnabled() })
	return v
}

func SetGyroscopeEnabled(v bool) {
	with(func(c *camera.StructureCamera) { c.SetGyroscopeEnabled(v) })
}

func GetGyroscopeEnabled() (v bool) {
	with(func(c *camera.StructureCamera) { v = c.GyroscopeEnabled() })
	return v
}
