package camera

import "github.com/dj-oyu/structure-camera/internal/session"

func (c *StructureCamera) set(what string, fn func(*session.Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnIfStreaming(what)
	fn(&c.settings)
}

// SetDepthResolution selects the depth frame size
func (c *StructureCamera) SetDepthResolution(r session.DepthResolution) {
	c.set("depth resolution", func(s *session.Settings) { s.DepthResolution = r })
}

// DepthResolution returns the configured depth frame size
func (c *StructureCamera) DepthResolution() session.DepthResolution {
	return c.Settings().DepthResolution
}

// SetDepthRangeMode selects a depth range preset
func (c *StructureCamera) SetDepthRangeMode(m session.DepthRangeMode) {
	c.set("depth range", func(s *session.Settings) { s.DepthRangeMode = m })
}

// DepthRangeMode returns the configured depth range preset
func (c *StructureCamera) DepthRangeMode() session.DepthRangeMode {
	return c.Settings().DepthRangeMode
}

// SetCalibrationMode selects the dynamic calibration mode
func (c *StructureCamera) SetCalibrationMode(m session.DynamicCalibrationMode) {
	c.set("calibration mode", func(s *session.Settings) { s.DynamicCalibrationMode = m })
}

// CalibrationMode returns the dynamic calibration mode
func (c *StructureCamera) CalibrationMode() session.DynamicCalibrationMode {
	return c.Settings().DynamicCalibrationMode
}

// SetDepthCorrection toggles the vendor's expensive depth correction pass
func (c *StructureCamera) SetDepthCorrection(enabled bool) {
	c.set("depth correction", func(s *session.Settings) { s.ApplyExpensiveCorrection = enabled })
}

// DepthCorrection reports whether the expensive depth correction is enabled
func (c *StructureCamera) DepthCorrection() bool {
	return c.Settings().ApplyExpensiveCorrection
}

// SetInfraredAutoExposure toggles the infrared auto exposure
func (c *StructureCamera) SetInfraredAutoExposure(enabled bool) {
	c.set("infrared auto exposure", func(s *session.Settings) { s.InfraredAutoExposureEnabled = enabled })
}

// InfraredAutoExposure reports whether infrared auto exposure is enabled
func (c *StructureCamera) InfraredAutoExposure() bool {
	return c.Settings().InfraredAutoExposureEnabled
}

// SetGammaCorrection toggles gamma correction of visible frames
func (c *StructureCamera) SetGammaCorrection(enabled bool) {
	c.set("gamma correction", func(s *session.Settings) { s.VisibleApplyGammaCorrection = enabled })
}

// GammaCorrection reports whether visible frames are gamma corrected
func (c *StructureCamera) GammaCorrection() bool {
	return c.Settings().VisibleApplyGammaCorrection
}

// SetDepthEnabled toggles the depth stream
func (c *StructureCamera) SetDepthEnabled(enabled bool) {
	c.set("depth stream", func(s *session.Settings) { s.DepthEnabled = enabled })
}

// DepthEnabled reports whether the depth stream is enabled
func (c *StructureCamera) DepthEnabled() bool {
	return c.Settings().DepthEnabled
}

// SetVisibleEnabled toggles the visible stream
func (c *StructureCamera) SetVisibleEnabled(enabled bool) {
	c.set("visible stream", func(s *session.Settings) { s.VisibleEnabled = enabled })
}

// VisibleEnabled reports whether the visible stream is enabled
func (c *StructureCamera) VisibleEnabled() bool {
	return c.Settings().VisibleEnabled
}

// SetInfraredEnabled toggles the infrared stream
func (c *StructureCamera) SetInfraredEnabled(enabled bool) {
	c.set("infrared stream", func(s *session.Settings) { s.InfraredEnabled = enabled })
}

// InfraredEnabled reports whether the infrared stream is enabled
func (c *StructureCamera) InfraredEnabled() bool {
	return c.Settings().InfraredEnabled
}

// SetInfraredMode selects which infrared cameras stream
func (c *StructureCamera) SetInfraredMode(m session.InfraredMode) {
	c.set("infrared mode", func(s *session.Settings) { s.InfraredMode = m })
}

// InfraredMode returns which infrared cameras stream
func (c *StructureCamera) InfraredMode() session.InfraredMode {
	return c.Settings().InfraredMode
}

// SetAccelerometerEnabled toggles accelerometer events
func (c *StructureCamera) SetAccelerometerEnabled(enabled bool) {
	c.set("accelerometer", func(s *session.Settings) { s.AccelerometerEnabled = enabled })
}

// AccelerometerEnabled reports whether accelerometer events are enabled
func (c *StructureCamera) AccelerometerEnabled() bool {
	return c.Settings().AccelerometerEnabled
}

// SetGyroscopeEnabled toggles gyroscope events
func (c *StructureCamera) SetGyroscopeEnabled(enabled bool) {
	c.set("gyroscope", func(s *session.Settings) { s.GyroscopeEnabled = enabled })
}

// GyroscopeEnabled reports whether gyroscope events are enabled
func (c *StructureCamera) GyroscopeEnabled() bool {
	return c.Settings().GyroscopeEnabled
}
