package camera

// The session only exposes exposure and gain as a pair, so each setter
// reads the current pair and writes it back with one value replaced. The
// device's auto exposure can still change the values between calls.

// VisibleExposure returns the visible camera exposure in seconds
func (c *StructureCamera) VisibleExposure() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	exposure, _ := c.session.VisibleCameraExposureAndGain()
	return exposure
}

// SetVisibleExposure sets the visible camera exposure in seconds, keeping the gain
func (c *StructureCamera) SetVisibleExposure(exposure float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, gain := c.session.VisibleCameraExposureAndGain()
	c.session.SetVisibleCameraExposureAndGain(exposure, gain)
}

// VisibleGain returns the visible camera gain (1 to 8)
func (c *StructureCamera) VisibleGain() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, gain := c.session.VisibleCameraExposureAndGain()
	return gain
}

// SetVisibleGain sets the visible camera gain, keeping the exposure
func (c *StructureCamera) SetVisibleGain(gain float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exposure, _ := c.session.VisibleCameraExposureAndGain()
	c.session.SetVisibleCameraExposureAndGain(exposure, gain)
}

// InfraredExposure returns the infrared cameras exposure in seconds
func (c *StructureCamera) InfraredExposure() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	exposure, _ := c.session.InfraredCamerasExposureAndGain()
	return exposure
}

// SetInfraredExposure sets the infrared cameras exposure in seconds, keeping the gain
func (c *StructureCamera) SetInfraredExposure(exposure float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, gain := c.session.InfraredCamerasExposureAndGain()
	c.session.SetInfraredCamerasExposureAndGain(exposure, gain)
}

// InfraredGain returns the infrared cameras gain (0 to 3)
func (c *StructureCamera) InfraredGain() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, gain := c.session.InfraredCamerasExposureAndGain()
	return gain
}

// SetInfraredGain sets the infrared cameras gain, keeping the exposure
func (c *StructureCamera) SetInfraredGain(gain float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exposure, _ := c.session.InfraredCamerasExposureAndGain()
	c.session.SetInfraredCamerasExposureAndGain(exposure, gain)
}
