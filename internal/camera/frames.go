package camera

// LastDepthFrame copies the latest depth frame (millimetres, row-major) into
// dst and returns its dimensions.
func (c *StructureCamera) LastDepthFrame(dst []float32) (width, height int, err error) {
	f := c.delegate.LastDepthFrame()
	if !f.IsValid() {
		return 0, 0, c.miss()
	}
	if len(dst) < len(f.Depth) {
		return f.Width, f.Height, c.short()
	}
	copy(dst, f.Depth)
	c.copied()
	return f.Width, f.Height, nil
}

// LastVisibleFrame copies the latest packed RGB8 frame into dst
func (c *StructureCamera) LastVisibleFrame(dst []byte) (width, height int, err error) {
	f := c.delegate.LastVisibleFrame()
	if !f.IsValid() {
		return 0, 0, c.miss()
	}
	if len(dst) < f.RGBSize() {
		return f.Width, f.Height, c.short()
	}
	copy(dst, f.RGB)
	c.copied()
	return f.Width, f.Height, nil
}

// LastInfraredFrame copies the latest infrared frame into dst
func (c *StructureCamera) LastInfraredFrame(dst []uint16) (width, height int, err error) {
	f := c.delegate.LastInfraredFrame()
	if !f.IsValid() {
		return 0, 0, c.miss()
	}
	if len(dst) < len(f.Data) {
		return f.Width, f.Height, c.short()
	}
	copy(dst, f.Data)
	c.copied()
	return f.Width, f.Height, nil
}

func (c *StructureCamera) miss() error {
	if c.metrics != nil {
		c.metrics.FrameMisses.Add(1)
	}
	return ErrNoFrame
}

func (c *StructureCamera) short() error {
	if c.metrics != nil {
		c.metrics.ShortBuffers.Add(1)
	}
	return ErrShortBuffer
}

func (c *StructureCamera) copied() {
	if c.metrics != nil {
		c.metrics.FramesCopied.Add(1)
	}
}
