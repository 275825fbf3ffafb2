package sim

import (
	"math"
	"time"

	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

// invalidBorder is the width of the left band with no stereo overlap
const invalidBorder = 8

// depthScene is a tilted wall with a spherical bump, placed inside the
// configured range. The bump breathes slowly so consecutive frames differ.
type depthScene struct {
	width, height int
	base          []float32
}

func newDepthScene(width, height int, mode session.DepthRangeMode) *depthScene {
	near, far := mode.EstimatedRange()
	mid := float32((near + far) / 2 * 1000)
	span := float32((far - near) * 1000 / 4)

	base := make([]float32, width*height)
	cx, cy := float64(width)/2, float64(height)/2
	radius := float64(height) / 4

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if x < invalidBorder {
				base[i] = float32(math.NaN())
				continue
			}
			tilt := span * (float32(x)/float32(width) - 0.5)
			d := mid + tilt
			dx, dy := float64(x)-cx, float64(y)-cy
			if r := math.Hypot(dx, dy); r < radius {
				d -= float32(math.Sqrt(radius*radius-r*r)) * span / float32(radius) / 2
			}
			base[i] = d
		}
	}

	return &depthScene{width: width, height: height, base: base}
}

func (sc *depthScene) render(num uint64, now time.Time) types.DepthFrame {
	offset := float32(20 * math.Sin(float64(num)/15))
	depth := make([]float32, len(sc.base))
	for i, v := range sc.base {
		depth[i] = v + offset
	}
	return types.DepthFrame{
		Width:     sc.width,
		Height:    sc.height,
		Depth:     depth,
		Timestamp: now,
		FrameNum:  num,
	}
}

// brightness maps exposure*gain to a 0..1 scale around a nominal 0.016s x2
func brightness(exposure, gain float32) float32 {
	b := exposure * gain / (0.016 * 2)
	if b > 2 {
		b = 2
	}
	return b / 2
}

func renderColor(settings session.Settings, num uint64, now time.Time, exposure, gain float32) types.ColorFrame {
	w, h := settings.VisibleDimensions()
	rgb := make([]byte, w*h*3)
	scale := brightness(exposure, gain) * 2

	// Red follows x and green follows y, so both ramps are computed once
	reds := ramp(w, settings.VisibleApplyGammaCorrection)
	greens := ramp(h, settings.VisibleApplyGammaCorrection)

	for y := 0; y < h; y++ {
		g := toByte(greens[y] * scale)
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			b := float32((uint64(x+y)+num)%256) / 255
			rgb[i] = toByte(reds[x] * scale)
			rgb[i+1] = g
			rgb[i+2] = toByte(b * scale)
		}
	}

	return types.ColorFrame{Width: w, Height: h, RGB: rgb, Timestamp: now, FrameNum: num}
}

func ramp(n int, gamma bool) []float32 {
	out := make([]float32, n)
	for i := range out {
		v := float32(i) / float32(n)
		if gamma {
			v = float32(math.Pow(float64(v), 1/2.2))
		}
		out[i] = v
	}
	return out
}

func renderInfrared(settings session.Settings, num uint64, now time.Time, exposure, gain float32) types.InfraredFrame {
	w, h := settings.InfraredDimensions()
	data := make([]uint16, w*h)
	level := float32(1000) * (1 + gain) * exposure / 0.014

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Projected dot pattern
			dot := float32(0)
			if (x*7+y*13+int(num))%29 == 0 {
				dot = 2000
			}
			v := level + dot
			if v > math.MaxUint16 {
				v = math.MaxUint16
			}
			data[y*w+x] = uint16(v)
		}
	}

	return types.InfraredFrame{Width: w, Height: h, Data: data, Timestamp: now, FrameNum: num}
}

func toByte(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v * 255)
}
