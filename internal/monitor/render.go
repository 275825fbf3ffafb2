package monitor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

// depthImage stores millimeters in a 16-bit gray image. Invalid pixels are 0.
func depthImage(f types.DepthFrame) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	for i, d := range f.Depth {
		var v uint16
		switch {
		case math.IsNaN(float64(d)) || d <= 0:
			v = 0
		case d >= math.MaxUint16:
			v = math.MaxUint16
		default:
			v = uint16(d)
		}
		img.Pix[2*i] = byte(v >> 8)
		img.Pix[2*i+1] = byte(v)
	}
	return img
}

func infraredImage(f types.InfraredFrame) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range f.Data {
		img.Pix[2*i] = byte(v >> 8)
		img.Pix[2*i+1] = byte(v)
	}
	return img
}

func colorImage(f types.ColorFrame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.RGB); i, j = i+3, j+4 {
		img.Pix[j] = f.RGB[i]
		img.Pix[j+1] = f.RGB[i+1]
		img.Pix[j+2] = f.RGB[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// jet maps t in [0,1] from blue to red
func jet(t float64) color.RGBA {
	channel := func(offset float64) uint8 {
		v := 1.5 - math.Abs(4*t-offset)
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return uint8(v * 255)
	}
	return color.RGBA{R: channel(3), G: channel(2), B: channel(1), A: 0xff}
}

// colorizeDepth maps the working range of mode onto the jet palette, near
// pixels red and far pixels blue. Invalid pixels stay black.
func colorizeDepth(f types.DepthFrame, mode session.DepthRangeMode) *image.RGBA {
	near, far := mode.EstimatedRange()
	nearMM, farMM := near*1000, far*1000

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, d := range f.Depth {
		c := color.RGBA{A: 0xff}
		if !math.IsNaN(float64(d)) && d > 0 {
			t := (farMM - float64(d)) / (farMM - nearMM)
			c = jet(math.Max(0, math.Min(1, t)))
		}
		img.Pix[4*i] = c.R
		img.Pix[4*i+1] = c.G
		img.Pix[4*i+2] = c.B
		img.Pix[4*i+3] = c.A
	}
	return img
}

// renderPreview colorizes the frame, scales it to width and annotates the
// centre distance with a crosshair.
func renderPreview(f types.DepthFrame, mode session.DepthRangeMode, width int) *image.RGBA {
	src := colorizeDepth(f, mode)
	if width <= 0 {
		width = f.Width
	}
	height := f.Height * width / f.Width
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	cx, cy := width/2, height/2
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	for d := -6; d <= 6; d++ {
		dst.SetRGBA(cx+d, cy, white)
		dst.SetRGBA(cx, cy+d, white)
	}

	label := "center: --"
	if c := f.Center(); !math.IsNaN(float64(c)) {
		label = fmt.Sprintf("center: %.0f mm", c)
	}
	label = fmt.Sprintf("%s  frame: %d", label, f.FrameNum)

	// Backing strip so the text is readable over any colour
	face := basicfont.Face7x13
	strip := image.Rect(0, 0, width, face.Height+8)
	draw.Draw(dst, strip, image.NewUniform(color.RGBA{A: 0xc0}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(white),
		Face: face,
		Dot:  fixed.P(6, face.Ascent+4),
	}
	d.DrawString(label)
	return dst
}

// blankJPEG renders colour bars shown until the first frame arrives
func blankJPEG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))

	colors := []color.RGBA{
		{R: 255, G: 255, B: 255, A: 255},
		{R: 255, G: 255, B: 0, A: 255},
		{R: 0, G: 255, B: 255, A: 255},
		{R: 0, G: 255, B: 0, A: 255},
		{R: 255, G: 0, B: 255, A: 255},
		{R: 255, G: 0, B: 0, A: 255},
		{R: 0, G: 0, B: 255, A: 255},
		{R: 0, G: 0, B: 0, A: 255},
	}

	barWidth := 640 / len(colors)
	for i, c := range colors {
		bar := image.Rect(i*barWidth, 0, (i+1)*barWidth, 480)
		draw.Draw(img, bar, image.NewUniform(c), image.Point{}, draw.Src)
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(12, 24),
	}
	d.DrawString("waiting for frames")

	return encodeJPEG(img, 75)
}
