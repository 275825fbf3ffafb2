package main

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/structure-camera/internal/camera"
	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/internal/session/sim"
)

func TestCheckInterval(t *testing.T) {
	assert.NoError(t, checkInterval(100*time.Millisecond))
	assert.Error(t, checkInterval(0))
	assert.Error(t, checkInterval(-time.Second))
}

func TestPrintFirstPixelWaitsForFrame(t *testing.T) {
	settings := session.DefaultSettings()
	settings.DepthResolution = session.ResolutionQVGA
	settings.VisibleEnabled = false
	cam := camera.New(sim.New(sim.WithFrameRate(100)), camera.WithSettings(settings))
	t.Cleanup(func() { _ = cam.Close() })

	w, h := settings.DepthResolution.Dimensions()
	depth := make([]float32, w*h)

	var out bytes.Buffer
	assert.False(t, printFirstPixel(&out, cam, depth))
	assert.Empty(t, out.String())

	require.NoError(t, cam.Start())
	require.Eventually(t, func() bool { return printFirstPixel(&out, cam, depth) }, 2*time.Second, 5*time.Millisecond)

	line := strings.TrimSpace(out.String())
	_, err := strconv.ParseFloat(line, 32)
	assert.NoError(t, err, "output %q", line)
}
