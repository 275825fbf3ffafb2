package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.True(t, s.DepthEnabled)
	assert.True(t, s.VisibleEnabled)
	assert.False(t, s.InfraredEnabled)
	assert.Equal(t, ResolutionSXGA, s.DepthResolution)
	assert.Equal(t, DepthRangeDefault, s.DepthRangeMode)
	assert.Equal(t, DemosaicEdgeAware, s.DemosaicMethod)
	assert.Equal(t, IMUAccelAndGyro200Hz, s.IMUUpdateRate)
	assert.True(t, s.VisibleApplyGammaCorrection)
	assert.True(t, s.LowLatencyIMU)
}

func TestDepthResolutionDimensions(t *testing.T) {
	tests := []struct {
		res  DepthResolution
		w, h int
	}{
		{ResolutionQVGA, 320, 240},
		{ResolutionVGA, 640, 480},
		{ResolutionSXGA, 1280, 960},
		{DepthResolution(9), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.res.String(), func(t *testing.T) {
			w, h := tt.res.Dimensions()
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestExportedEnumValues(t *testing.T) {
	// These are part of the C ABI
	assert.Equal(t, 1, int(ResolutionVGA))
	assert.Equal(t, 2, int(ResolutionSXGA))
	assert.Equal(t, 0, int(DepthRangeVeryShort))
	assert.Equal(t, 6, int(DepthRangeDefault))
	assert.Equal(t, 2, int(CalibrationContinuous))
	assert.Equal(t, 2, int(InfraredBothCameras))
}

func TestParseDepthResolution(t *testing.T) {
	r, err := ParseDepthResolution("vga")
	require.NoError(t, err)
	assert.Equal(t, ResolutionVGA, r)

	_, err = ParseDepthResolution("4k")
	assert.Error(t, err)
}

func TestParseDepthRangeMode(t *testing.T) {
	m, err := ParseDepthRangeMode("veryLONG")
	require.NoError(t, err)
	assert.Equal(t, DepthRangeVeryLong, m)

	_, err = ParseDepthRangeMode("far")
	assert.Error(t, err)
}

func TestInfraredDimensions(t *testing.T) {
	s := DefaultSettings()
	w, h := s.InfraredDimensions()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 960, h)

	s.InfraredMode = InfraredBothCameras
	w, _ = s.InfraredDimensions()
	assert.Equal(t, 2560, w)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "Ready", EventReady.String())
	assert.Contains(t, EventID(42).String(), "42")
}
