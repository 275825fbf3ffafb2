package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveSampleCountsEveryValidFrame(t *testing.T) {
	m := New()
	m.ObserveSample(types.Sample{
		Type: types.SampleSynchronizedFrames,
		DepthFrame: types.DepthFrame{
			Width: 1, Height: 1, Depth: []float32{500}, Timestamp: time.Now(),
		},
		VisibleFrame: types.ColorFrame{Width: 1, Height: 1, RGB: []byte{1, 2, 3}},
	})
	m.ObserveSample(types.Sample{
		Type:               types.SampleAccelerometerEvent,
		AccelerometerEvent: types.AccelerometerEvent{Timestamp: time.Now()},
	})

	assert.Equal(t, uint64(1), m.DepthSamples.Load())
	assert.Equal(t, uint64(1), m.VisibleSamples.Load())
	assert.Equal(t, uint64(0), m.InfraredSamples.Load())
	assert.Equal(t, uint64(1), m.AccelerometerSamples.Load())
	assert.Equal(t, uint64(0), m.GyroscopeSamples.Load())
}

func TestObserveEvent(t *testing.T) {
	m := New()
	m.ObserveEvent(session.EventReady)
	m.ObserveEvent(session.EventDisconnected)

	assert.Equal(t, uint64(2), m.SessionEvents.Load())
	assert.Equal(t, uint64(1), m.SessionErrors.Load())
}

func TestHandlerExposesGauges(t *testing.T) {
	m := New()
	m.FramesCopied.Add(3)
	m.BindCamera(func() CameraReading {
		return CameraReading{Streaming: true, VisibleGain: 2}
	})

	body := scrape(t, m)
	assert.Contains(t, body, "structure_frames_copied_total 3")
	assert.Contains(t, body, "structure_streaming 1")
	assert.Contains(t, body, "structure_visible_gain 2")
}

func TestUnboundCameraReadsZero(t *testing.T) {
	body := scrape(t, New())
	assert.Contains(t, body, "structure_streaming 0")
}
