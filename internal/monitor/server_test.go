package monitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/structure-camera/internal/metrics"
	"github.com/dj-oyu/structure-camera/internal/recorder"
	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/internal/webrtc"
)

type fakeOffers struct {
	answer  []byte
	err     error
	clients int
	offers  [][]byte
}

func (f *fakeOffers) HandleOffer(offerJSON []byte) ([]byte, error) {
	f.offers = append(f.offers, offerJSON)
	return f.answer, f.err
}

func (f *fakeOffers) ClientCount() int { return f.clients }

func TestIndexAndHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.api.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "Structure Camera Monitor")

	resp, _ = env.api.get(t, "/no-such-page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.api.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decodeJSONMap(t, body)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "stopped", health["state"])
	assert.Equal(t, "sim", health["backend"])
}

func TestStatusBeforeStart(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.api.get(t, "/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	payload := decodeJSONMap(t, body)
	assertStatusPayload(t, payload)
	assert.Equal(t, "stopped", payload["state"])
	assert.Nil(t, payload["depth"])
	assert.Nil(t, payload["error"])
	assert.NotContains(t, payload, "recording")
}

func TestStatusAfterStart(t *testing.T) {
	env := newTestEnv(t)
	env.startCamera(t)

	_, body := env.api.get(t, "/api/status")
	payload := decodeJSONMap(t, body)
	assertStatusPayload(t, payload)
	assert.Equal(t, "streaming", payload["state"])

	depth := requireMap(t, payload["depth"], "depth")
	assert.Equal(t, 320.0, depth["width"])
	assert.Equal(t, 240.0, depth["height"])
	assert.Greater(t, requireNumber(t, depth["center_mm"], "depth.center_mm"), 300.0)

	accel := requireMap(t, payload["accelerometer"], "accelerometer")
	assert.Equal(t, -1.0, accel["y"])
}

func TestStatusProtobuf(t *testing.T) {
	env := newTestEnv(t)
	env.startCamera(t)

	resp, body := env.api.getAccept(t, "/api/status", "application/x-protobuf")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(body, &st))
	assert.Equal(t, "streaming", st.Fields["state"].GetStringValue())
	assert.Equal(t, "test-instance", st.Fields["instance_id"].GetStringValue())
	depth := st.Fields["depth"].GetStructValue()
	require.NotNil(t, depth)
	assert.Equal(t, 320.0, depth.Fields["width"].GetNumberValue())
}

func TestCameraStartStop(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.api.get(t, "/api/camera/start")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	env.startCamera(t)

	resp, body := env.api.postJSON(t, "/api/camera/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stopped", decodeJSONMap(t, body)["state"])
}

func TestFrameEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.api.get(t, "/api/frames/depth.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decodeJSONMap(t, body)["error"], "no depth frame")

	env.startCamera(t)

	resp, body = env.api.get(t, "/api/frames/depth.png")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "mm", resp.Header.Get("X-Depth-Units"))
	assert.NotEmpty(t, resp.Header.Get("X-Frame-Number"))
	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	gray, ok := img.(*image.Gray16)
	require.True(t, ok, "depth image is %T", img)
	assert.Equal(t, image.Rect(0, 0, 320, 240), gray.Bounds())
	assert.Equal(t, uint16(0), gray.Gray16At(0, 120).Y, "invalid border is zero")
	assert.Greater(t, gray.Gray16At(160, 120).Y, uint16(300))

	resp, body = env.api.get(t, "/api/frames/visible.jpg")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)

	resp, body = env.api.get(t, "/api/frames/preview.jpg")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg, err = jpeg.DecodeConfig(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 160, cfg.Width)
	assert.Equal(t, 120, cfg.Height)

	// Infrared is disabled in the test settings
	resp, _ = env.api.get(t, "/api/frames/infrared.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSettingsUpdate(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.api.get(t, "/api/settings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(session.ResolutionQVGA), decodeJSONMap(t, body)["depth_resolution"])

	resp, body = env.api.postJSON(t, "/api/settings", map[string]any{
		"depth_resolution": int(session.ResolutionVGA),
		"depth_range_mode": int(session.DepthRangeShort),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, false, decodeJSONMap(t, body)["restart_required"])

	got := env.camera.Settings()
	assert.Equal(t, session.ResolutionVGA, got.DepthResolution)
	assert.Equal(t, session.DepthRangeShort, got.DepthRangeMode)
	assert.True(t, got.VisibleEnabled, "absent fields keep their value")
	assert.True(t, got.AccelerometerEnabled)

	env.startCamera(t)
	resp, body = env.api.postJSON(t, "/api/settings", map[string]any{"gamma_correction": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeJSONMap(t, body)["restart_required"])
}

func TestSettingsRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)
	before := env.camera.Settings()

	for _, body := range []string{
		`{"depth_resolution": 7}`,
		`{"depth_range_mode": -1}`,
		`{"infrared_mode": 3}`,
		`{"dynamic_calibration_mode": 9}`,
		`{"source": 1}`,
		`{"depth_resolution": "VGA"}`,
		`not json`,
	} {
		resp, _ := env.api.postRaw(t, "/api/settings", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
	assert.Equal(t, before, env.camera.Settings())

	req, err := http.NewRequest(http.MethodPut, env.api.baseURL+"/api/settings", nil)
	require.NoError(t, err)
	resp, _ := env.api.do(t, req)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSettingsPostKeepsConcurrentChanges(t *testing.T) {
	env := newTestEnv(t)
	env.camera.SetInfraredEnabled(false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			env.camera.SetInfraredEnabled(true)
		}
	}()
	for i := 0; i < 20; i++ {
		resp, body := env.api.postJSON(t, "/api/settings", map[string]any{"depth_range_mode": int(session.DepthRangeLong)})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	}
	<-done

	got := env.camera.Settings()
	assert.True(t, got.InfraredEnabled)
	assert.Equal(t, session.DepthRangeLong, got.DepthRangeMode)
}

func TestExposure(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.api.get(t, "/api/exposure")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	initial := decodeJSONMap(t, body)

	resp, body = env.api.postJSON(t, "/api/exposure", map[string]any{
		"visible_exposure": 0.02,
		"infrared_gain":    2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	got := decodeJSONMap(t, body)
	assert.InDelta(t, 0.02, got["visible_exposure"], 1e-6)
	assert.Equal(t, 2.0, got["infrared_gain"])
	assert.Equal(t, initial["visible_gain"], got["visible_gain"])
	assert.Equal(t, initial["infrared_exposure"], got["infrared_exposure"])

	resp, _ = env.api.postJSON(t, "/api/exposure", map[string]any{"visible_exposure": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.api.postJSON(t, "/api/exposure", map[string]any{"infrared_gain": -0.5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.api.postRaw(t, "/api/exposure", "{")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecordingWithoutRecorder(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.api.postJSON(t, "/api/recording/start", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, body := env.api.get(t, "/api/recording/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decodeJSONMap(t, body)["recording"])
}

func TestRecordingLifecycle(t *testing.T) {
	dir := t.TempDir()
	var rec *recorder.Recorder
	env := newTestEnv(t, func(s *Server) {
		rec = recorder.New(dir, s.camera, recorder.WithInterval(10*time.Millisecond))
		s.recorder = rec
	})
	env.startCamera(t)

	resp, _ := env.api.get(t, "/api/recording/start")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, body := env.api.postJSON(t, "/api/recording/start", map[string]any{"name": "session.screc"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	started := decodeJSONMap(t, body)
	assert.Equal(t, "recording", started["status"])
	assert.True(t, strings.HasSuffix(started["file"].(string), "session.screc"))
	assert.NotEmpty(t, started["id"])

	resp, _ = env.api.postJSON(t, "/api/recording/start", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "already recording")

	require.Eventually(t, func() bool { return rec.Status().RecordCount > 1 }, 2*time.Second, 5*time.Millisecond)

	_, body = env.api.get(t, "/api/status")
	recording := requireMap(t, decodeJSONMap(t, body)["recording"], "recording")
	assert.Equal(t, true, recording["recording"])

	resp, body = env.api.postJSON(t, "/api/recording/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	stopped := decodeJSONMap(t, body)
	assert.Equal(t, "stopped", stopped["status"])

	info, err := os.Stat(stopped["file"].(string))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	resp, _ = env.api.postJSON(t, "/api/recording/stop", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebRTCOffer(t *testing.T) {
	offers := &fakeOffers{answer: []byte(`{"type":"answer","sdp":"v=0"}`), clients: 3}
	env := newTestEnv(t, WithWebRTC(offers))

	resp, body := env.api.postRaw(t, "/api/webrtc/offer", `{"type":"offer","sdp":"v=0"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"type":"answer","sdp":"v=0"}`, string(body))
	require.Len(t, offers.offers, 1)

	for _, bad := range []string{`{"type":"offer"}`, `{"sdp":"v=0"}`, `garbage`} {
		resp, _ = env.api.postRaw(t, "/api/webrtc/offer", bad)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
	}
	assert.Len(t, offers.offers, 1)

	offers.err = fmt.Errorf("%w (3)", webrtc.ErrTooManyClients)
	resp, _ = env.api.postRaw(t, "/api/webrtc/offer", `{"type":"offer","sdp":"v=0"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	offers.err = fmt.Errorf("failed to set remote description")
	resp, _ = env.api.postRaw(t, "/api/webrtc/offer", `{"type":"offer","sdp":"v=0"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	_, body = env.api.get(t, "/api/status")
	assert.Equal(t, 3.0, decodeJSONMap(t, body)["webrtc_clients"])
}

func TestWebRTCDisabled(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.api.postRaw(t, "/api/webrtc/offer", `{"type":"offer","sdp":"v=0"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusStream(t *testing.T) {
	env := newTestEnv(t)

	event, headers, err := readSSEEvent(env.api.baseURL+"/api/status/stream", "", 3*time.Second)
	require.NoError(t, err)
	assert.Contains(t, headers.Get("Content-Type"), "text/event-stream")
	assertStatusPayload(t, decodeJSONMap(t, []byte(sseData(t, event))))
}

func TestIMUStream(t *testing.T) {
	env := newTestEnv(t)
	env.startCamera(t)

	event, headers, err := readSSEEvent(env.api.baseURL+"/api/imu/stream", "", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "application/json", headers.Get("X-Content-Format"))
	payload := decodeJSONMap(t, []byte(sseData(t, event)))
	accel := requireMap(t, payload["accelerometer"], "accelerometer")
	assert.Equal(t, -1.0, accel["y"])
	requireMap(t, payload["gyroscope"], "gyroscope")
}

func TestIMUSequenceAdvancesWithSharedTimestamps(t *testing.T) {
	env := newTestEnv(t)
	env.startCamera(t)

	// Accelerometer and gyroscope carry the same timestamp on every tick
	accel := env.camera.LastAccelerometerEvent()
	gyro := env.camera.LastGyroscopeEvent()
	require.True(t, accel.IsValid() && gyro.IsValid())

	_, first, ok := env.server.serializeIMU()
	require.True(t, ok)
	assert.NotZero(t, first)

	require.Eventually(t, func() bool {
		_, seq, ok := env.server.serializeIMU()
		return ok && seq > first
	}, 2*time.Second, 5*time.Millisecond)
}

func TestIMUStreamProtobuf(t *testing.T) {
	env := newTestEnv(t)
	env.startCamera(t)

	event, headers, err := readSSEEvent(env.api.baseURL+"/api/imu/stream", "application/x-protobuf", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "application/protobuf", headers.Get("X-Content-Format"))

	raw, err := base64.StdEncoding.DecodeString(sseData(t, event))
	require.NoError(t, err)
	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(raw, &st))
	accel := st.Fields["accelerometer"].GetStructValue()
	require.NotNil(t, accel)
	assert.Equal(t, -1.0, accel.Fields["y"].GetNumberValue())
}

func TestMJPEGStream(t *testing.T) {
	m := metrics.New()
	env := newTestEnv(t, WithMetrics(m))
	env.startCamera(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.api.baseURL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	contentType := resp.Header.Get("Content-Type")
	assert.Contains(t, contentType, "multipart/x-mixed-replace")
	assert.Contains(t, contentType, "boundary=frame")

	// Read two parts: the placeholder and the first camera frame
	reader := bufio.NewReader(resp.Body)
	for part := 0; part < 2; part++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "--frame\r\n", line)
		var length int
		for {
			header, err := reader.ReadString('\n')
			require.NoError(t, err)
			if header == "\r\n" {
				break
			}
			if strings.HasPrefix(header, "Content-Length:") {
				_, err := fmt.Sscanf(strings.TrimSpace(strings.TrimPrefix(header, "Content-Length:")), "%d", &length)
				require.NoError(t, err)
			}
		}
		require.Greater(t, length, 0)
		frame := make([]byte, length+2)
		_, err = io.ReadFull(reader, frame)
		require.NoError(t, err)
		_, err = jpeg.DecodeConfig(bytes.NewReader(frame[:length]))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, env.server.Status().Clients.Visible)
	assert.Equal(t, int64(1), m.MJPEGClients.Load())

	cancel()
	_ = resp.Body.Close()
	require.Eventually(t, func() bool {
		return env.server.Status().Clients.Visible == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), m.MJPEGClients.Load())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, WithMetrics(metrics.New()))
	resp, body := env.api.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "structure_mjpeg_clients")

	plain := newTestEnv(t)
	resp, _ = plain.api.get(t, "/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
