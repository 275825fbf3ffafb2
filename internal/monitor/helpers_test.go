package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/structure-camera/internal/camera"
	"github.com/dj-oyu/structure-camera/internal/config"
	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/internal/session/sim"
)

const defaultRequestTimeout = 2 * time.Second

type apiClient struct {
	baseURL string
	client  *http.Client
}

type testEnv struct {
	server *Server
	camera *camera.StructureCamera
	api    *apiClient
}

func testSettings() session.Settings {
	s := session.DefaultSettings()
	s.DepthResolution = session.ResolutionQVGA
	s.VisibleEnabled = true
	s.AccelerometerEnabled = true
	s.GyroscopeEnabled = true
	return s
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.InstanceID = "test-instance"
	cfg.Monitor.MJPEGInterval = 10 * time.Millisecond
	cfg.Monitor.IMUInterval = 10 * time.Millisecond
	cfg.Monitor.StatusInterval = 20 * time.Millisecond
	cfg.Monitor.PreviewWidth = 160

	cam := camera.New(
		sim.New(sim.WithFrameRate(50), sim.WithIMURateLimit(100)),
		camera.WithSettings(testSettings()),
	)
	srv := New(&cfg, cam, opts...)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = cam.Close() })

	return &testEnv{
		server: srv,
		camera: cam,
		api:    &apiClient{baseURL: ts.URL, client: &http.Client{Timeout: defaultRequestTimeout}},
	}
}

// startCamera starts streaming through the API and waits for depth and IMU
func (e *testEnv) startCamera(t *testing.T) {
	t.Helper()
	resp, body := e.api.postJSON(t, "/api/camera/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Eventually(t, func() bool {
		return e.camera.DepthFrame().IsValid() &&
			e.camera.VisibleFrame().IsValid() &&
			e.camera.LastAccelerometerEvent().IsValid() &&
			e.camera.LastGyroscopeEvent().IsValid()
	}, 3*time.Second, 5*time.Millisecond)
}

func (c *apiClient) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := c.client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, body
}

func (c *apiClient) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	require.NoError(t, err)
	return c.do(t, req)
}

func (c *apiClient) getAccept(t *testing.T, path, accept string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", accept)
	return c.do(t, req)
}

func (c *apiClient) postJSON(t *testing.T, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return c.do(t, req)
}

func (c *apiClient) postRaw(t *testing.T, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return c.do(t, req)
}

// readSSEEvent returns the first complete event on url
func readSSEEvent(url, accept string, timeout time.Duration) (string, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 256)
	for {
		n, readErr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
				return string(buf[:idx]), resp.Header, nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return "", nil, fmt.Errorf("sse stream closed before event")
			}
			return "", nil, fmt.Errorf("read sse: %w", readErr)
		}
	}
}

func sseData(t *testing.T, event string) string {
	t.Helper()
	for _, line := range strings.Split(event, "\n") {
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			require.NotEmpty(t, payload, "empty sse data line")
			return payload
		}
	}
	t.Fatalf("no data line in sse event: %q", event)
	return ""
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload), "body=%s", string(body))
	return payload
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	require.True(t, ok, "expected %s to be number, got %T", field, value)
	return num
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	require.True(t, ok, "expected %s to be object, got %T", field, value)
	return m
}

func assertStatusPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	require.Equal(t, "test-instance", payload["instance_id"])
	require.Equal(t, config.BackendSim, payload["backend"])
	require.Contains(t, []any{"stopped", "streaming"}, payload["state"])
	requireNumber(t, payload["timestamp"], "timestamp")

	settings := requireMap(t, payload["settings"], "settings")
	requireNumber(t, settings["depth_resolution"], "settings.depth_resolution")

	exposure := requireMap(t, payload["exposure"], "exposure")
	requireNumber(t, exposure["visible_exposure"], "exposure.visible_exposure")

	samples := requireMap(t, payload["samples"], "samples")
	requireNumber(t, samples["depth_frames"], "samples.depth_frames")

	clients := requireMap(t, payload["stream_clients"], "stream_clients")
	requireNumber(t, clients["visible"], "stream_clients.visible")
}
