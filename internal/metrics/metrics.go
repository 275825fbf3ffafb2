// Package metrics exposes camera and service counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

// CameraReading is a point-in-time view of the camera used by the gauges
type CameraReading struct {
	Streaming        bool
	VisibleExposure  float32
	VisibleGain      float32
	InfraredExposure float32
	InfraredGain     float32
}

// Metrics holds all application metrics
type Metrics struct {
	// Samples received from the session, per kind
	DepthSamples         atomic.Uint64
	VisibleSamples       atomic.Uint64
	InfraredSamples      atomic.Uint64
	AccelerometerSamples atomic.Uint64
	GyroscopeSamples     atomic.Uint64
	SessionEvents        atomic.Uint64
	SessionErrors        atomic.Uint64

	// Copy-out through the camera API
	FramesCopied atomic.Uint64
	FrameMisses  atomic.Uint64 // no frame yet
	ShortBuffers atomic.Uint64

	// Age of the latest depth frame when it arrived, in ms
	DepthLatencyMs atomic.Uint64

	// Monitor clients
	MJPEGClients atomic.Int64
	IMUClients   atomic.Int64

	// WebRTC telemetry
	WebRTCClients    atomic.Int64
	TotalClients     atomic.Uint64
	TelemetrySent    atomic.Uint64
	TelemetryDropped atomic.Uint64

	// Recording state
	RecordingActive  atomic.Uint64 // 0 = inactive, 1 = active
	RecordingBytes   atomic.Uint64
	RecordingRecords atomic.Uint64
	RecorderErrors   atomic.Uint64

	// MQTT
	MQTTPublished atomic.Uint64
	MQTTErrors    atomic.Uint64

	cameraMu sync.RWMutex
	camera   func() CameraReading

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

func counter(v *atomic.Uint64) func() float64 {
	return func() float64 { return float64(v.Load()) }
}

func level(v *atomic.Int64) func() float64 {
	return func() float64 { return float64(v.Load()) }
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Session delivery
	m.gauge("structure_depth_samples_total", "Depth frames received from the session", counter(&m.DepthSamples))
	m.gauge("structure_visible_samples_total", "Visible frames received from the session", counter(&m.VisibleSamples))
	m.gauge("structure_infrared_samples_total", "Infrared frames received from the session", counter(&m.InfraredSamples))
	m.gauge("structure_accelerometer_samples_total", "Accelerometer events received", counter(&m.AccelerometerSamples))
	m.gauge("structure_gyroscope_samples_total", "Gyroscope events received", counter(&m.GyroscopeSamples))
	m.gauge("structure_session_events_total", "Session lifecycle events", counter(&m.SessionEvents))
	m.gauge("structure_session_errors_total", "Session events recorded as errors", counter(&m.SessionErrors))
	m.gauge("structure_depth_latency_ms", "Age of the latest depth frame on arrival in milliseconds", counter(&m.DepthLatencyMs))

	// Copy-out
	m.gauge("structure_frames_copied_total", "Frames copied into caller buffers", counter(&m.FramesCopied))
	m.gauge("structure_frame_misses_total", "Frame requests made before any frame arrived", counter(&m.FrameMisses))
	m.gauge("structure_short_buffers_total", "Frame requests rejected for a short buffer", counter(&m.ShortBuffers))

	// Camera state
	m.gauge("structure_streaming", "Camera streaming (0=stopped, 1=streaming)", func() float64 {
		if m.reading().Streaming {
			return 1
		}
		return 0
	})
	m.gauge("structure_visible_exposure_seconds", "Visible camera exposure", func() float64 {
		return float64(m.reading().VisibleExposure)
	})
	m.gauge("structure_visible_gain", "Visible camera gain", func() float64 {
		return float64(m.reading().VisibleGain)
	})
	m.gauge("structure_infrared_exposure_seconds", "Infrared cameras exposure", func() float64 {
		return float64(m.reading().InfraredExposure)
	})
	m.gauge("structure_infrared_gain", "Infrared cameras gain", func() float64 {
		return float64(m.reading().InfraredGain)
	})

	// Clients
	m.gauge("structure_mjpeg_clients", "Connected MJPEG clients", level(&m.MJPEGClients))
	m.gauge("structure_imu_stream_clients", "Connected IMU event stream clients", level(&m.IMUClients))
	m.gauge("structure_webrtc_clients", "Connected WebRTC telemetry clients", level(&m.WebRTCClients))
	m.gauge("structure_webrtc_total_clients", "WebRTC telemetry clients accepted", counter(&m.TotalClients))
	m.gauge("structure_telemetry_sent_total", "Telemetry messages sent", counter(&m.TelemetrySent))
	m.gauge("structure_telemetry_dropped_total", "Telemetry messages dropped on a full client queue", counter(&m.TelemetryDropped))

	// Recording
	m.gauge("structure_recording_active", "Recording active (0=inactive, 1=active)", counter(&m.RecordingActive))
	m.gauge("structure_recording_bytes", "Bytes written to the current recording", counter(&m.RecordingBytes))
	m.gauge("structure_recording_records", "Records written to the current recording", counter(&m.RecordingRecords))
	m.gauge("structure_recorder_errors_total", "Recorder write errors", counter(&m.RecorderErrors))

	// MQTT
	m.gauge("structure_mqtt_published_total", "MQTT messages published", counter(&m.MQTTPublished))
	m.gauge("structure_mqtt_errors_total", "MQTT publish errors", counter(&m.MQTTErrors))
}

// BindCamera installs the source for the camera state gauges
func (m *Metrics) BindCamera(fn func() CameraReading) {
	m.cameraMu.Lock()
	defer m.cameraMu.Unlock()
	m.camera = fn
}

func (m *Metrics) reading() CameraReading {
	m.cameraMu.RLock()
	fn := m.camera
	m.cameraMu.RUnlock()
	if fn == nil {
		return CameraReading{}
	}
	return fn()
}

// ObserveSample counts the frames and IMU events carried by a sample
func (m *Metrics) ObserveSample(sample types.Sample) {
	if sample.DepthFrame.IsValid() {
		m.DepthSamples.Add(1)
		m.UpdateDepthLatency(sample.DepthFrame.Timestamp)
	}
	if sample.VisibleFrame.IsValid() {
		m.VisibleSamples.Add(1)
	}
	if sample.InfraredFrame.IsValid() {
		m.InfraredSamples.Add(1)
	}
	switch sample.Type {
	case types.SampleAccelerometerEvent:
		m.AccelerometerSamples.Add(1)
	case types.SampleGyroscopeEvent:
		m.GyroscopeSamples.Add(1)
	}
}

// ObserveEvent counts a session event; anything but Ready is an error
func (m *Metrics) ObserveEvent(event session.EventID) {
	m.SessionEvents.Add(1)
	if event != session.EventReady {
		m.SessionErrors.Add(1)
	}
}

// UpdateDepthLatency records how old a frame was when it was delivered
func (m *Metrics) UpdateDepthLatency(captureTime time.Time) {
	latency := time.Since(captureTime).Milliseconds()
	if latency < 0 {
		latency = 0
	}
	m.DepthLatencyMs.Store(uint64(latency))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr until the listener fails
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
