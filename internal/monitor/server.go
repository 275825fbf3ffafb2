// Package monitor serves the HTTP monitor: status, settings and exposure
// control, frame snapshots, MJPEG and SSE streams, recording control and
// WebRTC telemetry signaling.
package monitor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/structure-camera/internal/camera"
	"github.com/dj-oyu/structure-camera/internal/config"
	"github.com/dj-oyu/structure-camera/internal/logger"
	"github.com/dj-oyu/structure-camera/internal/metrics"
	"github.com/dj-oyu/structure-camera/internal/recorder"
	"github.com/dj-oyu/structure-camera/internal/session"
	"github.com/dj-oyu/structure-camera/internal/webrtc"
)

var log = logger.Module("Monitor")

const contentTypeProtobuf = "application/x-protobuf"

// OfferHandler answers WebRTC offers
type OfferHandler interface {
	HandleOffer(offerJSON []byte) ([]byte, error)
	ClientCount() int
}

// Option configures a Server
type Option func(*Server)

// WithRecorder enables the recording endpoints
func WithRecorder(r *recorder.Recorder) Option {
	return func(s *Server) {
		s.recorder = r
	}
}

// WithWebRTC enables the offer endpoint
func WithWebRTC(h OfferHandler) Option {
	return func(s *Server) {
		s.webrtc = h
	}
}

// WithMetrics serves /metrics and counts stream clients
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Status is the /api/status payload
type Status struct {
	camera.Status
	InstanceID    string                    `json:"instance_id"`
	Backend       string                    `json:"backend"`
	Recording     *recorder.RecordingStatus `json:"recording,omitempty"`
	WebRTCClients int                       `json:"webrtc_clients"`
	Clients       StreamClients             `json:"stream_clients"`
	Timestamp     float64                   `json:"timestamp"`
}

// StreamClients counts subscribers per stream
type StreamClients struct {
	Visible int `json:"visible"`
	Depth   int `json:"depth"`
	IMU     int `json:"imu"`
}

// Server serves the monitor endpoints
type Server struct {
	cfg        config.MonitorConfig
	instanceID string
	backend    string
	startTime  time.Time

	camera   *camera.StructureCamera
	recorder *recorder.Recorder
	webrtc   OfferHandler
	metrics  *metrics.Metrics

	blank   []byte
	visible *Broadcaster[[]byte]
	preview *Broadcaster[[]byte]
	imu     *Broadcaster[*SerializedEvent]
}

// New returns a server for cam and starts its stream broadcasters
func New(cfg *config.Config, cam *camera.StructureCamera, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg.Monitor,
		instanceID: cfg.InstanceID,
		backend:    cfg.Backend,
		startTime:  time.Now(),
		camera:     cam,
	}
	for _, opt := range opts {
		opt(s)
	}

	blank, err := blankJPEG()
	if err != nil {
		log.Error("Failed to render placeholder frame: %v", err)
	}
	s.blank = blank

	mjpegGauge, imuGauge := s.gauges()
	s.visible = NewBroadcaster("VisibleStream", s.cfg.MJPEGInterval, s.renderVisible, mjpegGauge)
	s.preview = NewBroadcaster("DepthStream", s.cfg.MJPEGInterval, s.renderDepthPreview, mjpegGauge)
	s.imu = NewBroadcaster("IMUStream", s.cfg.IMUInterval, s.serializeIMU, imuGauge)
	s.visible.Start()
	s.preview.Start()
	s.imu.Start()
	return s
}

// Close stops the broadcasters and disconnects stream clients
func (s *Server) Close() {
	s.visible.Stop()
	s.preview.Stop()
	s.imu.Stop()
}

// Handler exposes the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stream", s.handleVisibleStream)
	mux.HandleFunc("/stream/depth", s.handleDepthStream)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/imu/stream", s.handleIMUStream)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/exposure", s.handleExposure)
	mux.HandleFunc("/api/camera/start", s.handleCameraStart)
	mux.HandleFunc("/api/camera/stop", s.handleCameraStop)
	mux.HandleFunc("/api/frames/depth.png", s.handleDepthPNG)
	mux.HandleFunc("/api/frames/visible.jpg", s.handleVisibleJPEG)
	mux.HandleFunc("/api/frames/infrared.png", s.handleInfraredPNG)
	mux.HandleFunc("/api/frames/preview.jpg", s.handlePreviewJPEG)
	mux.HandleFunc("/api/recording/start", s.handleRecordingStart)
	mux.HandleFunc("/api/recording/stop", s.handleRecordingStop)
	mux.HandleFunc("/api/recording/status", s.handleRecordingStatus)
	mux.HandleFunc("/api/webrtc/offer", s.handleWebRTCOffer)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":         "ok",
		"state":          s.camera.State().String(),
		"backend":        s.backend,
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	})
}

// Status builds the current status payload
func (s *Server) Status() Status {
	st := Status{
		Status:     s.camera.Status(),
		InstanceID: s.instanceID,
		Backend:    s.backend,
		Clients: StreamClients{
			Visible: s.visible.ClientCount(),
			Depth:   s.preview.ClientCount(),
			IMU:     s.imu.ClientCount(),
		},
		Timestamp: camera.Seconds(time.Now()),
	}
	if s.recorder != nil {
		rs := s.recorder.Status()
		st.Recording = &rs
	}
	if s.webrtc != nil {
		st.WebRTCClients = s.webrtc.ClientCount()
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := s.Status()
	if !wantsProtobuf(r) {
		writeJSON(w, payload)
		return
	}

	pb, err := toStruct(payload)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	data, err := proto.Marshal(pb)
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeProtobuf)
	_, _ = w.Write(data)
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	sseHeaders(w)

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		if err := writeSSE(w, s.Status()); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleIMUStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.imu.Subscribe()
	defer s.imu.Unsubscribe(id)
	streamEventsFromChannel(r.Context(), w, eventCh, wantsProtobuf(r))
}

func (s *Server) handleVisibleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.visible.Subscribe()
	defer s.visible.Unsubscribe(id)
	streamMJPEGFromChannel(r.Context(), w, frameCh, s.blank)
}

func (s *Server) handleDepthStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.preview.Subscribe()
	defer s.preview.Unsubscribe(id)
	streamMJPEGFromChannel(r.Context(), w, frameCh, s.blank)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.camera.Settings())
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		// Fields absent from the body keep their current value
		next, err := s.camera.TryUpdateSettings(func(cur *session.Settings) error {
			if err := json.Unmarshal(body, cur); err != nil {
				return fmt.Errorf("invalid settings: %w", err)
			}
			return validateSettings(*cur)
		})
		if err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"settings":         next,
			"restart_required": s.camera.State() != camera.StateStopped,
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func validateSettings(st session.Settings) error {
	switch {
	case st.Source != session.SourceStructureCore:
		return fmt.Errorf("unsupported source %d", st.Source)
	case st.DepthResolution < session.ResolutionQVGA || st.DepthResolution > session.ResolutionSXGA:
		return fmt.Errorf("invalid depth_resolution %d", st.DepthResolution)
	case st.DepthRangeMode < session.DepthRangeVeryShort || st.DepthRangeMode > session.DepthRangeDefault:
		return fmt.Errorf("invalid depth_range_mode %d", st.DepthRangeMode)
	case st.DynamicCalibrationMode < session.CalibrationOff || st.DynamicCalibrationMode > session.CalibrationContinuous:
		return fmt.Errorf("invalid dynamic_calibration_mode %d", st.DynamicCalibrationMode)
	case st.InfraredMode < session.InfraredLeftCameraOnly || st.InfraredMode > session.InfraredBothCameras:
		return fmt.Errorf("invalid infrared_mode %d", st.InfraredMode)
	case st.DemosaicMethod < session.DemosaicBilinear || st.DemosaicMethod > session.DemosaicEdgeAware:
		return fmt.Errorf("invalid demosaic_method %d", st.DemosaicMethod)
	case st.IMUUpdateRate < session.IMUAccelAndGyro100Hz || st.IMUUpdateRate > session.IMUAccelAndGyro1000Hz:
		return fmt.Errorf("invalid imu_update_rate %d", st.IMUUpdateRate)
	}
	return nil
}

type exposureRequest struct {
	VisibleExposure  *float32 `json:"visible_exposure"`
	VisibleGain      *float32 `json:"visible_gain"`
	InfraredExposure *float32 `json:"infrared_exposure"`
	InfraredGain     *float32 `json:"infrared_gain"`
}

func (req exposureRequest) validate() error {
	for name, v := range map[string]*float32{
		"visible_exposure":  req.VisibleExposure,
		"infrared_exposure": req.InfraredExposure,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	for name, v := range map[string]*float32{
		"visible_gain":  req.VisibleGain,
		"infrared_gain": req.InfraredGain,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func (s *Server) handleExposure(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req exposureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("invalid exposure request: %w", err), http.StatusBadRequest)
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		if req.VisibleExposure != nil {
			s.camera.SetVisibleExposure(*req.VisibleExposure)
		}
		if req.VisibleGain != nil {
			s.camera.SetVisibleGain(*req.VisibleGain)
		}
		if req.InfraredExposure != nil {
			s.camera.SetInfraredExposure(*req.InfraredExposure)
		}
		if req.InfraredGain != nil {
			s.camera.SetInfraredGain(*req.InfraredGain)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.camera.Status().Exposure)
}

func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.camera.Start(); err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"state": s.camera.State().String()})
}

func (s *Server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.camera.Stop()
	writeJSON(w, map[string]any{"state": s.camera.State().String()})
}

func (s *Server) handleDepthPNG(w http.ResponseWriter, r *http.Request) {
	f := s.camera.DepthFrame()
	if !f.IsValid() {
		writeError(w, errors.New("no depth frame available"), http.StatusNotFound)
		return
	}
	data, err := encodePNG(depthImage(f))
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("X-Depth-Units", "mm")
	writeImage(w, "image/png", f.FrameNum, data)
}

func (s *Server) handleVisibleJPEG(w http.ResponseWriter, r *http.Request) {
	data, num, ok := s.renderVisible()
	if !ok {
		writeError(w, errors.New("no visible frame available"), http.StatusNotFound)
		return
	}
	writeImage(w, "image/jpeg", num, data)
}

func (s *Server) handleInfraredPNG(w http.ResponseWriter, r *http.Request) {
	f := s.camera.InfraredFrame()
	if !f.IsValid() {
		writeError(w, errors.New("no infrared frame available"), http.StatusNotFound)
		return
	}
	data, err := encodePNG(infraredImage(f))
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeImage(w, "image/png", f.FrameNum, data)
}

func (s *Server) handlePreviewJPEG(w http.ResponseWriter, r *http.Request) {
	data, num, ok := s.renderDepthPreview()
	if !ok {
		writeError(w, errors.New("no depth frame available"), http.StatusNotFound)
		return
	}
	writeImage(w, "image/jpeg", num, data)
}

type recordingRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.recorder == nil {
		writeError(w, errors.New("recorder is not configured"), http.StatusServiceUnavailable)
		return
	}

	var req recordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, fmt.Errorf("invalid recording request: %w", err), http.StatusBadRequest)
		return
	}

	filename, err := s.recorder.Start(req.Name)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "recording",
		"file":       filename,
		"id":         s.recorder.Status().ID,
		"started_at": camera.Seconds(time.Now()),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.recorder == nil {
		writeError(w, errors.New("recorder is not configured"), http.StatusServiceUnavailable)
		return
	}

	filename, err := s.recorder.Stop()
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"status":     "stopped",
		"file":       filename,
		"stats":      s.recorder.Status(),
		"stopped_at": camera.Seconds(time.Now()),
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSON(w, recorder.RecordingStatus{})
		return
	}
	writeJSON(w, s.recorder.Status())
}

func (s *Server) handleWebRTCOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.webrtc == nil {
		writeError(w, errors.New("webrtc is disabled"), http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errors.New("invalid offer data"), http.StatusBadRequest)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload["sdp"] == nil || payload["type"] == nil {
		writeError(w, errors.New("invalid offer data"), http.StatusBadRequest)
		return
	}

	answer, err := s.webrtc.HandleOffer(body)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, webrtc.ErrTooManyClients) {
			status = http.StatusServiceUnavailable
		}
		log.Warn("WebRTC offer failed: %v", err)
		writeError(w, err, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(answer)
}

// Stream producers

func (s *Server) renderVisible() ([]byte, uint64, bool) {
	f := s.camera.VisibleFrame()
	if !f.IsValid() {
		return nil, 0, false
	}
	data, err := encodeJPEG(colorImage(f), s.cfg.JPEGQuality)
	if err != nil {
		log.Warn("Failed to encode visible frame #%d: %v", f.FrameNum, err)
		return nil, 0, false
	}
	return data, f.FrameNum, true
}

func (s *Server) renderDepthPreview() ([]byte, uint64, bool) {
	f := s.camera.DepthFrame()
	if !f.IsValid() {
		return nil, 0, false
	}
	img := renderPreview(f, s.camera.Settings().DepthRangeMode, s.cfg.PreviewWidth)
	data, err := encodeJPEG(img, s.cfg.JPEGQuality)
	if err != nil {
		log.Warn("Failed to encode depth preview #%d: %v", f.FrameNum, err)
		return nil, 0, false
	}
	return data, f.FrameNum, true
}

// IMUEvent is one message of the IMU event stream
type IMUEvent struct {
	Accelerometer *camera.IMUReading `json:"accelerometer"`
	Gyroscope     *camera.IMUReading `json:"gyroscope"`
}

func (s *Server) serializeIMU() (*SerializedEvent, uint64, bool) {
	// Counters are read first so a reading newer than seq is resent next tick
	stats := s.camera.Stats()
	seq := stats.AccelerometerEvents + stats.GyroscopeEvents
	accel := s.camera.LastAccelerometerEvent()
	gyro := s.camera.LastGyroscopeEvent()
	if !accel.IsValid() && !gyro.IsValid() {
		return nil, 0, false
	}

	var event IMUEvent
	if accel.IsValid() {
		event.Accelerometer = &camera.IMUReading{
			Timestamp: camera.Seconds(accel.Timestamp),
			X:         accel.Acceleration.X, Y: accel.Acceleration.Y, Z: accel.Acceleration.Z,
		}
	}
	if gyro.IsValid() {
		event.Gyroscope = &camera.IMUReading{
			Timestamp: camera.Seconds(gyro.Timestamp),
			X:         gyro.RotationRate.X, Y: gyro.RotationRate.Y, Z: gyro.RotationRate.Z,
		}
	}

	serialized, err := serializeEvent(event)
	if err != nil {
		log.Error("Failed to serialize IMU event: %v", err)
		return nil, 0, false
	}
	return serialized, seq, true
}

// serializeEvent encodes v as JSON and as a base64 structpb message
func serializeEvent(v any) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	pb := &structpb.Struct{}
	if err := protojson.Unmarshal(jsonData, pb); err != nil {
		return nil, fmt.Errorf("struct conversion: %w", err)
	}
	pbData, err := proto.Marshal(pb)
	if err != nil {
		return nil, fmt.Errorf("protobuf marshal: %w", err)
	}
	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	pb := &structpb.Struct{}
	if err := protojson.Unmarshal(data, pb); err != nil {
		return nil, err
	}
	return pb, nil
}

func (s *Server) gauges() (mjpeg, imu *atomic.Int64) {
	if s.metrics == nil {
		return nil, nil
	}
	return &s.metrics.MJPEGClients, &s.metrics.IMUClients
}

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, contentTypeProtobuf)
}

func writeImage(w http.ResponseWriter, contentType string, frameNum uint64, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Number", fmt.Sprint(frameNum))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeError(w http.ResponseWriter, err error, status int) {
	writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
