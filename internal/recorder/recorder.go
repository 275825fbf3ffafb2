// Package recorder polls the sample cache and appends new samples to a
// record file. Each record is a varint length followed by a protobuf
// message holding structpb metadata and an optional raw payload.
package recorder

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/structure-camera/internal/delegate"
	"github.com/dj-oyu/structure-camera/internal/logger"
	"github.com/dj-oyu/structure-camera/internal/metrics"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

var log = logger.Module("Recorder")

// Source provides the latest samples. *camera.StructureCamera satisfies it.
type Source interface {
	DepthFrame() types.DepthFrame
	VisibleFrame() types.ColorFrame
	InfraredFrame() types.InfraredFrame
	LastAccelerometerEvent() types.AccelerometerEvent
	LastGyroscopeEvent() types.GyroscopeEvent
	Stats() delegate.Stats
}

// Option configures a Recorder
type Option func(*Recorder)

// WithInterval sets how often the cache is polled
func WithInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithFrames stores raw depth, visible and infrared pixels, not just metadata
func WithFrames(enabled bool) Option {
	return func(r *Recorder) {
		r.includeFrames = enabled
	}
}

// WithMetrics reports recording state and byte counts
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// Recorder records samples to file
type Recorder struct {
	// lifecycle serializes Start and Stop end to end; mu guards the file
	lifecycle    sync.Mutex
	mu           sync.RWMutex
	file         *os.File
	w            *bufio.Writer
	filename     string
	basePath     string
	id           string
	recording    bool
	recordCount  uint64
	bytesWritten uint64
	startTime    time.Time
	stop         chan struct{}
	wg           sync.WaitGroup

	src           Source
	interval      time.Duration
	includeFrames bool
	metrics       *metrics.Metrics

	// Last recorded sample of each kind, owned by the poll goroutine
	lastDepth    uint64
	lastVisible  uint64
	lastInfrared uint64
	lastAccel    time.Time
	lastGyro    time.Time
}

// New creates a recorder writing into basePath
func New(basePath string, src Source, opts ...Option) *Recorder {
	r := &Recorder{
		basePath: basePath,
		src:      src,
		interval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start opens a new record file and starts polling. An empty name gets a
// timestamped one.
func (r *Recorder) Start(name string) (string, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return "", fmt.Errorf("already recording")
	}

	if name == "" {
		name = fmt.Sprintf("recording_%s.screc", time.Now().Format("20060102_150405"))
	}
	if err := os.MkdirAll(r.basePath, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(r.basePath, filepath.Base(name))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	r.file = file
	r.w = bufio.NewWriter(file)
	r.filename = path
	r.id = uuid.NewString()
	r.recording = true
	r.recordCount = 0
	r.bytesWritten = 0
	r.startTime = time.Now()
	r.stop = make(chan struct{})
	r.lastDepth, r.lastVisible, r.lastInfrared = 0, 0, 0
	r.lastAccel, r.lastGyro = time.Time{}, time.Time{}

	if err := r.writeLocked(KindHeader, map[string]any{
		"recording_id":   r.id,
		"started_at":     unixSeconds(r.startTime),
		"include_frames": r.includeFrames,
		"format_version": formatVersion,
	}, nil); err != nil {
		r.recording = false
		_ = r.closeLocked()
		return "", err
	}

	if r.metrics != nil {
		r.metrics.RecordingActive.Store(1)
	}

	r.wg.Add(1)
	go r.poll(r.stop)

	log.Info("Recording started: %s", path)
	return path, nil
}

// Stop ends the recording and returns the file path
func (r *Recorder) Stop() (string, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return "", fmt.Errorf("not recording")
	}
	r.recording = false
	close(r.stop)
	r.mu.Unlock()

	// Wait for poll goroutine to finish
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.filename
	if err := r.closeLocked(); err != nil {
		return path, err
	}
	if r.metrics != nil {
		r.metrics.RecordingActive.Store(0)
	}
	log.Info("Recording stopped: %s (%d records, %d bytes)", path, r.recordCount, r.bytesWritten)
	return path, nil
}

func (r *Recorder) closeLocked() error {
	if r.file == nil {
		return nil
	}
	defer func() {
		r.file = nil
		r.w = nil
	}()
	if err := r.w.Flush(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to flush file: %w", err)
	}
	if err := r.file.Sync(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

func (r *Recorder) poll(stop <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.capture()
		}
	}
}

// capture writes every sample that changed since the previous tick
func (r *Recorder) capture() {
	if f := r.src.DepthFrame(); f.IsValid() && f.FrameNum != r.lastDepth {
		r.lastDepth = f.FrameNum
		meta := frameMeta(f.FrameNum, f.Timestamp, f.Width, f.Height)
		if c := f.Center(); !math.IsNaN(float64(c)) {
			meta["center_mm"] = float64(c)
		}
		var payload []byte
		if r.includeFrames {
			payload = encodeDepth(f.Depth)
		}
		r.write(KindDepth, meta, payload)
	}

	if f := r.src.VisibleFrame(); f.IsValid() && f.FrameNum != r.lastVisible {
		r.lastVisible = f.FrameNum
		var payload []byte
		if r.includeFrames {
			payload = f.RGB
		}
		r.write(KindVisible, frameMeta(f.FrameNum, f.Timestamp, f.Width, f.Height), payload)
	}

	if f := r.src.InfraredFrame(); f.IsValid() && f.FrameNum != r.lastInfrared {
		r.lastInfrared = f.FrameNum
		var payload []byte
		if r.includeFrames {
			payload = encodeInfrared(f.Data)
		}
		r.write(KindInfrared, frameMeta(f.FrameNum, f.Timestamp, f.Width, f.Height), payload)
	}

	if e := r.src.LastAccelerometerEvent(); e.IsValid() && !e.Timestamp.Equal(r.lastAccel) {
		r.lastAccel = e.Timestamp
		r.write(KindAccelerometer, vecMeta(e.Timestamp, e.Acceleration), nil)
	}

	if e := r.src.LastGyroscopeEvent(); e.IsValid() && !e.Timestamp.Equal(r.lastGyro) {
		r.lastGyro = e.Timestamp
		r.write(KindGyroscope, vecMeta(e.Timestamp, e.RotationRate), nil)
	}
}

func (r *Recorder) write(kind string, meta map[string]any, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeLocked(kind, meta, payload); err != nil {
		log.Warn("Write failed: %v", err)
		if r.metrics != nil {
			r.metrics.RecorderErrors.Add(1)
		}
	}
}

func (r *Recorder) writeLocked(kind string, meta map[string]any, payload []byte) error {
	if r.w == nil {
		return nil
	}
	data, err := encodeRecord(kind, meta, payload)
	if err != nil {
		return err
	}
	n, err := r.w.Write(data)
	if err != nil {
		return err
	}
	r.bytesWritten += uint64(n)
	r.recordCount++
	if r.metrics != nil {
		r.metrics.RecordingBytes.Store(r.bytesWritten)
		r.metrics.RecordingRecords.Store(r.recordCount)
	}
	return nil
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// Status returns the current recording status
func (r *Recorder) Status() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var duration time.Duration
	if r.recording {
		duration = time.Since(r.startTime)
	}

	return RecordingStatus{
		Recording:    r.recording,
		ID:           r.id,
		Filename:     r.filename,
		RecordCount:  r.recordCount,
		BytesWritten: r.bytesWritten,
		DurationMs:   duration.Milliseconds(),
		StartTime:    r.startTime,
	}
}

// Close stops an active recording
func (r *Recorder) Close() error {
	if r.IsRecording() {
		_, err := r.Stop()
		return err
	}
	return nil
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	Recording    bool      `json:"recording"`
	ID           string    `json:"id,omitempty"`
	Filename     string    `json:"filename"`
	RecordCount  uint64    `json:"record_count"`
	BytesWritten uint64    `json:"bytes_written"`
	DurationMs   int64     `json:"duration_ms"`
	StartTime    time.Time `json:"start_time"`
}

func frameMeta(num uint64, ts time.Time, w, h int) map[string]any {
	return map[string]any{
		"frame_num": num,
		"timestamp": unixSeconds(ts),
		"width":     w,
		"height":    h,
	}
}

func vecMeta(ts time.Time, v types.Vec3) map[string]any {
	return map[string]any{
		"timestamp": unixSeconds(ts),
		"x":         v.X,
		"y":         v.Y,
		"z":         v.Z,
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
