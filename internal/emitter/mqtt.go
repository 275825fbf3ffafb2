// Package emitter publishes camera status and IMU readings to an MQTT broker
// under <prefix>/<instance>/status and <prefix>/<instance>/imu.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dj-oyu/structure-camera/internal/camera"
	"github.com/dj-oyu/structure-camera/internal/config"
	"github.com/dj-oyu/structure-camera/internal/logger"
	"github.com/dj-oyu/structure-camera/internal/metrics"
)

var log = logger.Module("MQTT")

const publishTimeout = 2 * time.Second

// ErrNotConnected is returned when publishing without a broker connection
var ErrNotConnected = errors.New("mqtt not connected")

// Source provides the published status
type Source interface {
	Status() camera.Status
}

// StatusMessage is the payload of the status topic
type StatusMessage struct {
	camera.Status
	InstanceID string  `json:"instance_id"`
	Timestamp  float64 `json:"timestamp"`
}

// IMUMessage is the payload of the imu topic
type IMUMessage struct {
	InstanceID    string             `json:"instance_id"`
	Accelerometer *camera.IMUReading `json:"accelerometer,omitempty"`
	Gyroscope     *camera.IMUReading `json:"gyroscope,omitempty"`
}

// MQTTEmitter publishes status to an MQTT broker
type MQTTEmitter struct {
	cfg        config.MQTTConfig
	instanceID string
	src        Source
	metrics    *metrics.Metrics
	client     mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool

	// Last IMU timestamps published, owned by Run
	lastAccel float64
	lastGyro  float64
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// New creates an emitter. Connect must be called before publishing.
func New(cfg *config.Config, src Source, m *metrics.Metrics) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:        cfg.MQTT,
		instanceID: cfg.InstanceID,
		src:        src,
		metrics:    m,
		published:  make(map[string]uint64),
	}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes the broker connection. The client reconnects on its
// own after a later connection loss.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(e.cfg.Broker))
	opts.SetClientID("structure-camera-" + e.instanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		log.Info("Connected to %s", e.cfg.Broker)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		log.Warn("Connection to %s lost, waiting for automatic reconnection: %v", e.cfg.Broker, err)
	}

	e.client = mqtt.NewClient(opts)
	log.Info("Connecting to %s", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

// Topic returns the full topic for a message kind
func (e *MQTTEmitter) Topic(kind string) string {
	return fmt.Sprintf("%s/%s/%s", e.cfg.TopicPrefix, e.instanceID, kind)
}

// Run publishes status and new IMU readings every interval until ctx ends
func (e *MQTTEmitter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st := e.src.Status()
		if err := e.PublishStatus(st); err != nil {
			log.Debug("Status publish failed: %v", err)
		}
		if err := e.PublishIMU(st); err != nil {
			log.Debug("IMU publish failed: %v", err)
		}
	}
}

// PublishStatus publishes st to the status topic
func (e *MQTTEmitter) PublishStatus(st camera.Status) error {
	payload, err := json.Marshal(StatusMessage{
		Status:     st,
		InstanceID: e.instanceID,
		Timestamp:  camera.Seconds(time.Now()),
	})
	if err != nil {
		e.fail()
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return e.publish(e.Topic("status"), payload)
}

// PublishIMU publishes the IMU readings of st when at least one is newer
// than the last published one
func (e *MQTTEmitter) PublishIMU(st camera.Status) error {
	msg := IMUMessage{InstanceID: e.instanceID}
	if a := st.Accelerometer; a != nil && a.Timestamp != e.lastAccel {
		msg.Accelerometer = a
	}
	if g := st.Gyroscope; g != nil && g.Timestamp != e.lastGyro {
		msg.Gyroscope = g
	}
	if msg.Accelerometer == nil && msg.Gyroscope == nil {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		e.fail()
		return fmt.Errorf("failed to marshal imu: %w", err)
	}
	if err := e.publish(e.Topic("imu"), payload); err != nil {
		return err
	}
	if msg.Accelerometer != nil {
		e.lastAccel = msg.Accelerometer.Timestamp
	}
	if msg.Gyroscope != nil {
		e.lastGyro = msg.Gyroscope.Timestamp
	}
	return nil
}

func (e *MQTTEmitter) publish(topic string, payload []byte) error {
	if e.client == nil || !e.isConnected() {
		e.fail()
		return ErrNotConnected
	}

	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.fail()
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.fail()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.MQTTPublished.Add(1)
	}

	log.Debug("Published %d bytes to %s (qos %d)", len(payload), topic, e.cfg.QoS)
	return nil
}

func (e *MQTTEmitter) fail() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.MQTTErrors.Add(1)
	}
}

// Disconnect closes the broker connection
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		log.Info("Disconnected")
	}
	e.setConnected(false)
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}
