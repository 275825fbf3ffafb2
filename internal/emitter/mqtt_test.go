package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/structure-camera/internal/camera"
	"github.com/dj-oyu/structure-camera/internal/config"
	"github.com/dj-oyu/structure-camera/internal/metrics"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type message struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes; unused mqtt.Client methods panic via the nil embed
type fakeClient struct {
	mqtt.Client
	mu       sync.Mutex
	messages []message
	err      error
}

func (c *fakeClient) IsConnected() bool { return true }
func (c *fakeClient) Disconnect(uint)   {}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic: topic, qos: qos, payload: payload.([]byte)})
	return newToken(c.err)
}

func (c *fakeClient) snapshot() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.messages...)
}

type fakeSource struct {
	mu sync.Mutex
	st camera.Status
}

func (f *fakeSource) Status() camera.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func newTestEmitter(t *testing.T, src Source) (*MQTTEmitter, *fakeClient, *metrics.Metrics) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.InstanceID = "cam-1"
	cfg.MQTT.TopicPrefix = "lab"
	cfg.MQTT.QoS = 1
	cfg.MQTT.Interval = 10 * time.Millisecond

	m := metrics.New()
	e := New(&cfg, src, m)
	client := &fakeClient{}
	e.client = client
	e.setConnected(true)
	return e, client, m
}

func TestTopic(t *testing.T) {
	e, _, _ := newTestEmitter(t, &fakeSource{})
	assert.Equal(t, "lab/cam-1/status", e.Topic("status"))
	assert.Equal(t, "lab/cam-1/imu", e.Topic("imu"))
}

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://localhost:1883", brokerURL("localhost:1883"))
	assert.Equal(t, "ssl://broker:8883", brokerURL("ssl://broker:8883"))
}

func TestPublishStatus(t *testing.T) {
	e, client, m := newTestEmitter(t, &fakeSource{})

	require.NoError(t, e.PublishStatus(camera.Status{State: "streaming"}))

	msgs := client.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "lab/cam-1/status", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].payload, &decoded))
	assert.Equal(t, "streaming", decoded["state"])
	assert.Equal(t, "cam-1", decoded["instance_id"])

	assert.Equal(t, uint64(1), e.Stats().Published["lab/cam-1/status"])
	assert.Equal(t, uint64(1), m.MQTTPublished.Load())
}

func TestPublishIMUOnlyWhenNew(t *testing.T) {
	e, client, _ := newTestEmitter(t, &fakeSource{})

	st := camera.Status{Accelerometer: &camera.IMUReading{Timestamp: 1, Y: -1}}
	require.NoError(t, e.PublishIMU(st))
	require.NoError(t, e.PublishIMU(st))
	require.Len(t, client.snapshot(), 1)

	st.Gyroscope = &camera.IMUReading{Timestamp: 2, X: 0.5}
	require.NoError(t, e.PublishIMU(st))

	msgs := client.snapshot()
	require.Len(t, msgs, 2)
	var decoded IMUMessage
	require.NoError(t, json.Unmarshal(msgs[1].payload, &decoded))
	assert.Nil(t, decoded.Accelerometer)
	require.NotNil(t, decoded.Gyroscope)
	assert.Equal(t, 0.5, decoded.Gyroscope.X)
}

func TestPublishWithoutIMUIsNoop(t *testing.T) {
	e, client, _ := newTestEmitter(t, &fakeSource{})
	require.NoError(t, e.PublishIMU(camera.Status{}))
	assert.Empty(t, client.snapshot())
}

func TestPublishErrorsCounted(t *testing.T) {
	e, client, m := newTestEmitter(t, &fakeSource{})
	client.err = errors.New("broker says no")

	assert.Error(t, e.PublishStatus(camera.Status{}))
	assert.Equal(t, uint64(1), e.Stats().Errors)
	assert.Equal(t, uint64(1), m.MQTTErrors.Load())

	e.setConnected(false)
	assert.ErrorIs(t, e.PublishStatus(camera.Status{}), ErrNotConnected)
	assert.Equal(t, uint64(2), e.Stats().Errors)
}

func TestRunPublishesUntilCancelled(t *testing.T) {
	src := &fakeSource{st: camera.Status{State: "stopped"}}
	e, client, _ := newTestEmitter(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(client.snapshot()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	for _, msg := range client.snapshot() {
		assert.Equal(t, "lab/cam-1/status", msg.topic)
	}
}
