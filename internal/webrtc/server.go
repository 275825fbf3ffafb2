// Package webrtc streams camera telemetry to browsers over a WebRTC data
// channel. The browser creates a channel labelled "telemetry" in its offer;
// the server answers and pushes IMU and depth-centre samples on it at a
// fixed rate.
package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/dj-oyu/structure-camera/internal/config"
	"github.com/dj-oyu/structure-camera/internal/logger"
	"github.com/dj-oyu/structure-camera/internal/metrics"
	"github.com/dj-oyu/structure-camera/pkg/types"
)

var log = logger.Module("WebRTC")

// TelemetryLabel is the data channel label the server sends on
const TelemetryLabel = "telemetry"

// ErrTooManyClients is returned by HandleOffer when the client limit is reached
var ErrTooManyClients = errors.New("maximum clients reached")

// Source provides the samples sent as telemetry
type Source interface {
	DepthFrame() types.DepthFrame
	LastAccelerometerEvent() types.AccelerometerEvent
	LastGyroscopeEvent() types.GyroscopeEvent
}

// Telemetry is one data channel message
type Telemetry struct {
	Seq           uint64      `json:"seq"`
	Timestamp     float64     `json:"timestamp"`
	DepthFrame    uint64      `json:"depth_frame,omitempty"`
	CenterMM      *float64    `json:"center_mm,omitempty"`
	Accelerometer *types.Vec3 `json:"accelerometer,omitempty"`
	Gyroscope     *types.Vec3 `json:"gyroscope,omitempty"`
}

// Client represents a connected WebRTC client
type Client struct {
	id        string
	peerConn  *webrtc.PeerConnection
	channel   atomic.Pointer[webrtc.DataChannel]
	sendChan  chan []byte
	closeChan chan struct{}
	connected time.Time
	sent      atomic.Uint64
	dropped   atomic.Uint64
}

// ClientStats reports per-client delivery counters
type ClientStats struct {
	MessagesSent    uint64  `json:"messages_sent"`
	MessagesDropped uint64  `json:"messages_dropped"`
	ChannelOpen     bool    `json:"channel_open"`
	ConnectedFor    float64 `json:"connected_seconds"`
}

// Server manages WebRTC connections
type Server struct {
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	config     webrtc.Configuration
	maxClients int
	api        *webrtc.API

	src      Source
	interval time.Duration
	metrics  *metrics.Metrics
	seq      atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a server. A MaxClients of zero means no limit.
func NewServer(cfg config.WebRTCConfig, src Source, m *metrics.Metrics) *Server {
	iceServers := make([]webrtc.ICEServer, 0, len(cfg.STUNServers))
	for _, url := range cfg.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}

	settingsEngine := webrtc.SettingEngine{}
	settingsEngine.SetDTLSRetransmissionInterval(2 * time.Second)
	settingsEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingsEngine))

	interval := cfg.TelemetryInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	return &Server{
		clients:    make(map[string]*Client),
		config:     webrtc.Configuration{ICEServers: iceServers},
		maxClients: cfg.MaxClients,
		api:        api,
		src:        src,
		interval:   interval,
		metrics:    m,
		stop:       make(chan struct{}),
	}
}

// Start launches the telemetry loop
func (s *Server) Start() {
	go s.run()
}

func (s *Server) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if s.ClientCount() == 0 {
			continue
		}
		data, err := json.Marshal(s.Snapshot())
		if err != nil {
			log.Error("Failed to marshal telemetry: %v", err)
			continue
		}
		s.Broadcast(data)
	}
}

// Snapshot builds the next telemetry message from the source
func (s *Server) Snapshot() Telemetry {
	t := Telemetry{
		Seq:       s.seq.Add(1),
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	if f := s.src.DepthFrame(); f.IsValid() {
		t.DepthFrame = f.FrameNum
		if c := f.Center(); !math.IsNaN(float64(c)) {
			mm := float64(c)
			t.CenterMM = &mm
		}
	}
	if e := s.src.LastAccelerometerEvent(); e.IsValid() {
		v := e.Acceleration
		t.Accelerometer = &v
	}
	if e := s.src.LastGyroscopeEvent(); e.IsValid() {
		v := e.RotationRate
		t.Gyroscope = &v
	}
	return t
}

// HandleOffer handles a WebRTC offer and returns the answer with gathered
// ICE candidates
func (s *Server) HandleOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, fmt.Errorf("failed to parse offer: %w", err)
	}

	if s.maxClients > 0 && s.ClientCount() >= s.maxClients {
		return nil, fmt.Errorf("%w (%d)", ErrTooManyClients, s.maxClients)
	}

	peerConn, err := s.api.NewPeerConnection(s.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	client := &Client{
		id:        uuid.NewString(),
		peerConn:  peerConn,
		sendChan:  make(chan []byte, 8),
		closeChan: make(chan struct{}),
		connected: time.Now(),
	}

	peerConn.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != TelemetryLabel {
			log.Debug("Client %s opened unknown channel %q, ignoring", client.id, dc.Label())
			return
		}
		dc.OnOpen(func() {
			log.Info("Client %s telemetry channel open", client.id)
			client.channel.Store(dc)
		})
	})

	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("Client %s connection state: %s", client.id, state.String())
		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			log.Info("Client %s connection lost (%s), removing...", client.id, state.String())
			s.RemoveClient(client.id)
		}
	})

	if err := peerConn.SetRemoteDescription(offer); err != nil {
		_ = peerConn.Close()
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		_ = peerConn.Close()
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConn)
	if err := peerConn.SetLocalDescription(answer); err != nil {
		_ = peerConn.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	<-gatherComplete
	log.Debug("ICE gathering complete for client %s", client.id)

	localDesc := peerConn.LocalDescription()
	if localDesc == nil {
		_ = peerConn.Close()
		return nil, errors.New("no local description available")
	}
	answerJSON, err := json.Marshal(localDesc)
	if err != nil {
		_ = peerConn.Close()
		return nil, fmt.Errorf("failed to marshal answer: %w", err)
	}

	s.addClient(client)
	go s.sendTelemetry(client)
	log.Info("Client %s connected", client.id)

	return answerJSON, nil
}

func (s *Server) addClient(client *Client) {
	s.clientsMu.Lock()
	s.clients[client.id] = client
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.WebRTCClients.Add(1)
		s.metrics.TotalClients.Add(1)
	}
}

// Broadcast queues data for every client. A client whose queue is full
// misses the message.
func (s *Server) Broadcast(data []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		select {
		case client.sendChan <- data:
		default:
			client.dropped.Add(1)
			if s.metrics != nil {
				s.metrics.TelemetryDropped.Add(1)
			}
		}
	}
}

// sendTelemetry writes queued messages to the client's channel once it is open
func (s *Server) sendTelemetry(client *Client) {
	for {
		select {
		case <-client.closeChan:
			return
		case data := <-client.sendChan:
			dc := client.channel.Load()
			if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
				client.dropped.Add(1)
				if s.metrics != nil {
					s.metrics.TelemetryDropped.Add(1)
				}
				continue
			}
			if err := dc.SendText(string(data)); err != nil {
				log.Warn("Error sending telemetry to client %s: %v", client.id, err)
				s.RemoveClient(client.id)
				return
			}
			client.sent.Add(1)
			if s.metrics != nil {
				s.metrics.TelemetrySent.Add(1)
			}
		}
	}
}

// RemoveClient removes a client by ID and closes its connection
func (s *Server) RemoveClient(clientID string) {
	s.clientsMu.Lock()
	client, exists := s.clients[clientID]
	if exists {
		delete(s.clients, clientID)
	}
	s.clientsMu.Unlock()

	if !exists {
		return
	}

	close(client.closeChan)
	if client.peerConn != nil {
		_ = client.peerConn.Close()
	}
	if s.metrics != nil {
		s.metrics.WebRTCClients.Add(-1)
	}

	log.Info("Client %s disconnected (sent: %d, dropped: %d)",
		clientID, client.sent.Load(), client.dropped.Load())
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// ClientStats returns stats for all clients
func (s *Server) ClientStats() map[string]ClientStats {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	stats := make(map[string]ClientStats, len(s.clients))
	for id, client := range s.clients {
		stats[id] = ClientStats{
			MessagesSent:    client.sent.Load(),
			MessagesDropped: client.dropped.Load(),
			ChannelOpen:     client.channel.Load() != nil,
			ConnectedFor:    time.Since(client.connected).Seconds(),
		}
	}
	return stats
}

// Close stops the telemetry loop and closes all client connections
func (s *Server) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.clientsMu.RLock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.clientsMu.RUnlock()

	for _, id := range ids {
		s.RemoveClient(id)
	}
	return nil
}
