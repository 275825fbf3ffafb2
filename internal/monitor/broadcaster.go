package monitor

import (
	"sync"
	"sync/atomic"
	"time"
)

// SerializedEvent holds an event pre-serialized in both formats, so fan-out
// to many SSE clients encodes once.
type SerializedEvent struct {
	JSONData     []byte
	ProtobufData []byte // base64 encoded for SSE
}

// produceFunc renders the next value. seq identifies the source sample;
// the broadcaster skips values whose seq did not change.
type produceFunc[T any] func() (value T, seq uint64, ok bool)

// Broadcaster polls a producer at a fixed interval and fans new values out to
// subscribers. Slow subscribers miss values rather than blocking the loop.
type Broadcaster[T any] struct {
	name     string
	interval time.Duration
	produce  produceFunc[T]
	gauge    *atomic.Int64

	mu      sync.Mutex
	clients map[int]chan T
	nextID  int
	stop    chan struct{}
	stopped bool
	primed  bool
	lastSeq uint64
	sent    uint64
	skipped uint64
}

// NewBroadcaster creates a stopped broadcaster. gauge may be nil.
func NewBroadcaster[T any](name string, interval time.Duration, produce produceFunc[T], gauge *atomic.Int64) *Broadcaster[T] {
	return &Broadcaster[T]{
		name:     name,
		interval: interval,
		produce:  produce,
		gauge:    gauge,
		clients:  make(map[int]chan T),
		stop:     make(chan struct{}),
	}
}

// Subscribe adds a client and returns its channel
func (b *Broadcaster[T]) Subscribe() (int, <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan T, 2)
	b.clients[id] = ch
	if b.gauge != nil {
		b.gauge.Add(1)
	}

	log.Debug("%s: client #%d subscribed (total clients: %d)", b.name, id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a client and closes its channel
func (b *Broadcaster[T]) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		if b.gauge != nil {
			b.gauge.Add(-1)
		}
		log.Debug("%s: client #%d unsubscribed (remaining clients: %d)", b.name, id, len(b.clients))
	}
}

// ClientCount returns the number of subscribers
func (b *Broadcaster[T]) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Start launches the polling loop
func (b *Broadcaster[T]) Start() {
	go b.run()
}

// Stop halts the loop and closes every subscriber channel
func (b *Broadcaster[T]) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	close(b.stop)
	b.stopped = true
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
		if b.gauge != nil {
			b.gauge.Add(-1)
		}
	}
}

func (b *Broadcaster[T]) run() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
		}

		// Nothing is rendered while nobody is watching
		if b.ClientCount() == 0 {
			continue
		}
		b.tick()
	}
}

func (b *Broadcaster[T]) tick() {
	value, seq, ok := b.produce()
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.primed && seq == b.lastSeq {
		return
	}
	b.primed = true
	b.lastSeq = seq

	for _, ch := range b.clients {
		select {
		case ch <- value:
			b.sent++
		default:
			b.skipped++
		}
	}
}
