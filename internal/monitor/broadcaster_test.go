package monitor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterSource produces the current value of seq, or nothing while it is zero
type counterSource struct {
	seq   atomic.Uint64
	calls atomic.Int64
}

func (c *counterSource) produce() (uint64, uint64, bool) {
	c.calls.Add(1)
	v := c.seq.Load()
	return v, v, v != 0
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
	var zero T
	return zero
}

func TestBroadcasterFansOutNewValues(t *testing.T) {
	src := &counterSource{}
	var gauge atomic.Int64
	b := NewBroadcaster("Test", 5*time.Millisecond, src.produce, &gauge)
	b.Start()
	defer b.Stop()

	id1, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()
	assert.Equal(t, 2, b.ClientCount())
	assert.Equal(t, int64(2), gauge.Load())

	src.seq.Store(1)
	assert.Equal(t, uint64(1), receive(t, ch1))
	assert.Equal(t, uint64(1), receive(t, ch2))

	// An unchanged seq is not sent again
	time.Sleep(30 * time.Millisecond)
	select {
	case v := <-ch1:
		t.Fatalf("unexpected repeat %d", v)
	default:
	}

	src.seq.Store(2)
	assert.Equal(t, uint64(2), receive(t, ch1))

	b.Unsubscribe(id1)
	_, open := <-ch1
	assert.False(t, open)
	assert.Equal(t, int64(1), gauge.Load())
}

func TestBroadcasterIdleWithoutClients(t *testing.T) {
	src := &counterSource{}
	src.seq.Store(1)
	b := NewBroadcaster("Test", 2*time.Millisecond, src.produce, nil)
	b.Start()
	defer b.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, src.calls.Load())
}

func TestBroadcasterSlowClientMissesValues(t *testing.T) {
	src := &counterSource{}
	b := NewBroadcaster("Test", time.Hour, src.produce, nil)
	_, ch := b.Subscribe()

	for i := uint64(1); i <= 5; i++ {
		src.seq.Store(i)
		b.tick()
	}

	// Buffer holds the first two; the rest were skipped
	assert.Equal(t, uint64(1), <-ch)
	assert.Equal(t, uint64(2), <-ch)
	assert.Equal(t, uint64(2), b.sent)
	assert.Equal(t, uint64(3), b.skipped)
}

func TestBroadcasterStopClosesClients(t *testing.T) {
	var gauge atomic.Int64
	b := NewBroadcaster("Test", time.Millisecond, (&counterSource{}).produce, &gauge)
	b.Start()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		_, ch := b.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
	}

	b.Stop()
	b.Stop()
	wg.Wait()
	require.Equal(t, 0, b.ClientCount())
	assert.Equal(t, int64(0), gauge.Load())
}

func TestBroadcasterDeliversFirstZeroSeq(t *testing.T) {
	produce := func() (string, uint64, bool) { return "first", 0, true }
	b := NewBroadcaster("Test", time.Hour, produce, nil)
	_, ch := b.Subscribe()

	b.tick()
	b.tick()

	assert.Equal(t, "first", <-ch)
	assert.Equal(t, uint64(1), b.sent)
	select {
	case v := <-ch:
		t.Fatalf("unexpected repeat %q", v)
	default:
	}
}
