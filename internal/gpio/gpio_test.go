package gpio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/banshee-data/erg.report/internal/timeutil"
)

// scriptedClock returns a fixed sequence of edge timestamps.
type scriptedClock struct {
	*timeutil.MockClock
	mu    sync.Mutex
	times []time.Time
}

func (c *scriptedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.times[0]
	c.times = c.times[1:]
	return t
}

func TestWatcher(t *testing.T) {
	base := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	offsets := []time.Duration{
		0,
		12 * time.Millisecond,
		13 * time.Millisecond, // bounce
		25 * time.Millisecond,
		40 * time.Millisecond,
	}
	clock := &scriptedClock{MockClock: timeutil.NewMockClock(base)}
	for _, o := range offsets {
		clock.times = append(clock.times, base.Add(o))
	}

	pin := &gpiotest.Pin{N: "GPIO17", EdgesChan: make(chan pgpio.Level)}
	w := NewWatcher(pin, clock, 5*time.Millisecond)

	out := make(chan float64, len(offsets))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, out) }()

	for range offsets {
		pin.EdgesChan <- pgpio.Low
	}

	want := []float64{0.012, 0.013, 0.015}
	for _, dt := range want {
		select {
		case got := <-out:
			assert.InDelta(t, dt, got, 1e-12)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for an impulse")
		}
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, pgpio.PullUp, pin.Pull())
}

func TestWatcherRequiresEdgeSupport(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17"}
	w := NewWatcher(pin, nil, time.Millisecond)
	err := w.Run(context.Background(), make(chan float64))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GPIO17")
}
