package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

var errSensorClosed = errors.New("sensor port closed")

// fakeSensor stands in for the impulse sensor on the other end of the port.
// Lines it emits are read by the mux; commands written to it are kept.
type fakeSensor struct {
	mu      sync.Mutex
	pending bytes.Buffer
	written bytes.Buffer
	wake    *sync.Cond

	// blockReads makes Read wait for data instead of returning EOF.
	blockReads bool
	readErr    error
	writeErr   error
	closed     bool
}

func newFakeSensor() *fakeSensor {
	s := &fakeSensor{}
	s.wake = sync.NewCond(&s.mu)
	return s
}

// Emit queues one line per impulse delta, formatted as the firmware does.
func (s *fakeSensor) Emit(deltas ...float64) {
	var b bytes.Buffer
	for _, dt := range deltas {
		fmt.Fprintf(&b, "%.9f\n", dt)
	}
	s.EmitRaw(b.String())
}

// EmitRaw queues arbitrary output such as banners or garbage.
func (s *fakeSensor) EmitRaw(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.WriteString(text)
	s.wake.Signal()
}

// Commands returns everything written to the sensor.
func (s *fakeSensor) Commands() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.String()
}

func (s *fakeSensor) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		err := s.readErr
		s.readErr = nil
		return 0, err
	}
	for s.blockReads && !s.closed && s.pending.Len() == 0 {
		s.wake.Wait()
	}
	if s.closed {
		return 0, errSensorClosed
	}
	return s.pending.Read(p)
}

func (s *fakeSensor) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errSensorClosed
	}
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return s.written.Write(p)
}

func (s *fakeSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.wake.Broadcast()
	return nil
}
