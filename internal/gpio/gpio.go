// Package gpio timestamps the falling edges of a reed or hall sensor wired to
// a GPIO pin and turns them into impulse deltas.
package gpio

import (
	"context"
	"fmt"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/timeutil"
)

// pollInterval bounds how long a cancelled context goes unnoticed.
const pollInterval = 100 * time.Millisecond

// Open initialises the host drivers and looks up a pin by name, e.g. "GPIO17".
func Open(name string) (pgpio.PinIn, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return p, nil
}

// Watcher converts edges on a pin into impulse deltas in seconds.
type Watcher struct {
	pin      pgpio.PinIn
	clock    timeutil.Clock
	debounce time.Duration
}

// NewWatcher creates a Watcher. Edges closer than debounce to the previous
// accepted edge are contact bounce and ignored.
func NewWatcher(pin pgpio.PinIn, clock timeutil.Clock, debounce time.Duration) *Watcher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Watcher{pin: pin, clock: clock, debounce: debounce}
}

// Run configures the pin for falling edges with a pull-up and sends one delta
// per accepted edge to out until ctx is done. The first edge only sets the
// reference time.
func (w *Watcher) Run(ctx context.Context, out chan<- float64) error {
	if err := w.pin.In(pgpio.PullUp, pgpio.FallingEdge); err != nil {
		return fmt.Errorf("failed to configure %s for edge detection: %w", w.pin, err)
	}
	defer func() {
		if err := w.pin.Halt(); err != nil {
			monitoring.Warnf("gpio: failed to halt %s: %v", w.pin, err)
		}
	}()
	monitoring.Infof("gpio: watching %s for impulses", w.pin)

	var last time.Time
	for ctx.Err() == nil {
		if !w.pin.WaitForEdge(pollInterval) {
			continue
		}
		now := w.clock.Now()
		if last.IsZero() {
			last = now
			continue
		}
		dt := now.Sub(last)
		if dt < w.debounce {
			continue
		}
		last = now
		select {
		case out <- dt.Seconds():
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}
