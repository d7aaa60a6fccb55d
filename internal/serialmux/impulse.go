package serialmux

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/erg.report/internal/monitoring"
)

var ErrNotAnImpulse = errors.New("not an impulse")

// ParseImpulse decodes one line from the impulse sensor: the time in seconds
// since the previous impulse. Blank lines and lines starting with '#' are
// sensor chatter and yield ErrNotAnImpulse.
func ParseImpulse(line string) (float64, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return 0, ErrNotAnImpulse
	}
	dt, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotAnImpulse, line)
	}
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return 0, fmt.Errorf("%w: implausible delta %q", ErrNotAnImpulse, line)
	}
	return dt, nil
}

// PumpImpulses subscribes to mux and forwards every parsed impulse to out
// until ctx is done or the subscription is closed. Unparseable lines are
// logged and skipped.
func PumpImpulses(ctx context.Context, mux SerialMuxInterface, out chan<- float64) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			dt, err := ParseImpulse(line)
			if err != nil {
				monitoring.Debugf("serial: skipping line: %v", err)
				continue
			}
			select {
			case out <- dt:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
