package rower

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StrokeState is the phase of the stroke state machine.
type StrokeState int

const (
	WaitingForDrive StrokeState = iota
	Drive
	Recovery
	Stopped
)

var stateNames = [...]string{
	WaitingForDrive: "WaitingForDrive",
	Drive:           "Drive",
	Recovery:        "Recovery",
	Stopped:         "Stopped",
}

func (s StrokeState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("StrokeState(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name, which is how it appears in JSON.
func (s StrokeState) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("unknown stroke state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText decodes a state name.
func (s *StrokeState) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = StrokeState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stroke state %q", b)
}

// curve collects every sample of a handle quantity during a drive, each
// weighted by the impulse time it covers.
type curve struct {
	values  []float64
	weights []float64
}

func (c *curve) push(dt, v float64) {
	c.values = append(c.values, v)
	c.weights = append(c.weights, math.Max(dt, 0))
}

func (c *curve) average() float64 {
	if len(c.values) == 0 {
		return 0
	}
	if floats.Sum(c.weights) == 0 {
		return stat.Mean(c.values, nil)
	}
	return stat.Mean(c.values, c.weights)
}

func (c *curve) peak() float64 {
	if len(c.values) == 0 {
		return 0
	}
	return floats.Max(c.values)
}

func (c *curve) points() []float64 {
	out := make([]float64, len(c.values))
	copy(out, c.values)
	return out
}

func (c *curve) reset() {
	c.values = c.values[:0]
	c.weights = c.weights[:0]
}
