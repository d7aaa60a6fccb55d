package workout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Type is the kind of target an interval or split has.
type Type string

const (
	JustRow  Type = "justrow"
	Distance Type = "distance"
	Time     Type = "time"
	Rest     Type = "rest"
)

var (
	ErrEmptyPlan   = errors.New("workout plan has no intervals")
	ErrUnknownType = errors.New("unknown interval type")
	ErrBadTarget   = errors.New("invalid interval target")
)

// Split divides an interval into equal sub-targets.
type Split struct {
	Type           Type    `json:"type"`
	TargetDistance float64 `json:"target_distance,omitempty"`
	TargetTime     float64 `json:"target_time,omitempty"`
}

// Interval is one step of a workout plan. Distances are in meters, times in
// seconds.
type Interval struct {
	Type           Type    `json:"type"`
	TargetDistance float64 `json:"target_distance,omitempty"`
	TargetTime     float64 `json:"target_time,omitempty"`
	Split          *Split  `json:"split,omitempty"`
}

func (t Type) valid() bool {
	switch t {
	case JustRow, Distance, Time, Rest:
		return true
	}
	return false
}

func checkTarget(t Type, distance, seconds float64) error {
	if !t.valid() {
		return fmt.Errorf("%w %q", ErrUnknownType, t)
	}
	for _, v := range []float64{distance, seconds} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", ErrBadTarget, v)
		}
	}
	switch {
	case t == Distance && distance == 0:
		return fmt.Errorf("%w: distance interval needs a target distance", ErrBadTarget)
	case (t == Time || t == Rest) && seconds == 0:
		return fmt.Errorf("%w: %s interval needs a target time", ErrBadTarget, t)
	}
	return nil
}

// Validate checks the interval and its split.
func (iv Interval) Validate() error {
	if err := checkTarget(iv.Type, iv.TargetDistance, iv.TargetTime); err != nil {
		return err
	}
	if iv.Split == nil {
		return nil
	}
	if iv.Split.Type == Rest {
		return fmt.Errorf("%w: a split cannot be a rest", ErrBadTarget)
	}
	if err := checkTarget(iv.Split.Type, iv.Split.TargetDistance, iv.Split.TargetTime); err != nil {
		return fmt.Errorf("split: %w", err)
	}
	return nil
}

// ValidatePlan checks every interval of a plan.
func ValidatePlan(plan []Interval) error {
	if len(plan) == 0 {
		return ErrEmptyPlan
	}
	for i, iv := range plan {
		if err := iv.Validate(); err != nil {
			return fmt.Errorf("interval %d: %w", i+1, err)
		}
	}
	return nil
}

// DecodePlan reads and validates a JSON array of intervals.
func DecodePlan(r io.Reader) ([]Interval, error) {
	var plan []Interval
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("failed to decode workout plan: %w", err)
	}
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Interval returns the split as an interval, so a split segment can be
// bounded with SetEnd.
func (sp Split) Interval() Interval {
	return Interval{Type: sp.Type, TargetDistance: sp.TargetDistance, TargetTime: sp.TargetTime}
}
