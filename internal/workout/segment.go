// Package workout tracks progress through interval and split targets.
package workout

import (
	"github.com/banshee-data/erg.report/internal/statistics"
)

// Segment is a window of a session with an absolute baseline and an optional
// distance or time target. Targets are stored as absolute end points, so a
// segment is a projected finish line from wherever it was started.
type Segment struct {
	kind           Type
	startTime      float64
	startDistance  float64
	targetTime     float64
	targetDistance float64
	endTime        float64
	endDistance    float64
	split          Split
}

// NewSegment returns an unbounded segment starting at zero.
func NewSegment() *Segment {
	s := &Segment{}
	s.Reset()
	return s
}

// SetStart rebases the segment on m and clears its target.
func (s *Segment) SetStart(m statistics.Metrics) {
	s.Reset()
	s.startTime = max(m.TotalMovingTime, 0)
	s.startDistance = max(m.TotalLinearDistance, 0)
}

// SetEnd sets the target from an interval relative to the current start. A
// target that does not fit its type leaves the segment unbounded.
func (s *Segment) SetEnd(iv Interval) {
	s.targetTime, s.targetDistance = 0, 0
	s.endTime, s.endDistance = 0, 0
	switch {
	case iv.Type == Rest && iv.TargetTime > 0:
		s.kind = Rest
		s.targetTime = iv.TargetTime
		s.endTime = s.startTime + iv.TargetTime
	case iv.Type == Distance && iv.TargetDistance > 0:
		s.kind = Distance
		s.targetDistance = iv.TargetDistance
		s.endDistance = s.startDistance + iv.TargetDistance
	case iv.Type == Time && iv.TargetTime > 0:
		s.kind = Time
		s.targetTime = iv.TargetTime
		s.endTime = s.startTime + iv.TargetTime
	default:
		s.kind = JustRow
	}

	// rest intervals have no split
	s.split = Split{Type: JustRow}
	switch {
	case iv.Type == Rest || iv.Split == nil:
	case iv.Split.Type == Distance && iv.Split.TargetDistance > 0:
		s.split = Split{Type: Distance, TargetDistance: iv.Split.TargetDistance}
	case iv.Split.Type == Time && iv.Split.TargetTime > 0:
		s.split = Split{Type: Time, TargetTime: iv.Split.TargetTime}
	}
}

// Reset returns the segment to an unbounded one starting at zero.
func (s *Segment) Reset() {
	*s = Segment{kind: JustRow, split: Split{Type: JustRow}}
}

// DistanceFromStart returns the distance covered since the baseline.
func (s *Segment) DistanceFromStart(m statistics.Metrics) float64 {
	return m.TotalLinearDistance - s.startDistance
}

// TimeSinceStart returns the moving time since the baseline.
func (s *Segment) TimeSinceStart(m statistics.Metrics) float64 {
	return m.TotalMovingTime - s.startTime
}

// DistanceToEnd returns the distance left, negative once overshot.
func (s *Segment) DistanceToEnd(m statistics.Metrics) (float64, bool) {
	if s.kind != Distance || s.endDistance <= 0 {
		return 0, false
	}
	return s.endDistance - m.TotalLinearDistance, true
}

// TimeToEnd returns the time left for time and rest segments.
func (s *Segment) TimeToEnd(m statistics.Metrics) (float64, bool) {
	if (s.kind != Time && s.kind != Rest) || s.endTime <= 0 {
		return 0, false
	}
	return s.endTime - m.TotalMovingTime, true
}

// IsEndReached reports whether m is at or past the target. Rest segments end
// on their countdown, never on moving time.
func (s *Segment) IsEndReached(m statistics.Metrics) bool {
	switch {
	case s.kind == Distance && s.endDistance > 0:
		return m.TotalLinearDistance >= s.endDistance
	case s.kind == Time && s.endTime > 0:
		return m.TotalMovingTime >= s.endTime
	}
	return false
}

// InterpolateEnd projects the record at which the target was crossed between
// prev and curr. The result is a copy of prev with the interpolated totals;
// Modified is set only if a target was actually overshot. Stroke start flags
// are cleared so the boundary record never counts as a second stroke.
func (s *Segment) InterpolateEnd(prev, curr statistics.Metrics) statistics.Metrics {
	out := prev.Clone()
	out.Modified = false
	switch {
	case s.kind == Distance && s.endDistance > 0 && curr.TotalLinearDistance > s.endDistance:
		out.TotalMovingTime = interpolate(
			prev.TotalLinearDistance, prev.TotalMovingTime,
			curr.TotalLinearDistance, curr.TotalMovingTime,
			s.endDistance)
		out.TotalLinearDistance = s.endDistance
		out.Modified = true
	case s.kind == Time && s.endTime > 0 && curr.TotalMovingTime > s.endTime:
		out.TotalLinearDistance = interpolate(
			prev.TotalMovingTime, prev.TotalLinearDistance,
			curr.TotalMovingTime, curr.TotalLinearDistance,
			s.endTime)
		out.TotalMovingTime = s.endTime
		out.Modified = true
	}
	out.Context.IsDriveStart = false
	out.Context.IsRecoveryStart = false
	return out
}

// interpolate returns y at x on the line through (x0, y0) and (x1, y1). When
// x is not strictly between the two points it returns y1.
func interpolate(x0, y0, x1, y1, x float64) float64 {
	if !(x0 < x && x < x1) {
		return y1
	}
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

// Type returns the kind of target the segment has.
func (s *Segment) Type() Type { return s.kind }

// EndTime returns the absolute moving time at which a time segment ends.
func (s *Segment) EndTime() (float64, bool) {
	if s.kind != Time || s.endTime <= 0 {
		return 0, false
	}
	return s.endTime, true
}

// EndDistance returns the absolute distance at which a distance segment ends.
func (s *Segment) EndDistance() (float64, bool) {
	if s.kind != Distance || s.endDistance <= 0 {
		return 0, false
	}
	return s.endDistance, true
}

// Split returns the split applied within this segment.
func (s *Segment) Split() Split { return s.split }

func (s *Segment) TargetTime() (float64, bool) {
	if s.kind != Time || s.endTime <= 0 {
		return 0, false
	}
	return s.targetTime, true
}

func (s *Segment) TargetDistance() (float64, bool) {
	if s.kind != Distance || s.endDistance <= 0 {
		return 0, false
	}
	return s.targetDistance, true
}

func (s *Segment) SplitTime() float64     { return s.split.TargetTime }
func (s *Segment) SplitDistance() float64 { return s.split.TargetDistance }
