package recorder

import (
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/erg.report/internal/fsutil"
	"github.com/banshee-data/erg.report/internal/statistics"
	"github.com/banshee-data/erg.report/internal/units"
)

// LogRecorder writes one line per stroke and per session transition.
type LogRecorder struct {
	lines []string
}

func NewLogRecorder() *LogRecorder {
	return &LogRecorder{}
}

func (r *LogRecorder) RecordImpulse(float64) {}

func (r *LogRecorder) RecordMetrics(m statistics.Metrics) {
	ctx := m.Context
	switch {
	case ctx.IsSessionStart:
		r.add(m, "session started (%s)", m.SessionType)
	case ctx.IsPauseEnd:
		r.add(m, "resumed")
	case ctx.IsIntervalStart && ctx.IsPauseStart:
		r.add(m, "rest of %s started", units.FormatDuration(m.PauseCountdownTime))
	case ctx.IsIntervalStart:
		r.add(m, "interval %d started (%s)", m.WorkoutStepNumber+1, m.SessionType)
	case ctx.IsSplitEnd:
		r.add(m, "split %d done", m.SplitNumber+1)
	case ctx.IsPauseStart:
		r.add(m, "paused")
	}
	if ctx.IsMoving && ctx.IsDriveStart && m.CycleDuration != nil {
		r.add(m, "stroke %d: %s", m.TotalNumberOfStrokes, strokeSummary(m))
	}
	if ctx.IsSessionStop {
		pace, _ := units.Pace(m.TotalLinearDistance / max(m.TotalMovingTime, 1e-9))
		r.add(m, "session stopped: %.0f m in %s, %d strokes, %s /500m, %.0f kcal",
			m.TotalLinearDistance, units.FormatDuration(m.TotalMovingTime),
			m.TotalNumberOfStrokes, units.FormatPace(pace), m.TotalCalories)
	}
}

func strokeSummary(m statistics.Metrics) string {
	var b strings.Builder
	pace, _ := statistics.Value(m.CyclePace)
	fmt.Fprintf(&b, "%s /500m", units.FormatPace(pace))
	if spm, ok := statistics.Value(m.CycleStrokeRate); ok {
		fmt.Fprintf(&b, ", %.1f spm", spm)
	}
	if p, ok := statistics.Value(m.CyclePower); ok {
		fmt.Fprintf(&b, ", %.0f W", p)
	}
	if d, ok := statistics.Value(m.CycleDistance); ok {
		fmt.Fprintf(&b, ", %.1f m", d)
	}
	if df, ok := statistics.Value(m.DragFactor); ok {
		fmt.Fprintf(&b, ", drag %.1f", df)
	}
	return b.String()
}

func (r *LogRecorder) add(m statistics.Metrics, format string, args ...any) {
	prefix := fmt.Sprintf("%s %8.1f s %8.1f m  ", m.Timestamp.Format("15:04:05.0"), m.TotalMovingTime, m.TotalLinearDistance)
	r.lines = append(r.lines, prefix+fmt.Sprintf(format, args...))
}

// Lines returns the lines recorded so far.
func (r *LogRecorder) Lines() []string {
	return r.lines
}

func (r *LogRecorder) FileName(base string) string { return base + ".log" }

func (r *LogRecorder) Write(fsys fsutil.FileSystem, base string) error {
	if len(r.lines) == 0 {
		return nil
	}
	err := fsutil.WriteAtomic(fsys, r.FileName(base), func(w io.Writer) error {
		_, err := io.WriteString(w, strings.Join(r.lines, "\n")+"\n")
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write session log: %w", err)
	}
	return nil
}

func (r *LogRecorder) Reset() {
	r.lines = nil
}
