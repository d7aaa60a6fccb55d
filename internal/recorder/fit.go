package recorder

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/tormoder/fit"

	"github.com/banshee-data/erg.report/internal/fsutil"
	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/statistics"
)

// FitRecorder builds a FIT activity with one record per stroke, one lap per
// split or interval and a session summary.
type FitRecorder struct {
	strokes []statistics.Metrics
	// lap boundaries, starting with the session start
	laps []statistics.Metrics
	step int
	last statistics.Metrics
}

func NewFitRecorder() *FitRecorder {
	return &FitRecorder{}
}

func (r *FitRecorder) RecordImpulse(float64) {}

func (r *FitRecorder) RecordMetrics(m statistics.Metrics) {
	ctx := m.Context
	// a resume within the same workout step continues its lap
	newStep := ctx.IsIntervalStart && m.WorkoutStepNumber != r.step
	if ctx.IsSessionStart || (len(r.laps) > 0 && (ctx.IsSplitEnd || newStep)) {
		r.laps = append(r.laps, m)
		r.step = m.WorkoutStepNumber
	}
	if ctx.IsMoving && ctx.IsDriveStart && m.CycleDuration != nil {
		r.strokes = append(r.strokes, m)
	}
	if len(r.laps) > 0 {
		r.last = m
	}
}

func (r *FitRecorder) FileName(base string) string { return base + ".fit" }

func (r *FitRecorder) Write(fsys fsutil.FileSystem, base string) error {
	if len(r.strokes) == 0 {
		monitoring.Debugf("recorder: no strokes yet, skipping the FIT file")
		return nil
	}
	file, err := r.build()
	if err != nil {
		return err
	}
	name := r.FileName(base)
	err = fsutil.WriteAtomic(fsys, name, func(w io.Writer) error {
		return fit.Encode(w, file, binary.LittleEndian)
	})
	if err != nil {
		return fmt.Errorf("failed to write FIT file: %w", err)
	}
	monitoring.Infof("recorder: wrote %d strokes in %d laps to %s", len(r.strokes), len(r.laps), name)
	return nil
}

func (r *FitRecorder) build() (*fit.File, error) {
	file, err := fit.NewFile(fit.FileTypeActivity, fit.NewHeader(fit.V20, true))
	if err != nil {
		return nil, fmt.Errorf("failed to create FIT file: %w", err)
	}
	activity, err := file.Activity()
	if err != nil {
		return nil, fmt.Errorf("failed to create FIT activity: %w", err)
	}

	first, last := r.laps[0], r.last
	file.FileId.Manufacturer = fit.ManufacturerDevelopment
	file.FileId.TimeCreated = first.Timestamp

	start := fit.NewEventMsg()
	start.Timestamp = first.Timestamp
	start.Event = fit.EventTimer
	start.EventType = fit.EventTypeStart
	stop := fit.NewEventMsg()
	stop.Timestamp = last.Timestamp
	stop.Event = fit.EventTimer
	stop.EventType = fit.EventTypeStopAll
	activity.Events = append(activity.Events, start, stop)

	for _, s := range r.strokes {
		rec := fit.NewRecordMsg()
		rec.Timestamp = s.Timestamp
		rec.Distance = scaled32(s.TotalLinearDistance, 100)
		if v, ok := statistics.Value(s.CycleLinearVelocity); ok {
			rec.Speed = scaled16(v, 1000)
		}
		if p, ok := statistics.Value(s.CyclePower); ok {
			rec.Power = scaled16(p, 1)
		}
		if spm, ok := statistics.Value(s.CycleStrokeRate); ok {
			rec.Cadence = uint8(math.Min(math.Round(spm), 254))
		}
		activity.Records = append(activity.Records, rec)
	}

	bounds := append(slices.Clone(r.laps[1:]), last)
	from := first
	for i, to := range bounds {
		if to.TotalMovingTime <= from.TotalMovingTime && (i < len(bounds)-1 || len(activity.Laps) > 0) {
			continue
		}
		lap := fit.NewLapMsg()
		lap.MessageIndex = fit.MessageIndex(len(activity.Laps))
		lap.Timestamp = to.Timestamp
		lap.StartTime = from.Timestamp
		lap.Event = fit.EventLap
		lap.EventType = fit.EventTypeStop
		lap.Sport = fit.SportRowing
		lap.SubSport = fit.SubSportIndoorRowing
		lap.LapTrigger = fit.LapTriggerManual
		if i == len(bounds)-1 {
			lap.LapTrigger = fit.LapTriggerSessionEnd
		}
		r.summarize(from, to, &summary{
			elapsed: &lap.TotalElapsedTime, timer: &lap.TotalTimerTime,
			distance: &lap.TotalDistance, cycles: &lap.TotalCycles,
			calories: &lap.TotalCalories, speed: &lap.AvgSpeed,
			power: &lap.AvgPower, cadence: &lap.AvgCadence,
		})
		activity.Laps = append(activity.Laps, lap)
		from = to
	}

	session := fit.NewSessionMsg()
	session.Timestamp = last.Timestamp
	session.StartTime = first.Timestamp
	session.Event = fit.EventSession
	session.EventType = fit.EventTypeStop
	session.Sport = fit.SportRowing
	session.SubSport = fit.SubSportIndoorRowing
	session.NumLaps = uint16(len(activity.Laps))
	r.summarize(first, last, &summary{
		elapsed: &session.TotalElapsedTime, timer: &session.TotalTimerTime,
		distance: &session.TotalDistance, cycles: &session.TotalCycles,
		calories: &session.TotalCalories, speed: &session.AvgSpeed,
		power: &session.AvgPower, cadence: &session.AvgCadence,
	})
	var maxPower float64
	for _, s := range r.strokes {
		if p, ok := statistics.Value(s.CyclePower); ok {
			maxPower = max(maxPower, p)
		}
	}
	session.MaxPower = scaled16(maxPower, 1)
	activity.Sessions = append(activity.Sessions, session)

	activity.Activity = fit.NewActivityMsg()
	activity.Activity.Timestamp = last.Timestamp
	activity.Activity.TotalTimerTime = session.TotalTimerTime
	activity.Activity.NumSessions = 1
	activity.Activity.Event = fit.EventActivity
	activity.Activity.EventType = fit.EventTypeStop
	return file, nil
}

// summary points at the totals shared by laps and sessions.
type summary struct {
	elapsed, timer, distance, cycles *uint32
	calories, speed, power           *uint16
	cadence                          *uint8
}

func (r *FitRecorder) summarize(from, to statistics.Metrics, s *summary) {
	moving := to.TotalMovingTime - from.TotalMovingTime
	distance := to.TotalLinearDistance - from.TotalLinearDistance
	*s.elapsed = scaled32(to.Timestamp.Sub(from.Timestamp).Seconds(), 1000)
	*s.timer = scaled32(moving, 1000)
	*s.distance = scaled32(distance, 100)
	*s.cycles = uint32(max(to.TotalNumberOfStrokes-from.TotalNumberOfStrokes, 0))
	*s.calories = scaled16(to.TotalCalories-from.TotalCalories, 1)
	if moving > 0 {
		*s.speed = scaled16(distance/moving, 1000)
	}

	var power, rate float64
	var n int
	for _, st := range r.strokes {
		if st.TotalMovingTime <= from.TotalMovingTime || st.TotalMovingTime > to.TotalMovingTime {
			continue
		}
		p, _ := statistics.Value(st.CyclePower)
		spm, _ := statistics.Value(st.CycleStrokeRate)
		power += p
		rate += spm
		n++
	}
	if n > 0 {
		*s.power = scaled16(power/float64(n), 1)
		*s.cadence = uint8(math.Min(math.Round(rate/float64(n)), 254))
	}
}

func (r *FitRecorder) Reset() {
	r.strokes = nil
	r.laps = nil
	r.step = 0
	r.last = statistics.Metrics{}
}

func scaled32(v, scale float64) uint32 {
	return uint32(math.Max(0, math.Min(math.Round(v*scale), math.MaxUint32-1)))
}

func scaled16(v, scale float64) uint16 {
	return uint16(math.Max(0, math.Min(math.Round(v*scale), math.MaxUint16-1)))
}
