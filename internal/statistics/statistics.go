// Package statistics turns stroke phases into the smoothed, validated metrics
// shown to the rower: per-cycle averages, totals and calorie estimates.
package statistics

import (
	"github.com/banshee-data/erg.report/internal/config"
	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/regression"
	"github.com/banshee-data/erg.report/internal/rower"
	"github.com/banshee-data/erg.report/internal/smoothing"
)

// Aggregator owns a Rower and the filters over its completed phases.
type Aggregator struct {
	settings          config.RowerSettings
	rower             *rower.Rower
	minimumStrokeTime float64
	maximumStrokeTime float64

	cycleDuration       *smoothing.StreamFilter
	cycleDistance       *smoothing.StreamFilter
	cyclePower          *smoothing.StreamFilter
	cycleLinearVelocity *smoothing.StreamFilter

	driveDuration           *smoothing.StreamFilter
	driveLength             *smoothing.StreamFilter
	driveDistance           *smoothing.StreamFilter
	driveAverageHandleForce *smoothing.StreamFilter
	drivePeakHandleForce    *smoothing.StreamFilter
	recoveryDuration        *smoothing.StreamFilter

	forceCurve    *smoothing.CurveAligner
	velocityCurve *smoothing.CurveAligner
	powerCurve    *smoothing.CurveAligner

	// (moving time, total calories)
	calories *regression.OLS

	context             Context
	lastStrokeState     rower.StrokeState
	totalMovingTime     float64
	totalLinearDistance float64
	totalStrokes        int
	driveLastStartTime  float64
	strokeCalories      float64
	strokeWork          float64
	dragFactor          *float64
	instantPower        float64
}

// New creates an aggregator averaging the last averaging phases.
func New(settings config.RowerSettings, averaging int) *Aggregator {
	filter := func() *smoothing.StreamFilter { return smoothing.NewStreamFilter(averaging, 0) }
	a := &Aggregator{
		settings:          settings,
		rower:             rower.New(settings),
		minimumStrokeTime: settings.MinimumDriveTime + settings.MinimumRecoveryTime,
		maximumStrokeTime: settings.MaximumStrokeTimeBeforePause,

		cycleDuration:       filter(),
		cycleDistance:       filter(),
		cyclePower:          filter(),
		cycleLinearVelocity: filter(),

		driveDuration:           filter(),
		driveLength:             filter(),
		driveDistance:           filter(),
		driveAverageHandleForce: filter(),
		drivePeakHandleForce:    filter(),
		recoveryDuration:        filter(),

		forceCurve:    smoothing.NewCurveAligner(settings.MinimumForceBeforeStroke),
		velocityCurve: smoothing.NewCurveAligner(1.0),
		powerCurve:    smoothing.NewCurveAligner(50),

		calories:        regression.NewOLS(0),
		lastStrokeState: rower.WaitingForDrive,
		totalStrokes:    -1,
	}
	return a
}

// Settings returns the machine settings the aggregator was built with.
func (a *Aggregator) Settings() config.RowerSettings { return a.settings }

// DragFactor returns the drag factor the rower currently calculates with. It
// reports false while an auto-adjusted drag factor is still uncalibrated.
func (a *Aggregator) DragFactor() (float64, bool) {
	return a.rower.RecoveryDragFactor()
}

// AllowStartOrResumeTraining lets a stopped rower accept strokes again.
func (a *Aggregator) AllowStartOrResumeTraining() {
	a.rower.AllowMovement()
}

// StopTraining ignores all impulses until the next start or reset.
func (a *Aggregator) StopTraining() {
	a.rower.StopMoving()
	a.lastStrokeState = rower.Stopped
}

// PauseTraining clears the cycle averages so a resumed session does not show
// stale pace or power.
func (a *Aggregator) PauseTraining() {
	a.rower.PauseMoving()
	a.context.IsMoving = false
	a.cycleDuration.Reset()
	a.cycleDistance.Reset()
	a.cyclePower.Reset()
	a.cycleLinearVelocity.Reset()
	a.lastStrokeState = rower.WaitingForDrive
}

// ResetTraining clears every total, filter and the rower itself.
func (a *Aggregator) ResetTraining() {
	a.StopTraining()
	a.rower.Reset()
	a.calories.Reset()
	a.rower.AllowMovement()
	a.totalMovingTime = 0
	a.totalLinearDistance = 0
	a.totalStrokes = -1
	a.driveLastStartTime = 0
	for _, f := range []*smoothing.StreamFilter{
		a.driveDuration, a.recoveryDuration, a.driveLength, a.driveDistance,
		a.driveAverageHandleForce, a.drivePeakHandleForce,
		a.cycleDuration, a.cycleDistance, a.cyclePower, a.cycleLinearVelocity,
	} {
		f.Reset()
	}
	a.forceCurve.Reset()
	a.velocityCurve.Reset()
	a.powerCurve.Reset()
	a.strokeCalories = 0
	a.strokeWork = 0
	a.dragFactor = nil
	a.instantPower = 0
	a.lastStrokeState = rower.WaitingForDrive
	a.context = Context{}
}

// HandleRotationImpulse processes one impulse delta and returns the metrics.
func (a *Aggregator) HandleRotationImpulse(dt float64) Metrics {
	a.rower.HandleRotationImpulse(dt)
	a.context = Context{}

	last, now := a.lastStrokeState, a.rower.StrokeState()
	switch {
	case last == rower.WaitingForDrive && now == rower.Drive:
		a.updateContinuousMetrics()
		a.context.IsMoving = true
		a.context.IsDriveStart = true
	case last == rower.WaitingForDrive && now == rower.Recovery:
		a.updateContinuousMetrics()
		a.context.IsMoving = true
		a.context.IsRecoveryStart = true
	case last == rower.WaitingForDrive:
		a.context.IsMoving = false
	case last != rower.Stopped && now == rower.Stopped:
		// the instantaneous metrics are zeroed, which fits a stopped rower
		// better than the last known good values
		a.context.IsMoving = false
	case last == rower.Stopped:
		a.context.IsMoving = false
	case now == rower.WaitingForDrive:
		// the session manager turns this into a pause
		a.context.IsMoving = false
	case last == rower.Recovery && now == rower.Drive:
		a.updateContinuousMetrics()
		a.updateCycleMetrics()
		a.handleRecoveryEnd()
		a.context.IsMoving = true
		a.context.IsDriveStart = true
	case last == rower.Recovery && now == rower.Recovery:
		a.updateContinuousMetrics()
		a.context.IsMoving = true
	case last == rower.Drive && now == rower.Recovery:
		a.updateContinuousMetrics()
		a.updateCycleMetrics()
		a.handleDriveEnd()
		a.context.IsMoving = true
		a.context.IsRecoveryStart = true
	case last == rower.Drive && now == rower.Drive:
		a.updateContinuousMetrics()
		a.context.IsMoving = true
	default:
		monitoring.Errorf("time: %.4f sec, stroke states %s -> %s are not captured by the statistics state machine",
			a.rower.TotalMovingTimeSinceStart(), last, now)
	}
	a.lastStrokeState = now
	return a.Metrics()
}

func (a *Aggregator) updateContinuousMetrics() {
	a.totalMovingTime = a.rower.TotalMovingTimeSinceStart()
	a.totalLinearDistance = a.rower.TotalLinearDistanceSinceStart()
	a.instantPower = a.rower.InstantHandlePower()
}

func (a *Aggregator) updateCycleMetrics() {
	d, ok := a.rower.CycleDuration()
	if !ok || d >= a.maximumStrokeTime || d <= a.minimumStrokeTime || a.totalStrokes <= 0 {
		monitoring.Debugf("stroke duration of %.4f sec is considered unreliable, skipped update cycle statistics", d)
		return
	}
	distance, _ := a.rower.CycleLinearDistance()
	velocity, _ := a.rower.CycleLinearVelocity()
	power, _ := a.rower.CyclePower()
	a.cycleDuration.Push(d)
	a.cycleDistance.Push(distance)
	a.cycleLinearVelocity.Push(velocity)
	a.cyclePower.Push(power)
}

func (a *Aggregator) handleDriveEnd() {
	d, ok := a.rower.DriveDuration()
	if !ok {
		return
	}
	length, _ := a.rower.DriveLength()
	distance, _ := a.rower.DriveLinearDistance()
	avg, _ := a.rower.DriveAverageHandleForce()
	peak, _ := a.rower.DrivePeakHandleForce()
	a.driveDuration.Push(d)
	a.driveLength.Push(length)
	a.driveDistance.Push(distance)
	a.driveAverageHandleForce.Push(avg)
	a.drivePeakHandleForce.Push(peak)
	a.forceCurve.Push(a.rower.DriveHandleForceCurve())
	a.velocityCurve.Push(a.rower.DriveHandleVelocityCurve())
	a.powerCurve.Push(a.rower.DriveHandlePowerCurve())
}

func (a *Aggregator) handleRecoveryEnd() {
	a.totalStrokes = a.rower.TotalNumberOfStrokes()
	a.driveLastStartTime = a.rower.DriveLastStartTime()

	recovery, ok := a.rower.RecoveryDuration()
	if ok {
		a.recoveryDuration.Push(recovery)
	}
	a.dragFactor = nil
	if df, known := a.rower.RecoveryDragFactor(); ok && known {
		a.dragFactor = Float(df)
	}

	if a.cyclePower.Reliable() && a.cycleDuration.Reliable() {
		// http://eodg.atm.ox.ac.uk/user/dudhia/rowing/physics/ergometer.html#section11
		p, d := a.cyclePower.Clean(), a.cycleDuration.Clean()
		a.strokeCalories = (4*p + 350) * d / 4200
		a.strokeWork = p * d
		a.calories.Push(a.totalMovingTime, a.calories.Y().AtSeriesEnd()+a.strokeCalories)
	}
}

func (a *Aggregator) caloriesPerPeriod(begin, end float64) float64 {
	return a.calories.ProjectX(end) - a.calories.ProjectX(begin)
}

// Metrics returns the current record without processing an impulse.
func (a *Aggregator) Metrics() Metrics {
	moving := a.context.IsMoving
	velocityRaw := a.cycleLinearVelocity.Raw()
	strokesKnown := a.totalStrokes > 0

	m := Metrics{
		Context:             a.context,
		StrokeState:         a.rower.StrokeState(),
		TotalMovingTime:     nonNegative(a.totalMovingTime),
		TotalLinearDistance: nonNegative(a.totalLinearDistance),
		StrokeCalories:      nonNegative(a.strokeCalories),
		StrokeWork:          nonNegative(a.strokeWork),
		TotalCalories:       nonNegative(a.calories.Y().AtSeriesEnd()),
		DriveLastStartTime:  nonNegative(a.driveLastStartTime),
	}
	if strokesKnown {
		m.TotalNumberOfStrokes = a.totalStrokes
	}

	if a.totalMovingTime > 60 {
		m.TotalCaloriesPerMinute = a.caloriesPerPeriod(a.totalMovingTime-60, a.totalMovingTime)
	} else {
		m.TotalCaloriesPerMinute = a.caloriesPerPeriod(0, 60)
	}
	if a.totalMovingTime > 3600 {
		m.TotalCaloriesPerHour = a.caloriesPerPeriod(a.totalMovingTime-3600, a.totalMovingTime)
	} else {
		m.TotalCaloriesPerHour = a.caloriesPerPeriod(0, 3600)
	}

	if cd := a.cycleDuration.Clean(); a.cycleDuration.Reliable() && cd > a.minimumStrokeTime && cd < a.maximumStrokeTime &&
		velocityRaw > 0 && strokesKnown && moving {
		m.CycleDuration = Float(cd)
		m.CycleStrokeRate = Float(60 / cd)
	}
	if a.cycleDistance.Reliable() && a.cycleDistance.Raw() > 0 && velocityRaw > 0 && moving {
		m.CycleDistance = Float(a.cycleDistance.Clean())
	}
	if v := a.cycleLinearVelocity.Clean(); a.cycleLinearVelocity.Reliable() && v > 0 && velocityRaw > 0 && moving {
		m.CycleLinearVelocity = Float(v)
		m.CyclePace = Float(500 / v)
	}
	if p := a.cyclePower.Clean(); a.cyclePower.Reliable() && p > 0 && velocityRaw > 0 && moving {
		m.CyclePower = Float(p)
	}

	s := a.settings
	if d := a.driveDuration.Clean(); a.driveDuration.Reliable() && d >= s.MinimumDriveTime && strokesKnown && moving {
		m.DriveDuration = Float(d)
	}
	if l := a.driveLength.Clean(); a.driveLength.Reliable() && l > 0 && moving {
		m.DriveLength = Float(l)
	}
	if d := a.driveDistance.Clean(); a.driveDistance.Reliable() && d >= 0 && moving {
		m.DriveDistance = Float(d)
	}
	if f := a.driveAverageHandleForce.Clean(); f > 0 && moving {
		m.DriveAverageHandleForce = Float(f)
	}
	peak := a.drivePeakHandleForce.Clean()
	if peak > 0 && moving {
		m.DrivePeakHandleForce = Float(peak)
		m.DriveHandleForceCurve = a.forceCurve.LastCompleteCurve()
		m.DriveHandleVelocityCurve = a.velocityCurve.LastCompleteCurve()
		m.DriveHandlePowerCurve = a.powerCurve.LastCompleteCurve()
	} else {
		m.DriveHandleForceCurve = []float64{}
		m.DriveHandleVelocityCurve = []float64{}
		m.DriveHandlePowerCurve = []float64{}
	}
	if r := a.recoveryDuration.Clean(); a.recoveryDuration.Reliable() && r >= s.MinimumRecoveryTime && strokesKnown && moving {
		m.RecoveryDuration = Float(r)
	}
	if a.dragFactor != nil && *a.dragFactor > 0 {
		m.DragFactor = Float(*a.dragFactor)
	}
	if a.instantPower > 0 && m.StrokeState == rower.Drive {
		m.InstantPower = a.instantPower
	}
	return m
}

func nonNegative(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}
