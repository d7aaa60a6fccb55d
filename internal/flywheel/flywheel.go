// Package flywheel models the rowing machine flywheel from impulse timings.
//
// All kinematics are reported for the point just before the regression flank:
// only data that has left the flank is certain to belong to a completed Drive
// or Recovery phase. Angular velocity and acceleration come from a Theil-Sen
// quadratic fit of angular distance over time, the stroke detection uses a
// Theil-Sen linear fit of the raw impulse deltas, and the drag factor is
// calibrated from the deceleration observed during recoveries.
package flywheel

import (
	"math"

	"github.com/banshee-data/erg.report/internal/config"
	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/regression"
	"github.com/banshee-data/erg.report/internal/smoothing"
)

// Flywheel tracks angular kinematics and power state of the flywheel.
type Flywheel struct {
	settings config.RowerSettings

	angularDisplacementPerImpulse float64
	flankLength                   int
	minimumDragFactorSamples      int
	minimumAngularVelocity        float64
	minimumTorqueBeforeStroke     float64

	currentDt            *smoothing.StreamFilter
	deltaTime            *regression.TSLinear
	angularDistance      *regression.TSQuadratic
	drag                 *smoothing.WeighedSeries
	recoveryDeltaTime    *regression.TSLinear
	minimumRecoverySlope *smoothing.WeighedSeries

	angularVelocityMatrix     []*smoothing.WeighedSeries
	angularAccelerationMatrix []*smoothing.WeighedSeries

	deltaTimeBeforeFlank            float64
	angularVelocityAtBeginFlank     float64
	angularVelocityBeforeFlank      float64
	angularAccelerationAtBeginFlank float64
	angularAccelerationBeforeFlank  float64
	torqueAtBeginFlank              float64
	torqueBeforeFlank               float64

	inRecoveryPhase        bool
	maintainMetrics        bool
	totalNumberOfImpulses  int
	totalTimeSpinning      float64
	currentCleanTime       float64
	currentRawTime         float64
	currentAngularDistance float64
}

// New creates a flywheel for the given machine settings.
func New(settings config.RowerSettings) *Flywheel {
	theta := 2 * math.Pi / float64(settings.NumOfImpulsesPerRevolution)
	f := &Flywheel{
		settings:                      settings,
		angularDisplacementPerImpulse: theta,
		flankLength:                   settings.FlankLength,
		minimumDragFactorSamples:      int(math.Floor(settings.MinimumRecoveryTime / settings.MaximumTimeBetweenImpulses)),
		minimumAngularVelocity:        theta / settings.MaximumTimeBetweenImpulses,
		minimumTorqueBeforeStroke:     settings.MinimumForceBeforeStroke * (settings.SprocketRadius / 100),

		currentDt:            smoothing.NewStreamFilter(settings.Smoothing, settings.MaximumTimeBetweenImpulses),
		deltaTime:            regression.NewTSLinear(settings.FlankLength),
		angularDistance:      regression.NewTSQuadratic(settings.FlankLength),
		drag:                 smoothing.NewWeighedSeries(settings.DragFactorSmoothing, settings.DragFactor/1e6),
		recoveryDeltaTime:    regression.NewTSLinear(0),
		minimumRecoverySlope: smoothing.NewWeighedSeries(settings.DragFactorSmoothing, settings.MinimumRecoverySlope),
	}
	f.Reset()
	return f
}

func (f *Flywheel) flankFilled() bool {
	return f.deltaTime.Len() >= f.flankLength
}

// PushValue processes the time in seconds between two impulses.
func (f *Flywheel) PushValue(dt float64) {
	s := f.settings
	if math.IsNaN(dt) || dt < 0 || dt > s.MaximumStrokeTimeBeforePause {
		monitoring.Debugf("currentDt of %v sec isn't between 0 and maximumStrokeTimeBeforePause (%v sec), value skipped", dt, s.MaximumStrokeTimeBeforePause)
		return
	}

	if dt > s.MaximumTimeBetweenImpulses && f.maintainMetrics {
		monitoring.Debugf("currentDt of %v sec is above maximumTimeBetweenImpulses (%v sec)", dt, s.MaximumTimeBetweenImpulses)
	}

	if dt < s.MinimumTimeBetweenImpulses {
		if f.flankFilled() && f.maintainMetrics {
			monitoring.Warnf("currentDt of %v sec is below minimumTimeBetweenImpulses (%v sec)", dt, s.MinimumTimeBetweenImpulses)
		} else {
			monitoring.Debugf("currentDt of %v sec is below minimumTimeBetweenImpulses (%v sec) during start-up, value skipped", dt, s.MinimumTimeBetweenImpulses)
			return
		}
	}

	f.currentDt.Push(dt)

	if f.maintainMetrics && f.flankFilled() {
		// the oldest value in the flank is certain to belong to the current phase
		f.totalNumberOfImpulses++
		f.deltaTimeBeforeFlank = f.deltaTime.Y().AtSeriesBegin()
		f.totalTimeSpinning += f.deltaTimeBeforeFlank
		f.angularVelocityBeforeFlank = f.angularVelocityAtBeginFlank
		f.angularAccelerationBeforeFlank = f.angularAccelerationAtBeginFlank
		f.torqueBeforeFlank = f.torqueAtBeginFlank

		if f.inRecoveryPhase {
			f.recoveryDeltaTime.Push(f.totalTimeSpinning, f.deltaTimeBeforeFlank)
		}
	} else {
		f.deltaTimeBeforeFlank = 0
		f.angularVelocityBeforeFlank = 0
		f.angularAccelerationBeforeFlank = 0
		f.torqueBeforeFlank = 0
	}

	// stroke detection needs the unfiltered deltas, otherwise the goodness
	// of fit loses its meaning as a filter
	f.currentRawTime += f.currentDt.Raw()
	f.currentAngularDistance += f.angularDisplacementPerImpulse
	f.deltaTime.Push(f.currentRawTime, f.currentDt.Raw())

	f.currentCleanTime += f.currentDt.Clean()
	f.angularDistance.Push(f.currentCleanTime, f.currentAngularDistance)

	if len(f.angularVelocityMatrix) >= f.flankLength {
		f.angularVelocityMatrix = f.angularVelocityMatrix[1:]
		f.angularAccelerationMatrix = f.angularAccelerationMatrix[1:]
	}
	f.angularVelocityMatrix = append(f.angularVelocityMatrix, smoothing.NewWeighedSeries(f.flankLength, 0))
	f.angularAccelerationMatrix = append(f.angularAccelerationMatrix, smoothing.NewWeighedSeries(f.flankLength, 0))

	fit := f.angularDistance.GoodnessOfFit()
	for i := range f.angularVelocityMatrix {
		f.angularVelocityMatrix[i].Push(f.angularDistance.FirstDerivativeAt(i), fit)
		f.angularAccelerationMatrix[i].Push(f.angularDistance.SecondDerivativeAt(i), fit)
	}

	f.angularVelocityAtBeginFlank = f.angularVelocityMatrix[0].WeighedAverage()
	f.angularAccelerationAtBeginFlank = f.angularAccelerationMatrix[0].WeighedAverage()

	f.torqueAtBeginFlank = s.FlywheelInertia*f.angularAccelerationAtBeginFlank +
		f.drag.WeighedAverage()*f.angularVelocityAtBeginFlank*f.angularVelocityAtBeginFlank
}

// MaintainStateOnly stops updating the kinematic metrics.
func (f *Flywheel) MaintainStateOnly() { f.maintainMetrics = false }

// MaintainStateAndMetrics resumes updating the kinematic metrics.
func (f *Flywheel) MaintainStateAndMetrics() { f.maintainMetrics = true }

// MarkRecoveryPhaseStart starts collecting deltas for drag calibration.
func (f *Flywheel) MarkRecoveryPhaseStart() {
	f.inRecoveryPhase = true
	f.recoveryDeltaTime.Reset()
}

// MarkRecoveryPhaseCompleted ends the recovery and, when the collected
// deceleration is trustworthy, folds it into the drag factor.
func (f *Flywheel) MarkRecoveryPhaseCompleted() {
	f.inRecoveryPhase = false

	s := f.settings
	slope := f.recoveryDeltaTime.Slope()
	samples := f.recoveryDeltaTime.Len()
	fit := f.recoveryDeltaTime.GoodnessOfFit()

	switch {
	case !s.AutoAdjustDragFactor:
		monitoring.Debugf("calculated drag factor: %.4f, slope: %.8f, not used because autoAdjustDragFactor is not true", f.slopeToDrag(slope)*1e6, slope)
	case samples > f.minimumDragFactorSamples && slope > 0 && (!f.drag.Reliable() || fit >= s.MinimumDragQuality):
		f.drag.Push(f.slopeToDrag(slope), fit)
		monitoring.Debugf("calculated drag factor: %.4f, no. samples: %d, goodness of fit: %.4f", f.slopeToDrag(slope)*1e6, samples, fit)
		if s.AutoAdjustRecoverySlope {
			f.minimumRecoverySlope.Push((1-s.AutoAdjustRecoverySlopeMargin)*slope, fit)
			monitoring.Debugf("calculated recovery slope: %.6f, goodness of fit: %.4f", slope, fit)
		}
	default:
		monitoring.Debugf("calculated drag factor: %.4f, not used because reliability was too low. no. samples: %d, fit: %.4f", f.slopeToDrag(slope)*1e6, samples, fit)
	}
}

func (f *Flywheel) slopeToDrag(slope float64) float64 {
	return slope * f.settings.FlywheelInertia / f.angularDisplacementPerImpulse
}

// SpinningTime returns the seconds the flywheel has spun before the flank.
func (f *Flywheel) SpinningTime() float64 { return f.totalTimeSpinning }

// DeltaTime returns the impulse delta that just left the flank.
func (f *Flywheel) DeltaTime() float64 { return f.deltaTimeBeforeFlank }

// AngularPosition returns the absolute angular position in radians before the flank.
func (f *Flywheel) AngularPosition() float64 {
	return float64(f.totalNumberOfImpulses) * f.angularDisplacementPerImpulse
}

// AngularVelocity returns rad/s before the flank, never negative.
func (f *Flywheel) AngularVelocity() float64 {
	if !f.maintainMetrics || !f.flankFilled() {
		return 0
	}
	return math.Max(0, f.angularVelocityBeforeFlank)
}

// AngularAcceleration returns rad/s² before the flank.
func (f *Flywheel) AngularAcceleration() float64 {
	if !f.maintainMetrics || !f.flankFilled() {
		return 0
	}
	return f.angularAccelerationBeforeFlank
}

// Torque returns N·m before the flank.
func (f *Flywheel) Torque() float64 {
	if !f.maintainMetrics || !f.flankFilled() {
		return 0
	}
	return f.torqueBeforeFlank
}

// DragFactor returns the current drag factor in SI units (N·m·s²).
func (f *Flywheel) DragFactor() float64 { return f.drag.WeighedAverage() }

// DragFactorIsReliable reports whether the drag factor is based on
// measurements. Machines with a fixed drag factor are always reliable.
func (f *Flywheel) DragFactorIsReliable() bool {
	if f.settings.AutoAdjustDragFactor {
		return f.drag.Reliable()
	}
	return true
}

// IsDwelling reports a flywheel spinning down below the minimum speed.
func (f *Flywheel) IsDwelling() bool {
	return f.angularVelocityAtBeginFlank < f.minimumAngularVelocity &&
		f.deltaTimeSlopeAbove(f.minimumRecoverySlope.WeighedAverage())
}

// IsAboveMinimumSpeed reports whether the start of the flank is fast enough
// and not sensor noise.
func (f *Flywheel) IsAboveMinimumSpeed() bool {
	first := f.deltaTime.Y().AtSeriesBegin()
	return f.angularVelocityAtBeginFlank >= f.minimumAngularVelocity &&
		first <= f.settings.MaximumTimeBetweenImpulses &&
		first > f.settings.MinimumTimeBetweenImpulses
}

// IsUnpowered reports a deceleration consistent with drag alone. While an
// auto-adjusting drag factor is unreliable, torque is ignored so the first
// recovery can still be detected.
func (f *Flywheel) IsUnpowered() bool {
	return f.deltaTimeSlopeAbove(f.minimumRecoverySlope.WeighedAverage()) &&
		(f.torqueAtBeginFlank < f.minimumTorqueBeforeStroke ||
			(f.settings.AutoAdjustDragFactor && !f.drag.Reliable()))
}

// IsPowered reports an accelerating flywheel with force on the handle.
func (f *Flywheel) IsPowered() bool {
	return f.deltaTimeSlopeBelow(f.minimumRecoverySlope.WeighedAverage()) &&
		f.torqueAtBeginFlank >= f.minimumTorqueBeforeStroke
}

func (f *Flywheel) deltaTimeSlopeBelow(threshold float64) bool {
	// an accelerating flywheel is not linear, so the fit is not checked
	return f.deltaTime.Slope() < threshold && f.flankFilled()
}

func (f *Flywheel) deltaTimeSlopeAbove(threshold float64) bool {
	return f.deltaTime.Slope() >= threshold &&
		f.deltaTime.GoodnessOfFit() >= f.settings.MinimumStrokeQuality &&
		f.flankFilled()
}

// Reset clears all state and reverts the drag factor to its configured value.
func (f *Flywheel) Reset() {
	f.maintainMetrics = false
	f.inRecoveryPhase = false
	f.drag.Reset()
	f.recoveryDeltaTime.Reset()
	f.deltaTime.Reset()
	f.angularDistance.Reset()
	f.currentDt.Reset()
	f.totalNumberOfImpulses = 0
	f.totalTimeSpinning = 0
	f.currentCleanTime = 0
	f.currentRawTime = 0
	f.currentAngularDistance = 0
	f.angularVelocityMatrix = nil
	f.angularAccelerationMatrix = nil
	f.deltaTime.Push(0, 0)
	f.angularDistance.Push(0, 0)
	f.deltaTimeBeforeFlank = 0
	f.angularVelocityAtBeginFlank = 0
	f.angularVelocityBeforeFlank = 0
	f.angularAccelerationAtBeginFlank = 0
	f.angularAccelerationBeforeFlank = 0
	f.torqueAtBeginFlank = 0
	f.torqueBeforeFlank = 0
}
