// Package rower turns flywheel kinematics into rowing strokes.
//
// A Rower runs the Drive/Recovery state machine on top of a flywheel model and
// translates angular quantities into linear ones (distance, velocity, power)
// and handle quantities (force, velocity, power) of the completed phases.
package rower

import (
	"math"

	"github.com/banshee-data/erg.report/internal/config"
	"github.com/banshee-data/erg.report/internal/flywheel"
	"github.com/banshee-data/erg.report/internal/monitoring"
)

// Rower holds the stroke state machine and the metrics of the last phases.
type Rower struct {
	settings       config.RowerSettings
	flywheel       *flywheel.Flywheel
	sprocketRadius float64 // metres

	state      StrokeState
	strokeIdx  int
	driveStart float64

	driveStartAngle      float64
	driveAngle           float64
	driveDuration        float64
	driveLinearDistance  float64
	driveLength          float64
	driveCompleted       bool
	recoveryStart        float64
	recoveryStartAngle   float64
	recoveryAngle        float64
	recoveryDuration     float64
	recoveryLinearDist   float64
	recoveryCompleted    bool
	cycleDuration        float64
	cycleLinearVelocity  float64
	cyclePower           float64
	totalLinearDistance  float64
	preliminaryTotalDist float64

	handleForce    curve
	handleVelocity curve
	handlePower    curve
}

// New returns a rower waiting for its first drive.
func New(settings config.RowerSettings) *Rower {
	r := &Rower{
		settings:       settings,
		flywheel:       flywheel.New(settings),
		sprocketRadius: settings.SprocketRadius / 100,
	}
	r.Reset()
	return r
}

// HandleRotationImpulse feeds one impulse delta in seconds to the flywheel and
// advances the stroke state machine.
func (r *Rower) HandleRotationImpulse(dt float64) {
	r.flywheel.PushValue(dt)

	fw := r.flywheel
	s := r.settings
	switch {
	case r.state == Stopped:
	case r.state == WaitingForDrive && fw.IsPowered() && fw.IsAboveMinimumSpeed():
		// the previous state may have come from a reset, so resume metrics here
		fw.MaintainStateAndMetrics()
		r.state = Drive
		r.startDrivePhase()
	case r.state == WaitingForDrive:
	case r.state == Drive && fw.SpinningTime()-r.driveStart >= s.MinimumDriveTime && fw.IsUnpowered():
		r.endDrivePhase()
		r.state = Recovery
		r.startRecoveryPhase()
	case r.state == Drive:
		r.updateDrivePhase()
	case r.state == Recovery && fw.SpinningTime()-r.driveStart >= s.MaximumStrokeTimeBeforePause && fw.IsDwelling():
		// too slow for valid impulses and the last drive is long gone
		r.endRecoveryPhase()
		fw.MaintainStateOnly()
		r.state = WaitingForDrive
	case r.state == Recovery && fw.SpinningTime()-r.recoveryStart >= s.MinimumRecoveryTime && fw.IsPowered():
		r.endRecoveryPhase()
		r.state = Drive
		r.startDrivePhase()
	case r.state == Recovery:
		r.updateRecoveryPhase()
	default:
		monitoring.Errorf("time: %.4f sec, state %s is not captured by the stroke state machine", fw.SpinningTime(), r.state)
	}
}

func (r *Rower) startDrivePhase() {
	r.strokeIdx++
	r.driveStart = r.flywheel.SpinningTime()
	r.driveStartAngle = r.flywheel.AngularPosition()
	r.handleForce.reset()
	r.handleVelocity.reset()
	r.handlePower.reset()
	r.sampleHandle()
}

func (r *Rower) updateDrivePhase() {
	fw := r.flywheel
	r.driveAngle = fw.AngularPosition() - r.driveStartAngle
	r.driveLinearDistance = r.linearDistance(r.driveAngle)
	r.preliminaryTotalDist = r.totalLinearDistance + r.driveLinearDistance
	r.sampleHandle()
}

func (r *Rower) sampleHandle() {
	fw := r.flywheel
	dt := fw.DeltaTime()
	r.handleForce.push(dt, fw.Torque()/r.sprocketRadius)
	r.handleVelocity.push(dt, fw.AngularVelocity()*r.sprocketRadius)
	r.handlePower.push(dt, fw.Torque()*fw.AngularVelocity())
}

func (r *Rower) endDrivePhase() {
	fw := r.flywheel
	// only guaranteed credible once the first full cycle has been seen
	r.driveDuration = fw.SpinningTime() - r.driveStart
	r.driveAngle = fw.AngularPosition() - r.driveStartAngle
	r.driveLength = r.driveAngle * r.sprocketRadius
	r.driveLinearDistance = r.linearDistance(r.driveAngle)
	r.driveCompleted = true
	r.totalLinearDistance += r.driveLinearDistance
	r.preliminaryTotalDist = r.totalLinearDistance
	if r.recoveryCompleted {
		r.updateCycle()
	}
}

func (r *Rower) startRecoveryPhase() {
	r.recoveryStart = r.flywheel.SpinningTime()
	r.recoveryStartAngle = r.flywheel.AngularPosition()
	r.flywheel.MarkRecoveryPhaseStart()
}

func (r *Rower) updateRecoveryPhase() {
	r.recoveryAngle = r.flywheel.AngularPosition() - r.recoveryStartAngle
	r.recoveryLinearDist = r.linearDistance(r.recoveryAngle)
	r.preliminaryTotalDist = r.totalLinearDistance + r.recoveryLinearDist
}

func (r *Rower) endRecoveryPhase() {
	fw := r.flywheel
	// recalibrate first: the linear metrics of this cycle use the new drag factor
	fw.MarkRecoveryPhaseCompleted()
	r.recoveryDuration = fw.SpinningTime() - r.recoveryStart
	r.recoveryAngle = fw.AngularPosition() - r.recoveryStartAngle
	r.recoveryLinearDist = r.linearDistance(r.recoveryAngle)
	r.recoveryCompleted = true
	r.totalLinearDistance += r.recoveryLinearDist
	r.preliminaryTotalDist = r.totalLinearDistance

	r.updateCycle()
}

// updateCycle recomputes the cycle from the last completed drive and recovery.
func (r *Rower) updateCycle() {
	s := r.settings
	if r.driveDuration >= s.MinimumDriveTime && r.recoveryDuration >= s.MinimumRecoveryTime {
		r.cycleDuration = r.driveDuration + r.recoveryDuration
	} else {
		monitoring.Debugf("time: %.4f sec, cycle duration not plausible: drive %.4f sec, recovery %.4f sec, keeping %.4f sec",
			r.flywheel.SpinningTime(), r.driveDuration, r.recoveryDuration, r.cycleDuration)
	}
	r.cycleLinearVelocity = r.linearVelocity(r.driveAngle+r.recoveryAngle, r.cycleDuration)
	r.cyclePower = r.power()
}

func (r *Rower) linearRatio() float64 {
	return math.Cbrt(r.flywheel.DragFactor() / r.settings.MagicConstant)
}

func (r *Rower) linearDistance(angle float64) float64 {
	if angle < 0 {
		monitoring.Errorf("time: %.4f sec, linear distance: angular displacement %.4f rad is not credible", r.flywheel.SpinningTime(), angle)
		return 0
	}
	return r.linearRatio() * angle
}

// linearVelocity is the average over the cycle, not the peak speed.
func (r *Rower) linearVelocity(angle, duration float64) float64 {
	if angle <= 0 || duration <= 0 {
		monitoring.Errorf("time: %.4f sec, linear velocity: angular displacement %.4f rad, duration %.4f sec", r.flywheel.SpinningTime(), angle, duration)
		return r.cycleLinearVelocity
	}
	return r.linearRatio() * angle / duration
}

func (r *Rower) power() float64 {
	s := r.settings
	if r.driveDuration < s.MinimumDriveTime || r.cycleDuration < s.MinimumDriveTime+s.MinimumRecoveryTime {
		monitoring.Errorf("time: %.4f sec, cycle power: drive %.4f sec, cycle %.4f sec", r.flywheel.SpinningTime(), r.driveDuration, r.cycleDuration)
		return r.cyclePower
	}
	return r.flywheel.DragFactor() * math.Pow((r.driveAngle+r.recoveryAngle)/r.cycleDuration, 3)
}

// StrokeState returns the current phase.
func (r *Rower) StrokeState() StrokeState { return r.state }

// TotalNumberOfStrokes counts the drives started since the last reset.
func (r *Rower) TotalNumberOfStrokes() int { return r.strokeIdx + 1 }

// TotalMovingTimeSinceStart returns the seconds the flywheel was in use.
func (r *Rower) TotalMovingTimeSinceStart() float64 { return r.flywheel.SpinningTime() }

// DriveLastStartTime returns the moving time at which the last drive began.
func (r *Rower) DriveLastStartTime() float64 { return r.driveStart }

// TotalLinearDistanceSinceStart includes the running phase.
func (r *Rower) TotalLinearDistanceSinceStart() float64 {
	return math.Max(r.preliminaryTotalDist, r.totalLinearDistance)
}

func (r *Rower) cycleKnown() bool { return r.driveCompleted && r.recoveryCompleted }

func (r *Rower) CycleDuration() (float64, bool) { return r.cycleDuration, r.cycleKnown() }

func (r *Rower) CycleLinearDistance() (float64, bool) {
	return r.driveLinearDistance + r.recoveryLinearDist, r.cycleKnown()
}

func (r *Rower) CycleLinearVelocity() (float64, bool) { return r.cycleLinearVelocity, r.cycleKnown() }

func (r *Rower) CyclePower() (float64, bool) { return r.cyclePower, r.cycleKnown() }

func (r *Rower) DriveDuration() (float64, bool) { return r.driveDuration, r.driveCompleted }

func (r *Rower) DriveLinearDistance() (float64, bool) { return r.driveLinearDistance, r.driveCompleted }

// DriveLength is the handle travel of the last drive in metres.
func (r *Rower) DriveLength() (float64, bool) { return r.driveLength, r.driveCompleted }

// DriveAverageHandleForce is the time-weighted mean force in Newtons.
func (r *Rower) DriveAverageHandleForce() (float64, bool) {
	return r.handleForce.average(), r.driveCompleted
}

func (r *Rower) DrivePeakHandleForce() (float64, bool) {
	return r.handleForce.peak(), r.driveCompleted
}

// DriveHandleForceCurve returns a copy of the force samples of the drive.
func (r *Rower) DriveHandleForceCurve() []float64 { return r.handleForce.points() }

func (r *Rower) DriveHandleVelocityCurve() []float64 { return r.handleVelocity.points() }

func (r *Rower) DriveHandlePowerCurve() []float64 { return r.handlePower.points() }

func (r *Rower) RecoveryDuration() (float64, bool) { return r.recoveryDuration, r.recoveryCompleted }

// RecoveryDragFactor returns the drag factor ×10⁶ once it can be trusted.
func (r *Rower) RecoveryDragFactor() (float64, bool) {
	if !r.flywheel.DragFactorIsReliable() {
		return 0, false
	}
	return r.flywheel.DragFactor() * 1e6, true
}

// InstantHandlePower returns τ·ω in Watts during a drive, else 0.
func (r *Rower) InstantHandlePower() float64 {
	if r.state != Drive {
		return 0
	}
	return r.flywheel.Torque() * r.flywheel.AngularVelocity()
}

// AllowMovement leaves the Stopped state.
func (r *Rower) AllowMovement() {
	if r.state == Stopped {
		r.state = WaitingForDrive
	}
}

// PauseMoving keeps tracking the flywheel but stops producing metrics.
func (r *Rower) PauseMoving() {
	r.flywheel.MaintainStateOnly()
	r.state = WaitingForDrive
}

// StopMoving ignores all further impulses until AllowMovement or Reset.
func (r *Rower) StopMoving() {
	r.flywheel.MaintainStateOnly()
	r.state = Stopped
}

// Reset clears all strokes and reverts the flywheel to its configured state.
func (r *Rower) Reset() {
	r.flywheel.Reset()
	r.state = WaitingForDrive
	r.strokeIdx = -1
	r.driveStart = 0
	r.driveStartAngle = 0
	r.driveAngle = 0
	r.driveDuration = 0
	r.driveLinearDistance = 0
	r.driveLength = 0
	r.driveCompleted = false
	r.recoveryStart = 0
	r.recoveryStartAngle = 0
	r.recoveryAngle = 0
	r.recoveryDuration = 0
	r.recoveryLinearDist = 0
	r.recoveryCompleted = false
	r.cycleDuration = 0
	r.cycleLinearVelocity = 0
	r.cyclePower = 0
	r.totalLinearDistance = 0
	r.preliminaryTotalDist = 0
	r.handleForce.reset()
	r.handleVelocity.reset()
	r.handlePower.reset()
}
