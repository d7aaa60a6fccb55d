// Package ergsim simulates an air-braked rowing flywheel and produces the
// impulse timings a sensor on that flywheel would report.
//
// The flywheel obeys I·dω/dt = τ(t) - k·ω². Powered phases are integrated
// with fourth order Runge-Kutta; unpowered phases use the closed-form
// solution, so coasting impulses are exact.
package ergsim

import (
	"math"
)

// DefaultStep is the Runge-Kutta integration step in seconds.
const DefaultStep = 1e-5

// Flywheel is the simulated machine state.
type Flywheel struct {
	Inertia float64 // kg·m²
	Drag    float64 // N·m·s²
	Theta   float64 // radians between impulses
	Step    float64 // integration step for powered phases

	omega        float64
	partial      float64 // angle travelled since the last impulse
	sinceImpulse float64 // time elapsed since the last impulse
	elapsed      float64
}

// New returns a stationary flywheel with impulses impulses per revolution.
// drag is in SI units (the conventional drag factor divided by 10⁶).
func New(inertia, drag float64, impulses int) *Flywheel {
	return &Flywheel{
		Inertia: inertia,
		Drag:    drag,
		Theta:   2 * math.Pi / float64(impulses),
		Step:    DefaultStep,
	}
}

// SetAngularVelocity sets ω in rad/s, e.g. to start from a spinning wheel.
func (f *Flywheel) SetAngularVelocity(omega float64) { f.omega = omega }

// AngularVelocity returns ω in rad/s.
func (f *Flywheel) AngularVelocity() float64 { return f.omega }

// Elapsed returns the simulated time in seconds.
func (f *Flywheel) Elapsed() float64 { return f.elapsed }

// Torque is a handle torque profile over a phase, t in seconds since the
// phase started.
type Torque func(t float64) float64

// Constant returns a torque profile of fixed magnitude.
func Constant(tau float64) Torque {
	return func(float64) float64 { return tau }
}

// HalfSine returns a torque that rises and falls as a half sine over
// duration seconds, peaking at peak N·m.
func HalfSine(peak, duration float64) Torque {
	return func(t float64) float64 {
		if t < 0 || t > duration {
			return 0
		}
		return peak * math.Sin(math.Pi*t/duration)
	}
}

// Drive applies torque for duration seconds and returns the impulse deltas
// that completed during the phase.
func (f *Flywheel) Drive(duration float64, torque Torque) []float64 {
	var deltas []float64
	h := f.Step
	if h <= 0 {
		h = DefaultStep
	}

	accel := func(t, omega float64) float64 {
		return (torque(t) - f.Drag*omega*omega) / f.Inertia
	}

	for t := 0.0; t < duration; {
		step := math.Min(h, duration-t)

		w := f.omega
		k1w, k1a := accel(t, w), w
		k2w, k2a := accel(t+step/2, w+step/2*k1w), w+step/2*k1w
		k3w, k3a := accel(t+step/2, w+step/2*k2w), w+step/2*k2w
		k4w, k4a := accel(t+step, w+step*k3w), w+step*k3w

		newOmega := w + step/6*(k1w+2*k2w+2*k3w+k4w)
		dAngle := step / 6 * (k1a + 2*k2a + 2*k3a + k4a)
		if newOmega < 0 {
			newOmega = 0
		}

		before := f.partial
		f.partial += dAngle
		if f.partial >= f.Theta && dAngle > 0 {
			frac := (f.Theta - before) / dAngle
			deltas = append(deltas, f.sinceImpulse+frac*step)
			f.partial -= f.Theta
			f.sinceImpulse = (1 - frac) * step
		} else {
			f.sinceImpulse += step
		}

		f.omega = newOmega
		t += step
		f.elapsed += step
	}
	return deltas
}

// Coast lets the flywheel spin down for duration seconds without torque and
// returns the impulse deltas that completed during the phase.
func (f *Flywheel) Coast(duration float64) []float64 {
	var deltas []float64
	c := f.Drag / f.Inertia
	remaining := duration

	for remaining > 0 && f.omega > 0 {
		need := f.Theta - f.partial
		// time to travel need radians from ω: (e^{c·need} - 1) / (c·ω)
		t := math.Expm1(c*need) / (c * f.omega)
		if t <= remaining {
			deltas = append(deltas, f.sinceImpulse+t)
			f.omega *= math.Exp(-c * need)
			f.partial = 0
			f.sinceImpulse = 0
			remaining -= t
			f.elapsed += t
			continue
		}

		f.partial += math.Log1p(c*f.omega*remaining) / c
		f.omega /= 1 + c*f.omega*remaining
		f.sinceImpulse += remaining
		f.elapsed += remaining
		remaining = 0
	}
	if remaining > 0 {
		f.elapsed += remaining
		f.sinceImpulse += remaining
	}
	return deltas
}

// Stroke describes one Drive+Recovery cycle.
type Stroke struct {
	DriveTime    float64 // seconds
	RecoveryTime float64 // seconds
	PeakTorque   float64 // N·m, half sine over the drive
}

// Row simulates the stroke and returns its impulse deltas.
func (f *Flywheel) Row(s Stroke) []float64 {
	deltas := f.Drive(s.DriveTime, HalfSine(s.PeakTorque, s.DriveTime))
	return append(deltas, f.Coast(s.RecoveryTime)...)
}

// RecoveryDragFactor is the drag factor (SI) a Theil-Sen fit of coasting
// impulse deltas over time will measure. Coasting deltas grow geometrically,
// which makes Δt linear in elapsed time with slope 1 - e^{-kθ/I}.
func (f *Flywheel) RecoveryDragFactor() float64 {
	return -math.Expm1(-f.Drag*f.Theta/f.Inertia) * f.Inertia / f.Theta
}
