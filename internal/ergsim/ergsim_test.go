package ergsim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/erg.report/internal/regression"
)

const (
	inertia = 0.10138
	drag    = 100e-6
)

func TestCoast_GeometricDeltas(t *testing.T) {
	t.Parallel()

	f := New(inertia, drag, 6)
	f.SetAngularVelocity(100)
	deltas := f.Coast(1.0)
	require.Greater(t, len(deltas), 50)

	ratio := math.Exp(drag * f.Theta / inertia)
	for i := 1; i < len(deltas); i++ {
		assert.InEpsilon(t, ratio, deltas[i]/deltas[i-1], 1e-12)
	}
	assert.InDelta(t, f.Theta/100*math.Expm1(drag*f.Theta/inertia)/(drag*f.Theta/inertia), deltas[0], 1e-12)
	assert.InDelta(t, 1.0, f.Elapsed(), 1e-12)
}

func TestCoast_TheilSenRecoversDrag(t *testing.T) {
	t.Parallel()

	f := New(inertia, drag, 6)
	f.SetAngularVelocity(120)

	l := regression.NewTSLinear(0)
	total := 0.0
	for _, dt := range f.Coast(1.5) {
		total += dt
		l.Push(total, dt)
	}

	measured := l.Slope() * inertia / f.Theta
	assert.InEpsilon(t, f.RecoveryDragFactor(), measured, 1e-9)
	assert.InEpsilon(t, drag, measured, 1e-3)
	assert.InDelta(t, 1.0, l.GoodnessOfFit(), 1e-9)
}

func TestDrive_ZeroTorqueMatchesCoast(t *testing.T) {
	t.Parallel()

	rk := New(inertia, drag, 6)
	rk.SetAngularVelocity(110)
	exact := New(inertia, drag, 6)
	exact.SetAngularVelocity(110)

	got := rk.Drive(0.5, Constant(0))
	want := exact.Coast(0.5)
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-8, "impulse %d", i)
	}
	assert.InEpsilon(t, exact.AngularVelocity(), rk.AngularVelocity(), 1e-9)
}

func TestDrive_ApproachesTerminalVelocity(t *testing.T) {
	t.Parallel()

	f := New(inertia, drag, 6)
	f.Step = 1e-4
	// ω(t) = ω∞·tanh(t·k·ω∞/I), so 40 s is many time constants
	f.Drive(40, Constant(4))
	assert.InEpsilon(t, math.Sqrt(4/drag), f.AngularVelocity(), 1e-3)
}

func TestRow_SpeedsUpAndSlowsDown(t *testing.T) {
	t.Parallel()

	f := New(inertia, drag, 6)
	f.SetAngularVelocity(80)
	deltas := f.Row(Stroke{DriveTime: 0.8, RecoveryTime: 1.6, PeakTorque: 6})
	require.NotEmpty(t, deltas)

	minIdx := 0
	for i, dt := range deltas {
		if dt < deltas[minIdx] {
			minIdx = i
		}
		assert.Positive(t, dt)
	}
	assert.Greater(t, minIdx, 0, "the drive shortens the deltas")
	assert.Less(t, minIdx, len(deltas)-1, "the recovery lengthens them again")
	assert.InDelta(t, 2.4, f.Elapsed(), 1e-9)
}

func TestHalfSine(t *testing.T) {
	t.Parallel()

	tau := HalfSine(6, 0.8)
	assert.InDelta(t, 6, tau(0.4), 1e-12)
	assert.InDelta(t, 0, tau(0), 1e-12)
	assert.Zero(t, tau(-1))
	assert.Zero(t, tau(0.9))
}
