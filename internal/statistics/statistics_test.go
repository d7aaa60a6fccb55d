package statistics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/erg.report/internal/config"
	"github.com/banshee-data/erg.report/internal/ergsim"
	"github.com/banshee-data/erg.report/internal/rower"
)

var steady = ergsim.Stroke{DriveTime: 0.8, RecoveryTime: 1.6, PeakTorque: 5.7}

type fixture struct {
	agg  *Aggregator
	sim  *ergsim.Flywheel
	last Metrics

	driveStarts    int
	recoveryStarts int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, ok := config.Profile("concept2_rowerg")
	require.True(t, ok)
	sim := ergsim.New(s.FlywheelInertia, 100e-6, s.NumOfImpulsesPerRevolution)
	sim.SetAngularVelocity(120)
	f := &fixture{agg: New(s, 4), sim: sim}
	f.feed(sim.Coast(0.3))
	return f
}

func (f *fixture) feed(deltas []float64) {
	for _, dt := range deltas {
		f.last = f.agg.HandleRotationImpulse(dt)
		if f.last.Context.IsDriveStart {
			f.driveStarts++
		}
		if f.last.Context.IsRecoveryStart {
			f.recoveryStarts++
		}
	}
}

func (f *fixture) row(n int) {
	for i := 0; i < n; i++ {
		f.feed(f.sim.Row(steady))
	}
}

// halfDrive stops in the middle of a drive, where every metric is on display.
func (f *fixture) halfDrive() {
	f.feed(f.sim.Drive(steady.DriveTime/2, ergsim.HalfSine(steady.PeakTorque, steady.DriveTime)))
}

func assertAllCycleMetricsNil(t *testing.T, m Metrics) {
	t.Helper()
	for name, p := range map[string]*float64{
		"CycleDuration":       m.CycleDuration,
		"CycleStrokeRate":     m.CycleStrokeRate,
		"CycleDistance":       m.CycleDistance,
		"CycleLinearVelocity": m.CycleLinearVelocity,
		"CyclePace":           m.CyclePace,
		"CyclePower":          m.CyclePower,
		"DriveDuration":       m.DriveDuration,
		"DriveLength":         m.DriveLength,
		"DriveDistance":       m.DriveDistance,
		"DriveAverageForce":   m.DriveAverageHandleForce,
		"DrivePeakForce":      m.DrivePeakHandleForce,
		"RecoveryDuration":    m.RecoveryDuration,
	} {
		assert.Nil(t, p, name)
	}
}

func TestInitialMetrics(t *testing.T) {
	s, _ := config.Profile("concept2_rowerg")
	m := New(s, 4).Metrics()

	assert.Equal(t, rower.WaitingForDrive, m.StrokeState)
	assert.False(t, m.Context.IsMoving)
	assert.Zero(t, m.TotalMovingTime)
	assert.Zero(t, m.TotalNumberOfStrokes)
	assert.Zero(t, m.TotalLinearDistance)
	assert.Zero(t, m.TotalCalories)
	assert.Zero(t, m.TotalCaloriesPerMinute)
	assert.Zero(t, m.InstantPower)
	assert.Nil(t, m.DragFactor)
	assertAllCycleMetricsNil(t, m)
	assert.NotNil(t, m.DriveHandleForceCurve)
	assert.Empty(t, m.DriveHandleForceCurve)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "cycle_pace")
	assert.Contains(t, string(b), `"drive_handle_force_curve":[]`)
	assert.Contains(t, string(b), `"stroke_state":"WaitingForDrive"`)
}

func TestSteadyRowing(t *testing.T) {
	f := newFixture(t)
	f.row(7)
	f.halfDrive()
	m := f.last

	assert.Equal(t, 8, f.driveStarts)
	assert.Equal(t, 7, f.recoveryStarts)
	assert.True(t, m.Context.IsMoving)
	assert.Equal(t, rower.Drive, m.StrokeState)
	assert.Equal(t, 8, m.TotalNumberOfStrokes)
	assert.Positive(t, m.InstantPower)

	cycle, ok := Value(m.CycleDuration)
	require.True(t, ok)
	assert.InDelta(t, 2.4, cycle, 0.05)
	rate, ok := Value(m.CycleStrokeRate)
	require.True(t, ok)
	assert.InDelta(t, 60/cycle, rate, 1e-9)

	velocity, ok := Value(m.CycleLinearVelocity)
	require.True(t, ok)
	pace, ok := Value(m.CyclePace)
	require.True(t, ok)
	assert.InDelta(t, 500/velocity, pace, 1e-9)

	power, ok := Value(m.CyclePower)
	require.True(t, ok)
	assert.Positive(t, power)
	_, ok = Value(m.CycleDistance)
	assert.True(t, ok)

	drive, ok := Value(m.DriveDuration)
	require.True(t, ok)
	recovery, ok := Value(m.RecoveryDuration)
	require.True(t, ok)
	assert.InDelta(t, cycle, drive+recovery, 0.05)

	df, ok := Value(m.DragFactor)
	require.True(t, ok)
	assert.InEpsilon(t, f.sim.RecoveryDragFactor()*1e6, df, 1e-3)

	require.NotNil(t, m.DriveAverageHandleForce)
	require.NotNil(t, m.DrivePeakHandleForce)
	require.NotEmpty(t, m.DriveHandleForceCurve)
	assert.NotEmpty(t, m.DriveHandlePowerCurve)
	assert.GreaterOrEqual(t, m.DriveHandleForceCurve[0], f.agg.Settings().MinimumForceBeforeStroke)

	// calories per minute is the calorie slope, which follows from the power
	assert.Positive(t, m.TotalCalories)
	assert.InEpsilon(t, (4*power+350)*60/4200, m.TotalCaloriesPerMinute, 0.1)
	assert.InEpsilon(t, m.TotalCaloriesPerMinute*60, m.TotalCaloriesPerHour, 1e-9)
	assert.InEpsilon(t, power*cycle, m.StrokeWork, 0.05)
}

func TestCycleMetricsNeedACompletedCycle(t *testing.T) {
	f := newFixture(t)
	f.halfDrive()
	m := f.last

	assert.True(t, m.Context.IsMoving)
	assert.Zero(t, m.TotalNumberOfStrokes)
	assertAllCycleMetricsNil(t, m)
	assert.Empty(t, m.DriveHandleForceCurve)
}

func TestPauseTraining(t *testing.T) {
	f := newFixture(t)
	f.row(5)
	f.halfDrive()
	require.NotNil(t, f.last.CyclePower)

	f.agg.PauseTraining()
	m := f.agg.Metrics()
	assert.False(t, m.Context.IsMoving)
	assert.Equal(t, rower.WaitingForDrive, m.StrokeState)
	assertAllCycleMetricsNil(t, m)
	assert.Positive(t, m.TotalLinearDistance, "totals survive a pause")

	assert.Zero(t, f.agg.cycleDuration.Len()+f.agg.cyclePower.Len())

	// the next stroke resumes
	f.feed(f.sim.Coast(steady.RecoveryTime))
	drives := f.driveStarts
	f.row(1)
	assert.Equal(t, drives+1, f.driveStarts)
	assert.True(t, f.last.Context.IsMoving)
}

func TestStopTraining(t *testing.T) {
	f := newFixture(t)
	f.row(4)
	f.halfDrive()
	moving := f.last.TotalMovingTime

	f.agg.StopTraining()
	f.row(2)
	m := f.last
	assert.Equal(t, rower.Stopped, m.StrokeState)
	assert.False(t, m.Context.IsMoving)
	assert.Zero(t, m.InstantPower)
	assertAllCycleMetricsNil(t, m)
	assert.Equal(t, moving, m.TotalMovingTime)

	f.agg.AllowStartOrResumeTraining()
	f.row(1)
	assert.Greater(t, f.last.TotalMovingTime, moving)
}

func TestDwellingEndsMovement(t *testing.T) {
	f := newFixture(t)
	f.row(3)
	f.feed(f.sim.Coast(12))

	m := f.last
	assert.Equal(t, rower.WaitingForDrive, m.StrokeState)
	assert.False(t, m.Context.IsMoving)
	assertAllCycleMetricsNil(t, m)
}

func TestResetTraining(t *testing.T) {
	f := newFixture(t)
	f.row(5)
	f.halfDrive()
	require.NotNil(t, f.last.DragFactor)

	f.agg.ResetTraining()
	m := f.agg.Metrics()
	assert.Equal(t, rower.WaitingForDrive, m.StrokeState)
	assert.Zero(t, m.TotalMovingTime)
	assert.Zero(t, m.TotalLinearDistance)
	assert.Zero(t, m.TotalNumberOfStrokes)
	assert.Zero(t, m.TotalCalories)
	assert.Nil(t, m.DragFactor)
	assertAllCycleMetricsNil(t, m)

	// rowing resumes without an explicit start
	f.row(1)
	assert.True(t, f.last.Context.IsMoving)
}

func TestMetricsClone(t *testing.T) {
	m := Metrics{DriveHandleForceCurve: []float64{1, 2, 3}}
	c := m.Clone()
	c.DriveHandleForceCurve[0] = 42
	assert.Equal(t, 1.0, m.DriveHandleForceCurve[0])

	ctx := Context{IsMoving: true, IsDriveStart: true, IsSessionStart: true, IsPauseEnd: true}
	ctx.ResetSession()
	assert.Equal(t, Context{IsMoving: true, IsDriveStart: true}, ctx)
}

func referenceSettings() config.RowerSettings {
	return config.RowerSettings{
		NumOfImpulsesPerRevolution:    6,
		SprocketRadius:                1.4,
		MaximumStrokeTimeBeforePause:  0.3,
		DragFactor:                    110,
		AutoAdjustDragFactor:          true,
		MinimumDragQuality:            0.95,
		DragFactorSmoothing:           3,
		MinimumTimeBetweenImpulses:    0.005,
		MaximumTimeBetweenImpulses:    0.017,
		FlankLength:                   12,
		Smoothing:                     1,
		MinimumStrokeQuality:          0.36,
		MinimumForceBeforeStroke:      20,
		MinimumRecoverySlope:          0.00070,
		AutoAdjustRecoverySlope:       false,
		AutoAdjustRecoverySlopeMargin: 0.04,
		MinimumDriveTime:              0.04,
		MinimumRecoveryTime:           0.09,
		FlywheelInertia:               0.10138,
		MagicConstant:                 2.8,
	}
}

func assertMetric(t *testing.T, name string, want float64, got *float64) {
	t.Helper()
	if want == 0 {
		assert.Nil(t, got, name)
		return
	}
	if assert.NotNil(t, got, name) {
		assert.InDelta(t, want, *got, 1e-9, name)
	}
}

func TestThreeIdenticalStrokes(t *testing.T) {
	const drag = 283.12720365097886
	// the reference cycles are longer than MaximumStrokeTimeBeforePause, so
	// no cycle metric is ever shown; drive and recovery metrics average the
	// last two phases
	checkpoints := []struct {
		name        string
		deltas      []float64
		state       rower.StrokeState
		movingTime  float64
		distance    float64
		strokes     int
		drive       float64
		driveDist   float64
		driveLength float64
		recovery    float64
		drag        float64
	}{
		{
			name: "first drive", deltas: ergsim.ReferenceDrive, state: rower.Drive,
			movingTime: 0.077918634, distance: 0.2491943602992768,
		},
		{
			name: "first recovery", deltas: ergsim.ReferenceRecovery, state: rower.Recovery,
			movingTime: 0.23894732900000007, distance: 0.7831822752262985,
			driveDist: 0.46278952627008546, driveLength: 0.19058995431778075,
		},
		{
			name: "second drive", deltas: ergsim.ReferenceDrive, state: rower.Drive,
			movingTime: 0.44915539800000004, distance: 1.828822466846578, strokes: 2,
			drive: 0.143485717, driveDist: 0.46278952627008546, driveLength: 0.19058995431778075,
			recovery: 0.20540926600000003, drag: drag,
		},
		{
			name: "second recovery", deltas: ergsim.ReferenceRecovery, state: rower.Recovery,
			movingTime: 0.6101840930000001, distance: 2.5606258278697, strokes: 2,
			drive: 0.19167255400000002, driveDist: 0.7680505612186648, driveLength: 0.25656340004316636,
			recovery: 0.20540926600000003, drag: drag,
		},
		{
			name: "third drive", deltas: ergsim.ReferenceDrive, state: rower.Drive,
			movingTime: 0.8203921620000004, distance: 3.4875767518323193, strokes: 3,
			drive: 0.19167255400000002, driveDist: 0.7680505612186648, driveLength: 0.25656340004316636,
			recovery: 0.1517668715000001, drag: drag,
		},
		{
			name: "third recovery", deltas: ergsim.ReferenceRecovery, state: rower.Recovery,
			movingTime: 0.9814208570000005, distance: 4.219380112855441, strokes: 3,
			drive: 0.2564858390000001, driveDist: 1.1464919322695564, driveLength: 0.34452799434368064,
			recovery: 0.1517668715000001, drag: drag,
		},
		{
			// not moving, so only the drag factor is on display
			name: "dwelling", deltas: ergsim.ReferenceDwell, state: rower.WaitingForDrive,
			movingTime: 1.1137102920000004, distance: 4.804822801673938, strokes: 3,
			drag: drag,
		},
	}

	agg := New(referenceSettings(), 2)
	var m Metrics
	for _, cp := range checkpoints {
		for _, dt := range cp.deltas {
			m = agg.HandleRotationImpulse(dt)
		}
		t.Run(cp.name, func(t *testing.T) {
			assert.Equal(t, cp.state, m.StrokeState)
			assert.InDelta(t, cp.movingTime, m.TotalMovingTime, 1e-9)
			assert.InDelta(t, cp.distance, m.TotalLinearDistance, 1e-9)
			assert.Equal(t, cp.strokes, m.TotalNumberOfStrokes)
			assertMetric(t, "cycle duration", 0, m.CycleDuration)
			assertMetric(t, "cycle distance", 0, m.CycleDistance)
			assertMetric(t, "cycle velocity", 0, m.CycleLinearVelocity)
			assertMetric(t, "cycle power", 0, m.CyclePower)
			assertMetric(t, "drive duration", cp.drive, m.DriveDuration)
			assertMetric(t, "drive distance", cp.driveDist, m.DriveDistance)
			assertMetric(t, "drive length", cp.driveLength, m.DriveLength)
			assertMetric(t, "recovery duration", cp.recovery, m.RecoveryDuration)
			assertMetric(t, "drag factor", cp.drag, m.DragFactor)
		})
	}
}
