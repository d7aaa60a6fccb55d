package statistics

import (
	"slices"
	"time"

	"github.com/banshee-data/erg.report/internal/rower"
)

// Context flags what happened on the impulse or command that produced a
// Metrics record. The session flags are set by the session manager.
type Context struct {
	IsMoving        bool `json:"is_moving"`
	IsDriveStart    bool `json:"is_drive_start"`
	IsRecoveryStart bool `json:"is_recovery_start"`

	IsSessionStart  bool `json:"is_session_start"`
	IsIntervalStart bool `json:"is_interval_start"`
	IsSplitEnd      bool `json:"is_split_end"`
	IsPauseStart    bool `json:"is_pause_start"`
	IsPauseEnd      bool `json:"is_pause_end"`
	IsSessionStop   bool `json:"is_session_stop"`
}

// ResetSession clears the session flags, keeping the stroke flags.
func (c *Context) ResetSession() {
	c.IsSessionStart = false
	c.IsIntervalStart = false
	c.IsSplitEnd = false
	c.IsPauseStart = false
	c.IsPauseEnd = false
	c.IsSessionStop = false
}

// Metrics is the record published for every processed impulse. Values that
// are not trustworthy at that moment are nil and omitted from JSON.
type Metrics struct {
	Context     Context           `json:"metrics_context"`
	StrokeState rower.StrokeState `json:"stroke_state"`

	TotalMovingTime        float64 `json:"total_moving_time"`
	TotalNumberOfStrokes   int     `json:"total_number_of_strokes"`
	TotalLinearDistance    float64 `json:"total_linear_distance"`
	StrokeCalories         float64 `json:"stroke_calories"`
	StrokeWork             float64 `json:"stroke_work"`
	TotalCalories          float64 `json:"total_calories"`
	TotalCaloriesPerMinute float64 `json:"total_calories_per_minute"`
	TotalCaloriesPerHour   float64 `json:"total_calories_per_hour"`

	CycleDuration       *float64 `json:"cycle_duration,omitempty"`
	CycleStrokeRate     *float64 `json:"cycle_stroke_rate,omitempty"`
	CycleDistance       *float64 `json:"cycle_distance,omitempty"`
	CycleLinearVelocity *float64 `json:"cycle_linear_velocity,omitempty"`
	CyclePace           *float64 `json:"cycle_pace,omitempty"`
	CyclePower          *float64 `json:"cycle_power,omitempty"`

	DriveLastStartTime       float64   `json:"drive_last_start_time"`
	DriveDuration            *float64  `json:"drive_duration,omitempty"`
	DriveLength              *float64  `json:"drive_length,omitempty"`
	DriveDistance            *float64  `json:"drive_distance,omitempty"`
	DriveAverageHandleForce  *float64  `json:"drive_average_handle_force,omitempty"`
	DrivePeakHandleForce     *float64  `json:"drive_peak_handle_force,omitempty"`
	DriveHandleForceCurve    []float64 `json:"drive_handle_force_curve"`
	DriveHandleVelocityCurve []float64 `json:"drive_handle_velocity_curve"`
	DriveHandlePowerCurve    []float64 `json:"drive_handle_power_curve"`

	RecoveryDuration *float64 `json:"recovery_duration,omitempty"`
	DragFactor       *float64 `json:"drag_factor,omitempty"`
	InstantPower     float64  `json:"instant_power"`

	// Filled in by the session manager.
	Modified                       bool      `json:"-"`
	Timestamp                      time.Time `json:"timestamp"`
	SessionType                    string    `json:"session_type,omitempty"`
	SessionStatus                  string    `json:"session_status,omitempty"`
	WorkoutStepNumber              int       `json:"workout_step_number"`
	PauseCountdownTime             float64   `json:"pause_countdown_time"`
	IntervalMovingTime             *float64  `json:"interval_moving_time,omitempty"`
	IntervalTargetTime             *float64  `json:"interval_target_time,omitempty"`
	IntervalLinearDistance         *float64  `json:"interval_linear_distance,omitempty"`
	IntervalTargetDistance         *float64  `json:"interval_target_distance,omitempty"`
	IntervalAndPauseMovingTime     *float64  `json:"interval_and_pause_moving_time,omitempty"`
	IntervalAndPauseLinearDistance *float64  `json:"interval_and_pause_linear_distance,omitempty"`
	SplitNumber                    int       `json:"split_number"`
	SplitLinearDistance            *float64  `json:"split_linear_distance,omitempty"`
	CycleProjectedEndTime          *float64  `json:"cycle_projected_end_time,omitempty"`
	CycleProjectedEndLinearDist    *float64  `json:"cycle_projected_end_linear_distance,omitempty"`
}

// Clone returns a copy that shares no mutable state with m. Optional fields
// are never written through, so their pointers are shared.
func (m Metrics) Clone() Metrics {
	m.DriveHandleForceCurve = slices.Clone(m.DriveHandleForceCurve)
	m.DriveHandleVelocityCurve = slices.Clone(m.DriveHandleVelocityCurve)
	m.DriveHandlePowerCurve = slices.Clone(m.DriveHandlePowerCurve)
	return m
}

// Float returns a pointer to v, for optional metric fields.
func Float(v float64) *float64 { return &v }

// Value dereferences an optional field, reporting whether it was set.
func Value(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
