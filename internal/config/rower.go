package config

import (
	"fmt"
	"sort"
)

// RowerSettings is the flat, validated machine description consumed by the
// rowing engine. Times are in seconds, SprocketRadius in cm, DragFactor in
// the conventional ×10⁶ unit and FlywheelInertia in kg·m².
type RowerSettings struct {
	NumOfImpulsesPerRevolution    int
	SprocketRadius                float64
	MinimumTimeBetweenImpulses    float64
	MaximumTimeBetweenImpulses    float64
	Smoothing                     int
	FlankLength                   int
	MinimumStrokeQuality          float64
	DragFactor                    float64
	AutoAdjustDragFactor          bool
	MinimumDragQuality            float64
	DragFactorSmoothing           int
	FlywheelInertia               float64
	MinimumForceBeforeStroke      float64
	MinimumRecoverySlope          float64
	AutoAdjustRecoverySlope       bool
	AutoAdjustRecoverySlopeMargin float64
	MinimumDriveTime              float64
	MinimumRecoveryTime           float64
	MaximumStrokeTimeBeforePause  float64
	MagicConstant                 float64
}

// DefaultProfile is used when no profile is configured.
const DefaultProfile = "generic"

var profiles = map[string]RowerSettings{
	"generic": {
		NumOfImpulsesPerRevolution:    1,
		SprocketRadius:                3.0,
		MinimumTimeBetweenImpulses:    0.014,
		MaximumTimeBetweenImpulses:    0.5,
		Smoothing:                     1,
		FlankLength:                   3,
		MinimumStrokeQuality:          0.34,
		DragFactor:                    1500,
		AutoAdjustDragFactor:          false,
		MinimumDragQuality:            0.83,
		DragFactorSmoothing:           5,
		FlywheelInertia:               0.5,
		MinimumForceBeforeStroke:      0,
		MinimumRecoverySlope:          0,
		AutoAdjustRecoverySlope:       false,
		AutoAdjustRecoverySlopeMargin: 0.15,
		MinimumDriveTime:              0.3,
		MinimumRecoveryTime:           0.8,
		MaximumStrokeTimeBeforePause:  6.0,
		MagicConstant:                 2.8,
	},
	"concept2_rowerg": {
		NumOfImpulsesPerRevolution:    6,
		SprocketRadius:                1.4,
		MinimumTimeBetweenImpulses:    0.005,
		MaximumTimeBetweenImpulses:    0.017,
		Smoothing:                     1,
		FlankLength:                   12,
		MinimumStrokeQuality:          0.36,
		DragFactor:                    110,
		AutoAdjustDragFactor:          true,
		MinimumDragQuality:            0.95,
		DragFactorSmoothing:           3,
		FlywheelInertia:               0.10138,
		MinimumForceBeforeStroke:      10,
		MinimumRecoverySlope:          0.00070,
		AutoAdjustRecoverySlope:       true,
		AutoAdjustRecoverySlopeMargin: 0.04,
		MinimumDriveTime:              0.40,
		MinimumRecoveryTime:           0.90,
		MaximumStrokeTimeBeforePause:  6.0,
		MagicConstant:                 2.8,
	},
}

// Profile returns the preset settings for a named machine.
func Profile(name string) (RowerSettings, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames lists the known machine presets.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RowerSettings merges the rower overrides onto the selected profile and
// validates the result.
func (c *Config) RowerSettings() (RowerSettings, error) {
	name := DefaultProfile
	if c.Rower != nil && c.Rower.Profile != nil {
		name = *c.Rower.Profile
	}
	s, ok := Profile(name)
	if !ok {
		return RowerSettings{}, fmt.Errorf("unknown rower profile %q", name)
	}

	if r := c.Rower; r != nil {
		setInt(&s.NumOfImpulsesPerRevolution, r.NumOfImpulsesPerRevolution)
		setFloat(&s.SprocketRadius, r.SprocketRadius)
		setFloat(&s.MinimumTimeBetweenImpulses, r.MinimumTimeBetweenImpulses)
		setFloat(&s.MaximumTimeBetweenImpulses, r.MaximumTimeBetweenImpulses)
		setInt(&s.Smoothing, r.Smoothing)
		setInt(&s.FlankLength, r.FlankLength)
		setFloat(&s.MinimumStrokeQuality, r.MinimumStrokeQuality)
		setFloat(&s.DragFactor, r.DragFactor)
		setBool(&s.AutoAdjustDragFactor, r.AutoAdjustDragFactor)
		setFloat(&s.MinimumDragQuality, r.MinimumDragQuality)
		setInt(&s.DragFactorSmoothing, r.DragFactorSmoothing)
		setFloat(&s.FlywheelInertia, r.FlywheelInertia)
		setFloat(&s.MinimumForceBeforeStroke, r.MinimumForceBeforeStroke)
		setFloat(&s.MinimumRecoverySlope, r.MinimumRecoverySlope)
		setBool(&s.AutoAdjustRecoverySlope, r.AutoAdjustRecoverySlope)
		setFloat(&s.AutoAdjustRecoverySlopeMargin, r.AutoAdjustRecoverySlopeMargin)
		setFloat(&s.MinimumDriveTime, r.MinimumDriveTime)
		setFloat(&s.MinimumRecoveryTime, r.MinimumRecoveryTime)
		setFloat(&s.MaximumStrokeTimeBeforePause, r.MaximumStrokeTimeBeforePause)
		setFloat(&s.MagicConstant, r.MagicConstant)
	}

	if err := s.Validate(); err != nil {
		return RowerSettings{}, err
	}
	return s, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// bound describes an inclusive range check. A nil limit is unbounded.
type bound struct {
	name      string
	value     float64
	min, max  *float64
	allowZero bool
}

func (b bound) check() error {
	switch {
	case b.min != nil && b.value < *b.min:
		return fmt.Errorf("%s should be at least %v, got %v", b.name, *b.min, b.value)
	case b.max != nil && b.value > *b.max:
		return fmt.Errorf("%s can't be above %v, got %v", b.name, *b.max, b.value)
	case !b.allowZero && b.value == 0:
		return fmt.Errorf("%s can't be zero", b.name)
	}
	return nil
}

// Validate range-checks every setting.
func (s RowerSettings) Validate() error {
	bounds := []bound{
		{name: "num_of_impulses_per_revolution", value: float64(s.NumOfImpulsesPerRevolution), min: ptrFloat64(1)},
		{name: "flank_length", value: float64(s.FlankLength), min: ptrFloat64(3)},
		{name: "sprocket_radius", value: s.SprocketRadius, min: ptrFloat64(0), max: ptrFloat64(20)},
		{name: "minimum_time_between_impulses", value: s.MinimumTimeBetweenImpulses, min: ptrFloat64(0), max: ptrFloat64(3)},
		{name: "maximum_time_between_impulses", value: s.MaximumTimeBetweenImpulses, min: ptrFloat64(s.MinimumTimeBetweenImpulses), max: ptrFloat64(3)},
		{name: "smoothing", value: float64(s.Smoothing), min: ptrFloat64(1)},
		{name: "drag_factor", value: s.DragFactor, min: ptrFloat64(1)},
		{name: "drag_factor_smoothing", value: float64(s.DragFactorSmoothing), min: ptrFloat64(1)},
		{name: "minimum_drag_quality", value: s.MinimumDragQuality, min: ptrFloat64(0), max: ptrFloat64(1), allowZero: true},
		{name: "flywheel_inertia", value: s.FlywheelInertia, min: ptrFloat64(0)},
		{name: "minimum_force_before_stroke", value: s.MinimumForceBeforeStroke, min: ptrFloat64(0), max: ptrFloat64(500), allowZero: true},
		{name: "minimum_recovery_slope", value: s.MinimumRecoverySlope, min: ptrFloat64(0), allowZero: true},
		{name: "minimum_stroke_quality", value: s.MinimumStrokeQuality, min: ptrFloat64(0), max: ptrFloat64(1), allowZero: true},
		{name: "auto_adjust_recovery_slope_margin", value: s.AutoAdjustRecoverySlopeMargin, min: ptrFloat64(0), max: ptrFloat64(1), allowZero: true},
		{name: "minimum_drive_time", value: s.MinimumDriveTime, min: ptrFloat64(0)},
		{name: "minimum_recovery_time", value: s.MinimumRecoveryTime, min: ptrFloat64(0)},
		{name: "maximum_stroke_time_before_pause", value: s.MaximumStrokeTimeBeforePause, min: ptrFloat64(3), max: ptrFloat64(60)},
		{name: "magic_constant", value: s.MagicConstant, min: ptrFloat64(0)},
	}
	for _, b := range bounds {
		if err := b.check(); err != nil {
			return err
		}
	}
	if s.AutoAdjustRecoverySlope && !s.AutoAdjustDragFactor {
		return fmt.Errorf("auto_adjust_recovery_slope requires auto_adjust_drag_factor")
	}
	return nil
}
