// Package units converts and formats rowing quantities for display.
package units

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Speed unit names accepted by the API.
const (
	MPS  = "mps"
	KMPH = "kmph"
	MPH  = "mph"
	// SPM is seconds per 500 m, the rower's pace.
	SPM = "pace500"
)

var ValidUnits = []string{MPS, KMPH, MPH, SPM}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	return slices.Contains(ValidUnits, unit)
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed in m/s to the target unit. Unknown units and
// a pace at standstill return the input unchanged and zero respectively.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case KMPH:
		return speedMPS * 3.6
	case MPH:
		return speedMPS * 2.2369362920544
	case SPM:
		pace, ok := Pace(speedMPS)
		if !ok {
			return 0
		}
		return pace
	default:
		return speedMPS
	}
}

// Pace returns the seconds needed for 500 m at the given speed.
func Pace(speedMPS float64) (float64, bool) {
	if speedMPS <= 0 || math.IsNaN(speedMPS) || math.IsInf(speedMPS, 0) {
		return 0, false
	}
	return 500 / speedMPS, true
}

// FormatPace renders a pace in seconds per 500 m as m:ss.t, e.g. "2:05.3".
// Paces beyond an hour are shown as "--:--".
func FormatPace(seconds float64) string {
	if seconds <= 0 || seconds >= 3600 || math.IsNaN(seconds) {
		return "--:--"
	}
	tenths := int(math.Round(seconds * 10))
	return fmt.Sprintf("%d:%02d.%d", tenths/600, tenths/10%60, tenths%10)
}

// FormatDuration renders elapsed seconds as h:mm:ss, or m:ss when under an
// hour.
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	s := int(math.Round(seconds))
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
