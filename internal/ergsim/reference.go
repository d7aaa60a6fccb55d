package ergsim

// Reference impulse deltas of one validated Concept2 RowErg stroke, sampled
// with 6 impulses per revolution. Rowing ReferenceDrive then ReferenceRecovery
// repeatedly, followed by ReferenceDwell, exercises every stroke transition
// with a known outcome.
var (
	ReferenceDrive = []float64{
		0.011221636, 0.011175504, 0.01116456, 0.011130263, 0.011082613,
		0.011081761, 0.011062297, 0.011051853, 0.010973313, 0.010919756,
		0.01086431, 0.010800864, 0.010956987, 0.010653396, 0.010648619,
		0.010536818, 0.010526151, 0.010511225, 0.010386684,
	}
	ReferenceRecovery = []float64{
		0.010769, 0.010707554, 0.010722165, 0.01089567, 0.010917504,
		0.010997969, 0.011004655, 0.011013618, 0.011058193, 0.010807149,
		0.0110626, 0.011090787, 0.011099509, 0.011131862, 0.011209919,
	}
	// ReferenceDwell is a flywheel slowing down with nobody at the handle.
	ReferenceDwell = []float64{
		0.020769, 0.020707554, 0.020722165, 0.02089567, 0.020917504,
		0.020997969, 0.021004655, 0.021013618, 0.021058193, 0.020807149,
		0.0210626, 0.021090787, 0.021099509, 0.021131862, 0.021209919,
	}
)
