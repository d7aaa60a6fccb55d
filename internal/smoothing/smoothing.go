// Package smoothing contains the small filters that sit between the raw
// per-impulse estimates and the values shown to the rower: a moving-average
// stream filter, a weighted average with a fallback, and a force curve aligner.
package smoothing

import (
	"slices"

	"github.com/banshee-data/erg.report/internal/regression"
)

// StreamFilter keeps the last window raw values and reports their moving
// average as the clean value.
type StreamFilter struct {
	values       *regression.Series
	defaultValue float64
	raw          float64
}

// NewStreamFilter returns a filter over window values. Clean returns
// defaultValue until the first value is pushed.
func NewStreamFilter(window int, defaultValue float64) *StreamFilter {
	if window < 1 {
		window = 1
	}
	return &StreamFilter{
		values:       regression.NewSeries(window),
		defaultValue: defaultValue,
	}
}

// Push adds a raw value.
func (f *StreamFilter) Push(v float64) {
	f.raw = v
	f.values.Push(v)
}

// Raw returns the most recently pushed value, or 0 when empty.
func (f *StreamFilter) Raw() float64 {
	if f.values.Len() == 0 {
		return 0
	}
	return f.raw
}

// Clean returns the moving average, or the default when empty.
func (f *StreamFilter) Clean() float64 {
	if f.values.Len() == 0 {
		return f.defaultValue
	}
	return f.values.Average()
}

// Reliable reports whether Clean is based on measured values.
func (f *StreamFilter) Reliable() bool { return f.values.Len() > 0 }

// Len returns the number of values in the window.
func (f *StreamFilter) Len() int { return f.values.Len() }

// Reset empties the filter.
func (f *StreamFilter) Reset() {
	f.values.Reset()
	f.raw = 0
}

// WeighedSeries is a bounded series of (value, weight) pairs.
type WeighedSeries struct {
	values       *regression.Series
	weights      *regression.Series
	weighted     *regression.Series
	defaultValue float64
}

// NewWeighedSeries returns a series over at most capacity pairs that reports
// defaultValue while it has no usable weight.
func NewWeighedSeries(capacity int, defaultValue float64) *WeighedSeries {
	if capacity < 1 {
		capacity = 1
	}
	return &WeighedSeries{
		values:       regression.NewSeries(capacity),
		weights:      regression.NewSeries(capacity),
		weighted:     regression.NewSeries(capacity),
		defaultValue: defaultValue,
	}
}

// Push adds value with the given weight.
func (w *WeighedSeries) Push(value, weight float64) {
	w.values.Push(value)
	w.weights.Push(weight)
	w.weighted.Push(value * weight)
}

// WeighedAverage returns Σ(v·w)/Σw, or the default when empty or when every
// weight is zero.
func (w *WeighedSeries) WeighedAverage() float64 {
	if w.values.Len() == 0 || w.weights.Sum() == 0 {
		return w.defaultValue
	}
	return w.weighted.Sum() / w.weights.Sum()
}

// Average returns the unweighted mean, or the default when empty.
func (w *WeighedSeries) Average() float64 {
	if w.values.Len() == 0 {
		return w.defaultValue
	}
	return w.values.Average()
}

// Reliable reports whether the series holds at least one measured pair.
func (w *WeighedSeries) Reliable() bool { return w.values.Len() > 0 }

// Len returns the number of stored pairs.
func (w *WeighedSeries) Len() int { return w.values.Len() }

// Reset drops every pair so WeighedAverage reverts to the default.
func (w *WeighedSeries) Reset() {
	w.values.Reset()
	w.weights.Reset()
	w.weighted.Reset()
}

// CurveAligner stores the last completed curve with its leading values below
// a threshold trimmed, so successive curves start at the same point.
type CurveAligner struct {
	minimumY float64
	last     []float64
}

// NewCurveAligner returns an aligner that trims leading values below minimumY.
func NewCurveAligner(minimumY float64) *CurveAligner {
	return &CurveAligner{minimumY: minimumY}
}

// Push aligns and stores a completed curve. The input is copied.
func (c *CurveAligner) Push(curve []float64) {
	start := 0
	for start < len(curve) && curve[start] < c.minimumY {
		start++
	}
	c.last = slices.Clone(curve[start:])
}

// LastCompleteCurve returns a copy of the most recent aligned curve.
func (c *CurveAligner) LastCompleteCurve() []float64 {
	if len(c.last) == 0 {
		return []float64{}
	}
	return slices.Clone(c.last)
}

// Reset forgets the stored curve.
func (c *CurveAligner) Reset() { c.last = nil }
