package regression

import (
	"math"

	"github.com/banshee-data/erg.report/internal/monitoring"
)

// OLS is an ordinary least squares regressor over running sums, so every
// estimate is available in O(1) after a Push.
type OLS struct {
	x, xx, y, yy, xy *Series

	slope     float64
	intercept float64
	fit       float64
}

// NewOLS creates a regressor over at most capacity points. A capacity of 0
// keeps every point until Reset.
func NewOLS(capacity int) *OLS {
	return &OLS{
		x:  NewSeries(capacity),
		xx: NewSeries(capacity),
		y:  NewSeries(capacity),
		yy: NewSeries(capacity),
		xy: NewSeries(capacity),
	}
}

// Push adds the point (x, y). NaN coordinates are ignored.
func (o *OLS) Push(x, y float64) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return
	}
	o.x.Push(x)
	o.xx.Push(x * x)
	o.y.Push(y)
	o.yy.Push(y * y)
	o.xy.Push(x * y)

	n := float64(o.x.Len())
	sx, sy := o.x.Sum(), o.y.Sum()
	denominator := n*o.xx.Sum() - sx*sx
	if o.x.Len() < 2 || sx <= 0 || denominator == 0 {
		o.slope, o.intercept, o.fit = 0, 0, 0
		return
	}

	o.slope = (n*o.xy.Sum() - sx*sy) / denominator
	o.intercept = (sy - o.slope*sx) / n
	sse := o.yy.Sum() - o.intercept*sy - o.slope*o.xy.Sum()
	sst := o.yy.Sum() - sy*sy/n
	if sst == 0 {
		o.fit = 0
		return
	}
	o.fit = 1 - sse/sst
}

// Slope returns the fitted slope.
func (o *OLS) Slope() float64 { return o.slope }

// Intercept returns the fitted intercept.
func (o *OLS) Intercept() float64 { return o.intercept }

// GoodnessOfFit returns R², or 0 with fewer than two points.
func (o *OLS) GoodnessOfFit() float64 {
	if o.x.Len() < 2 {
		return 0
	}
	return o.fit
}

// ProjectX returns the y on the fitted line at x.
func (o *OLS) ProjectX(x float64) float64 {
	if o.x.Len() < 2 {
		return 0
	}
	return o.slope*x + o.intercept
}

// ProjectY returns the x on the fitted line where it reaches y.
func (o *OLS) ProjectY(y float64) float64 {
	if o.x.Len() < 2 || o.slope == 0 {
		monitoring.Errorf("ols: attempted a y-projection while slope was zero")
		return 0
	}
	return (y - o.intercept) / o.slope
}

// Len returns the number of buffered points.
func (o *OLS) Len() int { return o.x.Len() }

// X exposes the buffered x values.
func (o *OLS) X() *Series { return o.x }

// Y exposes the buffered y values.
func (o *OLS) Y() *Series { return o.y }

// Reset clears every point and estimate.
func (o *OLS) Reset() {
	o.x.Reset()
	o.xx.Reset()
	o.y.Reset()
	o.yy.Reset()
	o.xy.Reset()
	o.slope, o.intercept, o.fit = 0, 0, 0
}
