package regression

import (
	"github.com/banshee-data/erg.report/internal/monitoring"
)

// TSLinear is a bounded (x, y) window with a Theil-Sen linear regressor.
//
// The slope is the median of all pairwise slopes and is maintained on every
// Push. Intercept and goodness of fit are computed on demand, since most
// callers only need the slope.
type TSLinear struct {
	x      *Series
	y      *Series
	slopes *medianTree

	slope     float64
	intercept cached[float64]
	fit       cached[float64]
}

// NewTSLinear creates a regressor over at most capacity points. A capacity
// of 0 keeps every point.
func NewTSLinear(capacity int) *TSLinear {
	return &TSLinear{
		x:      NewSeries(capacity),
		y:      NewSeries(capacity),
		slopes: newMedianTree(),
	}
}

// Push adds the point (x, y), evicting the oldest point at capacity.
func (l *TSLinear) Push(x, y float64) {
	if c := l.x.Capacity(); c > 0 && l.x.Len() >= c {
		// slopes are labelled with the x of the older point of each pair
		l.slopes.Remove(l.x.AtSeriesBegin())
	}

	l.x.Push(x)
	l.y.Push(y)

	last := l.x.Len() - 1
	for i := 0; i < last; i++ {
		l.slopes.Push(l.x.Get(i), l.pairSlope(i, last))
	}

	if l.x.Len() > 1 {
		l.slope = l.slopes.Median()
	} else {
		l.slope = 0
	}
	l.intercept.invalidate()
	l.fit.invalidate()
}

func (l *TSLinear) pairSlope(i, j int) float64 {
	xi, xj := l.x.Get(i), l.x.Get(j)
	if i == j || xi == xj {
		monitoring.Errorf("theil-sen linear: division by zero prevented (x=%v)", xi)
		return 0
	}
	return (l.y.Get(j) - l.y.Get(i)) / (xj - xi)
}

// Slope returns the median pairwise slope.
func (l *TSLinear) Slope() float64 { return l.slope }

// Intercept returns the median of y_i - slope*x_i.
func (l *TSLinear) Intercept() float64 {
	return l.intercept.get(func() float64 {
		n := l.x.Len()
		if n < 2 {
			return 0
		}
		residuals := make([]float64, n)
		for i := range residuals {
			residuals[i] = l.y.Get(i) - l.slope*l.x.Get(i)
		}
		return median(residuals)
	})
}

// GoodnessOfFit returns R² of the fitted line against the buffered points.
func (l *TSLinear) GoodnessOfFit() float64 {
	return l.fit.get(func() float64 {
		n := l.x.Len()
		if n < 2 {
			return 0
		}
		mean := l.y.Average()
		var sse, sst float64
		for i := 0; i < n; i++ {
			yi := l.y.Get(i)
			e := yi - l.ProjectX(l.x.Get(i))
			d := yi - mean
			sse += e * e
			sst += d * d
		}
		return rSquared(sse, sst)
	})
}

// rSquared maps the error sums onto [0, 1]. A fit worse than the mean line
// scores 0, and R² is undefined (0) when all y values are equal.
func rSquared(sse, sst float64) float64 {
	switch {
	case sse == 0:
		return 1
	case sse > sst:
		return 0
	case sst != 0:
		return 1 - sse/sst
	default:
		return 0
	}
}

// ProjectX returns the y on the fitted line at x.
func (l *TSLinear) ProjectX(x float64) float64 {
	if l.x.Len() < 2 {
		return 0
	}
	return l.slope*x + l.Intercept()
}

// ProjectY returns the x on the fitted line where it reaches y.
func (l *TSLinear) ProjectY(y float64) float64 {
	if l.x.Len() < 2 || l.slope == 0 {
		monitoring.Errorf("theil-sen linear: attempted a y-projection while slope was zero")
		return 0
	}
	return (y - l.Intercept()) / l.slope
}

// Len returns the number of buffered points.
func (l *TSLinear) Len() int { return l.x.Len() }

// X exposes the buffered x values.
func (l *TSLinear) X() *Series { return l.x }

// Y exposes the buffered y values.
func (l *TSLinear) Y() *Series { return l.y }

// Reset clears every point and estimate.
func (l *TSLinear) Reset() {
	l.x.Reset()
	l.y.Reset()
	l.slopes.Reset()
	l.slope = 0
	l.intercept.invalidate()
	l.fit.invalidate()
}
