package regression

import (
	"github.com/banshee-data/erg.report/internal/monitoring"
)

// TSQuadratic is a bounded (x, y) window with a Theil-Sen quadratic regressor
// fitting y = a·x² + b·x + c.
//
// a is the median of the closed-form leading coefficient over every triple of
// points and is maintained on Push. b and c come from a Theil-Sen linear fit of
// the residual y - a·x², which is only rebuilt when b, c or the fit quality is
// requested.
type TSQuadratic struct {
	x      *Series
	y      *Series
	coeffA *medianTree

	residual      *TSLinear
	residualReady bool

	a   float64
	fit cached[float64]
}

// NewTSQuadratic creates a regressor over at most capacity points. A capacity
// of 0 keeps every point.
func NewTSQuadratic(capacity int) *TSQuadratic {
	return &TSQuadratic{
		x:        NewSeries(capacity),
		y:        NewSeries(capacity),
		coeffA:   newMedianTree(),
		residual: NewTSLinear(capacity),
	}
}

// Push adds the point (x, y), evicting the oldest point at capacity.
func (q *TSQuadratic) Push(x, y float64) {
	if c := q.x.Capacity(); c > 0 && q.x.Len() >= c {
		// every triple is labelled with the x of its oldest point
		q.coeffA.Remove(q.x.AtSeriesBegin())
	}

	q.x.Push(x)
	q.y.Push(y)

	n := q.x.Len()
	q.residual.Reset()
	q.residualReady = false
	q.fit.invalidate()

	if n < 3 {
		q.a = 0
		return
	}
	for i := 0; i < n-2; i++ {
		for j := i + 1; j < n-1; j++ {
			q.coeffA.Push(q.x.Get(i), q.tripleA(i, j, n-1))
		}
	}
	q.a = q.coeffA.Median()
}

func (q *TSQuadratic) tripleA(i, j, k int) float64 {
	x1, x2, x3 := q.x.Get(i), q.x.Get(j), q.x.Get(k)
	if x1 == x2 || x1 == x3 || x2 == x3 {
		monitoring.Errorf("theil-sen quadratic: division by zero prevented (x=%v, %v, %v)", x1, x2, x3)
		return 0
	}
	y1, y2, y3 := q.y.Get(i), q.y.Get(j), q.y.Get(k)
	return (x1*(y3-y2) + y1*(x2-x3) + (x3*y2 - x2*y3)) / ((x1 - x2) * (x1 - x3) * (x2 - x3))
}

func (q *TSQuadratic) fillResidual() {
	if q.residualReady {
		return
	}
	for i := 0; i < q.x.Len(); i++ {
		xi := q.x.Get(i)
		q.residual.Push(xi, q.y.Get(i)-q.a*xi*xi)
	}
	q.residualReady = true
}

// A returns the quadratic coefficient.
func (q *TSQuadratic) A() float64 { return q.a }

// B returns the linear coefficient.
func (q *TSQuadratic) B() float64 {
	if q.x.Len() < 3 {
		return 0
	}
	q.fillResidual()
	return q.residual.Slope()
}

// C returns the constant term.
func (q *TSQuadratic) C() float64 {
	if q.x.Len() < 3 {
		return 0
	}
	q.fillResidual()
	return q.residual.Intercept()
}

// FirstDerivativeAt returns dy/dx at the buffered point i (0 is the oldest).
func (q *TSQuadratic) FirstDerivativeAt(i int) float64 {
	if q.x.Len() < 3 || i < 0 || i >= q.x.Len() {
		return 0
	}
	return 2*q.a*q.x.Get(i) + q.B()
}

// SecondDerivativeAt returns d²y/dx² at the buffered point i.
func (q *TSQuadratic) SecondDerivativeAt(i int) float64 {
	if q.x.Len() < 3 || i < 0 || i >= q.x.Len() {
		return 0
	}
	return 2 * q.a
}

// Slope returns dy/dx at an arbitrary x.
func (q *TSQuadratic) Slope(x float64) float64 {
	if q.x.Len() < 3 {
		return 0
	}
	return 2*q.a*x + q.B()
}

// ProjectX returns the fitted y at x.
func (q *TSQuadratic) ProjectX(x float64) float64 {
	if q.x.Len() < 3 {
		return 0
	}
	return q.a*x*x + q.B()*x + q.C()
}

// GoodnessOfFit returns R² of the fitted parabola against the buffered points.
func (q *TSQuadratic) GoodnessOfFit() float64 {
	return q.fit.get(func() float64 {
		n := q.x.Len()
		if n < 3 {
			return 0
		}
		mean := q.y.Average()
		var sse, sst float64
		for i := 0; i < n; i++ {
			yi := q.y.Get(i)
			e := yi - q.ProjectX(q.x.Get(i))
			d := yi - mean
			sse += e * e
			sst += d * d
		}
		return rSquared(sse, sst)
	})
}

// Len returns the number of buffered points.
func (q *TSQuadratic) Len() int { return q.x.Len() }

// X exposes the buffered x values.
func (q *TSQuadratic) X() *Series { return q.x }

// Y exposes the buffered y values.
func (q *TSQuadratic) Y() *Series { return q.y }

// Reset clears every point and estimate.
func (q *TSQuadratic) Reset() {
	q.x.Reset()
	q.y.Reset()
	q.coeffA.Reset()
	q.residual.Reset()
	q.residualReady = false
	q.a = 0
	q.fit.invalidate()
}
