package regression

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/erg.report/internal/monitoring"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 7))
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	monitoring.SetZapLogger(zap.New(core))
	t.Cleanup(func() { monitoring.SetZapLogger(nil) })
	return logs
}

func TestTSLinear_NoiseFreeLine(t *testing.T) {
	t.Parallel()

	l := NewTSLinear(5)
	for i := 0; i < 10; i++ {
		x := float64(i)
		l.Push(x, 2*x+1)
	}

	require.Equal(t, 5, l.Len())
	assert.Equal(t, 2.0, l.Slope())
	assert.Equal(t, 1.0, l.Intercept())
	assert.Equal(t, 1.0, l.GoodnessOfFit())
	assert.Equal(t, 21.0, l.ProjectX(10))
	assert.Equal(t, 10.0, l.ProjectY(21))
	assert.Equal(t, 5.0, l.X().AtSeriesBegin())
}

func TestTSLinear_MatchesGonumOnLine(t *testing.T) {
	t.Parallel()

	xs := []float64{0.3, 1.1, 2.5, 3.2, 4.9, 6.0}
	ys := make([]float64, len(xs))
	l := NewTSLinear(0)
	for i, x := range xs {
		ys[i] = -0.75*x + 4
		l.Push(x, ys[i])
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	assert.InDelta(t, beta, l.Slope(), 1e-12)
	assert.InDelta(t, alpha, l.Intercept(), 1e-12)
	assert.InDelta(t, 1.0, l.GoodnessOfFit(), 1e-12)
}

func TestTSLinear_RobustToOutlier(t *testing.T) {
	t.Parallel()

	l := NewTSLinear(0)
	for i := 0; i < 7; i++ {
		y := 3 * float64(i)
		if i == 3 {
			y = 100
		}
		l.Push(float64(i), y)
	}

	assert.Equal(t, 3.0, l.Slope())
	assert.Equal(t, 0.0, l.Intercept())
	assert.Less(t, l.GoodnessOfFit(), 1.0)
}

func TestTSLinear_EvictionMatchesFreshWindow(t *testing.T) {
	t.Parallel()

	rng := newTestRand()
	const capacity = 8
	bounded := NewTSLinear(capacity)
	var xs, ys []float64

	x := 0.0
	for i := 0; i < 60; i++ {
		x += 0.5 + rng.Float64()
		y := 0.2*x + rng.NormFloat64()
		bounded.Push(x, y)
		xs = append(xs, x)
		ys = append(ys, y)

		start := max(0, len(xs)-capacity)
		fresh := NewTSLinear(0)
		for j := start; j < len(xs); j++ {
			fresh.Push(xs[j], ys[j])
		}
		require.Equal(t, fresh.Len(), bounded.Len())
		assert.Equal(t, fresh.Slope(), bounded.Slope(), "push %d", i)
		assert.Equal(t, fresh.Intercept(), bounded.Intercept(), "push %d", i)
	}
}

func TestTSLinear_Degenerate(t *testing.T) {
	logs := observeLogs(t)

	l := NewTSLinear(4)
	assert.Zero(t, l.Slope())
	assert.Zero(t, l.GoodnessOfFit())
	assert.Zero(t, l.ProjectX(3))

	l.Push(1, 5)
	assert.Zero(t, l.Slope())

	// equal x values contribute a zero slope
	l.Push(1, 7)
	assert.Zero(t, l.Slope())
	assert.Equal(t, 1, logs.FilterMessageSnippet("division by zero").Len())

	// a flat line has SST == 0
	flat := NewTSLinear(0)
	flat.Push(0, 2)
	flat.Push(1, 2)
	assert.Equal(t, 1.0, flat.GoodnessOfFit())
	assert.Zero(t, flat.ProjectY(4))
	assert.Equal(t, 1, logs.FilterMessageSnippet("y-projection").Len())
}

func TestTSLinear_Reset(t *testing.T) {
	t.Parallel()

	l := NewTSLinear(3)
	l.Push(0, 0)
	l.Push(1, 1)
	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.Zero(t, l.Slope())
	assert.Zero(t, l.Intercept())

	l.Push(0, 4)
	l.Push(2, 0)
	assert.Equal(t, -2.0, l.Slope())
	assert.Equal(t, 4.0, l.Intercept())
}

func TestRSquared(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sse, sst float64
		want     float64
	}{
		{"perfect fit", 0, 5, 1},
		{"worse than mean", 6, 5, 0},
		{"partial", 1, 4, 0.75},
		{"undefined", 0.5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rSquared(tt.sse, tt.sst))
		})
	}
}

func TestTSQuadratic_NoiseFreeParabola(t *testing.T) {
	t.Parallel()

	q := NewTSQuadratic(5)
	for i := 0; i < 8; i++ {
		x := float64(i)
		q.Push(x, 0.5*x*x-2*x+3)
	}

	require.Equal(t, 5, q.Len())
	assert.InDelta(t, 0.5, q.A(), 1e-12)
	assert.InDelta(t, -2.0, q.B(), 1e-12)
	assert.InDelta(t, 3.0, q.C(), 1e-12)
	assert.InDelta(t, 1.0, q.GoodnessOfFit(), 1e-12)

	// oldest buffered x is 3
	assert.InDelta(t, 1.0, q.FirstDerivativeAt(0), 1e-12)
	assert.InDelta(t, 5.0, q.FirstDerivativeAt(4), 1e-12)
	assert.InDelta(t, 1.0, q.SecondDerivativeAt(2), 1e-12)
	assert.InDelta(t, 8.0, q.Slope(10), 1e-12)
	assert.InDelta(t, 33.0, q.ProjectX(10), 1e-9)
	assert.Zero(t, q.FirstDerivativeAt(5))
}

func TestTSQuadratic_FewerThanThreePoints(t *testing.T) {
	t.Parallel()

	q := NewTSQuadratic(6)
	q.Push(0, 1)
	q.Push(1, 4)

	assert.Zero(t, q.A())
	assert.Zero(t, q.B())
	assert.Zero(t, q.C())
	assert.Zero(t, q.FirstDerivativeAt(0))
	assert.Zero(t, q.SecondDerivativeAt(0))
	assert.Zero(t, q.GoodnessOfFit())
	assert.Zero(t, q.ProjectX(2))
}

func TestTSQuadratic_EvictionMatchesFreshWindow(t *testing.T) {
	t.Parallel()

	rng := newTestRand()
	const capacity = 6
	bounded := NewTSQuadratic(capacity)
	var xs, ys []float64

	x := 0.0
	for i := 0; i < 40; i++ {
		x += 0.01 + 0.02*rng.Float64()
		y := 40*x*x + 3*x + 0.01*rng.NormFloat64()
		bounded.Push(x, y)
		xs = append(xs, x)
		ys = append(ys, y)

		start := max(0, len(xs)-capacity)
		fresh := NewTSQuadratic(0)
		for j := start; j < len(xs); j++ {
			fresh.Push(xs[j], ys[j])
		}
		assert.Equal(t, fresh.A(), bounded.A(), "push %d", i)
		assert.Equal(t, fresh.B(), bounded.B(), "push %d", i)
		assert.Equal(t, fresh.GoodnessOfFit(), bounded.GoodnessOfFit(), "push %d", i)
	}
}

func TestTSQuadratic_DuplicateX(t *testing.T) {
	logs := observeLogs(t)

	q := NewTSQuadratic(0)
	q.Push(1, 1)
	q.Push(1, 2)
	q.Push(2, 3)
	assert.Zero(t, q.A())
	assert.Equal(t, 1, logs.FilterMessageSnippet("division by zero").Len())
}

func TestOLS_Line(t *testing.T) {
	t.Parallel()

	o := NewOLS(0)
	for i := 1; i <= 5; i++ {
		x := float64(i)
		o.Push(x, 2*x+1)
	}
	assert.InDelta(t, 2.0, o.Slope(), 1e-12)
	assert.InDelta(t, 1.0, o.Intercept(), 1e-12)
	assert.InDelta(t, 1.0, o.GoodnessOfFit(), 1e-9)
	assert.InDelta(t, 21.0, o.ProjectX(10), 1e-9)
	assert.InDelta(t, 10.0, o.ProjectY(21), 1e-9)
}

func TestOLS_MatchesGonumOnBoundedWindow(t *testing.T) {
	t.Parallel()

	rng := newTestRand()
	const capacity = 10
	o := NewOLS(capacity)
	var xs, ys []float64
	for i := 1; i <= 50; i++ {
		x := float64(i) + rng.Float64()
		y := 1.7*x - 4 + 3*rng.NormFloat64()
		o.Push(x, y)
		xs = append(xs, x)
		ys = append(ys, y)
	}

	wx, wy := xs[len(xs)-capacity:], ys[len(ys)-capacity:]
	alpha, beta := stat.LinearRegression(wx, wy, nil, false)
	r2 := stat.RSquared(wx, wy, nil, alpha, beta)

	assert.Equal(t, capacity, o.Len())
	assert.InDelta(t, beta, o.Slope(), 1e-6)
	assert.InDelta(t, alpha, o.Intercept(), 1e-5)
	assert.InDelta(t, r2, o.GoodnessOfFit(), 1e-6)
}

func TestOLS_Guards(t *testing.T) {
	logs := observeLogs(t)

	o := NewOLS(0)
	o.Push(1, 1)
	assert.Zero(t, o.Slope())
	assert.Zero(t, o.GoodnessOfFit())
	assert.Zero(t, o.ProjectX(3))
	assert.Zero(t, o.ProjectY(3))
	assert.Equal(t, 1, logs.FilterMessageSnippet("y-projection").Len())

	// identical x values would divide by zero
	o.Push(1, 5)
	assert.Zero(t, o.Slope())

	o.Reset()
	o.Push(1, 2)
	o.Push(2, 2)
	assert.Zero(t, o.Slope())
	assert.Zero(t, o.GoodnessOfFit())
}
