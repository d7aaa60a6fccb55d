package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeries_Bounded(t *testing.T) {
	t.Parallel()

	s := NewSeries(3)
	for i := 1; i <= 5; i++ {
		s.Push(float64(i))
	}

	require.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{3, 4, 5}, s.Values())
	assert.Equal(t, 3.0, s.AtSeriesBegin())
	assert.Equal(t, 5.0, s.AtSeriesEnd())
	assert.Equal(t, 12.0, s.Sum())
	assert.Equal(t, 4.0, s.Average())
	assert.Equal(t, 3.0, s.Minimum())
	assert.Equal(t, 5.0, s.Maximum())
	assert.Equal(t, 4.0, s.Median())
}

func TestSeries_Unbounded(t *testing.T) {
	t.Parallel()

	s := NewSeries(0)
	for i := 0; i < 100; i++ {
		s.Push(float64(i))
	}
	assert.Equal(t, 100, s.Len())
	assert.Equal(t, 0.0, s.AtSeriesBegin())
	assert.Equal(t, 99.0, s.AtSeriesEnd())
	assert.Equal(t, 4950.0, s.Sum())
	assert.Equal(t, 49.5, s.Median())
}

func TestSeries_MinMaxTrackEviction(t *testing.T) {
	t.Parallel()

	s := NewSeries(3)
	steps := []struct {
		push     float64
		min, max float64
	}{
		{5, 5, 5},
		{1, 1, 5},
		{4, 1, 5},
		{2, 1, 4},
		{3, 2, 4},
		{3, 2, 3},
		{9, 3, 9},
	}
	for _, step := range steps {
		s.Push(step.push)
		assert.Equal(t, step.min, s.Minimum(), "min after pushing %v", step.push)
		assert.Equal(t, step.max, s.Maximum(), "max after pushing %v", step.push)
	}
}

func TestSeries_Empty(t *testing.T) {
	t.Parallel()

	s := NewSeries(4)
	assert.Equal(t, 0, s.Len())
	assert.Zero(t, s.AtSeriesBegin())
	assert.Zero(t, s.AtSeriesEnd())
	assert.Zero(t, s.Average())
	assert.Zero(t, s.Minimum())
	assert.Zero(t, s.Maximum())
	assert.Zero(t, s.Median())
	assert.Zero(t, s.Get(7))
	assert.Zero(t, s.Get(-1))
}

func TestSeries_CountsAndReset(t *testing.T) {
	t.Parallel()

	s := NewSeries(5)
	for _, v := range []float64{1, 5, 2, 8, 3} {
		s.Push(v)
	}
	assert.Equal(t, 2, s.NumberOfValuesAbove(3))
	assert.Equal(t, 2, s.NumberOfValuesBelow(3))

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.Zero(t, s.Sum())

	s.Push(7)
	assert.Equal(t, []float64{7}, s.Values())
	assert.Equal(t, 7.0, s.Minimum())
	assert.Equal(t, 7.0, s.Maximum())
}

func TestMedianTree(t *testing.T) {
	t.Parallel()

	m := newMedianTree()
	assert.Zero(t, m.Median())

	m.Push(1, 10)
	m.Push(1, 30)
	m.Push(2, 20)
	m.Push(3, 20)
	require.Equal(t, 4, m.Len())
	assert.Equal(t, 20.0, m.Median())

	m.Remove(1)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 20.0, m.Median())

	m.Push(4, 40)
	m.Push(4, 50)
	assert.Equal(t, 30.0, m.Median())

	m.Remove(99)
	assert.Equal(t, 4, m.Len())

	m.Reset()
	assert.Equal(t, 0, m.Len())
}

func TestMedianTree_MatchesSortedMedian(t *testing.T) {
	t.Parallel()

	rng := newTestRand()
	m := newMedianTree()
	live := map[float64][]float64{}

	for round := 0; round < 500; round++ {
		label := float64(rng.IntN(40))
		if rng.IntN(4) == 0 {
			m.Remove(label)
			delete(live, label)
		} else {
			v := float64(rng.IntN(20))
			m.Push(label, v)
			live[label] = append(live[label], v)
		}

		var all []float64
		for _, vs := range live {
			all = append(all, vs...)
		}
		require.Equal(t, len(all), m.Len())
		assert.Equal(t, median(all), m.Median(), "round %d", round)
	}
}
