// Package regression provides the bounded series and robust estimators used to
// derive flywheel kinematics from noisy impulse timing.
package regression

import (
	"slices"
)

// Series is a FIFO buffer of scalars. When capacity is positive the oldest
// value is evicted once the buffer is full; a capacity of zero keeps every
// value until Reset is called.
//
// Sum is maintained incrementally. Minimum and Maximum are maintained with
// monotonic queues so every operation is amortised O(1).
type Series struct {
	capacity int
	values   []float64
	start    int
	n        int
	sum      float64

	// seq is the sequence number of the next pushed value; head is the
	// sequence number of the oldest buffered value.
	seq  uint64
	head uint64
	minQ []indexed
	maxQ []indexed
}

type indexed struct {
	seq   uint64
	value float64
}

// NewSeries creates a series holding at most capacity values. Use a capacity
// of 0 for an unbounded series.
func NewSeries(capacity int) *Series {
	if capacity < 0 {
		capacity = 0
	}
	s := &Series{capacity: capacity}
	if capacity > 0 {
		s.values = make([]float64, capacity)
	}
	return s
}

// Capacity returns the configured capacity (0 means unbounded).
func (s *Series) Capacity() int { return s.capacity }

// Push appends v, evicting the oldest value when the series is full.
func (s *Series) Push(v float64) {
	if s.capacity > 0 && s.n == s.capacity {
		s.evictOldest()
	}

	if s.capacity > 0 {
		s.values[(s.start+s.n)%s.capacity] = v
	} else {
		s.values = append(s.values, v)
	}
	s.n++
	s.sum += v

	for len(s.minQ) > 0 && s.minQ[len(s.minQ)-1].value >= v {
		s.minQ = s.minQ[:len(s.minQ)-1]
	}
	s.minQ = append(s.minQ, indexed{seq: s.seq, value: v})
	for len(s.maxQ) > 0 && s.maxQ[len(s.maxQ)-1].value <= v {
		s.maxQ = s.maxQ[:len(s.maxQ)-1]
	}
	s.maxQ = append(s.maxQ, indexed{seq: s.seq, value: v})
	s.seq++
}

func (s *Series) evictOldest() {
	old := s.values[s.start]
	s.sum -= old
	s.start = (s.start + 1) % s.capacity
	s.n--

	if len(s.minQ) > 0 && s.minQ[0].seq == s.head {
		s.minQ = s.minQ[1:]
	}
	if len(s.maxQ) > 0 && s.maxQ[0].seq == s.head {
		s.maxQ = s.maxQ[1:]
	}
	s.head++
}

// Len returns the number of buffered values.
func (s *Series) Len() int { return s.n }

// Get returns the value at position i, where 0 is the oldest value. Out of
// range positions return 0.
func (s *Series) Get(i int) float64 {
	if i < 0 || i >= s.n {
		return 0
	}
	if s.capacity > 0 {
		return s.values[(s.start+i)%s.capacity]
	}
	return s.values[i]
}

// AtSeriesBegin returns the oldest value, or 0 when empty.
func (s *Series) AtSeriesBegin() float64 { return s.Get(0) }

// AtSeriesEnd returns the most recent value, or 0 when empty.
func (s *Series) AtSeriesEnd() float64 { return s.Get(s.n - 1) }

// Sum returns the running sum of the buffered values.
func (s *Series) Sum() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum
}

// Average returns the arithmetic mean, or 0 when empty.
func (s *Series) Average() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum / float64(s.n)
}

// Minimum returns the smallest buffered value, or 0 when empty.
func (s *Series) Minimum() float64 {
	if s.n == 0 {
		return 0
	}
	return s.minQ[0].value
}

// Maximum returns the largest buffered value, or 0 when empty.
func (s *Series) Maximum() float64 {
	if s.n == 0 {
		return 0
	}
	return s.maxQ[0].value
}

// NumberOfValuesAbove counts buffered values strictly above threshold.
func (s *Series) NumberOfValuesAbove(threshold float64) int {
	count := 0
	for i := 0; i < s.n; i++ {
		if s.Get(i) > threshold {
			count++
		}
	}
	return count
}

// NumberOfValuesBelow counts buffered values strictly below threshold.
func (s *Series) NumberOfValuesBelow(threshold float64) int {
	count := 0
	for i := 0; i < s.n; i++ {
		if s.Get(i) < threshold {
			count++
		}
	}
	return count
}

// Median returns the median of the buffered values, or 0 when empty.
func (s *Series) Median() float64 {
	return median(s.Values())
}

// Values returns a copy of the buffered values, oldest first.
func (s *Series) Values() []float64 {
	out := make([]float64, s.n)
	for i := range out {
		out[i] = s.Get(i)
	}
	return out
}

// Reset empties the series.
func (s *Series) Reset() {
	s.start = 0
	s.n = 0
	s.sum = 0
	s.seq = 0
	s.head = 0
	s.minQ = s.minQ[:0]
	s.maxQ = s.maxQ[:0]
	if s.capacity == 0 {
		s.values = nil
	}
}

// median sorts values in place and returns the middle value (mean of the two
// middle values for an even count).
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	slices.Sort(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
