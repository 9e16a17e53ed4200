package flow

import "math"

// RunningStats accumulates count, mean, min, max and the sum of squared
// deviations for a series of observations in O(1) memory, using Welford's
// online update. Results match the two-pass computation over the full
// series. The zero value is ready to use.
type RunningStats struct {
	count uint64
	mean  float64
	m2    float64
	min   float64
	max   float64
	sum   float64
}

// Add folds one observation into the accumulator.
func (s *RunningStats) Add(x float64) {
	s.count++
	s.sum += x

	delta := x - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (x - s.mean)

	if s.count == 1 {
		s.min = x
		s.max = x
		return
	}
	if x < s.min {
		s.min = x
	}
	if x > s.max {
		s.max = x
	}
}

// Count returns the number of observations.
func (s *RunningStats) Count() uint64 {
	return s.count
}

// Sum returns the sum of all observations.
func (s *RunningStats) Sum() float64 {
	return s.sum
}

// Mean returns the arithmetic mean, 0 with no observations.
func (s *RunningStats) Mean() float64 {
	if s.count == 0 {
		return 0
	}
	return s.mean
}

// Min returns the smallest observation, 0 with no observations.
func (s *RunningStats) Min() float64 {
	return s.min
}

// Max returns the largest observation, 0 with no observations.
func (s *RunningStats) Max() float64 {
	return s.max
}

// StdDev returns the sample standard deviation (n-1 divisor), 0 below two
// observations.
func (s *RunningStats) StdDev() float64 {
	if s.count < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.count-1))
}
