// Package stats summarizes the values and timings collected from the
// random byte server.
package stats

import (
	"math"
	"slices"
)

const (
	// Buckets is the number of distinct byte values.
	Buckets = 256

	// Z999 is the standard normal quantile for a 0.001 significance level.
	Z999 = 3.0902
	// Z9999 is the standard normal quantile for a 0.0001 significance level.
	Z9999 = 3.7190
)

// Histogram counts occurrences of each byte value.
type Histogram [Buckets]int64

// Add records one occurrence of v.
func (h *Histogram) Add(v byte) {
	h[v]++
}

// Total is the number of recorded values.
func (h *Histogram) Total() int64 {
	var n int64
	for _, c := range h {
		n += c
	}
	return n
}

// ChiSquare returns Pearson's statistic against a uniform distribution
// over all byte values. It is 0 for an empty histogram.
func (h *Histogram) ChiSquare() float64 {
	total := h.Total()
	if total == 0 {
		return 0
	}

	expected := float64(total) / Buckets
	var chi float64
	for _, c := range h {
		d := float64(c) - expected
		chi += d * d / expected
	}
	return chi
}

// IsUniform reports whether the histogram is consistent with a uniform
// distribution at the significance level given by the normal quantile z,
// e.g. [Z999].
func (h *Histogram) IsUniform(z float64) bool {
	return h.ChiSquare() <= ChiSquareCritical(Buckets-1, z)
}

// ChiSquareCritical approximates the upper critical value of the
// chi-square distribution with df degrees of freedom using the
// Wilson-Hilferty transformation.
func ChiSquareCritical(df int, z float64) float64 {
	k := float64(df)
	v := 2 / (9 * k)
	return k * math.Pow(1-v+z*math.Sqrt(v), 3)
}

type number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

// Summarize returns the min, max, mean and median of values.
// It sorts values in place.
func Summarize[T number](values []T) (min, max, mean, median T) {
	if len(values) < 1 {
		return
	}

	slices.Sort(values)
	min, max = values[0], values[len(values)-1]

	var sum T
	for _, v := range values {
		sum += v
	}
	mean = sum / T(len(values))

	l := len(values)
	if l%2 == 1 {
		median = values[l/2]
	} else {
		median = (values[(l/2)-1] + values[l/2]) / 2
	}
	return
}
