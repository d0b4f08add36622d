package metrics

import (
	"math"
	"sort"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// skewness is the population skewness of the sample.
func skewness(xs []float64) float64 {
	if len(xs) < 3 {
		return 0
	}
	m := mean(xs)
	sd := populationStddev(xs, m)
	if sd == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		z := (x - m) / sd
		sum += z * z * z
	}
	return sum / float64(len(xs))
}

// excessKurtosis is the population kurtosis minus 3, so a normal
// distribution scores zero.
func excessKurtosis(xs []float64) float64 {
	if len(xs) < 4 {
		return 0
	}
	m := mean(xs)
	sd := populationStddev(xs, m)
	if sd == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		z := (x - m) / sd
		sum += z * z * z * z
	}
	return sum/float64(len(xs)) - 3
}

func populationStddev(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// percentile returns the p-th percentile (0-100) of xs using linear
// interpolation between closest ranks. xs need not be sorted.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// conditionalMeanBelow averages the values at or below the threshold,
// the expected shortfall beyond a VaR cutoff.
func conditionalMeanBelow(xs []float64, threshold float64) float64 {
	var sum float64
	var n int
	for _, x := range xs {
		if x <= threshold {
			sum += x
			n++
		}
	}
	if n == 0 {
		return threshold
	}
	return sum / float64(n)
}
