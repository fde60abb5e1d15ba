package binning

import (
	"math"
)

// Aggregates are the per-joint-bin sufficient statistics of the residuals.
type Aggregates struct {
	Counts     []float64
	Sums       []float64
	SumSquares []float64
}

func newAggregates(size int) *Aggregates {
	return &Aggregates{
		Counts:     make([]float64, size),
		Sums:       make([]float64, size),
		SumSquares: make([]float64, size),
	}
}

func (a *Aggregates) add(bin int, residual float64) {
	a.Counts[bin]++
	a.Sums[bin] += residual
	a.SumSquares[bin] += residual * residual
}

// Total returns the number of aggregated observations.
func (a *Aggregates) Total() float64 {
	n := 0.0
	for _, c := range a.Counts {
		n += c
	}
	return n
}

// squaredError is sum over a joint bin of (residual - cor)^2.
func squaredError(count, sum, sumSquares, cor float64) float64 {
	return count*cor*cor + sumSquares - 2*cor*sum
}

// CorrectionSums returns, per joint bin, the summed correction over every
// dimension except exclude (-1 keeps all). categories[b][h] is joint bin b's
// category along dimension h.
func CorrectionSums(exclude int, categories [][]int, corrections [][]float64) []float64 {
	sums := make([]float64, len(categories))
	for b, cats := range categories {
		for h, c := range cats {
			if h == exclude {
				continue
			}
			sums[b] += corrections[h][c]
		}
	}
	return sums
}

// Sigma2 is the pooled residual variance given per-bin correction sums.
func Sigma2(agg *Aggregates, corSums []float64, n float64) float64 {
	total := 0.0
	for b := range corSums {
		total += squaredError(agg.Counts[b], agg.Sums[b], agg.SumSquares[b], corSums[b])
	}
	return total / (n - 1)
}

// NegLogLikelihood is the Gaussian negative log-likelihood of all residuals.
func NegLogLikelihood(agg *Aggregates, corSums []float64, n, sigma2 float64) float64 {
	total := 0.0
	for b := range corSums {
		total += squaredError(agg.Counts[b], agg.Sums[b], agg.SumSquares[b], corSums[b])
	}
	return n*(0.5*math.Log(sigma2)+0.5*math.Log(2*math.Pi)) + total/(2*sigma2)
}

// categoryStats is the slice of aggregates sharing one category along the
// dimension being optimized. CorSums exclude that dimension.
type categoryStats struct {
	Counts     []float64
	Sums       []float64
	SumSquares []float64
	CorSums    []float64
	N          float64 // total count
}

// categoryNLL is the category's negative log-likelihood, divided by its
// count, when its correction is x and sigma2 is held fixed.
func categoryNLL(x float64, s *categoryStats, sigma2 float64) float64 {
	total := 0.0
	for k := range s.Counts {
		total += squaredError(s.Counts[k], s.Sums[k], s.SumSquares[k], s.CorSums[k]+x)
	}
	return 0.5*math.Log(sigma2) + 0.5*math.Log(2*math.Pi) + total/(2*sigma2*s.N)
}

// categoryGradient is d(categoryNLL)/dx.
func categoryGradient(x float64, s *categoryStats, sigma2 float64) float64 {
	total := 0.0
	for k := range s.Counts {
		total += s.Counts[k]*(s.CorSums[k]+x) - s.Sums[k]
	}
	return total / (sigma2 * s.N)
}

// categoryHessian is d2(categoryNLL)/dx2, constant in x.
func categoryHessian(sigma2 float64) float64 {
	return 1 / sigma2
}
