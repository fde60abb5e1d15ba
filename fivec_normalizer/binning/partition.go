package binning

import (
	"math"
	"sort"
	"strings"

	"FiveC-Bias-Correction/fivec_normalizer/common"
)

// Partition strategies
const (
	Even  = "even"  // edges at count quantiles of the sorted values
	Fixed = "fixed" // equal-width edges between min and max
)

// ConstSuffix freezes a feature's corrections during optimization.
const ConstSuffix = "-const"

// ParseParameter splits a parameter keyword such as "even-const".
func ParseParameter(p string) (strategy string, frozen bool, err error) {
	strategy = strings.TrimSuffix(p, ConstSuffix)
	frozen = strategy != p
	if strategy != Even && strategy != Fixed {
		return "", false, common.Errorf(common.InvalidArgument, "binning.ParseParameter", "model feature type %q not valid", p)
	}
	return strategy, frozen, nil
}

// Edges returns the ascending upper bin edges for values. The last edge is
// always +Inf. Duplicate edges, which "even" yields when a feature has fewer
// distinct values than requested bins, are collapsed so every bin is
// reachable; the returned slice may therefore be shorter than numBins.
func Edges(values []float64, numBins int, strategy string) []float64 {
	if len(values) == 0 || numBins < 1 {
		return []float64{math.Inf(1)}
	}
	edges := make([]float64, numBins)
	switch strategy {
	case Even:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		n := float64(len(sorted))
		for k := 1; k <= numBins; k++ {
			idx := int(math.RoundToEven(float64(k)*n/float64(numBins))) - 1
			if idx < 0 {
				idx = 0
			}
			edges[k-1] = sorted[idx]
		}
	case Fixed:
		lo, hi := values[0], values[0]
		for _, v := range values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		width := (hi - lo) / float64(numBins)
		for k := 1; k <= numBins; k++ {
			edges[k-1] = lo + float64(k)*width
		}
	}
	edges[numBins-1] = math.Inf(1)

	unique := edges[:1]
	for _, e := range edges[1:] {
		if e > unique[len(unique)-1] {
			unique = append(unique, e)
		}
	}
	return unique
}

// Assign returns, for each value, the first bin whose upper edge is >= value.
func Assign(values, edges []float64) []int {
	bins := make([]int, len(values))
	for i, v := range values {
		bins[i] = sort.SearchFloat64s(edges, v)
	}
	return bins
}
