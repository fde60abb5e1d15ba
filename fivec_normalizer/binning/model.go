package binning

import (
	"FiveC-Bias-Correction/fivec_normalizer/common"
)

// Feature is one fitted model dimension.
type Feature struct {
	Name        string
	Strategy    string // "even" or "fixed"
	Const       bool   // corrections frozen during optimization
	NumBins     int
	Edges       []float64 // upper bin edges, last is +Inf
	Corrections []float64 // one per unordered bin pair, NumBins*(NumBins+1)/2
}

// NumPairs returns the number of unordered bin-pair categories.
func (f *Feature) NumPairs() int {
	return PairCount(f.NumBins)
}

// Model is a fitted multivariate binning correction.
type Model struct {
	Features []Feature
	// FragBins[frag][h] is the bin of fragment frag along feature h.
	FragBins      [][]int
	LogLikelihood float64 // negative log-likelihood of the last sweep
	Iterations    int
}

// PairCount is n*(n+1)/2.
func PairCount(n int) int {
	return n * (n + 1) / 2
}

// PairIndex maps an unordered pair of bins (a, b) out of n to [0, PairCount(n)).
func PairIndex(a, b, n int) int {
	if a > b {
		a, b = b, a
	}
	return a*n - a*(a-1)/2 + (b - a)
}

// ParameterNames returns the feature names in model order.
func (m *Model) ParameterNames() []string {
	names := make([]string, len(m.Features))
	for h := range m.Features {
		names[h] = m.Features[h].Name
	}
	return names
}

// Adjustment returns the summed binning correction for a fragment pair.
func (m *Model) Adjustment(i, j int) float64 {
	adj := 0.0
	for h := range m.Features {
		f := &m.Features[h]
		adj += f.Corrections[PairIndex(m.FragBins[i][h], m.FragBins[j][h], f.NumBins)]
	}
	return adj
}

// AdjustSignal adds each observation's binning correction to signal in place.
func (m *Model) AdjustSignal(signal []float64, obs []common.Interaction) {
	for k, o := range obs {
		signal[k] += m.Adjustment(o.I, o.J)
	}
}
