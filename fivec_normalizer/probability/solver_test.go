package probability

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"FiveC-Bias-Correction/fivec_normalizer/common"
	"FiveC-Bias-Correction/fivec_normalizer/common/commontest"
	"FiveC-Bias-Correction/fivec_normalizer/distance"
	"FiveC-Bias-Correction/fivec_normalizer/filter"
	"FiveC-Bias-Correction/fivec_normalizer/normalize"
)

func fittedInput(t *testing.T, ds *common.Dataset, mask common.Mask) Input {
	t.Helper()
	params, err := distance.Fit(distance.Input{Data: ds, Valid: mask})
	require.NoError(t, err)
	regionMeans := make([]float64, ds.NumRegions())
	for r := range regionMeans {
		regionMeans[r] = params.Intercept
	}
	return Input{
		Data:        ds,
		Mask:        mask,
		Gamma:       params.Gamma,
		Sigma:       params.Sigma,
		RegionMeans: regionMeans,
		Corrections: make([]float64, ds.NumFragments()),
		Logger:      zaptest.NewLogger(t),
	}
}

func TestCalculateGradientsMatchesFiniteDifference(t *testing.T) {
	ds, _ := commontest.Build(commontest.Options{Seed: 2, Regions: 1, PerRegion: 6})
	data := newObservations(ds, ds.Cis, 1.0, []float64{14})
	corrections := []float64{0.1, -0.2, 0.3, 0.05, -0.1, 0.2}
	const sigma, h = 0.3, 1e-6

	gradients := make([]float64, len(corrections))
	calculateGradients(data, corrections, gradients, sigma)

	scratch := make([]float64, len(corrections))
	for f := range corrections {
		up := append([]float64(nil), corrections...)
		down := append([]float64(nil), corrections...)
		up[f] += h
		down[f] -= h
		numeric := (calculateGradients(data, up, scratch, sigma) - calculateGradients(data, down, scratch, sigma)) / (2 * h)
		assert.InDelta(t, numeric, gradients[f], 1e-4*math.Max(1, math.Abs(numeric)), "fragment %d", f)
	}
}

func TestSolveCentersRegions(t *testing.T) {
	ds, _ := commontest.Build(commontest.Options{Seed: 4})
	mask := common.NewMask(ds.NumFragments())
	in := fittedInput(t, ds, mask)

	res, err := Solve(in, Options{BurninIterations: 200, AnnealingIterations: 200, LearningRate: 0.1, Precalculate: true})
	require.NoError(t, err)
	assert.Equal(t, Done, res.Phase)
	assert.Equal(t, 400, res.Iterations)
	assert.Len(t, res.Corrections, ds.NumFragments())

	for r := range ds.Regions {
		asym, ok := normalize.Asymmetry(ds, mask, res.Corrections, r)
		require.True(t, ok)
		assert.InDelta(t, 0, asym, 1e-6)
	}
	// inputs are never written
	assert.Equal(t, make([]float64, ds.NumFragments()), in.Corrections)
}

func TestSolveReducesCost(t *testing.T) {
	ds, _ := commontest.Build(commontest.Options{Seed: 5})
	mask := common.NewMask(ds.NumFragments())
	in := fittedInput(t, ds, mask)

	short, err := Solve(in, Options{BurninIterations: 1, LearningRate: 0.1})
	require.NoError(t, err)
	long, err := Solve(in, Options{BurninIterations: 300, LearningRate: 0.1})
	require.NoError(t, err)
	assert.Less(t, long.Cost, short.Cost)
}

func TestSolveRecoversBiasOrdering(t *testing.T) {
	ds, truth := commontest.Build(commontest.Options{Seed: 6, Regions: 1, PerRegion: 16, Sigma: 0.05})
	mask := common.NewMask(ds.NumFragments())
	in := fittedInput(t, ds, mask)

	res, err := Solve(in, Options{BurninIterations: 500, AnnealingIterations: 500, LearningRate: 0.1, Precalculate: true})
	require.NoError(t, err)

	// corrections are identifiable up to a per-strand offset
	for _, strand := range []common.Strand{common.Forward, common.Reverse} {
		var fitted, injected []float64
		for f, frag := range ds.Fragments {
			if frag.Strand == strand {
				fitted = append(fitted, res.Corrections[f])
				injected = append(injected, truth.Bias[f])
			}
		}
		offset := 0.0
		for k := range fitted {
			offset += (fitted[k] - injected[k]) / float64(len(fitted))
		}
		for k := range fitted {
			assert.InDelta(t, injected[k]+offset, fitted[k], 0.15)
		}
	}
}

func TestSolveZeroIterationsKeepsSeed(t *testing.T) {
	ds, _ := commontest.Build(commontest.Options{Seed: 7})
	mask := common.NewMask(ds.NumFragments())
	in := fittedInput(t, ds, mask)
	in.Corrections[0] = 0.4
	in.Corrections[1] = 0.4

	res, err := Solve(in, Options{LearningRate: 0.1})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, Done, res.Phase)
	// region 0 had asymmetry (0.4*n_r + 0.4*n_f) / (n_f*n_r), removed half per strand
	nf, nr := 6.0, 6.0
	mean := (0.4*nr + 0.4*nf) / (nf * nr)
	assert.InDelta(t, 0.4-mean/2, res.Corrections[0], 1e-12)
	assert.InDelta(t, in.RegionMeans[0]+mean, res.RegionMeans[0], 1e-12)
}

func TestSolveRegionRestriction(t *testing.T) {
	ds, _ := commontest.Build(commontest.Options{Seed: 8})
	mask := common.NewMask(ds.NumFragments())
	in := fittedInput(t, ds, mask)
	reg1 := ds.Regions[1]
	for f := reg1.StartFrag; f < reg1.StopFrag; f++ {
		in.Corrections[f] = 0.7
	}
	in.Regions = []int{0}

	res, err := Solve(in, Options{BurninIterations: 50, LearningRate: 0.1})
	require.NoError(t, err)
	for f := reg1.StartFrag; f < reg1.StopFrag; f++ {
		assert.Equal(t, 0.7, res.Corrections[f])
	}
	assert.Equal(t, in.RegionMeans[1], res.RegionMeans[1])
}

func TestSolveExcludesFilteredFragment(t *testing.T) {
	ds, _ := commontest.Build(commontest.Options{Seed: 9})
	mask := common.NewMask(ds.NumFragments())
	mask[3] = false
	in := fittedInput(t, ds, mask)

	base, err := Solve(in, Options{BurninIterations: 50, LearningRate: 0.1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, base.Corrections[3])

	// inflating the filtered fragment's counts changes nothing
	for k := range ds.Cis {
		if ds.Cis[k].I == 3 || ds.Cis[k].J == 3 {
			ds.Cis[k].Count *= 50
		}
	}
	again, err := Solve(in, Options{BurninIterations: 50, LearningRate: 0.1})
	require.NoError(t, err)
	assert.Equal(t, base.Corrections, again.Corrections)
	assert.Equal(t, base.Cost, again.Cost)
}

func TestSolveRequiresPositiveSigma(t *testing.T) {
	ds, _ := commontest.Build(commontest.Options{Seed: 10})
	in := fittedInput(t, ds, common.NewMask(ds.NumFragments()))
	in.Sigma = 0

	_, err := Solve(in, Options{BurninIterations: 1, LearningRate: 0.1})
	assert.True(t, errors.Is(err, common.ErrInsufficientData))
}

func TestSolveWindowLimitsObservations(t *testing.T) {
	ds, _ := commontest.Build(commontest.Options{Seed: 11})
	mask := common.NewMask(ds.NumFragments())
	in := fittedInput(t, ds, mask)
	in.Window = filter.Window{Min: 1, Max: 2}

	// nothing inside the window: corrections stay at the seed
	res, err := Solve(in, Options{BurninIterations: 10, LearningRate: 0.1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Cost)
	for _, c := range res.Corrections {
		assert.Equal(t, 0.0, c)
	}
}

func TestSolveIgnoresZeroCounts(t *testing.T) {
	ds, _ := commontest.Build(commontest.Options{Seed: 12})
	dropped := *ds
	dropped.Cis = append([]common.Interaction(nil), ds.Cis[1:]...)
	zeroed := *ds
	zeroed.Cis = append([]common.Interaction(nil), ds.Cis...)
	zeroed.Cis[0].Count = 0
	opts := Options{BurninIterations: 10, LearningRate: 0.1, Precalculate: true}

	want, err := Solve(fittedInput(t, &dropped, common.NewMask(ds.NumFragments())), opts)
	require.NoError(t, err)
	got, err := Solve(fittedInput(t, &zeroed, common.NewMask(ds.NumFragments())), opts)
	require.NoError(t, err)

	for f, c := range got.Corrections {
		assert.False(t, math.IsNaN(c), "fragment %d", f)
	}
	assert.False(t, math.IsNaN(got.Cost))
	assert.Equal(t, want.Corrections, got.Corrections)
	assert.Equal(t, want.RegionMeans, got.RegionMeans)
}
