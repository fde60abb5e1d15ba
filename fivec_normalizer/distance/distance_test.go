package distance

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/stat"

	"FiveC-Bias-Correction/fivec_normalizer/common"
	"FiveC-Bias-Correction/fivec_normalizer/filter"
)

func syntheticDataset(r *rand.Rand, nObs int, intercept, gamma, sigma float64) *common.Dataset {
	const nFrags = 200
	ds := &common.Dataset{
		Regions: []common.Region{{StartFrag: 0, StopFrag: nFrags, Start: 0, Stop: nFrags * 5000}},
	}
	for i := 0; i < nFrags; i++ {
		ds.Fragments = append(ds.Fragments, common.Fragment{
			Region: 0, Start: i * 5000, Stop: i*5000 + 1000, Mid: i*5000 + 500, Strand: common.Strand(i % 2),
		})
	}
	for len(ds.Cis) < nObs {
		i, j := r.Intn(nFrags), r.Intn(nFrags)
		if i == j {
			continue
		}
		d := math.Abs(float64(ds.Fragments[j].Mid - ds.Fragments[i].Mid))
		logCount := intercept - gamma*math.Log(d) + r.NormFloat64()*sigma
		ds.Cis = append(ds.Cis, common.Interaction{I: i, J: j, Count: int(math.Round(math.Exp(logCount)))})
	}
	return ds
}

func TestFitRecoversInjectedParameters(t *testing.T) {
	const gamma0, sigma0 = 1.2, 0.5
	ds := syntheticDataset(rand.New(rand.NewSource(7)), 10000, 20, gamma0, sigma0)

	params, err := Fit(Input{
		Data:   ds,
		Valid:  common.NewMask(ds.NumFragments()),
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	assert.InEpsilon(t, gamma0, params.Gamma, 0.05)
	assert.InEpsilon(t, sigma0, params.Sigma, 0.10)
	assert.Equal(t, 10000, params.N)
}

func TestFitIgnoresInvalidFragment(t *testing.T) {
	ds := syntheticDataset(rand.New(rand.NewSource(11)), 2000, 18, 1.0, 0.3)
	mask := common.NewMask(ds.NumFragments())

	before, err := Fit(Input{Data: ds, Valid: mask})
	require.NoError(t, err)

	// a wildly inflated fragment that is filtered out must not move the fit
	const bad = 3
	mask[bad] = false
	clean, err := Fit(Input{Data: ds, Valid: mask})
	require.NoError(t, err)

	for k := range ds.Cis {
		if ds.Cis[k].I == bad || ds.Cis[k].J == bad {
			ds.Cis[k].Count *= 1000
		}
	}
	after, err := Fit(Input{Data: ds, Valid: mask})
	require.NoError(t, err)

	assert.Equal(t, clean.Gamma, after.Gamma)
	assert.Equal(t, clean.Sigma, after.Sigma)
	assert.Less(t, after.N, before.N)
}

func TestFitWindow(t *testing.T) {
	ds := syntheticDataset(rand.New(rand.NewSource(3)), 3000, 18, 1.0, 0.3)
	params, err := Fit(Input{
		Data:   ds,
		Valid:  common.NewMask(ds.NumFragments()),
		Window: filter.Window{Min: 100000, Max: 400000},
	})
	require.NoError(t, err)

	inside := 0
	for _, o := range ds.Cis {
		if d := ds.Distance(o); d >= 100000 && d < 400000 {
			inside++
		}
	}
	assert.Equal(t, inside, params.N)
}

func TestFitSubtractsCorrections(t *testing.T) {
	ds := syntheticDataset(rand.New(rand.NewSource(5)), 3000, 18, 1.0, 0.3)
	valid := common.NewMask(ds.NumFragments())

	plain, err := Fit(Input{Data: ds, Valid: valid})
	require.NoError(t, err)

	// a uniform shift cancels in c_i - c_j
	uniform := make([]float64, ds.NumFragments())
	for i := range uniform {
		uniform[i] = 0.25
	}
	shifted, err := Fit(Input{Data: ds, Valid: valid, Corrections: uniform})
	require.NoError(t, err)
	assert.InDelta(t, plain.Gamma, shifted.Gamma, 1e-9)
	assert.InDelta(t, plain.Intercept, shifted.Intercept, 1e-9)
	assert.InDelta(t, plain.Sigma, shifted.Sigma, 1e-9)

	varied := make([]float64, ds.NumFragments())
	for i := range varied {
		varied[i] = 0.05 * float64(i%7)
	}
	got, err := Fit(Input{Data: ds, Valid: valid, Corrections: varied})
	require.NoError(t, err)

	var xs, ys []float64
	for _, o := range ds.Cis {
		xs = append(xs, math.Log(float64(ds.Distance(o))))
		ys = append(ys, math.Log(float64(o.Count))-(varied[o.I]-varied[o.J]))
	}
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	assert.InDelta(t, -slope, got.Gamma, 1e-9)
	assert.InDelta(t, intercept, got.Intercept, 1e-9)
	assert.Equal(t, len(ds.Cis), got.N)
}

func TestFitIgnoresZeroCounts(t *testing.T) {
	ds := syntheticDataset(rand.New(rand.NewSource(9)), 2000, 18, 1.0, 0.3)
	valid := common.NewMask(ds.NumFragments())
	want, err := Fit(Input{Data: ds, Valid: valid})
	require.NoError(t, err)

	ds.Cis = append(ds.Cis, common.Interaction{I: 0, J: 1, Count: 0}, common.Interaction{I: 7, J: 2, Count: 0})
	got, err := Fit(Input{Data: ds, Valid: valid})
	require.NoError(t, err)

	assert.False(t, math.IsNaN(got.Gamma))
	assert.False(t, math.IsNaN(got.Sigma))
	assert.Equal(t, want, got)
}

func TestFitInsufficientData(t *testing.T) {
	ds := syntheticDataset(rand.New(rand.NewSource(1)), 10, 18, 1.0, 0.3)
	mask := make(common.Mask, ds.NumFragments())

	_, err := Fit(Input{Data: ds, Valid: mask})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInsufficientData))
}

func TestSignal(t *testing.T) {
	ds := &common.Dataset{
		Fragments: []common.Fragment{{Region: 0, Mid: 100}, {Region: 0, Mid: 100 + int(math.Round(math.E*1000))}},
		Regions:   []common.Region{{StartFrag: 0, StopFrag: 2}},
	}
	obs := []common.Interaction{{I: 1, J: 0, Count: 4}}
	signal := Signal(ds, obs, 2, []float64{3})
	assert.InDelta(t, 3-2*math.Log(math.Round(math.E*1000)), signal[0], 1e-12)
}
