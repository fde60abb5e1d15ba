package probability

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"FiveC-Bias-Correction/fivec_normalizer/binning"
	"FiveC-Bias-Correction/fivec_normalizer/common"
	"FiveC-Bias-Correction/fivec_normalizer/distance"
	"FiveC-Bias-Correction/fivec_normalizer/filter"
	"FiveC-Bias-Correction/fivec_normalizer/normalize"
)

// minProbability is the smallest discretized mass trusted before falling
// back to the log-normal density at the observed count.
const minProbability = 1e-12

// Phase of the gradient descent.
type Phase int

const (
	Init Phase = iota
	Burnin
	Annealing
	Done
)

func (p Phase) String() string {
	switch p {
	case Init:
		return "init"
	case Burnin:
		return "burnin"
	case Annealing:
		return "annealing"
	case Done:
		return "done"
	}
	return "unknown"
}

// Options tune the descent.
type Options struct {
	BurninIterations    int
	AnnealingIterations int
	LearningRate        float64
	Precalculate        bool // seed each fragment at half its mean residual
}

// Input is the state the solver reads. Corrections and RegionMeans are
// copied, never written.
type Input struct {
	Data        *common.Dataset
	Mask        common.Mask
	Regions     []int // empty means all
	Window      filter.Window
	Gamma       float64
	Sigma       float64
	RegionMeans []float64
	Corrections []float64
	Binning     *binning.Model // non-nil chains binning corrections into the signal
	Logger      *zap.Logger
}

// Result holds fresh correction and region mean vectors.
type Result struct {
	Corrections []float64
	RegionMeans []float64
	Cost        float64
	Phase       Phase
	Iterations  int
}

// observations holds the per-observation arrays used on every iteration.
type observations struct {
	pairs     []common.Interaction
	logLower  []float64 // log(count - 0.5)
	logCounts []float64
	logUpper  []float64 // log(count + 0.5)
	signal    []float64
}

// Solve fits per-fragment corrections by gradient descent on the smoothed
// log-normal likelihood, then recenters the requested regions.
func Solve(in Input, opts Options) (*Result, error) {
	const op = "probability.Solve"
	logger := in.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if in.Sigma <= 0 || math.IsNaN(in.Sigma) {
		return nil, common.Errorf(common.InsufficientData, op, "distance residual spread must be positive, got %g", in.Sigma)
	}

	n := in.Data.NumFragments()
	view := common.NewRegionView(in.Mask, in.Data, in.Regions)
	regionMeans := make([]float64, in.Data.NumRegions())
	copy(regionMeans, in.RegionMeans)
	corrections := make([]float64, n)
	copy(corrections, in.Corrections)

	data := newObservations(in.Data, filter.Cis(in.Data, view, in.Window.Positive()), in.Gamma, regionMeans)
	interactions := filter.Coverage(n, data.pairs)

	if opts.Precalculate {
		precalculate(data, interactions, corrections)
	}
	if in.Binning != nil {
		in.Binning.AdjustSignal(data.signal, data.pairs)
	}

	gradients := make([]float64, n)
	learningRate := opts.LearningRate
	res := &Result{Phase: Init}
	for _, phase := range []Phase{Burnin, Annealing} {
		iterations := opts.BurninIterations
		if phase == Annealing {
			iterations = opts.AnnealingIterations
		}
		learningStep := learningRate / math.Max(1, float64(opts.AnnealingIterations))
		for iteration := 1; iteration <= iterations; iteration++ {
			res.Phase = phase
			for f := range gradients {
				gradients[f] = 0
			}
			res.Cost = calculateGradients(data, corrections, gradients, in.Sigma)
			for f := 0; f < n; f++ {
				if view.Valid(f) {
					corrections[f] -= learningRate * gradients[f] / math.Max(1, float64(interactions[f]))
				}
			}
			res.Iterations++
			logger.Debug("Learning corrections",
				zap.Stringer("phase", phase), zap.Int("iteration", iteration), zap.Float64("cost", res.Cost))
			if phase == Annealing {
				learningRate -= learningStep
			}
		}
	}
	res.Phase = Done

	normalize.CenterRegions(in.Data, in.Mask, corrections, regionMeans, view.Regions())
	res.Corrections = corrections
	res.RegionMeans = regionMeans
	logger.Debug("Learned probability corrections", zap.Int("iterations", res.Iterations), zap.Float64("cost", res.Cost))
	return res, nil
}

func newObservations(ds *common.Dataset, pairs []common.Interaction, gamma float64, regionMeans []float64) *observations {
	data := &observations{
		pairs:     pairs,
		logLower:  make([]float64, len(pairs)),
		logCounts: make([]float64, len(pairs)),
		logUpper:  make([]float64, len(pairs)),
		signal:    distance.Signal(ds, pairs, gamma, regionMeans),
	}
	for k, o := range pairs {
		count := float64(o.Count)
		data.logLower[k] = math.Log(count - 0.5)
		data.logCounts[k] = math.Log(count)
		data.logUpper[k] = math.Log(count + 0.5)
	}
	return data
}

// precalculate overwrites corrections with half of each fragment's mean
// residual, since every observation's signal is shared by two fragments.
func precalculate(data *observations, interactions []int, corrections []float64) {
	sums := make([]float64, len(corrections))
	for k, o := range data.pairs {
		enrichment := data.logCounts[k] - data.signal[k]
		sums[o.I] += enrichment
		sums[o.J] += enrichment
	}
	for f := range corrections {
		corrections[f] = sums[f] / math.Max(1, float64(interactions[f])) * 0.5
	}
}

// calculateGradients accumulates d(cost)/d(correction) into gradients and
// returns the total negative log-likelihood.
func calculateGradients(data *observations, corrections, gradients []float64, sigma float64) float64 {
	logNorm := math.Log(sigma) + 0.5*math.Log(2*math.Pi)
	cost := 0.0
	for k, o := range data.pairs {
		mu := data.signal[k] + corrections[o.I] + corrections[o.J]
		zLower := (data.logLower[k] - mu) / sigma
		zUpper := (data.logUpper[k] - mu) / sigma
		prob := distuv.UnitNormal.CDF(zUpper) - distuv.UnitNormal.CDF(zLower)
		var grad float64
		if prob > minProbability {
			cost -= math.Log(prob)
			grad = (distuv.UnitNormal.Prob(zUpper) - distuv.UnitNormal.Prob(zLower)) / (sigma * prob)
		} else {
			z := (data.logCounts[k] - mu) / sigma
			cost += 0.5*z*z + logNorm
			grad = -z / sigma
		}
		gradients[o.I] += grad
		gradients[o.J] += grad
	}
	return cost
}
