package express

import (
	"math"

	"go.uber.org/zap"

	"FiveC-Bias-Correction/fivec_normalizer/binning"
	"FiveC-Bias-Correction/fivec_normalizer/common"
	"FiveC-Bias-Correction/fivec_normalizer/config"
	"FiveC-Bias-Correction/fivec_normalizer/distance"
	"FiveC-Bias-Correction/fivec_normalizer/filter"
	"FiveC-Bias-Correction/fivec_normalizer/normalize"
)

// Input is the state the solver reads. Corrections and RegionMeans are copied.
type Input struct {
	Data           *common.Dataset
	Mask           common.Mask
	Regions        []int
	Window         filter.Window
	UseReads       string
	RemoveDistance bool
	Gamma          float64 // used for cis reads when RemoveDistance
	TransMean      float64 // used for trans reads when RemoveDistance
	RegionMeans    []float64
	Corrections    []float64
	Binning        *binning.Model
	Logger         *zap.Logger
}

// Result holds fresh correction and region mean vectors.
type Result struct {
	Corrections []float64
	RegionMeans []float64
	Cost        float64
	Iterations  int
}

type edge struct {
	partner int
	target  float64
}

// UsesCis reports whether usereads includes cis observations.
func UsesCis(usereads string) bool {
	return usereads == config.UseCis || usereads == config.UseAll
}

// UsesTrans reports whether usereads includes trans observations.
func UsesTrans(usereads string) bool {
	return usereads == config.UseTrans || usereads == config.UseAll
}

// ValidUseReads reports whether usereads is cis, trans or all.
func ValidUseReads(usereads string) bool {
	return UsesCis(usereads) || UsesTrans(usereads)
}

// Solve runs a fixed number of alternating mean-matching sweeps: each
// fragment's correction becomes the mean over its observations of the target
// log-count minus the partner's current correction.
func Solve(in Input, iterations int) (*Result, error) {
	const op = "express.Solve"
	logger := in.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if !ValidUseReads(in.UseReads) {
		return nil, common.Errorf(common.InvalidArgument, op, "%q is not a valid value for usereads", in.UseReads)
	}
	if in.RemoveDistance && UsesTrans(in.UseReads) && in.TransMean <= 0 {
		return nil, common.Errorf(common.InsufficientData, op, "trans mean must be positive, got %g", in.TransMean)
	}

	n := in.Data.NumFragments()
	view := common.NewRegionView(in.Mask, in.Data, in.Regions)
	regionMeans := make([]float64, in.Data.NumRegions())
	copy(regionMeans, in.RegionMeans)
	corrections := make([]float64, n)
	copy(corrections, in.Corrections)

	var pairs []common.Interaction
	var targets []float64
	if UsesCis(in.UseReads) {
		cis := filter.Cis(in.Data, view, in.Window.Positive())
		signal := make([]float64, len(cis))
		if in.RemoveDistance {
			signal = distance.Signal(in.Data, cis, in.Gamma, regionMeans)
		}
		if in.Binning != nil {
			in.Binning.AdjustSignal(signal, cis)
		}
		pairs = append(pairs, cis...)
		targets = appendTargets(targets, cis, signal)
	}
	if UsesTrans(in.UseReads) {
		trans := filter.Trans(in.Data, view)
		signal := make([]float64, len(trans))
		if in.RemoveDistance {
			for k := range signal {
				signal[k] = math.Log(in.TransMean)
			}
		}
		if in.Binning != nil {
			in.Binning.AdjustSignal(signal, trans)
		}
		pairs = append(pairs, trans...)
		targets = appendTargets(targets, trans, signal)
	}

	edges := make([][]edge, n)
	for k, o := range pairs {
		edges[o.I] = append(edges[o.I], edge{partner: o.J, target: targets[k]})
		edges[o.J] = append(edges[o.J], edge{partner: o.I, target: targets[k]})
	}

	res := &Result{}
	for iteration := 0; iteration < iterations; iteration++ {
		for f := 0; f < n; f++ {
			if !view.Valid(f) || len(edges[f]) == 0 {
				continue
			}
			sum := 0.0
			for _, e := range edges[f] {
				sum += e.target - corrections[e.partner]
			}
			corrections[f] = sum / float64(len(edges[f]))
		}
		res.Cost = cost(pairs, targets, corrections)
		res.Iterations++
		logger.Debug("Learning corrections", zap.Int("iteration", iteration), zap.Float64("cost", res.Cost))
	}

	centerMeans := regionMeans
	if !in.RemoveDistance {
		// region means only track a removed distance signal
		centerMeans = nil
	}
	normalize.CenterRegions(in.Data, in.Mask, corrections, centerMeans, view.Regions())
	res.Corrections = corrections
	res.RegionMeans = regionMeans
	logger.Debug("Learned express corrections", zap.Int("iterations", res.Iterations), zap.Float64("cost", res.Cost))
	return res, nil
}

func appendTargets(targets []float64, obs []common.Interaction, signal []float64) []float64 {
	for k, o := range obs {
		targets = append(targets, math.Log(float64(o.Count))-signal[k])
	}
	return targets
}

// cost is the sum of squared residuals of target - c_i - c_j.
func cost(pairs []common.Interaction, targets, corrections []float64) float64 {
	total := 0.0
	for k, o := range pairs {
		r := targets[k] - corrections[o.I] - corrections[o.J]
		total += r * r
	}
	return total
}
