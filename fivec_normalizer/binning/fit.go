package binning

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"FiveC-Bias-Correction/fivec_normalizer/common"
	"FiveC-Bias-Correction/fivec_normalizer/config"
	"FiveC-Bias-Correction/fivec_normalizer/filter"
)

// Options describe the model to learn.
type Options struct {
	Model             []string // feature names, "len" is derived
	NumBins           []int
	Parameters        []string // "even", "fixed", optionally with "-const"
	LearningThreshold float64
	MaxIterations     int
	GradientTolerance float64 // 0 means config.DefaultGradientTolerance
}

// Input is the state the fit reads. Corrections non-nil chains a previously
// learned fragment correction into the expected signal.
type Input struct {
	Data        *common.Dataset
	Mask        common.Mask
	Regions     []int
	Window      filter.Window
	UseReads    string
	Gamma       float64
	RegionMeans []float64
	TransMean   float64
	Corrections []float64
	Logger      *zap.Logger
}

// Result is the fitted model plus the per-sweep trace.
type Result struct {
	Model *Model
	// Trace holds the negative log-likelihood after seeding and after each sweep.
	Trace []float64
}

// Validate checks options against the dataset without computing anything.
func Validate(ds *common.Dataset, opts Options, usereads string) error {
	const op = "binning.Validate"
	for _, name := range opts.Model {
		if !ds.HasFeature(name) {
			return common.Errorf(common.InvalidArgument, op, "model parameter %q not found in fragment data", name)
		}
	}
	for _, p := range opts.Parameters {
		if _, _, err := ParseParameter(p); err != nil {
			return err
		}
	}
	if len(opts.Model) != len(opts.NumBins) {
		return common.Errorf(common.InvalidArgument, op, "mismatch between lengths of num_bins (%d) and model (%d)", len(opts.NumBins), len(opts.Model))
	}
	if len(opts.Model) != len(opts.Parameters) {
		return common.Errorf(common.InvalidArgument, op, "mismatch between lengths of parameters (%d) and model (%d)", len(opts.Parameters), len(opts.Model))
	}
	if len(opts.Model) == 0 {
		return common.Errorf(common.InvalidArgument, op, "model has no features")
	}
	for _, nb := range opts.NumBins {
		if nb < 1 {
			return common.Errorf(common.InvalidArgument, op, "num_bins must be >= 1, got %d", nb)
		}
	}
	if usereads != config.UseCis && usereads != config.UseTrans && usereads != config.UseAll {
		return common.Errorf(common.InvalidArgument, op, "%q is not a valid value for usereads", usereads)
	}
	return nil
}

// Fit learns per-feature bin-pair corrections by alternating maximum likelihood.
func Fit(in Input, opts Options) (*Result, error) {
	const op = "binning.Fit"
	logger := in.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := Validate(in.Data, opts, in.UseReads); err != nil {
		return nil, err
	}
	useCis := in.UseReads == config.UseCis || in.UseReads == config.UseAll
	useTrans := in.UseReads == config.UseTrans || in.UseReads == config.UseAll
	if useCis && len(in.RegionMeans) != in.Data.NumRegions() {
		return nil, common.Errorf(common.MissingPrerequisite, op, "region means are required for cis reads")
	}
	if useTrans && in.TransMean <= 0 {
		return nil, common.Errorf(common.InsufficientData, op, "trans mean must be positive, got %g", in.TransMean)
	}
	tolerance := opts.GradientTolerance
	if tolerance == 0 {
		tolerance = config.DefaultGradientTolerance
	}

	model, err := partition(in.Data, opts)
	if err != nil {
		return nil, err
	}
	logger.Debug("Partitioned features into bins", zap.Strings("model", model.ParameterNames()))

	// joint bin layout: dimension h has stride divs[h]
	dims := len(model.Features)
	divs := make([]int, dims)
	totalBins := 1
	for h := range model.Features {
		divs[h] = totalBins
		totalBins *= model.Features[h].NumPairs()
	}
	jointIndex := func(i, j int) int {
		idx := 0
		for h := range model.Features {
			f := &model.Features[h]
			idx += PairIndex(model.FragBins[i][h], model.FragBins[j][h], f.NumBins) * divs[h]
		}
		return idx
	}

	agg := newAggregates(totalBins)
	view := common.NewRegionView(in.Mask, in.Data, in.Regions)
	if useCis {
		for _, o := range filter.Cis(in.Data, view, in.Window.Positive()) {
			expected := in.RegionMeans[in.Data.Fragments[o.I].Region] - in.Gamma*math.Log(float64(in.Data.Distance(o)))
			agg.add(jointIndex(o.I, o.J), residual(o, expected, in.Corrections))
		}
	}
	if useTrans {
		logTrans := math.Log(in.TransMean)
		for _, o := range filter.Trans(in.Data, view) {
			agg.add(jointIndex(o.I, o.J), residual(o, logTrans, in.Corrections))
		}
	}
	n := agg.Total()
	if n < 2 {
		return nil, common.Errorf(common.InsufficientData, op, "need at least 2 valid observations, got %v", n)
	}

	categories := make([][]int, totalBins)
	for b := range categories {
		categories[b] = make([]int, dims)
		for h := range model.Features {
			categories[b][h] = (b / divs[h]) % model.Features[h].NumPairs()
		}
	}
	members := make([][][]int, dims)
	for h := range model.Features {
		members[h] = make([][]int, model.Features[h].NumPairs())
		for b := range categories {
			c := categories[b][h]
			members[h][c] = append(members[h][c], b)
		}
	}

	corrections := make([][]float64, dims)
	for h := range model.Features {
		corrections[h] = seed(agg, members[h])
	}

	corSums := CorrectionSums(-1, categories, corrections)
	sigma2 := Sigma2(agg, corSums, n)
	if !(sigma2 > 0) {
		return nil, fmt.Errorf("%s: degenerate residual variance %g", op, sigma2)
	}
	ll := NegLogLikelihood(agg, corSums, n, sigma2)
	res := &Result{Trace: []float64{ll}}
	logger.Debug("Learning binning corrections", zap.Int("iteration", 0), zap.Float64("ll", ll))

	iteration := 0
	delta := math.Inf(1)
	for iteration < opts.MaxIterations && delta >= opts.LearningThreshold {
		for h := range model.Features {
			if model.Features[h].Const {
				continue
			}
			for c, bins := range members[h] {
				stats := gatherCategory(agg, bins, corSums, corrections[h][c])
				if stats.N == 0 {
					continue
				}
				x, err := minimizeCategory(stats, sigma2, corrections[h][c], tolerance)
				if err != nil {
					return nil, fmt.Errorf("%s: feature %q category %d: %w", op, model.Features[h].Name, c, err)
				}
				for _, b := range bins {
					corSums[b] += x - corrections[h][c]
				}
				corrections[h][c] = x
			}
		}
		iteration++

		corSums = CorrectionSums(-1, categories, corrections)
		sigma2 = Sigma2(agg, corSums, n)
		if !(sigma2 > 0) {
			return nil, fmt.Errorf("%s: degenerate residual variance %g", op, sigma2)
		}
		newLL := NegLogLikelihood(agg, corSums, n, sigma2)
		logger.Debug("Learning binning corrections", zap.Int("iteration", iteration), zap.Float64("ll", newLL))
		delta = ll - newLL
		if delta < 0 {
			delta = math.Inf(1)
		}
		ll = newLL
		res.Trace = append(res.Trace, ll)
	}

	for h := range model.Features {
		model.Features[h].Corrections = corrections[h]
	}
	model.LogLikelihood = ll
	model.Iterations = iteration
	res.Model = model
	logger.Info("Learned binning corrections", zap.Int("iterations", iteration), zap.Float64("ll", ll))
	return res, nil
}

// partition computes edges and per-fragment bins for every feature.
func partition(ds *common.Dataset, opts Options) (*Model, error) {
	model := &Model{
		Features: make([]Feature, len(opts.Model)),
		FragBins: make([][]int, ds.NumFragments()),
	}
	for i := range model.FragBins {
		model.FragBins[i] = make([]int, len(opts.Model))
	}
	for h, name := range opts.Model {
		strategy, frozen, err := ParseParameter(opts.Parameters[h])
		if err != nil {
			return nil, err
		}
		values, err := ds.FeatureValues(name)
		if err != nil {
			return nil, common.Errorf(common.InvalidArgument, "binning.partition", "%v", err)
		}
		edges := Edges(values, opts.NumBins[h], strategy)
		for i, bin := range Assign(values, edges) {
			model.FragBins[i][h] = bin
		}
		model.Features[h] = Feature{
			Name:     name,
			Strategy: strategy,
			Const:    frozen,
			NumBins:  len(edges),
			Edges:    edges,
		}
	}
	return model, nil
}

func residual(o common.Interaction, expected float64, corrections []float64) float64 {
	r := math.Log(float64(o.Count)) - expected
	if corrections != nil {
		r -= corrections[o.I] + corrections[o.J]
	}
	return r
}

// seed returns each category's count-weighted mean residual along one dimension.
func seed(agg *Aggregates, members [][]int) []float64 {
	out := make([]float64, len(members))
	for c, bins := range members {
		sum, count := 0.0, 0.0
		for _, b := range bins {
			sum += agg.Sums[b]
			count += agg.Counts[b]
		}
		if count > 0 {
			out[c] = sum / count
		}
	}
	return out
}

// gatherCategory collects one category's bins, with correction sums that
// exclude the category's own current value.
func gatherCategory(agg *Aggregates, bins []int, corSums []float64, current float64) *categoryStats {
	s := &categoryStats{
		Counts:     make([]float64, len(bins)),
		Sums:       make([]float64, len(bins)),
		SumSquares: make([]float64, len(bins)),
		CorSums:    make([]float64, len(bins)),
	}
	for k, b := range bins {
		s.Counts[k] = agg.Counts[b]
		s.Sums[k] = agg.Sums[b]
		s.SumSquares[k] = agg.SumSquares[b]
		s.CorSums[k] = corSums[b] - current
		s.N += agg.Counts[b]
	}
	return s
}

// minimizeCategory solves the 1-D maximum likelihood problem with Newton's method.
func minimizeCategory(s *categoryStats, sigma2, x0, tolerance float64) (float64, error) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return categoryNLL(x[0], s, sigma2)
		},
		Grad: func(grad, x []float64) {
			grad[0] = categoryGradient(x[0], s, sigma2)
		},
		Hess: func(hess *mat.SymDense, x []float64) {
			hess.SetSym(0, 0, categoryHessian(sigma2))
		},
	}
	settings := &optimize.Settings{GradientThreshold: tolerance}
	result, err := optimize.Minimize(problem, []float64{x0}, settings, &optimize.Newton{})
	if err != nil {
		return 0, err
	}
	return result.X[0], nil
}
