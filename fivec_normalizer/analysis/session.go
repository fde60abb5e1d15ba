// Package analysis holds the learned state of one 5C project and the
// operations that estimate it.
package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"FiveC-Bias-Correction/fivec_normalizer/binning"
	"FiveC-Bias-Correction/fivec_normalizer/common"
	"FiveC-Bias-Correction/fivec_normalizer/config"
	"FiveC-Bias-Correction/fivec_normalizer/distance"
	"FiveC-Bias-Correction/fivec_normalizer/express"
	"FiveC-Bias-Correction/fivec_normalizer/filter"
	"FiveC-Bias-Correction/fivec_normalizer/probability"
	"FiveC-Bias-Correction/fivec_normalizer/trans"
)

// Normalization modes
const (
	ModeNone               = "none"
	ModeProbability        = "probability"
	ModeBinningProbability = "binning-probability"
	ModeExpress            = "express"
	ModeBinningExpress     = "binning-express"
	ModeBinning            = "binning"
	ModeProbabilityBinning = "probability-binning"
	ModeExpressBinning     = "express-binning"
)

// Session is the mutable state of an analysis. A nil field has not been
// computed yet; operations that need it compute it on demand.
type Session struct {
	Data *common.Dataset
	Mask common.Mask // fragment filter, true is valid

	Corrections []float64        // per fragment, nil before the first fragment-level solve
	RegionMeans []float64        // per region, nil before a distance fit or solve
	Distance    *distance.Params // nil before FindDistanceParameters
	TransMean   *float64         // nil before FindTransMean
	Binning     *binning.Model   // nil before FindBinningCorrections

	Normalization string

	history strings.Builder
	logger  *zap.Logger
}

// New starts a session over ds with every fragment valid.
func New(ds *common.Dataset, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		Data:          ds,
		Mask:          common.NewMask(ds.NumFragments()),
		Normalization: ModeNone,
		logger:        logger,
	}
}

// History returns the provenance log, one line per operation.
func (s *Session) History() string {
	return s.history.String()
}

// PrependHistory places an earlier log, such as a loaded project's, before
// the current one.
func (s *Session) PrependHistory(prior string) {
	current := s.history.String()
	s.history.Reset()
	s.history.WriteString(prior)
	s.history.WriteString(current)
}

// record appends "call - Success" or "call - Error: msg" and passes err through.
func (s *Session) record(call string, err error) error {
	if err != nil {
		fmt.Fprintf(&s.history, "%s - Error: %s\n", call, errorText(err))
		s.logger.Warn("Operation failed", zap.String("call", call), zap.Error(err))
		return err
	}
	fmt.Fprintf(&s.history, "%s - Success\n", call)
	return nil
}

func errorText(err error) string {
	var e *common.Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

func (s *Session) checkRegions(op string, regions []int) error {
	for _, r := range regions {
		if r < 0 || r >= s.Data.NumRegions() {
			return common.Errorf(common.InvalidArgument, op, "region %d out of range [0, %d)", r, s.Data.NumRegions())
		}
	}
	return nil
}

func checkWindow(op string, w filter.Window) error {
	if w.Min < 0 || w.Max < 0 {
		return common.Errorf(common.InvalidArgument, op, "distances must be non-negative, got [%d, %d)", w.Min, w.Max)
	}
	if w.Max != 0 && w.Max <= w.Min {
		return common.Errorf(common.InvalidArgument, op, "max distance %d must exceed min distance %d", w.Max, w.Min)
	}
	return nil
}

// FilterFragments removes fragments with fewer than minInteractions valid
// cis observations inside w, iterating until stable.
func (s *Session) FilterFragments(minInteractions int, w filter.Window) (int, error) {
	const op = "Session.FilterFragments"
	call := fmt.Sprintf("%s(mininteractions=%d, mindistance=%d, maxdistance=%d)", op, minInteractions, w.Min, w.Max)
	if minInteractions < 0 {
		return 0, s.record(call, common.Errorf(common.InvalidArgument, op, "mininteractions must be non-negative"))
	}
	if err := checkWindow(op, w); err != nil {
		return 0, s.record(call, err)
	}

	before := s.Mask.Count()
	removed := filter.Fragments(s.Data, s.Mask, minInteractions, w)
	s.logger.Info("Filtered fragments",
		zap.String("removed", humanize.Comma(int64(removed))),
		zap.String("total", humanize.Comma(int64(before))))
	return removed, s.record(call, nil)
}

// fitDistance regresses without touching session state.
func (s *Session) fitDistance(w filter.Window) (*distance.Params, error) {
	return distance.Fit(distance.Input{
		Data:        s.Data,
		Valid:       s.Mask,
		Window:      w,
		Corrections: s.Corrections,
		Logger:      s.logger,
	})
}

// seededRegionMeans returns a copy of RegionMeans, or a vector filled with
// the fitted intercept when none exist yet.
func (s *Session) seededRegionMeans(params *distance.Params) []float64 {
	means := make([]float64, s.Data.NumRegions())
	if s.RegionMeans != nil {
		copy(means, s.RegionMeans)
		return means
	}
	if params != nil {
		for r := range means {
			means[r] = params.Intercept
		}
	}
	return means
}

// FindDistanceParameters fits the distance decay over valid cis pairs in w
// and seeds RegionMeans with the intercept if they are unset.
func (s *Session) FindDistanceParameters(w filter.Window) (*distance.Params, error) {
	const op = "Session.FindDistanceParameters"
	call := fmt.Sprintf("%s(mindistance=%d, maxdistance=%d)", op, w.Min, w.Max)
	if err := checkWindow(op, w); err != nil {
		return nil, s.record(call, err)
	}
	params, err := s.fitDistance(w)
	if err != nil {
		return nil, s.record(call, err)
	}
	s.RegionMeans = s.seededRegionMeans(params)
	s.Distance = params
	s.logger.Info("Found distance parameters",
		zap.Float64("gamma", params.Gamma), zap.Float64("sigma", params.Sigma),
		zap.String("observations", humanize.Comma(int64(params.N))))
	return params, s.record(call, nil)
}

// FindTransMean estimates the mean signal of valid inter-region pairs.
func (s *Session) FindTransMean() (float64, error) {
	const op = "Session.FindTransMean"
	call := op + "()"
	mean, err := trans.Mean(s.Data, s.Mask, s.logger)
	if err != nil {
		return 0, s.record(call, err)
	}
	s.TransMean = &mean
	s.logger.Info("Found trans mean", zap.Float64("mean", mean))
	return mean, s.record(call, nil)
}

// distanceOrFit returns the cached distance parameters or fits new ones.
// The caller commits them.
func (s *Session) distanceOrFit(w filter.Window) (*distance.Params, error) {
	if s.Distance != nil {
		return s.Distance, nil
	}
	return s.fitDistance(w)
}

func (s *Session) transMeanOrEstimate() (float64, error) {
	if s.TransMean != nil {
		return *s.TransMean, nil
	}
	return trans.Mean(s.Data, s.Mask, s.logger)
}

// FindProbabilityCorrections fits fragment corrections by gradient descent
// on the smoothed log-normal likelihood of cis counts.
func (s *Session) FindProbabilityCorrections(cfg config.ProbabilityConfig, w filter.Window) error {
	const op = "Session.FindProbabilityCorrections"
	call := fmt.Sprintf("%s(mindistance=%d, maxdistance=%d, burnin_iterations=%d, annealing_iterations=%d, learningrate=%g, precalculate=%t, regions=%v, precorrect=%t)",
		op, w.Min, w.Max, cfg.BurninIterations, cfg.AnnealingIterations, cfg.LearningRate, cfg.Precalculate, cfg.Regions, cfg.Precorrect)
	if cfg.Precorrect && s.Binning == nil {
		return s.record(call, common.Errorf(common.MissingPrerequisite, op, "FindBinningCorrections not run yet"))
	}
	if cfg.BurninIterations < 0 || cfg.AnnealingIterations < 0 {
		return s.record(call, common.Errorf(common.InvalidArgument, op, "iteration counts must be non-negative"))
	}
	if err := checkWindow(op, w); err != nil {
		return s.record(call, err)
	}
	if err := s.checkRegions(op, cfg.Regions); err != nil {
		return s.record(call, err)
	}

	params, err := s.distanceOrFit(w)
	if err != nil {
		return s.record(call, err)
	}
	in := probability.Input{
		Data:        s.Data,
		Mask:        s.Mask,
		Regions:     cfg.Regions,
		Window:      w,
		Gamma:       params.Gamma,
		Sigma:       params.Sigma,
		RegionMeans: s.seededRegionMeans(params),
		Corrections: s.Corrections,
		Logger:      s.logger,
	}
	mode := ModeProbability
	if cfg.Precorrect {
		in.Binning = s.Binning
		mode = ModeBinningProbability
	}
	res, err := probability.Solve(in, probability.Options{
		BurninIterations:    cfg.BurninIterations,
		AnnealingIterations: cfg.AnnealingIterations,
		LearningRate:        cfg.LearningRate,
		Precalculate:        cfg.Precalculate,
	})
	if err != nil {
		return s.record(call, err)
	}

	s.Distance = params
	s.Corrections = res.Corrections
	s.RegionMeans = res.RegionMeans
	s.Normalization = mode
	s.logger.Info("Learned probability corrections",
		zap.String("iterations", humanize.Comma(int64(res.Iterations))), zap.Float64("cost", res.Cost))
	return s.record(call, nil)
}

// FindExpressCorrections fits fragment corrections with fixed-count
// mean-matching sweeps over the chosen read subset.
func (s *Session) FindExpressCorrections(cfg config.ExpressConfig, w filter.Window) error {
	const op = "Session.FindExpressCorrections"
	call := fmt.Sprintf("%s(mindistance=%d, maxdistance=%d, iterations=%d, remove_distance=%t, usereads=%q, regions=%v, precorrect=%t)",
		op, w.Min, w.Max, cfg.Iterations, cfg.RemoveDistance, cfg.UseReads, cfg.Regions, cfg.Precorrect)
	if cfg.Precorrect && s.Binning == nil {
		return s.record(call, common.Errorf(common.MissingPrerequisite, op, "FindBinningCorrections not run yet"))
	}
	if !express.ValidUseReads(cfg.UseReads) {
		return s.record(call, common.Errorf(common.InvalidArgument, op, "%q not a valid value for usereads", cfg.UseReads))
	}
	if cfg.Iterations < 0 {
		return s.record(call, common.Errorf(common.InvalidArgument, op, "iterations must be non-negative"))
	}
	if err := checkWindow(op, w); err != nil {
		return s.record(call, err)
	}
	if err := s.checkRegions(op, cfg.Regions); err != nil {
		return s.record(call, err)
	}

	in := express.Input{
		Data:           s.Data,
		Mask:           s.Mask,
		Regions:        cfg.Regions,
		Window:         w,
		UseReads:       cfg.UseReads,
		RemoveDistance: cfg.RemoveDistance,
		Corrections:    s.Corrections,
		Logger:         s.logger,
	}
	var params *distance.Params
	var transMean *float64
	if cfg.RemoveDistance && express.UsesCis(cfg.UseReads) {
		p, err := s.distanceOrFit(w)
		if err != nil {
			return s.record(call, err)
		}
		params = p
		in.Gamma = p.Gamma
	}
	if cfg.RemoveDistance && express.UsesTrans(cfg.UseReads) {
		mean, err := s.transMeanOrEstimate()
		if err != nil {
			return s.record(call, err)
		}
		transMean = &mean
		in.TransMean = mean
	}
	in.RegionMeans = s.seededRegionMeans(params)
	mode := ModeExpress
	if cfg.Precorrect {
		in.Binning = s.Binning
		mode = ModeBinningExpress
	}
	res, err := express.Solve(in, cfg.Iterations)
	if err != nil {
		return s.record(call, err)
	}

	if params != nil {
		s.Distance = params
	}
	if transMean != nil {
		s.TransMean = transMean
	}
	if cfg.RemoveDistance {
		s.RegionMeans = res.RegionMeans
	}
	s.Corrections = res.Corrections
	s.Normalization = mode
	s.logger.Info("Learned express corrections",
		zap.String("iterations", humanize.Comma(int64(res.Iterations))), zap.Float64("cost", res.Cost))
	return s.record(call, nil)
}

// FindBinningCorrections fits the multivariate feature-bin model. With
// Precorrect the current fragment corrections are removed from the residuals.
func (s *Session) FindBinningCorrections(cfg config.BinningConfig, w filter.Window) error {
	const op = "Session.FindBinningCorrections"
	call := fmt.Sprintf("%s(mindistance=%d, maxdistance=%d, num_bins=%v, model=%v, parameters=%v, learning_threshold=%g, max_iterations=%d, usereads=%q, regions=%v, precorrect=%t)",
		op, w.Min, w.Max, cfg.NumBins, cfg.Model, cfg.Parameters, cfg.LearningThreshold, cfg.MaxIterations, cfg.UseReads, cfg.Regions, cfg.Precorrect)
	opts := binning.Options{
		Model:             cfg.Model,
		NumBins:           cfg.NumBins,
		Parameters:        cfg.Parameters,
		LearningThreshold: cfg.LearningThreshold,
		MaxIterations:     cfg.MaxIterations,
	}
	if err := binning.Validate(s.Data, opts, cfg.UseReads); err != nil {
		return s.record(call, err)
	}
	if cfg.Precorrect && s.Corrections == nil {
		return s.record(call, common.Errorf(common.MissingPrerequisite, op, "FindProbabilityCorrections or FindExpressCorrections not run yet"))
	}
	if cfg.MaxIterations < 0 {
		return s.record(call, common.Errorf(common.InvalidArgument, op, "max_iterations must be non-negative"))
	}
	if err := checkWindow(op, w); err != nil {
		return s.record(call, err)
	}
	if err := s.checkRegions(op, cfg.Regions); err != nil {
		return s.record(call, err)
	}

	in := binning.Input{
		Data:     s.Data,
		Mask:     s.Mask,
		Regions:  cfg.Regions,
		Window:   w,
		UseReads: cfg.UseReads,
		Logger:   s.logger,
	}
	var params *distance.Params
	var transMean *float64
	if express.UsesCis(cfg.UseReads) {
		p, err := s.distanceOrFit(w)
		if err != nil {
			return s.record(call, err)
		}
		params = p
		in.Gamma = p.Gamma
		in.RegionMeans = s.seededRegionMeans(p)
	}
	if express.UsesTrans(cfg.UseReads) {
		mean, err := s.transMeanOrEstimate()
		if err != nil {
			return s.record(call, err)
		}
		transMean = &mean
		in.TransMean = mean
	}
	mode := ModeBinning
	if cfg.Precorrect {
		in.Corrections = s.Corrections
		mode = ModeExpressBinning
		if strings.Contains(s.Normalization, ModeProbability) {
			mode = ModeProbabilityBinning
		}
	}
	res, err := binning.Fit(in, opts)
	if err != nil {
		return s.record(call, err)
	}

	if params != nil {
		s.Distance = params
		if s.RegionMeans == nil {
			s.RegionMeans = in.RegionMeans
		}
	}
	if transMean != nil {
		s.TransMean = transMean
	}
	s.Binning = res.Model
	s.Normalization = mode
	s.logger.Info("Learned binning corrections",
		zap.Strings("model", res.Model.ParameterNames()),
		zap.String("iterations", humanize.Comma(int64(res.Model.Iterations))),
		zap.Float64("ll", res.Model.LogLikelihood))
	return s.record(call, nil)
}

// GetCorrection returns the learned correction of a fragment.
func (s *Session) GetCorrection(frag int) (float64, error) {
	const op = "Session.GetCorrection"
	if frag < 0 || frag >= s.Data.NumFragments() {
		return 0, common.Errorf(common.InvalidArgument, op, "fragment %d out of range", frag)
	}
	if s.Corrections == nil {
		return 0, common.Errorf(common.MissingPrerequisite, op, "no fragment corrections learned")
	}
	return s.Corrections[frag], nil
}
