package distance

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"FiveC-Bias-Correction/fivec_normalizer/common"
	"FiveC-Bias-Correction/fivec_normalizer/filter"
)

// Params is a fitted log-linear decay: log(count) ~ Intercept - Gamma*log(distance).
type Params struct {
	Gamma     float64
	Sigma     float64 // residual standard deviation in log-count space
	Intercept float64
	N         int // observations used
}

// Input to Fit. Corrections is optional; its difference c_i - c_j is
// removed from each log count.
type Input struct {
	Data        *common.Dataset
	Valid       common.Validity
	Window      filter.Window
	Corrections []float64
	Logger      *zap.Logger
}

// Fit regresses log counts on log distances over valid cis observations.
func Fit(in Input) (*Params, error) {
	const op = "distance.Fit"
	logger := in.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	obs := filter.Cis(in.Data, in.Valid, in.Window.Positive())
	if len(obs) == 0 {
		return nil, common.Errorf(common.InsufficientData, op, "no valid cis observations")
	}

	logDistances := make([]float64, len(obs))
	logCounts := make([]float64, len(obs))
	for k, o := range obs {
		logDistances[k] = math.Log(float64(in.Data.Distance(o)))
		logCounts[k] = math.Log(float64(o.Count))
		if in.Corrections != nil {
			logCounts[k] -= in.Corrections[o.I] - in.Corrections[o.J]
		}
	}

	intercept, slope := stat.LinearRegression(logDistances, logCounts, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return nil, fmt.Errorf("%s: degenerate regression over %d observations", op, len(obs))
	}
	gamma := -slope

	residuals := make([]float64, len(obs))
	for k := range residuals {
		residuals[k] = logCounts[k] - intercept + gamma*logDistances[k]
	}
	sigma := stat.PopStdDev(residuals, nil)

	logger.Debug("Fitted distance parameters",
		zap.Float64("gamma", gamma), zap.Float64("sigma", sigma),
		zap.Float64("intercept", intercept), zap.Int("observations", len(obs)))
	return &Params{Gamma: gamma, Sigma: sigma, Intercept: intercept, N: len(obs)}, nil
}

// Signal returns regionMeans[region(i)] - gamma*log(distance) for each observation.
func Signal(ds *common.Dataset, obs []common.Interaction, gamma float64, regionMeans []float64) []float64 {
	signal := make([]float64, len(obs))
	for k, o := range obs {
		signal[k] = -gamma * math.Log(float64(ds.Distance(o)))
		if regionMeans != nil {
			signal[k] += regionMeans[ds.Fragments[o.I].Region]
		}
	}
	return signal
}
