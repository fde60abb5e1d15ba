package trans

import (
	"go.uber.org/zap"

	"FiveC-Bias-Correction/fivec_normalizer/common"
)

// Mean returns the mean trans signal: total count over valid trans pairs
// divided by the number of possible valid inter-region fragment pairs.
func Mean(ds *common.Dataset, mask common.Mask, logger *zap.Logger) (float64, error) {
	const op = "trans.Mean"
	if logger == nil {
		logger = zap.NewNop()
	}

	valid := make([]int, ds.NumRegions())
	for r, reg := range ds.Regions {
		valid[r] = mask.CountRange(reg.StartFrag, reg.StopFrag)
	}
	possible := 0
	for r1 := 0; r1 < len(valid)-1; r1++ {
		for r2 := r1 + 1; r2 < len(valid); r2++ {
			possible += valid[r1] * valid[r2]
		}
	}
	if possible == 0 {
		return 0, common.Errorf(common.InsufficientData, op, "no valid inter-region fragment pairs")
	}

	actual := 0
	for _, obs := range ds.Trans {
		if common.PairValid(mask, obs) {
			actual += obs.Count
		}
	}
	mean := float64(actual) / float64(possible)
	logger.Debug("Found trans mean", zap.Int("actual", actual), zap.Int("possible", possible), zap.Float64("mean", mean))
	return mean, nil
}
