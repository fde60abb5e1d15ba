package config

import (
	"FiveC-Bias-Correction/fivec_normalizer/common"
)

// Validate checks driver-level settings. Solver keywords such as usereads and
// partition strategies are checked by the operations that consume them.
func Validate(cfg *Config) error {
	const op = "config.Validate"
	if cfg.MinInteractions < 0 {
		return common.Errorf(common.InvalidArgument, op, "min-interactions must be >= 0, got %d", cfg.MinInteractions)
	}
	if cfg.MinDistance < 0 || cfg.MaxDistance < 0 {
		return common.Errorf(common.InvalidArgument, op, "distances must be >= 0")
	}
	if cfg.MaxDistance != 0 && cfg.MaxDistance <= cfg.MinDistance {
		return common.Errorf(common.InvalidArgument, op, "max-distance %d must exceed min-distance %d", cfg.MaxDistance, cfg.MinDistance)
	}
	switch cfg.Normalize {
	case NormalizeNone, NormalizeProbability, NormalizeExpress, NormalizeBinning:
	default:
		return common.Errorf(common.InvalidArgument, op, "unknown normalization %q", cfg.Normalize)
	}
	if cfg.Probability.BurninIterations < 0 || cfg.Probability.AnnealingIterations < 0 {
		return common.Errorf(common.InvalidArgument, op, "iteration counts must be >= 0")
	}
	if cfg.Probability.LearningRate <= 0 {
		return common.Errorf(common.InvalidArgument, op, "learning-rate must be > 0")
	}
	if cfg.Express.Iterations < 0 || cfg.Binning.MaxIterations < 0 {
		return common.Errorf(common.InvalidArgument, op, "iteration counts must be >= 0")
	}
	return nil
}
