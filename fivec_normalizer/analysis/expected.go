package analysis

import (
	"math"
	"strings"

	"FiveC-Bias-Correction/fivec_normalizer/common"
)

// Expected returns the expected count of fragment pair (i, j) separated by
// dist under the active normalization. Cis pairs use the distance decay and
// region mean, trans pairs the trans mean. Probability modes add sigma^2/2,
// the mean of a log-normal.
func (s *Session) Expected(i, j, dist int) (float64, error) {
	const op = "Session.Expected"
	n := s.Data.NumFragments()
	if i < 0 || i >= n || j < 0 || j >= n {
		return 0, common.Errorf(common.InvalidArgument, op, "fragment pair (%d, %d) out of range", i, j)
	}

	var logExpected float64
	if s.Data.IsCis(i, j) {
		if s.Distance == nil || s.RegionMeans == nil {
			return 0, common.Errorf(common.MissingPrerequisite, op, "distance parameters not found")
		}
		if dist < 1 {
			return 0, common.Errorf(common.InvalidArgument, op, "cis distance must be positive, got %d", dist)
		}
		logExpected = s.RegionMeans[s.Data.Fragments[i].Region] - s.Distance.Gamma*math.Log(float64(dist))
	} else {
		if s.TransMean == nil || *s.TransMean <= 0 {
			return 0, common.Errorf(common.MissingPrerequisite, op, "trans mean not found")
		}
		logExpected = math.Log(*s.TransMean)
	}

	mode := s.Normalization
	if strings.Contains(mode, ModeProbability) || strings.Contains(mode, ModeExpress) {
		if s.Corrections == nil {
			return 0, common.Errorf(common.MissingPrerequisite, op, "fragment corrections not found for %q", mode)
		}
		logExpected += s.Corrections[i] + s.Corrections[j]
	}
	if strings.Contains(mode, ModeBinning) {
		if s.Binning == nil {
			return 0, common.Errorf(common.MissingPrerequisite, op, "binning model not found for %q", mode)
		}
		logExpected += s.Binning.Adjustment(i, j)
	}
	if strings.Contains(mode, ModeProbability) && s.Distance != nil {
		logExpected += s.Distance.Sigma * s.Distance.Sigma / 2
	}
	return math.Exp(logExpected), nil
}
