package filter

import (
	"FiveC-Bias-Correction/fivec_normalizer/common"
)

// Window is a half-open distance range [Min, Max). Max == 0 means unbounded.
type Window struct {
	Min int
	Max int
}

// Contains reports whether dist falls in the window.
func (w Window) Contains(dist int) bool {
	if dist < w.Min {
		return false
	}
	return w.Max == 0 || dist < w.Max
}

// Cis returns the cis observations with a positive count, both ends valid and
// distance inside w.
func Cis(ds *common.Dataset, valid common.Validity, w Window) []common.Interaction {
	out := make([]common.Interaction, 0, len(ds.Cis))
	for _, obs := range ds.Cis {
		if obs.Count <= 0 || !common.PairValid(valid, obs) || !w.Contains(ds.Distance(obs)) {
			continue
		}
		out = append(out, obs)
	}
	return out
}

// Trans returns the trans observations with a positive count and both ends valid.
func Trans(ds *common.Dataset, valid common.Validity) []common.Interaction {
	out := make([]common.Interaction, 0, len(ds.Trans))
	for _, obs := range ds.Trans {
		if obs.Count > 0 && common.PairValid(valid, obs) {
			out = append(out, obs)
		}
	}
	return out
}

// Coverage counts, per fragment, the observations it takes part in.
func Coverage(n int, obs []common.Interaction) []int {
	coverage := make([]int, n)
	for _, o := range obs {
		coverage[o.I]++
		coverage[o.J]++
	}
	return coverage
}

// Fragments invalidates, in place, every fragment with fewer than
// minInteractions valid cis observations inside w, re-tallying after each
// round until nothing changes. It returns the number of fragments removed.
func Fragments(ds *common.Dataset, mask common.Mask, minInteractions int, w Window) int {
	before := mask.Count()
	data := Cis(ds, mask, w)
	previous := before + 1
	current := before
	for current < previous {
		previous = current
		coverage := Coverage(ds.NumFragments(), data)
		for f, c := range coverage {
			if c < minInteractions {
				mask[f] = false
			}
		}
		kept := data[:0]
		for _, obs := range data {
			if common.PairValid(mask, obs) {
				kept = append(kept, obs)
			}
		}
		data = kept
		current = mask.Count()
	}
	return before - current
}

// Positive returns w with Min raised to 1 so log-distances stay finite.
func (w Window) Positive() Window {
	if w.Min < 1 {
		w.Min = 1
	}
	return w
}
