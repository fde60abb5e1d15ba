package normalize

import (
	"gonum.org/v1/gonum/floats"

	"FiveC-Bias-Correction/fivec_normalizer/common"
)

// strandSets splits a region's valid fragments by strand.
func strandSets(ds *common.Dataset, mask common.Mask, r int) (forward, reverse []int) {
	reg := ds.Regions[r]
	for f := reg.StartFrag; f < reg.StopFrag; f++ {
		if !mask[f] {
			continue
		}
		if ds.Fragments[f].Strand == common.Forward {
			forward = append(forward, f)
		} else {
			reverse = append(reverse, f)
		}
	}
	return forward, reverse
}

func gather(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = values[i]
	}
	return out
}

// Asymmetry returns the weighted forward/reverse correction offset of region r
// and whether the region has fragments on both strands.
func Asymmetry(ds *common.Dataset, mask common.Mask, corrections []float64, r int) (float64, bool) {
	forward, reverse := strandSets(ds, mask, r)
	if len(forward) == 0 || len(reverse) == 0 {
		return 0, false
	}
	nf, nr := float64(len(forward)), float64(len(reverse))
	sum := floats.Sum(gather(corrections, forward))*nr + floats.Sum(gather(corrections, reverse))*nf
	return sum / (nf * nr), true
}

// CenterRegions removes the strand asymmetry of each listed region from the
// corrections, half from each strand. When regionMeans is non-nil the removed
// amount is added to it. Regions lacking either strand are left untouched.
func CenterRegions(ds *common.Dataset, mask common.Mask, corrections, regionMeans []float64, regions []int) {
	for _, r := range regions {
		mean, ok := Asymmetry(ds, mask, corrections, r)
		if !ok {
			continue
		}
		forward, reverse := strandSets(ds, mask, r)
		for _, f := range forward {
			corrections[f] -= mean / 2
		}
		for _, f := range reverse {
			corrections[f] -= mean / 2
		}
		if regionMeans != nil {
			regionMeans[r] += mean
		}
	}
}
