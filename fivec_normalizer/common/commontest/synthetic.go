// Package commontest builds synthetic 5C datasets for tests.
package commontest

import (
	"math"
	"math/rand"

	"FiveC-Bias-Correction/fivec_normalizer/common"
)

// Options describes a synthetic dataset. Zero fields take the defaults below.
type Options struct {
	Seed         int64
	Regions      int     // default 2
	PerRegion    int     // fragments per region, default 12
	Spacing      int     // bp between mids, default 5000
	Intercept    float64 // default 14
	Gamma        float64 // default 1
	Sigma        float64 // log-count noise, default 0.2
	BiasSD       float64 // per-fragment bias spread, default 0.3
	TransLogMean float64 // default 2
	GCEffect     float64 // added bias per unit of (gc - 0.5)
}

// Truth is what the generator injected.
type Truth struct {
	Bias []float64
}

func (s *Options) defaults() {
	if s.Regions == 0 {
		s.Regions = 2
	}
	if s.PerRegion == 0 {
		s.PerRegion = 12
	}
	if s.Spacing == 0 {
		s.Spacing = 5000
	}
	if s.Intercept == 0 {
		s.Intercept = 14
	}
	if s.Gamma == 0 {
		s.Gamma = 1
	}
	if s.Sigma == 0 {
		s.Sigma = 0.2
	}
	if s.BiasSD == 0 {
		s.BiasSD = 0.3
	}
	if s.TransLogMean == 0 {
		s.TransLogMean = 2
	}
}

// Build generates fragments with alternating strands, "gc" features and
// varying lengths, every forward/reverse cis pair and every forward/reverse
// trans pair.
func Build(opts Options) (*common.Dataset, *Truth) {
	opts.defaults()
	r := rand.New(rand.NewSource(opts.Seed))
	ds := &common.Dataset{}
	truth := &Truth{}

	for reg := 0; reg < opts.Regions; reg++ {
		first := len(ds.Fragments)
		base := reg * 10_000_000
		for k := 0; k < opts.PerRegion; k++ {
			mid := base + k*opts.Spacing + r.Intn(opts.Spacing/4)
			length := 500 + r.Intn(2500)
			gc := 0.3 + 0.4*r.Float64()
			ds.Fragments = append(ds.Fragments, common.Fragment{
				Region:   reg,
				Start:    mid - length/2,
				Stop:     mid + length - length/2,
				Mid:      mid,
				Strand:   common.Strand(k % 2),
				Features: map[string]float64{"gc": gc},
			})
			truth.Bias = append(truth.Bias, r.NormFloat64()*opts.BiasSD+opts.GCEffect*(gc-0.5))
		}
		last := len(ds.Fragments)
		ds.Regions = append(ds.Regions, common.Region{
			StartFrag: first,
			StopFrag:  last,
			Start:     ds.Fragments[first].Start,
			Stop:      ds.Fragments[last-1].Stop,
		})
	}

	for i := range ds.Fragments {
		for j := i + 1; j < len(ds.Fragments); j++ {
			fi, fj := ds.Fragments[i], ds.Fragments[j]
			if fi.Strand == fj.Strand {
				continue
			}
			var logCount float64
			if fi.Region == fj.Region {
				d := math.Abs(float64(fj.Mid - fi.Mid))
				logCount = opts.Intercept - opts.Gamma*math.Log(d)
			} else {
				logCount = opts.TransLogMean
			}
			logCount += truth.Bias[i] + truth.Bias[j] + r.NormFloat64()*opts.Sigma
			count := int(math.Round(math.Exp(logCount)))
			if count <= 0 {
				continue
			}
			obs := common.Interaction{I: i, J: j, Count: count}
			if fi.Region == fj.Region {
				ds.Cis = append(ds.Cis, obs)
			} else {
				ds.Trans = append(ds.Trans, obs)
			}
		}
	}
	return ds, truth
}
