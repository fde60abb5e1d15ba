package common

// Validity answers whether a fragment takes part in a computation.
type Validity interface {
	Valid(frag int) bool
}

// Mask is the base fragment filter. true means the fragment is valid.
type Mask []bool

// NewMask returns an all-valid mask over n fragments.
func NewMask(n int) Mask {
	m := make(Mask, n)
	for i := range m {
		m[i] = true
	}
	return m
}

func (m Mask) Valid(frag int) bool {
	return m[frag]
}

// Count returns the number of valid fragments.
func (m Mask) Count() int {
	n := 0
	for _, ok := range m {
		if ok {
			n++
		}
	}
	return n
}

// CountRange returns the number of valid fragments in [start, stop).
func (m Mask) CountRange(start, stop int) int {
	n := 0
	for _, ok := range m[start:stop] {
		if ok {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (m Mask) Clone() Mask {
	out := make(Mask, len(m))
	copy(out, m)
	return out
}

// RegionView restricts a base mask to a set of regions without copying it.
type RegionView struct {
	base     Validity
	frags    []Fragment
	included []bool
}

// NewRegionView builds a view over base that also requires the fragment's
// region to be listed. An empty region list selects every region.
func NewRegionView(base Validity, ds *Dataset, regions []int) *RegionView {
	included := make([]bool, ds.NumRegions())
	if len(regions) == 0 {
		for i := range included {
			included[i] = true
		}
	}
	for _, r := range regions {
		if r >= 0 && r < len(included) {
			included[r] = true
		}
	}
	return &RegionView{base: base, frags: ds.Fragments, included: included}
}

func (v *RegionView) Valid(frag int) bool {
	return v.included[v.frags[frag].Region] && v.base.Valid(frag)
}

// Regions returns the included region indices in ascending order.
func (v *RegionView) Regions() []int {
	var out []int
	for r, ok := range v.included {
		if ok {
			out = append(out, r)
		}
	}
	return out
}

// PairValid reports whether both ends of an observation are valid.
func PairValid(v Validity, obs Interaction) bool {
	return v.Valid(obs.I) && v.Valid(obs.J)
}
