package common

import "fmt"

// Strand of a 5C probe fragment.
type Strand int

const (
	Forward Strand = 0
	Reverse Strand = 1
)

// LengthFeature is the derived feature name for stop - start.
const LengthFeature = "len"

// Fragment is a probe fragment. Start, Stop and Mid are genomic coordinates.
type Fragment struct {
	Region   int
	Start    int
	Stop     int
	Mid      int
	Strand   Strand
	Features map[string]float64 // named numeric attributes, e.g. "gc"
}

// Region is a contiguous block of fragments [StartFrag, StopFrag).
type Region struct {
	StartFrag int
	StopFrag  int
	Start     int // genomic start
	Stop      int // genomic stop
}

// Interaction is one observed fragment pair. Order of I and J carries no meaning.
type Interaction struct {
	I     int
	J     int
	Count int
}

// Dataset is the read-only snapshot of fragment, region and count tables.
type Dataset struct {
	Fragments []Fragment
	Regions   []Region
	Cis       []Interaction
	Trans     []Interaction
}

// NumFragments returns the size of the fragment table.
func (d *Dataset) NumFragments() int {
	return len(d.Fragments)
}

// NumRegions returns the size of the region table.
func (d *Dataset) NumRegions() int {
	return len(d.Regions)
}

// Distance returns |mid_j - mid_i| for an observation.
func (d *Dataset) Distance(obs Interaction) int {
	dist := d.Fragments[obs.J].Mid - d.Fragments[obs.I].Mid
	if dist < 0 {
		return -dist
	}
	return dist
}

// IsCis reports whether both fragments lie in the same region.
func (d *Dataset) IsCis(i, j int) bool {
	return d.Fragments[i].Region == d.Fragments[j].Region
}

// HasFeature reports whether name is LengthFeature or present on every fragment.
func (d *Dataset) HasFeature(name string) bool {
	if name == LengthFeature {
		return true
	}
	if len(d.Fragments) == 0 {
		return false
	}
	for _, frag := range d.Fragments {
		if _, ok := frag.Features[name]; !ok {
			return false
		}
	}
	return true
}

// FeatureValues returns one value per fragment for a named feature.
func (d *Dataset) FeatureValues(name string) ([]float64, error) {
	if !d.HasFeature(name) {
		return nil, fmt.Errorf("fragment feature %q not found", name)
	}
	values := make([]float64, len(d.Fragments))
	for i, frag := range d.Fragments {
		if name == LengthFeature {
			values[i] = float64(frag.Stop - frag.Start)
		} else {
			values[i] = frag.Features[name]
		}
	}
	return values, nil
}
