package io

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"FiveC-Bias-Correction/fivec_normalizer/common"
)

// Manifest names the tables of one 5C dataset. Paths are relative to the
// manifest file.
type Manifest struct {
	Fragments string `yaml:"fragments"`
	Counts    string `yaml:"counts"`
}

// Fragment table columns
const (
	colRegion = "region"
	colStart  = "start"
	colStop   = "stop"
	colMid    = "mid"
	colStrand = "strand"
)

// Count table columns
const (
	colFrag1 = "frag1"
	colFrag2 = "frag2"
	colCount = "count"
)

var fragmentColumns = []string{colRegion, colStart, colStop, colMid, colStrand}
var countColumns = []string{colFrag1, colFrag2, colCount}

// ReadManifest parses a dataset manifest.
func ReadManifest(path string) (*Manifest, error) {
	const op = "io.ReadManifest"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, missing(op, path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: parse %s: %w", op, path, err)
	}
	if m.Fragments == "" || m.Counts == "" {
		return nil, common.Errorf(common.InvalidArgument, op, "%s must name both fragments and counts tables", path)
	}
	return &m, nil
}

// ReadDataset loads the fragment and count tables named by a manifest.
func ReadDataset(manifestPath string, logger *zap.Logger) (*common.Dataset, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(manifestPath)

	ds := &common.Dataset{}
	if err := readFragments(resolve(dir, m.Fragments), ds); err != nil {
		return nil, err
	}
	if err := readCounts(resolve(dir, m.Counts), ds); err != nil {
		return nil, err
	}
	logger.Info("Loaded dataset",
		zap.String("fragments", humanize.Comma(int64(ds.NumFragments()))),
		zap.String("regions", humanize.Comma(int64(ds.NumRegions()))),
		zap.String("cis", humanize.Comma(int64(len(ds.Cis)))),
		zap.String("trans", humanize.Comma(int64(len(ds.Trans)))))
	return ds, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func missing(op, path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return common.Errorf(common.MissingResource, op, "%s not found", path)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// readTable reads a tab-separated table with a header row.
func readTable(op, path string, required []string, types map[string]series.Type) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, missing(op, path, err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.WithDelimiter('\t'),
		dataframe.HasHeader(true),
		dataframe.WithTypes(types))
	if df.Err != nil {
		return df, fmt.Errorf("%s: parse %s: %w", op, path, df.Err)
	}
	names := make(map[string]bool)
	for _, name := range df.Names() {
		names[name] = true
	}
	for _, name := range required {
		if !names[name] {
			return df, common.Errorf(common.InvalidArgument, op, "%s lacks column %q", path, name)
		}
	}
	return df, nil
}

func integers(op, path, column string, values []float64) ([]int, error) {
	out := make([]int, len(values))
	for k, v := range values {
		if math.IsNaN(v) || v != math.Trunc(v) {
			return nil, common.Errorf(common.InvalidArgument, op, "%s row %d: column %q is not an integer", path, k+1, column)
		}
		out[k] = int(v)
	}
	return out, nil
}

func parseStrand(s string) (common.Strand, bool) {
	switch strings.TrimSpace(s) {
	case "0", "+":
		return common.Forward, true
	case "1", "-":
		return common.Reverse, true
	}
	return 0, false
}

func readFragments(path string, ds *common.Dataset) error {
	const op = "io.readFragments"
	df, err := readTable(op, path, fragmentColumns, map[string]series.Type{
		colRegion: series.String,
		colStrand: series.String,
	})
	if err != nil {
		return err
	}
	if df.Nrow() == 0 {
		return common.Errorf(common.InsufficientData, op, "%s has no fragments", path)
	}

	coords := make(map[string][]int, 3)
	for _, col := range []string{colStart, colStop, colMid} {
		values, err := integers(op, path, col, df.Col(col).Float())
		if err != nil {
			return err
		}
		coords[col] = values
	}
	var featureNames []string
	features := make(map[string][]float64)
	for _, name := range df.Names() {
		if name == colRegion || name == colStrand || name == colStart || name == colStop || name == colMid {
			continue
		}
		featureNames = append(featureNames, name)
		features[name] = df.Col(name).Float()
	}

	labels := df.Col(colRegion).Records()
	strands := df.Col(colStrand).Records()
	seen := make(map[string]bool)
	for i := 0; i < df.Nrow(); i++ {
		strand, ok := parseStrand(strands[i])
		if !ok {
			return common.Errorf(common.InvalidArgument, op, "%s row %d: strand %q not recognized", path, i+1, strands[i])
		}
		if i == 0 || labels[i] != labels[i-1] {
			if seen[labels[i]] {
				return common.Errorf(common.InvalidArgument, op, "%s: fragments of region %q are not contiguous", path, labels[i])
			}
			seen[labels[i]] = true
			ds.Regions = append(ds.Regions, common.Region{StartFrag: i, Start: coords[colStart][i], Stop: coords[colStop][i]})
		}
		r := len(ds.Regions) - 1
		reg := &ds.Regions[r]
		reg.StopFrag = i + 1
		reg.Start = min(reg.Start, coords[colStart][i])
		reg.Stop = max(reg.Stop, coords[colStop][i])

		frag := common.Fragment{
			Region:   r,
			Start:    coords[colStart][i],
			Stop:     coords[colStop][i],
			Mid:      coords[colMid][i],
			Strand:   strand,
			Features: make(map[string]float64, len(featureNames)),
		}
		for _, name := range featureNames {
			frag.Features[name] = features[name][i]
		}
		ds.Fragments = append(ds.Fragments, frag)
	}
	return nil
}

func readCounts(path string, ds *common.Dataset) error {
	const op = "io.readCounts"
	df, err := readTable(op, path, countColumns, nil)
	if err != nil {
		return err
	}

	cols := make(map[string][]int, len(countColumns))
	for _, col := range countColumns {
		values, err := integers(op, path, col, df.Col(col).Float())
		if err != nil {
			return err
		}
		cols[col] = values
	}
	n := ds.NumFragments()
	for k := 0; k < df.Nrow(); k++ {
		i, j, count := cols[colFrag1][k], cols[colFrag2][k], cols[colCount][k]
		if i < 0 || i >= n || j < 0 || j >= n {
			return common.Errorf(common.InvalidArgument, op, "%s row %d: fragment pair (%d, %d) out of range", path, k+1, i, j)
		}
		if i == j || count <= 0 {
			continue
		}
		if i > j {
			i, j = j, i
		}
		obs := common.Interaction{I: i, J: j, Count: count}
		if ds.IsCis(i, j) {
			ds.Cis = append(ds.Cis, obs)
		} else {
			ds.Trans = append(ds.Trans, obs)
		}
	}
	return nil
}
