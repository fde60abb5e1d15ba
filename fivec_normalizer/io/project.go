package io

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"FiveC-Bias-Correction/fivec_normalizer/analysis"
	"FiveC-Bias-Correction/fivec_normalizer/binning"
	"FiveC-Bias-Correction/fivec_normalizer/common"
	"FiveC-Bias-Correction/fivec_normalizer/distance"
)

// Project is the on-disk form of a session.
type Project struct {
	Data          string         `yaml:"data"` // dataset manifest
	Filter        []bool         `yaml:"filter"`
	Corrections   []float64      `yaml:"corrections,omitempty"`
	RegionMeans   []float64      `yaml:"region_means,omitempty"`
	Gamma         *float64       `yaml:"gamma,omitempty"`
	Sigma         *float64       `yaml:"sigma,omitempty"`
	Intercept     *float64       `yaml:"intercept,omitempty"`
	TransMean     *float64       `yaml:"trans_mean,omitempty"`
	Binning       *BinningRecord `yaml:"binning,omitempty"`
	Normalization string         `yaml:"normalization"`
	History       string         `yaml:"history"`
}

// BinningRecord stores a fitted binning model.
type BinningRecord struct {
	ModelParameters []string        `yaml:"model_parameters"`
	Features        []FeatureRecord `yaml:"features"`
	FragIndices     [][]int         `yaml:"frag_indices"`
	LogLikelihood   float64         `yaml:"log_likelihood"`
	Iterations      int             `yaml:"iterations"`
}

// FeatureRecord is one binning dimension.
type FeatureRecord struct {
	Name        string    `yaml:"name"`
	Strategy    string    `yaml:"strategy"`
	Const       bool      `yaml:"const,omitempty"`
	NumBins     int       `yaml:"num_bins"`
	Edges       []float64 `yaml:"edges"`
	Corrections []float64 `yaml:"corrections"`
}

// SaveProject writes the session state to path. dataPath is the manifest the
// session was loaded from and is stored relative to the project file.
func SaveProject(path, dataPath string, s *analysis.Session) error {
	const op = "io.SaveProject"
	rel := dataPath
	if abs, err := filepath.Abs(dataPath); err == nil {
		if projectDir, err := filepath.Abs(filepath.Dir(path)); err == nil {
			if r, err := filepath.Rel(projectDir, abs); err == nil {
				rel = r
			}
		}
	}

	p := Project{
		Data:          rel,
		Filter:        s.Mask,
		Corrections:   s.Corrections,
		RegionMeans:   s.RegionMeans,
		TransMean:     s.TransMean,
		Normalization: s.Normalization,
		History:       s.History(),
	}
	if s.Distance != nil {
		p.Gamma = &s.Distance.Gamma
		p.Sigma = &s.Distance.Sigma
		p.Intercept = &s.Distance.Intercept
	}
	if s.Binning != nil {
		p.Binning = binningRecord(s.Binning)
	}

	out, err := yaml.Marshal(&p)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("%s: write %s: %w", op, path, err)
	}
	return nil
}

// LoadProject reads a project file and the dataset it references.
func LoadProject(path string, logger *zap.Logger) (*analysis.Session, error) {
	const op = "io.LoadProject"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, missing(op, path, err)
	}
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s: parse %s: %w", op, path, err)
	}
	ds, err := ReadDataset(resolve(filepath.Dir(path), p.Data), logger)
	if err != nil {
		return nil, err
	}

	if err := checkLength(op, "filter", len(p.Filter), ds.NumFragments(), false); err != nil {
		return nil, err
	}
	if err := checkLength(op, "corrections", len(p.Corrections), ds.NumFragments(), true); err != nil {
		return nil, err
	}
	if err := checkLength(op, "region_means", len(p.RegionMeans), ds.NumRegions(), true); err != nil {
		return nil, err
	}

	s := analysis.New(ds, logger)
	if len(p.Filter) > 0 {
		s.Mask = common.Mask(p.Filter)
	}
	s.Corrections = p.Corrections
	s.RegionMeans = p.RegionMeans
	s.TransMean = p.TransMean
	if p.Gamma != nil && p.Sigma != nil {
		s.Distance = &distance.Params{Gamma: *p.Gamma, Sigma: *p.Sigma}
		if p.Intercept != nil {
			s.Distance.Intercept = *p.Intercept
		}
	}
	if p.Binning != nil {
		model, err := binningModel(p.Binning, ds)
		if err != nil {
			return nil, err
		}
		s.Binning = model
	}
	if p.Normalization != "" {
		s.Normalization = p.Normalization
	}
	s.PrependHistory(p.History)
	return s, nil
}

func checkLength(op, field string, got, want int, optional bool) error {
	if got == want || (optional && got == 0) {
		return nil
	}
	return common.Errorf(common.InvalidArgument, op, "%s has %d entries, dataset needs %d", field, got, want)
}

func binningRecord(m *binning.Model) *BinningRecord {
	rec := &BinningRecord{
		ModelParameters: m.ParameterNames(),
		FragIndices:     m.FragBins,
		LogLikelihood:   m.LogLikelihood,
		Iterations:      m.Iterations,
	}
	for _, f := range m.Features {
		rec.Features = append(rec.Features, FeatureRecord{
			Name:        f.Name,
			Strategy:    f.Strategy,
			Const:       f.Const,
			NumBins:     f.NumBins,
			Edges:       f.Edges,
			Corrections: f.Corrections,
		})
	}
	return rec
}

func binningModel(rec *BinningRecord, ds *common.Dataset) (*binning.Model, error) {
	const op = "io.binningModel"
	if len(rec.FragIndices) != ds.NumFragments() {
		return nil, common.Errorf(common.InvalidArgument, op, "binning indices cover %d fragments, dataset has %d", len(rec.FragIndices), ds.NumFragments())
	}
	m := &binning.Model{
		FragBins:      rec.FragIndices,
		LogLikelihood: rec.LogLikelihood,
		Iterations:    rec.Iterations,
	}
	for h, f := range rec.Features {
		if len(f.Edges) != f.NumBins || len(f.Corrections) != binning.PairCount(f.NumBins) {
			return nil, common.Errorf(common.InvalidArgument, op, "feature %q has inconsistent bin arrays", f.Name)
		}
		for i, bins := range rec.FragIndices {
			if len(bins) != len(rec.Features) || bins[h] < 0 || bins[h] >= f.NumBins {
				return nil, common.Errorf(common.InvalidArgument, op, "fragment %d has an invalid bin for feature %q", i, f.Name)
			}
		}
		m.Features = append(m.Features, binning.Feature{
			Name:        f.Name,
			Strategy:    f.Strategy,
			Const:       f.Const,
			NumBins:     f.NumBins,
			Edges:       f.Edges,
			Corrections: f.Corrections,
		})
	}
	return m, nil
}
