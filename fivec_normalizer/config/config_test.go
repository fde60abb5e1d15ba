package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FiveC-Bias-Correction/fivec_normalizer/common"
)

func parse(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultMinInteractions, cfg.MinInteractions)
	assert.Equal(t, 0, cfg.MaxDistance)
	assert.Equal(t, NormalizeNone, cfg.Normalize)
	assert.Equal(t, DefaultBurninIterations, cfg.Probability.BurninIterations)
	assert.Equal(t, DefaultAnnealingIterations, cfg.Probability.AnnealingIterations)
	assert.InDelta(t, DefaultLearningRate, cfg.Probability.LearningRate, 1e-12)
	assert.True(t, cfg.Probability.Precalculate)
	assert.Equal(t, DefaultExpressIterations, cfg.Express.Iterations)
	assert.Equal(t, UseCis, cfg.Express.UseReads)
	assert.Equal(t, DefaultBinningModel, cfg.Binning.Model)
	assert.Equal(t, DefaultBinningNumBins, cfg.Binning.NumBins)
	assert.Equal(t, DefaultBinningParameters, cfg.Binning.Parameters)
	assert.Equal(t, DefaultMaxIterations, cfg.Binning.MaxIterations)
	assert.Empty(t, cfg.Binning.Regions)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fivec.yaml")
	content := `min-interactions: 5
max-distance: 100000
normalize: binning
probability:
  burnin-iterations: 10
binning:
  model: [gc]
  num-bins: [4]
  parameters: [fixed-const]
  regions: [0, 2]
express:
  usereads: all
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("FIVEC_MAX_DISTANCE", "50000")

	cfg, err := Load(parse(t, "--config", path, "-i", "7"))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MinInteractions) // flag over file
	assert.Equal(t, 50000, cfg.MaxDistance) // env over file
	assert.Equal(t, NormalizeBinning, cfg.Normalize)
	assert.Equal(t, 10, cfg.Probability.BurninIterations)
	assert.Equal(t, DefaultAnnealingIterations, cfg.Probability.AnnealingIterations)
	assert.Equal(t, []string{"gc"}, cfg.Binning.Model)
	assert.Equal(t, []int{4}, cfg.Binning.NumBins)
	assert.Equal(t, []string{"fixed-const"}, cfg.Binning.Parameters)
	assert.Equal(t, []int{0, 2}, cfg.Binning.Regions)
	assert.Equal(t, UseAll, cfg.Express.UseReads)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(parse(t, "--config", filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(nil)
		require.NoError(t, err)
		return cfg
	}
	tests := map[string]func(*Config){
		"negative interactions": func(c *Config) { c.MinInteractions = -1 },
		"inverted window":       func(c *Config) { c.MinDistance, c.MaxDistance = 10, 5 },
		"unknown normalization": func(c *Config) { c.Normalize = "magic" },
		"zero learning rate":    func(c *Config) { c.Probability.LearningRate = 0 },
		"negative express":      func(c *Config) { c.Express.Iterations = -2 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			assert.True(t, errors.Is(Validate(cfg), common.ErrInvalidArgument))
		})
	}
	assert.NoError(t, Validate(base()))
}
