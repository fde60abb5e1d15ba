package config

import (
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. FIVEC_MIN_INTERACTIONS.
const EnvPrefix = "FIVEC"

// flagKeys lists the viper keys that may be bound to a pflag of the same name.
var flagKeys = []string{
	"min-interactions",
	"min-distance",
	"max-distance",
	"quiet",
	"normalize",
	"config",
}

// RegisterFlags adds the driver's flags to fs.
func RegisterFlags(fs *flag.FlagSet) {
	fs.IntP("min-interactions", "i", DefaultMinInteractions, "minimum number of interactions needed for valid fragment")
	fs.IntP("min-distance", "m", DefaultMinDistance, "minimum interaction distance to include in learning")
	fs.IntP("max-distance", "x", DefaultMaxDistance, "maximum interaction distance to include in learning (0 = unbounded)")
	fs.BoolP("quiet", "q", false, "silence output messages")
	fs.StringP("normalize", "n", NormalizeNone, "fragment correction to learn: none, probability, express or binning")
	fs.StringP("config", "c", "", "optional YAML file with solver settings")
}

// Load resolves configuration with precedence flags > env > config file > defaults.
// flagSet may be nil.
func Load(flagSet *flag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flagSet != nil {
		for _, key := range flagKeys {
			if f := flagSet.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %q: %w", key, err)
				}
			}
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	cfg := &Config{
		MinInteractions: v.GetInt("min-interactions"),
		MinDistance:     v.GetInt("min-distance"),
		MaxDistance:     v.GetInt("max-distance"),
		Quiet:           v.GetBool("quiet"),
		Normalize:       v.GetString("normalize"),
		Probability: ProbabilityConfig{
			BurninIterations:    v.GetInt("probability.burnin-iterations"),
			AnnealingIterations: v.GetInt("probability.annealing-iterations"),
			LearningRate:        v.GetFloat64("probability.learning-rate"),
			Precalculate:        v.GetBool("probability.precalculate"),
			Precorrect:          v.GetBool("probability.precorrect"),
			Regions:             v.GetIntSlice("probability.regions"),
		},
		Express: ExpressConfig{
			Iterations:     v.GetInt("express.iterations"),
			RemoveDistance: v.GetBool("express.remove-distance"),
			UseReads:       v.GetString("express.usereads"),
			Precorrect:     v.GetBool("express.precorrect"),
			Regions:        v.GetIntSlice("express.regions"),
		},
		Binning: BinningConfig{
			Model:             v.GetStringSlice("binning.model"),
			NumBins:           v.GetIntSlice("binning.num-bins"),
			Parameters:        v.GetStringSlice("binning.parameters"),
			LearningThreshold: v.GetFloat64("binning.learning-threshold"),
			MaxIterations:     v.GetInt("binning.max-iterations"),
			UseReads:          v.GetString("binning.usereads"),
			Precorrect:        v.GetBool("binning.precorrect"),
			Regions:           v.GetIntSlice("binning.regions"),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("min-interactions", DefaultMinInteractions)
	v.SetDefault("min-distance", DefaultMinDistance)
	v.SetDefault("max-distance", DefaultMaxDistance)
	v.SetDefault("quiet", false)
	v.SetDefault("normalize", NormalizeNone)
	v.SetDefault("config", "")

	v.SetDefault("probability.burnin-iterations", DefaultBurninIterations)
	v.SetDefault("probability.annealing-iterations", DefaultAnnealingIterations)
	v.SetDefault("probability.learning-rate", DefaultLearningRate)
	v.SetDefault("probability.precalculate", DefaultPrecalculate)
	v.SetDefault("probability.precorrect", false)
	v.SetDefault("probability.regions", []int{})

	v.SetDefault("express.iterations", DefaultExpressIterations)
	v.SetDefault("express.remove-distance", false)
	v.SetDefault("express.usereads", UseCis)
	v.SetDefault("express.precorrect", false)
	v.SetDefault("express.regions", []int{})

	v.SetDefault("binning.model", DefaultBinningModel)
	v.SetDefault("binning.num-bins", DefaultBinningNumBins)
	v.SetDefault("binning.parameters", DefaultBinningParameters)
	v.SetDefault("binning.learning-threshold", DefaultLearningThreshold)
	v.SetDefault("binning.max-iterations", DefaultMaxIterations)
	v.SetDefault("binning.usereads", UseCis)
	v.SetDefault("binning.precorrect", false)
	v.SetDefault("binning.regions", []int{})
}
