package config

// Filtering parameters
const (
	DefaultMinInteractions = 20
	DefaultMinDistance     = 0
	DefaultMaxDistance     = 0 // 0 means unbounded
)

// Probability (gradient descent) parameters
const (
	DefaultBurninIterations    = 5000
	DefaultAnnealingIterations = 10000
	DefaultLearningRate        = 0.1 // float64
	DefaultPrecalculate        = true
)

// Express parameters
const (
	DefaultExpressIterations = 1000
)

// Binning parameters
const (
	DefaultLearningThreshold = 1.0 // float64
	DefaultMaxIterations     = 100
	DefaultGradientTolerance = 1e-8 // float64
)

// Read subsets
const (
	UseCis   = "cis"
	UseTrans = "trans"
	UseAll   = "all"
)

// Normalization choices for the CLI driver
const (
	NormalizeNone        = "none"
	NormalizeProbability = "probability"
	NormalizeExpress     = "express"
	NormalizeBinning     = "binning"
)

// Default binning model: GC content and fragment length, 10 even bins each
var DefaultBinningModel = []string{"gc", "len"}
var DefaultBinningNumBins = []int{10, 10}
var DefaultBinningParameters = []string{"even", "even"}

// Config is the resolved configuration of one CLI run.
type Config struct {
	MinInteractions int
	MinDistance     int
	MaxDistance     int
	Quiet           bool
	Normalize       string

	Probability ProbabilityConfig
	Express     ExpressConfig
	Binning     BinningConfig
}

// ProbabilityConfig holds gradient descent solver settings.
type ProbabilityConfig struct {
	BurninIterations    int
	AnnealingIterations int
	LearningRate        float64
	Precalculate        bool
	Precorrect          bool
	Regions             []int
}

// ExpressConfig holds express solver settings.
type ExpressConfig struct {
	Iterations     int
	RemoveDistance bool
	UseReads       string
	Precorrect     bool
	Regions        []int
}

// BinningConfig holds binning model settings.
type BinningConfig struct {
	Model             []string
	NumBins           []int
	Parameters        []string
	LearningThreshold float64
	MaxIterations     int
	UseReads          string
	Precorrect        bool
	Regions           []int
}
