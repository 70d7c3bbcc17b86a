package coordinator

import (
	"fmt"
	"math"
	"time"

	"github.com/absmach/flcore/pkg/fl"
)

type Config struct {
	AggregationMethod string        `env:"FL_AGGREGATION_METHOD" envDefault:"average"   toml:"aggregation_method"`
	LearningRate      float64       `env:"FL_LEARNING_RATE"      envDefault:"0.01"      toml:"learning_rate"`
	Patience          uint64        `env:"FL_PATIENCE"           envDefault:"3"         toml:"patience"`
	SecureAggregation bool          `env:"FL_SECURE_AGGREGATION" envDefault:"true"      toml:"secure_aggregation"`
	NoiseSigma        float64       `env:"FL_NOISE_SIGMA"        envDefault:"0.1"       toml:"noise_sigma"`
	ClientTimeout     time.Duration `env:"FL_CLIENT_TIMEOUT"     envDefault:"5m"        toml:"client_timeout"`
	MaxConcurrency    int           `env:"FL_MAX_CONCURRENCY"    envDefault:"0"         toml:"max_concurrency"`
	EventsTopic       string        `env:"FL_EVENTS_TOPIC"       envDefault:"fl/rounds" toml:"events_topic"`
	ModelDir          string        `env:"FL_MODEL_DIR"          envDefault:"./models"  toml:"model_dir"`
}

// Validate rejects settings that would make every round fail.
func (c Config) Validate() error {
	if _, err := fl.NewAggregator(c.AggregationMethod); err != nil {
		return err
	}
	if err := fl.ValidateSigma(c.NoiseSigma); err != nil {
		return err
	}
	if c.Patience == 0 {
		return fmt.Errorf("%w: patience must be positive", fl.ErrConfiguration)
	}
	if math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0) || c.LearningRate <= 0 {
		return fmt.Errorf("%w: learning rate must be a positive finite number, got %v", fl.ErrConfiguration, c.LearningRate)
	}
	if c.ClientTimeout < 0 {
		return fmt.Errorf("%w: client timeout must not be negative", fl.ErrConfiguration)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("%w: max concurrency must not be negative", fl.ErrConfiguration)
	}

	return nil
}
