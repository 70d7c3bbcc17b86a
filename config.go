// Package flcore wires the federated learning coordinator, its checkpoint
// storage and its event transport into one process configuration.
package flcore

import (
	"fmt"
	"os"
	"time"

	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/pkg/storage"
	"github.com/pelletier/go-toml"
)

type Config struct {
	LogLevel    string  `env:"FL_LOG_LEVEL"    envDefault:"info"       toml:"log_level"`
	InstanceID  string  `env:"FL_INSTANCE_ID"                          toml:"instance_id"`
	MetricsPort string  `env:"FL_METRICS_PORT" envDefault:"9090"       toml:"metrics_port"`
	OTELURL     string  `env:"FL_OTEL_URL"                             toml:"otel_url"`
	TraceRatio  float64 `env:"FL_TRACE_RATIO"  envDefault:"1.0"        toml:"trace_ratio"`
	ModelFile   string  `env:"FL_MODEL_FILE"   envDefault:"model.cbor" toml:"model_file"`

	Coordinator coordinator.Config `toml:"coordinator"`
	Storage     storage.Config     `toml:"storage"`
	MQTT        MQTTConfig         `toml:"mqtt"`
	Simulation  SimulationConfig   `toml:"simulation"`
}

// MQTTConfig enables round event publishing when Address is set.
type MQTTConfig struct {
	Address  string        `env:"FL_MQTT_ADDRESS"  toml:"address"`
	QoS      uint8         `env:"FL_MQTT_QOS"      envDefault:"1"   toml:"qos"`
	Timeout  time.Duration `env:"FL_MQTT_TIMEOUT"  envDefault:"30s" toml:"timeout"`
	Username string        `env:"FL_MQTT_USERNAME" toml:"username"`
	Password string        `env:"FL_MQTT_PASSWORD" toml:"password"`
}

// SimulationConfig shapes the local federation run by the coordinator binary.
type SimulationConfig struct {
	Clients     int     `env:"FL_SIM_CLIENTS"  envDefault:"4"   toml:"clients"`
	Features    int     `env:"FL_SIM_FEATURES" envDefault:"3"   toml:"features"`
	Samples     int     `env:"FL_SIM_SAMPLES"  envDefault:"256" toml:"samples"`
	Noise       float64 `env:"FL_SIM_NOISE"    envDefault:"0.1" toml:"noise"`
	Seed        uint64  `env:"FL_SIM_SEED"     envDefault:"1"   toml:"seed"`
	LocalEpochs uint    `env:"FL_LOCAL_EPOCHS" envDefault:"1"   toml:"local_epochs"`
	MaxRounds   uint64  `env:"FL_MAX_ROUNDS"   envDefault:"50"  toml:"max_rounds"`
}

// LoadConfig reads the TOML file at path over base. Keys absent from the file
// keep their value from base.
func LoadConfig(path string, base Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg := base
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
