package flcore_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/flcore"
	"github.com/absmach/flcore/pkg/storage"
	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log_level = "debug"

[coordinator]
aggregation_method = "median"
patience = 9
client_timeout = "45s"

[storage]
type = "sqlite"
sqlite_path = "/var/lib/flcore/checkpoints.db"

[mqtt]
address = "tcp://broker:1883"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig(t *testing.T) {
	base, err := env.ParseAs[flcore.Config]()
	require.NoError(t, err)

	cases := []struct {
		desc  string
		path  string
		check func(t *testing.T, cfg *flcore.Config)
		err   bool
	}{
		{
			desc: "file values override the base",
			path: writeConfig(t, sample),
			check: func(t *testing.T, cfg *flcore.Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "median", cfg.Coordinator.AggregationMethod)
				assert.Equal(t, uint64(9), cfg.Coordinator.Patience)
				assert.Equal(t, 45*time.Second, cfg.Coordinator.ClientTimeout)
				assert.Equal(t, storage.TypeSQLite, cfg.Storage.Type)
				assert.Equal(t, "/var/lib/flcore/checkpoints.db", cfg.Storage.SQLitePath)
				assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Address)
			},
		},
		{
			desc: "absent keys keep base values",
			path: writeConfig(t, sample),
			check: func(t *testing.T, cfg *flcore.Config) {
				assert.InDelta(t, base.Coordinator.LearningRate, cfg.Coordinator.LearningRate, 0)
				assert.Equal(t, base.Coordinator.EventsTopic, cfg.Coordinator.EventsTopic)
				assert.Equal(t, base.Storage.RedisPrefix, cfg.Storage.RedisPrefix)
				assert.Equal(t, base.Simulation, cfg.Simulation)
				assert.Equal(t, base.MetricsPort, cfg.MetricsPort)
			},
		},
		{
			desc: "missing file",
			path: filepath.Join(t.TempDir(), "absent.toml"),
			err:  true,
		},
		{
			desc: "malformed file",
			path: writeConfig(t, "[coordinator\npatience = "),
			err:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg, err := flcore.LoadConfig(tc.path, base)
			if tc.err {
				assert.Error(t, err)
				assert.Nil(t, cfg)

				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := env.ParseAs[flcore.Config]()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, storage.TypeFile, cfg.Storage.Type)
	assert.Empty(t, cfg.MQTT.Address)
	assert.Equal(t, 4, cfg.Simulation.Clients)
	assert.Equal(t, "./models", cfg.Coordinator.ModelDir)
	assert.Equal(t, "model.cbor", cfg.ModelFile)
	require.NoError(t, cfg.Coordinator.Validate())
}
