package coordinator_test

import (
	"math"
	"testing"
	"time"

	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/pkg/fl"
	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := env.ParseAs[coordinator.Config]()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, fl.MethodAverage, cfg.AggregationMethod)
	assert.InDelta(t, 0.01, cfg.LearningRate, 0)
	assert.Equal(t, uint64(3), cfg.Patience)
	assert.True(t, cfg.SecureAggregation)
	assert.InDelta(t, 0.1, cfg.NoiseSigma, 0)
	assert.Equal(t, 5*time.Minute, cfg.ClientTimeout)
	assert.Equal(t, "fl/rounds", cfg.EventsTopic)
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("FL_AGGREGATION_METHOD", "median")
	t.Setenv("FL_PATIENCE", "7")
	t.Setenv("FL_CLIENT_TIMEOUT", "30s")
	t.Setenv("FL_SECURE_AGGREGATION", "false")

	cfg, err := env.ParseAs[coordinator.Config]()
	require.NoError(t, err)
	assert.Equal(t, fl.MethodMedian, cfg.AggregationMethod)
	assert.Equal(t, uint64(7), cfg.Patience)
	assert.Equal(t, 30*time.Second, cfg.ClientTimeout)
	assert.False(t, cfg.SecureAggregation)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		desc   string
		modify func(c *coordinator.Config)
		err    error
	}{
		{desc: "valid", modify: func(*coordinator.Config) {}},
		{desc: "zero sigma", modify: func(c *coordinator.Config) { c.NoiseSigma = 0 }},
		{desc: "unknown method", modify: func(c *coordinator.Config) { c.AggregationMethod = "trimmed_mean" }, err: fl.ErrConfiguration},
		{desc: "negative sigma", modify: func(c *coordinator.Config) { c.NoiseSigma = -0.1 }, err: fl.ErrConfiguration},
		{desc: "NaN sigma", modify: func(c *coordinator.Config) { c.NoiseSigma = math.NaN() }, err: fl.ErrConfiguration},
		{desc: "zero patience", modify: func(c *coordinator.Config) { c.Patience = 0 }, err: fl.ErrConfiguration},
		{desc: "zero learning rate", modify: func(c *coordinator.Config) { c.LearningRate = 0 }, err: fl.ErrConfiguration},
		{desc: "infinite learning rate", modify: func(c *coordinator.Config) { c.LearningRate = math.Inf(1) }, err: fl.ErrConfiguration},
		{desc: "negative timeout", modify: func(c *coordinator.Config) { c.ClientTimeout = -time.Second }, err: fl.ErrConfiguration},
		{desc: "negative concurrency", modify: func(c *coordinator.Config) { c.MaxConcurrency = -1 }, err: fl.ErrConfiguration},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := testConfig()
			tc.modify(&cfg)
			err := cfg.Validate()
			if tc.err == nil {
				assert.NoError(t, err)

				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}
