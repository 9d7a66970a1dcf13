package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridshot/tierkit/pkg/config"
)

type testConfig struct {
	Addr     string        `env:"TEST_ADDR" envDefault:":8080"`
	Table    string        `env:"TEST_TABLE,required"`
	Interval time.Duration `env:"TEST_INTERVAL" envDefault:"1h"`
	Limit    int32         `env:"TEST_LIMIT" envDefault:"3"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults and overrides", func(t *testing.T) {
		t.Setenv("TEST_TABLE", "subscriptions")
		t.Setenv("TEST_INTERVAL", "30m")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, "subscriptions", cfg.Table)
		assert.Equal(t, 30*time.Minute, cfg.Interval)
		assert.Equal(t, int32(3), cfg.Limit)
	})

	t.Run("missing required variable", func(t *testing.T) {
		type strict struct {
			Secret string `env:"TEST_UNSET_SECRET,required"`
		}
		var cfg strict
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil target", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, config.Load[testConfig](nil), config.ErrNilPointer)
	})
}
