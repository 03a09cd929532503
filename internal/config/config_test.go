package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := NewConfigFromViper(newDefaultViper())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "console", cfg.Logger().Format)
	assert.Equal(t, "127.0.0.1:8931", cfg.Server().ListenAddr)

	b := cfg.Browser()
	assert.True(t, b.Headless)
	assert.Equal(t, 3, b.LaunchAttempts)
	assert.Equal(t, time.Second, b.LaunchBackoff)
	assert.Equal(t, 10*time.Second, b.LaunchCap)
	assert.Equal(t, 30*time.Minute, b.MaxSessionAge)

	s := cfg.Screenshot()
	assert.Equal(t, 1<<20, s.MaxSizeBytes)
	assert.Equal(t, []int{80, 60, 40, 20}, s.QualityLadder)

	a := cfg.Assert()
	assert.Equal(t, 200*time.Millisecond, a.PollInterval)
	assert.Equal(t, 5*time.Second, a.DefaultTimeout)
	assert.Equal(t, 2*time.Second, a.SettleDelay)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("PAGESMITH_SERVER_LISTEN_ADDR", "0.0.0.0:9000")
	t.Setenv("PAGESMITH_LOGGER_LEVEL", "debug")

	cfg, err := NewConfigFromViper(newDefaultViper())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server().ListenAddr)
	assert.Equal(t, "debug", cfg.Logger().Level)
}

func TestValidationFailures(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"bad logger format":    {"logger.format": "xml"},
		"empty listen addr":    {"server.listen_addr": ""},
		"zero launch attempts": {"browser.launch_attempts": 0},
		"zero page attempts":   {"browser.page_attempts": 0},
		"zero session age":     {"browser.max_session_age": "0s"},
		"zero size budget":     {"screenshot.max_size_bytes": 0},
		"ascending ladder":     {"screenshot.quality_ladder": []int{20, 40}},
		"repeated rung":        {"screenshot.quality_ladder": []int{60, 60}},
		"out of range rung":    {"screenshot.quality_ladder": []int{120}},
		"zero poll interval":   {"assert.poll_interval": "0s"},
		"zero default timeout": {"assert.default_timeout": "0s"},
	}
	for name, overrides := range cases {
		v := newDefaultViper()
		for key, value := range overrides {
			v.Set(key, value)
		}
		_, err := NewConfigFromViper(v)
		assert.Error(t, err, name)
	}
}
