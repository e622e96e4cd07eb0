package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/gorack/pkg/engine"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gorack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gorack", cfg.Name)
	assert.Equal(t, float64(48000), cfg.SampleRate)
	assert.Equal(t, uint32(512), cfg.BufferSize)
	assert.False(t, cfg.Link)

	mode, err := cfg.EngineProcessMode()
	require.NoError(t, err)
	assert.Equal(t, engine.ProcessModeRack, mode)
}

func TestLoad(t *testing.T) {
	t.Run("PartialFileKeepsDefaults", func(t *testing.T) {
		path := writeConfig(t, "tempo: 140\nlink: true\n")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, float64(140), cfg.Tempo)
		assert.True(t, cfg.Link)
		assert.Equal(t, "gorack", cfg.Name)
		assert.Equal(t, uint32(512), cfg.BufferSize)
	})

	t.Run("FullFile", func(t *testing.T) {
		path := writeConfig(t, `
name: stage rig
process_mode: patchbay
sample_rate: 44100
buffer_size: 256
tempo: 98.5
beats_per_bar: 3
osc_port: 9000
log_level: debug
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "stage rig", cfg.Name)
		assert.Equal(t, float64(44100), cfg.SampleRate)
		assert.Equal(t, 9000, cfg.OSCPort)

		mode, err := cfg.EngineProcessMode()
		require.NoError(t, err)
		assert.Equal(t, engine.ProcessModePatchbay, mode)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("BadYAML", func(t *testing.T) {
		path := writeConfig(t, "tempo: [not a number\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("InvalidValuesRejected", func(t *testing.T) {
		path := writeConfig(t, "tempo: -10\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "tempo")
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errStr string
	}{
		{"EmptyName", func(c *Config) { c.Name = "" }, "name"},
		{"BadMode", func(c *Config) { c.ProcessMode = "surround" }, "process_mode"},
		{"ZeroRate", func(c *Config) { c.SampleRate = 0 }, "sample_rate"},
		{"ZeroBuffer", func(c *Config) { c.BufferSize = 0 }, "buffer_size"},
		{"TinyBar", func(c *Config) { c.BeatsPerBar = 0.5 }, "beats_per_bar"},
		{"PortTooBig", func(c *Config) { c.OSCPort = 70000 }, "osc_port"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.errStr)
		})
	}
}
