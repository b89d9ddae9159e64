package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/alchemist-core/kernel"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "alchemist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfigFile(t, `
bus:
  url: nats://localhost:4222
  credsFile: /etc/alchemist/bus.creds
contentStore:
  root: /var/lib/alchemist/content
eventLog:
  root: /var/lib/alchemist/events
kernel:
  maxInlineBytes: 32768
rateLimit:
  tiers:
    gpt:
      capacity: 60
      rate: 1
policy:
  file: /etc/alchemist/policy.yaml
cache:
  redisAddr: localhost:6379
  memoryCapacity: 5000
renderer:
  channelCapacity: 200
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", cfg.Bus.URL)
	assert.Equal(t, 32768, cfg.Kernel.MaxInlineBytes)
	assert.Equal(t, float64(60), cfg.RateLimit.Tiers["gpt"].Capacity)
	assert.Equal(t, 5000, cfg.Cache.MemoryCapacity)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfigFile(t, `
bus:
  url: nats://localhost:4222
notAField: true
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
bus:
  url: nats://localhost:4222
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, kernel.MaxInlineDefault, cfg.Kernel.MaxInlineBytes)
	assert.Equal(t, 100, cfg.Renderer.ChannelCapacity)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfigFile(t, `
bus:
  url: nats://localhost:4222
`)
	t.Setenv("ALCHEMIST_BUS_URL", "nats://override:4222")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://override:4222", cfg.Bus.URL)
}
