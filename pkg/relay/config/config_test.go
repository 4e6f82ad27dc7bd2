package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessors(t *testing.T) {
	cfg := New(map[string]any{
		"name":     "relay",
		"capacity": 1024,
		"enabled":  true,
		"ttl":      "5m",
	})

	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "relay", cfg.String("name", "fallback"))
		assert.Equal(t, "fallback", cfg.String("missing", "fallback"))
		assert.Equal(t, "fallback", cfg.String("capacity", "fallback"))
	})

	t.Run("int", func(t *testing.T) {
		assert.Equal(t, 1024, cfg.Int("capacity", 0))
		assert.Equal(t, 7, cfg.Int("missing", 7))

		withFloats := New(map[string]any{"whole": float64(16), "frac": 1.5})
		assert.Equal(t, 16, withFloats.Int("whole", 0))
		assert.Equal(t, 9, withFloats.Int("frac", 9))
	})

	t.Run("bool", func(t *testing.T) {
		assert.True(t, cfg.Bool("enabled", false))
		assert.False(t, cfg.Bool("missing", false))
	})

	t.Run("duration", func(t *testing.T) {
		assert.Equal(t, 5*time.Minute, cfg.Duration("ttl", 0))
		assert.Equal(t, time.Hour, cfg.Duration("missing", time.Hour))

		seconds := New(map[string]any{"cooldown": 30})
		assert.Equal(t, 30*time.Second, seconds.Duration("cooldown", 0))
	})

	t.Run("has", func(t *testing.T) {
		assert.True(t, cfg.Has("name"))
		assert.False(t, cfg.Has("missing"))
	})
}

func TestSection(t *testing.T) {
	cfg := New(map[string]any{
		"retry": map[string]any{
			"max_attempts": 5,
			"base_backoff": "500ms",
		},
	})

	retry := cfg.Section("retry")
	assert.Equal(t, 5, retry.Int("max_attempts", 0))
	assert.Equal(t, 500*time.Millisecond, retry.Duration("base_backoff", 0))

	empty := cfg.Section("missing")
	assert.Equal(t, 3, empty.Int("anything", 3))
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
queue_capacity: 512
idempotency_ttl: 10m
retry:
  max_attempts: 5
breaker:
  failure_threshold: 3
  cooldown: 45s
`))
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Int("queue_capacity", 0))
	assert.Equal(t, 10*time.Minute, cfg.Duration("idempotency_ttl", 0))
	assert.Equal(t, 5, cfg.Section("retry").Int("max_attempts", 0))
	assert.Equal(t, 45*time.Second, cfg.Section("breaker").Duration("cooldown", 0))
}

func TestFromYAMLInvalid(t *testing.T) {
	_, err := FromYAML([]byte("{invalid"))
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	cfg, err := FromJSON([]byte(`{"queue_capacity": 512, "retry": {"max_attempts": 5}}`))
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Int("queue_capacity", 0))
	assert.Equal(t, 5, cfg.Section("retry").Int("max_attempts", 0))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("queue_capacity: 256"), 0o644))

	cfg, err := FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Int("queue_capacity", 0))

	t.Run("unsupported extension", func(t *testing.T) {
		badPath := filepath.Join(dir, "relay.toml")
		require.NoError(t, os.WriteFile(badPath, []byte(""), 0o644))
		_, err := FromFile(badPath)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := FromFile(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}
