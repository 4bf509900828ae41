package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected *Config
	}{
		{
			name: "default config",
			envVars: map[string]string{
				"PROJECT_ID": "test-project",
			},
			expected: &Config{
				ProjectID:    "test-project",
				LogLevel:     "info",
				ServerPort:   "8080",
				StoreBackend: StoreBackendDatastore,
				SourcesFile:  "config.json",
			},
		},
		{
			name: "custom config",
			envVars: map[string]string{
				"PROJECT_ID":    "custom-project",
				"LOG_LEVEL":     "debug",
				"SERVER_PORT":   "9000",
				"STORE_BACKEND": "Memory",
				"SOURCES_FILE":  "/etc/republisher/sources.yaml",
			},
			expected: &Config{
				ProjectID:    "custom-project",
				LogLevel:     "debug",
				ServerPort:   "9000",
				StoreBackend: StoreBackendMemory,
				SourcesFile:  "/etc/republisher/sources.yaml",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			config := NewConfig()
			assert.Equal(t, tt.expected.ProjectID, config.ProjectID)
			assert.Equal(t, tt.expected.LogLevel, config.LogLevel)
			assert.Equal(t, tt.expected.ServerPort, config.ServerPort)
			assert.Equal(t, tt.expected.StoreBackend, config.StoreBackend)
			assert.Equal(t, tt.expected.SourcesFile, config.SourcesFile)
		})
	}
}

func TestEngineDefaults(t *testing.T) {
	e := NewConfig().EngineConfig

	assert.Equal(t, 10*time.Minute, e.PollInterval)
	assert.Equal(t, 10*time.Second, e.ProcessInterval)
	assert.Equal(t, 10, e.BatchSize)
	assert.Equal(t, 30*time.Minute, e.RetryWindow)
	assert.Equal(t, 10*time.Minute, e.TargetCooldown)
	assert.Equal(t, 15*time.Second, e.PageTimeout)
	assert.Equal(t, 20*time.Second, e.TargetTimeout)
	assert.Zero(t, e.TargetConcurrency)
	assert.Zero(t, e.MaxItemAttempts)
}

func TestEngineEnvOverrides(t *testing.T) {
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("TARGET_COOLDOWN", "5m")
	t.Setenv("FEED_RATE_LIMIT", "0.5")
	t.Setenv("PAGE_TIMEOUT", "not-a-duration")

	config := NewConfig()
	opts := config.EngineOptions()
	assert.Equal(t, 25, opts.BatchSize)
	assert.Equal(t, 5*time.Minute, opts.TargetCooldown)
	assert.Equal(t, 0.5, opts.FeedRateLimit)
	// malformed values fall back to the default
	assert.Equal(t, 15*time.Second, opts.PageTimeout)
}

func TestConfigValidation(t *testing.T) {
	t.Setenv("PROJECT_ID", "test-project")

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"datastore without project", func(c *Config) { c.ProjectID = "" }, "PROJECT_ID"},
		{"memory without project", func(c *Config) { c.ProjectID = ""; c.StoreBackend = StoreBackendMemory }, ""},
		{"unknown backend", func(c *Config) { c.StoreBackend = "redis" }, "unsupported STORE_BACKEND"},
		{"no sources file", func(c *Config) { c.SourcesFile = "" }, "SOURCES_FILE"},
		{"zero batch", func(c *Config) { c.EngineConfig.BatchSize = 0 }, "BATCH_SIZE"},
		{"zero interval", func(c *Config) { c.EngineConfig.ProcessInterval = 0 }, "intervals"},
		{"zero cooldown", func(c *Config) { c.EngineConfig.TargetCooldown = 0 }, "cooldown"},
		{"zero timeout", func(c *Config) { c.EngineConfig.TargetTimeout = 0 }, "timeouts"},
		{"negative attempts", func(c *Config) { c.EngineConfig.MaxItemAttempts = -1 }, "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewAppConfigWithMemoryStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`sources:
  - rss_url: https://src.example/feed
    title_selector: h1
    content_selector: div.body
    domains:
      - base_url: https://t1.example
        username: publisher
        application_password: secret
`), 0o600))

	t.Setenv("STORE_BACKEND", StoreBackendMemory)
	t.Setenv("SOURCES_FILE", path)
	t.Setenv("LOG_LEVEL", "error")

	app, err := NewAppConfig()
	require.NoError(t, err)
	defer app.Services.Close()

	st, err := app.Services.Container.GetStore()
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)
	assert.NoError(t, st.Ping(context.Background()))

	eng, err := app.Services.Container.GetEngine()
	require.NoError(t, err)
	snap, err := eng.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Targets(), 1)

	handler, err := app.Services.Container.GetHandler()
	require.NoError(t, err)
	assert.NotNil(t, handler)

	again, err := app.Services.Container.GetEngine()
	require.NoError(t, err)
	assert.Same(t, eng, again)
}

func TestNewAppConfigRejectsBrokenSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sources":[{"rss_url":"https://src.example/feed"}]}`), 0o600))

	t.Setenv("STORE_BACKEND", StoreBackendMemory)
	t.Setenv("SOURCES_FILE", path)

	_, err := NewAppConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources validation failed")
}
