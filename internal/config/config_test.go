package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "GSI1", cfg.GSI1Name)
	assert.Equal(t, "EmailIndex", cfg.EmailIndexName)
	assert.Equal(t, 500*time.Millisecond, cfg.SlowOperation)
	assert.True(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
table_name: from-file
event_bus_name: file-bus
breaker_timeout: 45s
enable_tracing: true
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TABLE_NAME", "from-env")
	t.Setenv("SLOW_OPERATION_THRESHOLD", "250ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.TableName, "environment wins over the file")
	assert.Equal(t, "file-bus", cfg.EventBusName, "file wins over defaults")
	assert.Equal(t, 45*time.Second, cfg.BreakerTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.SlowOperation)
	assert.True(t, cfg.EnableTracing)
	assert.Equal(t, "GSI1", cfg.GSI1Name)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("Should fail on a missing file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "read config file")
	})

	t.Run("Should fail on malformed YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("table_name: [unclosed"), 0o600))
		t.Setenv("CONFIG_FILE", path)

		_, err := LoadConfig()
		assert.ErrorContains(t, err, "parse config file")
	})

	t.Run("Should ignore unparsable numbers", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", "")
		t.Setenv("BREAKER_FAILURE_RATE", "lots")
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 0.6, cfg.BreakerFailureRate)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing table",
			mutate:  func(c *Config) { c.TableName = "" },
			wantErr: "TABLE_NAME",
		},
		{
			name:    "failure rate out of range",
			mutate:  func(c *Config) { c.BreakerFailureRate = 1.5 },
			wantErr: "BREAKER_FAILURE_RATE",
		},
		{
			name:    "production without secret",
			mutate:  func(c *Config) { c.Environment = "production" },
			wantErr: "JWT_SECRET",
		},
		{
			name: "production on the memory store",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.JWTSecret = "s3cret"
				c.UseMemoryStore = true
			},
			wantErr: "USE_MEMORY_STORE",
		},
		{
			name: "valid production",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.JWTSecret = "s3cret"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
