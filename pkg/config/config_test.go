package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/qaflow/pkg/trace"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qaflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
store:
  backend: redis
  redis_addr: localhost:6379
timeouts:
  navigation: 20s
  interaction: 8s
  assertion: 2s
run:
  parallel: 4
  test_timeout: 2m
  retries: 1
  results_dir: out
trace:
  enabled: true
  redactions:
    - pattern: 'hunter\d+'
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 20*time.Second, cfg.Timeouts.Navigation)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.Assertion)
	assert.Equal(t, 4, cfg.Run.Parallelism)
	assert.Equal(t, 2*time.Minute, cfg.Run.TestTimeout)
	assert.Len(t, cfg.Trace.Redactions, 1)
	// untouched sections keep defaults
	assert.Equal(t, "chrome", cfg.Browser.Driver)
	assert.Equal(t, "lossy", cfg.Compile.Mode)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	_, err := Load(writeFile(t, "run:\n  paralel: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paralel")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QAFLOW_PARALLEL", "3")
	t.Setenv("QAFLOW_TEST_TIMEOUT", "90s")
	t.Setenv("QAFLOW_BROWSER", "memory")
	t.Setenv("QAFLOW_BROWSER_FIXTURE", "pages.yaml")
	t.Setenv("QAFLOW_HEADLESS", "no")

	cfg, err := Load(writeFile(t, "run:\n  parallel: 8\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Run.Parallelism)
	assert.Equal(t, 90*time.Second, cfg.Run.TestTimeout)
	assert.Equal(t, "memory", cfg.Browser.Driver)
	assert.False(t, cfg.Browser.Headless)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"timeout order", func(c *Config) { c.Timeouts.Assertion = time.Minute }, "navigation"},
		{"parallelism", func(c *Config) { c.Run.Parallelism = 0 }, "Run.Parallelism"},
		{"backend enum", func(c *Config) { c.Store.Backend = "sqlite" }, "Store.Backend must be one of"},
		{"redis needs addr", func(c *Config) { c.Store.Backend = "redis" }, "Store.RedisAddr is required"},
		{"s3 needs bucket", func(c *Config) { c.Artifacts.Backend = "s3" }, "Artifacts.S3Bucket is required"},
		{"memory needs fixture", func(c *Config) { c.Browser.Driver = "memory" }, "Browser.Fixture is required"},
		{"mode", func(c *Config) { c.Compile.Mode = "fuzzy" }, "Compile.Mode"},
		{"empty redaction", func(c *Config) { c.Trace.Redactions = append(c.Trace.Redactions, trace.RedactionRule{}) }, "Pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
