package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/wanikani-client/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	v := New()
	v.SetConfigFile(writeConfig(t, "{}\n"))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, client.DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, client.DefaultTokenEnv, cfg.API.TokenEnv)
	assert.Equal(t, client.DefaultRevision, cfg.API.Revision)
	assert.Equal(t, client.DefaultTimeout, cfg.API.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Empty(t, cfg.RateLimit.RedisAddr)
	assert.Equal(t, 5, cfg.Vocab.MinSRSStage)
	assert.True(t, cfg.Vocab.Cumulative)
	assert.Equal(t, 0, cfg.Vocab.MaxPages)
	assert.Equal(t, 1, cfg.Vocab.Retries)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: http://localhost:9999/v2/
  timeout: 5s
log:
  level: debug
vocab:
  min_srs_stage: 7
  max_pages: 3
ratelimit:
  redis_addr: localhost:6379
`)
	t.Setenv("WANIKANI_VOCAB_MAX_PAGES", "4")
	t.Setenv("WANIKANI_API_TOKEN_ENV", "MY_WK_TOKEN")

	v := New()
	v.SetConfigFile(path)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999/v2/", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Vocab.MinSRSStage)
	assert.Equal(t, 4, cfg.Vocab.MaxPages, "environment overrides the file")
	assert.Equal(t, "MY_WK_TOKEN", cfg.API.TokenEnv)
	assert.Equal(t, "localhost:6379", cfg.RateLimit.RedisAddr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"stage above maximum", "vocab:\n  min_srs_stage: 10\n"},
		{"relative base url", "api:\n  base_url: v2/\n"},
		{"unknown log level", "log:\n  level: loud\n"},
		{"zero retries", "vocab:\n  retries: 0\n"},
		{"bad redis address", "ratelimit:\n  redis_addr: not an address\n"},
		{"malformed yaml", "api: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.SetConfigFile(writeConfig(t, tt.body))

			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, client.DefaultBaseURL, cfg.API.BaseURL)
}

func TestClientConfig(t *testing.T) {
	v := New()
	v.SetConfigFile(writeConfig(t, "api:\n  token_env: OTHER_TOKEN\n  user_agent: test-agent\n"))
	cfg, err := Load(v)
	require.NoError(t, err)

	cc := cfg.ClientConfig()
	assert.Equal(t, client.EnvToken("OTHER_TOKEN"), cc.Token)
	assert.Equal(t, "test-agent", cc.UserAgent)
	assert.Equal(t, client.DefaultBaseURL, cc.BaseURL)

	_, err = client.New(cc)
	assert.NoError(t, err, "building the transport never reads the token")
}
