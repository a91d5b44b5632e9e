package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, "token.json", s.Schwab.TokenPath)
	assert.Equal(t, 5*time.Second, s.Stream.RefreshInterval)
	assert.Equal(t, 30*time.Second, s.Stream.ReconnectTimeout)
	assert.Equal(t, 20.0, s.Stream.StrikesRange)
	assert.Equal(t, 5*time.Minute, s.Cache.TTL)
	assert.Equal(t, "INFO", s.Logging.Level)
}

func TestApplyEnv(t *testing.T) {
	s := Default()
	err := s.ApplyEnv(envMap(map[string]string{
		"SCHWAB_API_KEY":          "key",
		"SCHWAB_TOKEN_PATH":       "/tmp/token.json",
		"MASSIVE_API_KEY":         "massive",
		"MASSIVE_BASE_URL":        "https://api.massive.com",
		"STREAM_REFRESH_INTERVAL": "10",
		"STREAM_STRIKES_RANGE":    "35",
		"GEX_DEFAULT_VOLATILITY":  "25.5",
		"GEX_CACHE_TTL":           "2m",
		"LOG_LEVEL":               "debug",
		"REDIS_ADDR":              "localhost:6379",
	}))
	require.NoError(t, err)

	assert.Equal(t, "key", s.Schwab.APIKey)
	assert.Equal(t, "/tmp/token.json", s.Schwab.TokenPath)
	assert.Equal(t, "massive", s.Massive.APIKey)
	assert.Equal(t, "https://api.massive.com", s.Massive.BaseURL)
	assert.Equal(t, 10*time.Second, s.Stream.RefreshInterval)
	assert.Equal(t, 35.0, s.Stream.StrikesRange)
	assert.Equal(t, 25.5, s.GEX.DefaultVolatility)
	assert.Equal(t, 2*time.Minute, s.Cache.TTL)
	assert.Equal(t, "debug", s.Logging.Level)
	assert.Equal(t, "localhost:6379", s.Cache.RedisAddr)
}

func TestApplyEnv_Invalid(t *testing.T) {
	s := Default()
	err := s.ApplyEnv(envMap(map[string]string{"STREAM_STRIKES_RANGE": "wide"}))
	assert.ErrorContains(t, err, "STREAM_STRIKES_RANGE")
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gexmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stream:
  strikes_range: 50
gex:
  default_volatility: 30
  interest_rate: 3.9
cache:
  ttl: 90s
http:
  addr: ":9090"
`), 0o644))

	t.Setenv("GEX_INTEREST_RATE", "5.25")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50.0, s.Stream.StrikesRange)
	assert.Equal(t, 30.0, s.GEX.DefaultVolatility)
	assert.Equal(t, 5.25, s.GEX.InterestRate, "environment wins over file")
	assert.Equal(t, 90*time.Second, s.Cache.TTL)
	assert.Equal(t, ":9090", s.HTTP.Addr)

	params := s.NormalizerParams()
	assert.Equal(t, 30.0, params.DefaultVolatility)
	assert.Equal(t, 5.25, params.InterestRate)
	assert.NotNil(t, params.Now)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "cannot read config file")
}

func TestValidate(t *testing.T) {
	s := Default()
	s.Stream.StrikesRange = 0
	assert.Error(t, s.Validate())

	s = Default()
	s.GEX.DefaultVolatility = -1
	assert.Error(t, s.Validate())
}
