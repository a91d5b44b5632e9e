package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gexmap/chain"
)

// Settings holds the application configuration
type Settings struct {
	Schwab  SchwabConfig  `yaml:"schwab"`
	Massive MassiveConfig `yaml:"massive"`
	Stream  StreamConfig  `yaml:"stream"`
	GEX     GEXConfig     `yaml:"gex"`
	Cache   CacheConfig   `yaml:"cache"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

type SchwabConfig struct {
	APIKey            string  `yaml:"api_key"`
	AppSecret         string  `yaml:"app_secret"`
	CallbackURL       string  `yaml:"callback_url"`
	TokenPath         string  `yaml:"token_path"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type MassiveConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"` // empty uses the client library's default host
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
}

// StreamConfig controls dashboard refresh behaviour
type StreamConfig struct {
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
	StrikesRange     float64       `yaml:"strikes_range"` // price units either side of spot
}

// GEXConfig holds the gamma synthesis defaults, both in percent
type GEXConfig struct {
	DefaultVolatility float64 `yaml:"default_volatility"`
	InterestRate      float64 `yaml:"interest_rate"`
}

type CacheConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr"` // empty keeps results in process memory
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
	File   string `yaml:"file"`   // optional rotating log file
}

// Default returns the settings used when nothing else is configured
func Default() *Settings {
	return &Settings{
		Schwab: SchwabConfig{
			TokenPath:         "token.json",
			BaseURL:           "https://api.schwabapi.com",
			RequestsPerSecond: 2,
		},
		Stream: StreamConfig{
			RefreshInterval:  5 * time.Second,
			ReconnectTimeout: 30 * time.Second,
			StrikesRange:     20,
		},
		GEX: GEXConfig{
			DefaultVolatility: 20,
			InterestRate:      4.5,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "console",
		},
	}
}

// Load builds settings from defaults, an optional YAML file, then the environment.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("cannot parse YAML: %w", err)
		}
	}

	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyEnv overrides settings from environment variables
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	float := func(key string, dst *float64) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = f
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("SCHWAB_API_KEY", &s.Schwab.APIKey)
	str("SCHWAB_APP_SECRET", &s.Schwab.AppSecret)
	str("SCHWAB_CALLBACK_URL", &s.Schwab.CallbackURL)
	str("SCHWAB_TOKEN_PATH", &s.Schwab.TokenPath)
	str("MASSIVE_API_KEY", &s.Massive.APIKey)
	str("MASSIVE_BASE_URL", &s.Massive.BaseURL)
	str("LOG_LEVEL", &s.Logging.Level)
	str("LOG_FORMAT", &s.Logging.Format)
	str("LOG_FILE", &s.Logging.File)
	str("REDIS_ADDR", &s.Cache.RedisAddr)
	str("HTTP_ADDR", &s.HTTP.Addr)

	for _, set := range []func() error{
		func() error { return duration("STREAM_REFRESH_INTERVAL", &s.Stream.RefreshInterval) },
		func() error { return duration("STREAM_RECONNECT_TIMEOUT", &s.Stream.ReconnectTimeout) },
		func() error { return float("STREAM_STRIKES_RANGE", &s.Stream.StrikesRange) },
		func() error { return float("GEX_DEFAULT_VOLATILITY", &s.GEX.DefaultVolatility) },
		func() error { return float("GEX_INTEREST_RATE", &s.GEX.InterestRate) },
		func() error { return duration("GEX_CACHE_TTL", &s.Cache.TTL) },
	} {
		if err := set(); err != nil {
			return err
		}
	}
	return nil
}

// parseSeconds accepts a Go duration ("90s", "5m") or a bare number of seconds
func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

// Validate checks that the settings can drive the engines
func (s *Settings) Validate() error {
	if s.Stream.StrikesRange <= 0 {
		return fmt.Errorf("strikes range must be positive, got %v", s.Stream.StrikesRange)
	}
	if s.Stream.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %v", s.Stream.RefreshInterval)
	}
	if s.GEX.DefaultVolatility <= 0 {
		return fmt.Errorf("default volatility must be positive, got %v", s.GEX.DefaultVolatility)
	}
	if s.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative, got %v", s.Cache.TTL)
	}
	return nil
}

// NormalizerParams returns the gamma synthesis parameters for the chain normalizer
func (s *Settings) NormalizerParams() chain.Params {
	return chain.Params{
		DefaultVolatility: s.GEX.DefaultVolatility,
		InterestRate:      s.GEX.InterestRate,
		Now:               time.Now,
	}
}
