package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quoteboard/internal/logger"
)

const (
	ProviderTwelveData   = "twelvedata"
	ProviderAlphaVantage = "alphavantage"

	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// DefaultPath is tried when no path is given and CONFIG_FILE is unset.
const DefaultPath = "config.yaml"

type Server struct {
	Port              string `yaml:"port"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
}

type Provider struct {
	Name       string `yaml:"name"`
	BaseURL    string `yaml:"base_url"`
	APIKeyDev  string `yaml:"api_key_dev"`
	APIKeyProd string `yaml:"api_key_prod"`
	DelayMS    int    `yaml:"delay_ms"`
	TimeoutSec int    `yaml:"timeout_sec"`
	// Query is added to every Twelve Data request, e.g. dp: "4" for price precision.
	// symbol and apikey are always set per request and cannot be overridden here.
	Query map[string]string `yaml:"query"`
	// Headers are sent with every provider request.
	Headers map[string]string `yaml:"headers"`
}

type Watchlist struct {
	Symbols            []string `yaml:"symbols"`
	RefreshIntervalSec int      `yaml:"refresh_interval_sec"`
}

type Metrics struct {
	Namespace string `yaml:"namespace"`
}

type Config struct {
	Env       string        `yaml:"env"`
	Server    Server        `yaml:"server"`
	Log       logger.Config `yaml:"log"`
	Provider  Provider      `yaml:"provider"`
	Watchlist Watchlist     `yaml:"watchlist"`
	Metrics   Metrics       `yaml:"metrics"`
}

func Default() Config {
	return Config{
		Env:    EnvDevelopment,
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Log:    logger.DefaultConfig(),
		Provider: Provider{
			Name:       ProviderTwelveData,
			DelayMS:    500,
			TimeoutSec: 10,
		},
		Watchlist: Watchlist{
			Symbols: []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META", "NFLX", "PEP", "KO", "WMT", "BA"},
		},
		Metrics: Metrics{Namespace: "quoteboard"},
	}
}

// Load reads YAML config from path. With an empty path it falls back to CONFIG_FILE and
// then DefaultPath; a missing file yields defaults. Environment variables override
// select fields, credentials in particular.
func Load(path string) (Config, error) {
	cfg := Default()
	path = Path(path)
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Path resolves the config file Load would read.
func Path(path string) string {
	if path != "" {
		return path
	}
	if v := os.Getenv("CONFIG_FILE"); v != "" {
		return v
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// Validate rejects settings no component can run with. A missing credential is not an
// error here: it fails each fetch cycle instead, so the server still starts.
func (c Config) Validate() error {
	switch c.Provider.Name {
	case ProviderTwelveData, ProviderAlphaVantage:
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider.Name)
	}
	if c.Server.Port == "" {
		return errors.New("config: server.port is required")
	}
	if c.Provider.DelayMS < 0 {
		return fmt.Errorf("config: provider.delay_ms must be >= 0, got %d", c.Provider.DelayMS)
	}
	if c.Watchlist.RefreshIntervalSec < 0 {
		return fmt.Errorf("config: watchlist.refresh_interval_sec must be >= 0, got %d", c.Watchlist.RefreshIntervalSec)
	}
	return nil
}

// Credential returns the provider key for the current environment.
func (c Config) Credential() string {
	if c.Env == EnvProduction {
		return c.Provider.APIKeyProd
	}
	return c.Provider.APIKeyDev
}

func (c Config) Delay() time.Duration {
	return time.Duration(c.Provider.DelayMS) * time.Millisecond
}

func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.Watchlist.RefreshIntervalSec) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSec) * time.Second
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = strings.ToLower(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if x, ok := envInt("REQUEST_TIMEOUT_SEC"); ok && x > 0 {
		cfg.Server.RequestTimeoutSec = x
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("QUOTE_PROVIDER"); v != "" {
		cfg.Provider.Name = strings.ToLower(v)
	}
	if v := os.Getenv("QUOTE_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("TWELVE_DATA_API_KEY_DEV"); v != "" {
		cfg.Provider.APIKeyDev = v
	}
	if v := os.Getenv("TWELVE_DATA_API_KEY_PROD"); v != "" {
		cfg.Provider.APIKeyProd = v
	}
	if x, ok := envInt("QUOTE_DELAY_MS"); ok && x >= 0 {
		cfg.Provider.DelayMS = x
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		cfg.Watchlist.Symbols = splitCSV(v)
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	x, err := strconv.Atoi(strings.TrimSpace(v))
	return x, err == nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
