// Package config loads server configuration from an optional YAML file,
// an optional .env file, and the process environment, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SourceWeight configures one entry of the fusion priority chain.
type SourceWeight struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// Config is the server configuration.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// DetectionInterval drives the server-owned periodic detection loop.
	// Zero disables the loop; detection then runs only on external
	// trigger requests.
	DetectionInterval time.Duration `yaml:"detection_interval"`

	// RestrictionsPath optionally seeds the store with restriction
	// records from a JSON file at startup.
	RestrictionsPath string `yaml:"restrictions"`

	// Sources is the fusion priority chain, highest weight first.
	// Empty means the stock adsb/radar/mlat chain.
	Sources []SourceWeight `yaml:"sources"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		HTTPAddr:          ":8080",
		MetricsAddr:       ":9090",
		DetectionInterval: 5 * time.Second,
	}
}

// Load reads configuration. A missing YAML file is not an error; a
// malformed one is. Environment variables (optionally via .env) override
// file values: HTTP_ADDR, METRICS_ADDR, DETECTION_INTERVAL_MS,
// RESTRICTIONS_PATH.
func Load(path string) (Config, error) {
	// Best-effort: a missing .env simply means the environment is already
	// populated.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to env/defaults
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("DETECTION_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			cfg.DetectionInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("RESTRICTIONS_PATH"); v != "" {
		cfg.RestrictionsPath = v
	}
}

func (c Config) validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr must not be empty")
	}
	last := 0.0
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d]: empty name", i)
		}
		if s.Weight <= 0 || s.Weight > 1 {
			return fmt.Errorf("sources[%d] %s: weight must be in (0, 1]", i, s.Name)
		}
		if i > 0 && s.Weight >= last {
			return fmt.Errorf("sources[%d] %s: weights must be strictly decreasing in priority order", i, s.Name)
		}
		last = s.Weight
	}
	return nil
}
