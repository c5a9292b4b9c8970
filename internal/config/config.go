// Package config loads gateway configuration: built-in defaults, optional
// YAML file, then environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Downstream DownstreamConfig `yaml:"downstream"`
	Checks     CheckConfig      `yaml:"checks"`
	Store      StoreConfig      `yaml:"store"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DownstreamConfig points at the external model runtimes and the optional
// remote analyzer services.
type DownstreamConfig struct {
	NLIURL         string `yaml:"nli_url"`
	GeneratorURL   string `yaml:"generator_url"`
	GeneratorModel string `yaml:"generator_model"`
	SentimentURL   string `yaml:"sentiment_url"`

	ClaimsServiceURL     string `yaml:"claims_service_url"`
	PreferenceServiceURL string `yaml:"preference_service_url"`
	EntropyServiceURL    string `yaml:"entropy_service_url"`
	NumericalServiceURL  string `yaml:"numerical_service_url"`
}

// CheckConfig holds the tunables of the scoring core. Batch sizes and
// deadlines are configuration rather than code.
type CheckConfig struct {
	NumCompletions  int `yaml:"num_completions"`
	NLIBatchSize    int `yaml:"nli_batch_size"`
	ClaimsBatchSize int `yaml:"claims_batch_size"`

	EntropyTimeout    time.Duration `yaml:"entropy_timeout"`
	ClaimsTimeout     time.Duration `yaml:"claims_timeout"`
	PreferenceTimeout time.Duration `yaml:"preference_timeout"`
	NLITimeout        time.Duration `yaml:"nli_timeout"`
	ExternalTimeout   time.Duration `yaml:"external_timeout"`
}

// StoreConfig selects the audit/config persistence backend.
type StoreConfig struct {
	RedisAddr   string `yaml:"redis_addr"`
	DatabaseURL string `yaml:"database_url"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 210 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Downstream: DownstreamConfig{
			NLIURL:         "http://localhost:8001",
			GeneratorURL:   "http://localhost:11434",
			GeneratorModel: "llama3.1:8b",
		},
		Checks: CheckConfig{
			NumCompletions:    10,
			NLIBatchSize:      20,
			ClaimsBatchSize:   10,
			EntropyTimeout:    180 * time.Second,
			ClaimsTimeout:     120 * time.Second,
			PreferenceTimeout: 60 * time.Second,
			NLITimeout:        10 * time.Second,
			ExternalTimeout:   30 * time.Second,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	setEnv(&c.Downstream.NLIURL, "NLI_URL")
	setEnv(&c.Downstream.GeneratorURL, "GENERATOR_URL")
	setEnv(&c.Downstream.GeneratorModel, "GENERATOR_MODEL")
	setEnv(&c.Downstream.SentimentURL, "SENTIMENT_URL")
	setEnv(&c.Downstream.ClaimsServiceURL, "CLAIMS_SERVICE_URL")
	setEnv(&c.Downstream.PreferenceServiceURL, "PREFERENCE_SERVICE_URL")
	setEnv(&c.Downstream.EntropyServiceURL, "ENTROPY_SERVICE_URL")
	setEnv(&c.Downstream.NumericalServiceURL, "NUMERICAL_SERVICE_URL")
	setEnv(&c.Store.RedisAddr, "REDIS_ADDR")
	setEnv(&c.Store.DatabaseURL, "DATABASE_URL")
}

func setEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects configurations the scoring core cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Checks.NumCompletions < 2 || c.Checks.NumCompletions > 20 {
		return fmt.Errorf("num_completions must be in [2, 20], got %d", c.Checks.NumCompletions)
	}
	if c.Checks.NLIBatchSize < 1 {
		return fmt.Errorf("nli_batch_size must be >= 1, got %d", c.Checks.NLIBatchSize)
	}
	if c.Checks.ClaimsBatchSize < 1 {
		return fmt.Errorf("claims_batch_size must be >= 1, got %d", c.Checks.ClaimsBatchSize)
	}
	return nil
}
