package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/skosovsky/shapely"
	"github.com/skosovsky/shapely/provider/openai"
)

// Config is the CLI configuration, read from shapely.yaml and SHAPELY_* environment variables.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LLMConfig selects the OpenAI-compatible endpoint.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EngineConfig mirrors the engine options.
type EngineConfig struct {
	MaxRetries    int    `mapstructure:"max_retries"`
	MaxNudges     int    `mapstructure:"max_nudges"`
	ReturnRetries int    `mapstructure:"return_retries"`
	StrictSchemas bool   `mapstructure:"strict_schemas"`
	Context       string `mapstructure:"context"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// LoadConfig reads path (or shapely.yaml from the usual places when path is empty). A missing
// default file is not an error; a missing explicit file is.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", openai.DefaultModel)
	v.SetDefault("llm.temperature", openai.DefaultTemperature)
	v.SetDefault("llm.max_tokens", openai.DefaultMaxTokens)
	v.SetDefault("llm.max_retries", openai.DefaultMaxRetries)
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("engine.max_retries", shapely.DefaultMaxRetries)
	v.SetDefault("engine.max_nudges", 10)
	v.SetDefault("engine.return_retries", 0)
	v.SetDefault("engine.strict_schemas", false)
	v.SetDefault("engine.context", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("metrics.namespace", "shapely")

	if path == "" {
		v.SetConfigName("shapely")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/shapely")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SHAPELY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", "SHAPELY_LLM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
