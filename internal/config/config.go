// Package config provides configuration for the assistant service.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the assistant configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Checkpoint storage
	CheckpointDriver string // sqlite, postgres, mongo or memory
	DatabaseURL      string // SQLite file path
	PostgresURL      string
	MongoURL         string
	MongoDatabase    string

	// LLM settings
	Mode         string // MOCK selects the mock client
	OpenAIURL    string
	OpenAIKey    string
	Models       []string
	DefaultModel string
	Temperature  float32
	LLMTimeout   time.Duration

	// Engine limits
	ToolTimeout     time.Duration
	AutoConcurrency int
	MaxRetries      int
	MaxReplans      int
	HistoryWindow   int

	// Bundled data overrides; empty means the embedded defaults
	PolicyFile  string
	ToolCatalog string
	NetworkSeed string

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Logging
	LogLevel  string
	LogFormat string
}

// SetDefaults registers the default of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("CHECKPOINT_DRIVER", "sqlite")
	v.SetDefault("DATABASE_URL", "assistant.db")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("MONGO_URL", "")
	v.SetDefault("MONGO_DATABASE", "assistant")
	v.SetDefault("GOGO_MODE", "")
	v.SetDefault("OPENAI_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_MODELS", "qwen-plus,qwen-max,gpt-4o")
	v.SetDefault("DEFAULT_MODEL", "qwen-plus")
	v.SetDefault("TEMPERATURE", 0.7)
	v.SetDefault("LLM_TIMEOUT_MS", 60000)
	v.SetDefault("TOOL_TIMEOUT_MS", 30000)
	v.SetDefault("AUTO_CONCURRENCY", 8)
	v.SetDefault("MAX_RETRIES", 5)
	v.SetDefault("MAX_REPLANS", 2)
	v.SetDefault("HISTORY_WINDOW", 4)
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("TOOL_CATALOG", "")
	v.SetDefault("NETWORK_SEED", "")
	v.SetDefault("WS_PING_INTERVAL_MS", 30000)
	v.SetDefault("WS_WRITE_TIMEOUT_MS", 10000)
	v.SetDefault("WS_READ_TIMEOUT_MS", 60000)
	v.SetDefault("WS_MAX_MESSAGE_SIZE", 65536)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads the configuration from v. Environment variables win over the config
// file, which wins over the defaults. A missing config file is not an error.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	} else {
		v.SetConfigName("assistant")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, "failed to read config file")
			}
		}
	}

	cfg := &Config{
		HTTPPort:         v.GetInt("HTTP_PORT"),
		CheckpointDriver: strings.ToLower(v.GetString("CHECKPOINT_DRIVER")),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		PostgresURL:      v.GetString("POSTGRES_URL"),
		MongoURL:         v.GetString("MONGO_URL"),
		MongoDatabase:    v.GetString("MONGO_DATABASE"),
		Mode:             v.GetString("GOGO_MODE"),
		OpenAIURL:        v.GetString("OPENAI_BASE_URL"),
		OpenAIKey:        v.GetString("OPENAI_API_KEY"),
		Models:           splitList(v.GetString("OPENAI_MODELS")),
		DefaultModel:     v.GetString("DEFAULT_MODEL"),
		Temperature:      float32(v.GetFloat64("TEMPERATURE")),
		LLMTimeout:       millis(v, "LLM_TIMEOUT_MS"),
		ToolTimeout:      millis(v, "TOOL_TIMEOUT_MS"),
		AutoConcurrency:  v.GetInt("AUTO_CONCURRENCY"),
		MaxRetries:       v.GetInt("MAX_RETRIES"),
		MaxReplans:       v.GetInt("MAX_REPLANS"),
		HistoryWindow:    v.GetInt("HISTORY_WINDOW"),
		PolicyFile:       v.GetString("POLICY_FILE"),
		ToolCatalog:      v.GetString("TOOL_CATALOG"),
		NetworkSeed:      v.GetString("NETWORK_SEED"),
		PingInterval:     millis(v, "WS_PING_INTERVAL_MS"),
		WriteTimeout:     millis(v, "WS_WRITE_TIMEOUT_MS"),
		ReadTimeout:      millis(v, "WS_READ_TIMEOUT_MS"),
		MaxMessageSize:   v.GetInt64("WS_MAX_MESSAGE_SIZE"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFormat:        v.GetString("LOG_FORMAT"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.CheckpointDriver {
	case "sqlite", "postgres", "mongo", "memory":
	default:
		return errors.Errorf("unknown checkpoint driver %q", c.CheckpointDriver)
	}
	if c.CheckpointDriver == "postgres" && c.PostgresURL == "" {
		return errors.New("POSTGRES_URL is required for the postgres driver")
	}
	if c.CheckpointDriver == "mongo" && c.MongoURL == "" {
		return errors.New("MONGO_URL is required for the mongo driver")
	}
	if c.DefaultModel == "" {
		return errors.New("DEFAULT_MODEL is required")
	}
	if c.ReadTimeout <= c.PingInterval {
		return errors.New("WS_READ_TIMEOUT_MS must be longer than WS_PING_INTERVAL_MS")
	}
	return nil
}

// IsMock reports whether the mock LLM client should be used.
func (c *Config) IsMock() bool {
	return strings.EqualFold(c.Mode, "MOCK")
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
