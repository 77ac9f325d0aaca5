package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration, assembled with precedence
// file > environment > defaults.
type Config struct {
	HTTP      *HTTPConfig
	Database  *DatabaseConfig
	WebSocket *WebSocketConfig
	Auth      *AuthConfig
	Chat      *ChatConfig
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Path    string
	Timeout time.Duration
}

type WebSocketConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

type AuthConfig struct {
	// Secret is the HS256 key shared with the token-issuing backend.
	Secret string
}

type ChatConfig struct {
	// HistoryLimit caps how many messages are replayed on class join.
	HistoryLimit int
}

// DefaultConfig returns settings sized for a single classroom deployment.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: &DatabaseConfig{
			Path:    "./classhub.db",
			Timeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Auth: &AuthConfig{
			Secret: "dev-secret-change-me",
		},
		Chat: &ChatConfig{
			HistoryLimit: 100,
		},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("http configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket intervals must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("websocket buffer size must be positive")
	}
	if c.Auth == nil || c.Auth.Secret == "" {
		return fmt.Errorf("auth secret cannot be empty")
	}
	if c.Chat == nil || c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat history limit must be positive")
	}
	return nil
}

// LoadFromEnv returns defaults overridden by CLASSHUB_* environment
// variables. Unparseable values fall back silently, same as missing ones.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if host := os.Getenv("CLASSHUB_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("CLASSHUB_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if v := os.Getenv("CLASSHUB_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("CLASSHUB_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}
	if path := os.Getenv("CLASSHUB_DATABASE_PATH"); path != "" {
		config.Database.Path = path
	}
	if v := os.Getenv("CLASSHUB_DATABASE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Database.Timeout = d
		}
	}
	if v := os.Getenv("CLASSHUB_WEBSOCKET_PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WebSocket.PingInterval = d
		}
	}
	if v := os.Getenv("CLASSHUB_WEBSOCKET_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WebSocket.ReadTimeout = d
		}
	}
	if v := os.Getenv("CLASSHUB_WEBSOCKET_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WebSocket.WriteTimeout = d
		}
	}
	if v := os.Getenv("CLASSHUB_WEBSOCKET_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.WebSocket.BufferSize = n
		}
	}
	if secret := os.Getenv("CLASSHUB_AUTH_SECRET"); secret != "" {
		config.Auth.Secret = secret
	}
	if v := os.Getenv("CLASSHUB_CHAT_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Chat.HistoryLimit = n
		}
	}

	return config
}

// configFile mirrors the YAML layout; durations arrive as strings.
type configFile struct {
	HTTP *struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"http"`
	Database *struct {
		Path    string `yaml:"path"`
		Timeout string `yaml:"timeout"`
	} `yaml:"database"`
	WebSocket *struct {
		PingInterval string `yaml:"ping_interval"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		BufferSize   int    `yaml:"buffer_size"`
	} `yaml:"websocket"`
	Auth *struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
	Chat *struct {
		HistoryLimit int `yaml:"history_limit"`
	} `yaml:"chat"`
}

// LoadFromFile reads a YAML config file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// applyFile overlays the fields a YAML file sets onto config, leaving every
// field the file omits untouched.
func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		setDuration(&config.HTTP.ReadTimeout, file.HTTP.ReadTimeout)
		setDuration(&config.HTTP.WriteTimeout, file.HTTP.WriteTimeout)
	}
	if file.Database != nil {
		if file.Database.Path != "" {
			config.Database.Path = file.Database.Path
		}
		setDuration(&config.Database.Timeout, file.Database.Timeout)
	}
	if file.WebSocket != nil {
		setDuration(&config.WebSocket.PingInterval, file.WebSocket.PingInterval)
		setDuration(&config.WebSocket.ReadTimeout, file.WebSocket.ReadTimeout)
		setDuration(&config.WebSocket.WriteTimeout, file.WebSocket.WriteTimeout)
		if file.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = file.WebSocket.BufferSize
		}
	}
	if file.Auth != nil && file.Auth.Secret != "" {
		config.Auth.Secret = file.Auth.Secret
	}
	if file.Chat != nil && file.Chat.HistoryLimit > 0 {
		config.Chat.HistoryLimit = file.Chat.HistoryLimit
	}
	return nil
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// Load applies the precedence file > environment > defaults, field by
// field: a field the file omits keeps its environment or default value.
// A missing or unreadable file degrades to environment and defaults.
func Load(path string) *Config {
	config := LoadFromEnv()
	if path != "" {
		if err := applyFile(config, path); err != nil {
			log.Printf("config file ignored: %v", err)
		}
	}
	return config
}
