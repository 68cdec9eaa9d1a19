// Package config provides configuration for the chat client and the demo chat backend.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the menuchat configuration.
type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Backend BackendConfig `yaml:"backend"`
	Logging LoggingConfig `yaml:"logging"`
}

// ClientConfig configures the chat session.
type ClientConfig struct {
	// Chat endpoint
	ChatURL string `yaml:"chat_url"`

	// Connection settings
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	SendRetryDelay   time.Duration `yaml:"send_retry_delay"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// Conversation settings
	BusyPolicy string `yaml:"busy_policy"` // allow, reject or queue

	// Surface settings
	ScrollDelay   time.Duration `yaml:"scroll_delay"`
	PanelWidth    int           `yaml:"panel_width"`
	PanelMinWidth int           `yaml:"panel_min_width"`
	PanelMaxWidth int           `yaml:"panel_max_width"`
}

// BackendConfig configures the demo chat backend.
type BackendConfig struct {
	// Server settings
	WSPort int `yaml:"ws_port"`

	// WebSocket settings
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size"`

	// Menu knowledge
	MenuDB       string `yaml:"menu_db"`
	MenuSeedFile string `yaml:"menu_seed_file"`
	ContextLimit int    `yaml:"context_limit"`

	// Answer streaming
	StreamChunkSize int     `yaml:"stream_chunk_size"`
	StreamRate      float64 `yaml:"stream_rate"` // chunks per second, 0 disables pacing

	// Question policy
	MaxQuestionLen int `yaml:"max_question_len"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Client: ClientConfig{
			ChatURL:          getEnv("CHAT_URL", "ws://localhost:8000/ws/chat"),
			ReconnectDelay:   getEnvMillis("RECONNECT_DELAY_MS", 3000),
			SendRetryDelay:   getEnvMillis("SEND_RETRY_DELAY_MS", 1000),
			WriteTimeout:     getEnvMillis("WS_WRITE_TIMEOUT_MS", 10000),
			HandshakeTimeout: getEnvMillis("WS_HANDSHAKE_TIMEOUT_MS", 5000),
			BusyPolicy:       getEnv("BUSY_POLICY", "allow"),
			ScrollDelay:      getEnvMillis("SCROLL_DELAY_MS", 50),
			PanelWidth:       getEnvInt("PANEL_WIDTH", 400),
			PanelMinWidth:    getEnvInt("PANEL_MIN_WIDTH", 300),
			PanelMaxWidth:    getEnvInt("PANEL_MAX_WIDTH", 800),
		},
		Backend: BackendConfig{
			WSPort:          getEnvInt("WS_PORT", 8000),
			PingInterval:    getEnvMillis("WS_PING_INTERVAL_MS", 30000),
			WriteTimeout:    getEnvMillis("WS_WRITE_TIMEOUT_MS", 10000),
			ReadTimeout:     getEnvMillis("WS_READ_TIMEOUT_MS", 60000),
			MaxMessageSize:  int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
			MenuDB:          getEnv("MENU_DB", ":memory:"),
			MenuSeedFile:    getEnv("MENU_SEED_FILE", ""),
			ContextLimit:    getEnvInt("CONTEXT_LIMIT", 3),
			StreamChunkSize: getEnvInt("STREAM_CHUNK_SIZE", 8),
			StreamRate:      getEnvFloat("STREAM_RATE", 40),
			MaxQuestionLen:  getEnvInt("MAX_QUESTION_LEN", 500),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "console"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		},
	}
}

// LoadFile overlays values from a YAML file on top of cfg.
// Keys missing from the file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validation errors.
var (
	ErrInvalidURL        = errors.New("chat_url must be a ws:// or wss:// URL")
	ErrInvalidBusyPolicy = errors.New("busy_policy must be one of allow, reject, queue")
	ErrInvalidWidthRange = errors.New("panel width range is empty")
	ErrInvalidDelay      = errors.New("delays must be positive")
)

// Validate checks the configuration for values the session cannot run with.
func (c *Config) Validate() error {
	u := c.Client.ChatURL
	if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		return fmt.Errorf("%w: %q", ErrInvalidURL, u)
	}
	switch c.Client.BusyPolicy {
	case "allow", "reject", "queue":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBusyPolicy, c.Client.BusyPolicy)
	}
	if c.Client.PanelMinWidth > c.Client.PanelMaxWidth {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidWidthRange, c.Client.PanelMinWidth, c.Client.PanelMaxWidth)
	}
	if c.Client.ReconnectDelay <= 0 || c.Client.SendRetryDelay <= 0 {
		return ErrInvalidDelay
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}
