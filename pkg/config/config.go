// Package config loads server settings from defaults, an optional .env file, the
// environment, and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration keys. Each is also the lower-cased name of its environment variable.
const (
	KeyAnthropicAPIKey = "anthropic_api_key"
	KeyHost            = "websocket_host"
	KeyPort            = "websocket_port"
	KeyClaudeModel     = "claude_model"
	KeySearchMaxTokens = "search_max_tokens"
	KeySearchTimeout   = "search_timeout"
	KeyMetricsAddr     = "metrics_addr"
	KeyLogLevel        = "log_level"
	KeyTransport       = "mcp_transport"
)

// Transports.
const (
	TransportWebSocket = "websocket"
	TransportStdio     = "stdio"
)

// DefaultEnvFile is read from the working directory when present.
const DefaultEnvFile = ".env"

// ErrMissingAPIKey is returned when no Anthropic credential is configured.
var ErrMissingAPIKey = errors.New("ANTHROPIC_API_KEY is required")

// Config holds the server settings.
type Config struct {
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
	Host            string        `mapstructure:"websocket_host"`
	Port            int           `mapstructure:"websocket_port"`
	ClaudeModel     string        `mapstructure:"claude_model"`
	SearchMaxTokens int           `mapstructure:"search_max_tokens"`
	SearchTimeout   time.Duration `mapstructure:"search_timeout"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	LogLevel        string        `mapstructure:"log_level"`
	Transport       string        `mapstructure:"mcp_transport"`
}

// NewViper returns a viper instance with defaults set and every key bound to its
// environment variable.
func NewViper() (v *viper.Viper) {
	v = viper.New()

	v.SetDefault(KeyAnthropicAPIKey, "")
	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyPort, 8765)
	v.SetDefault(KeyClaudeModel, "claude-3-7-sonnet-latest")
	v.SetDefault(KeySearchMaxTokens, 4000)
	v.SetDefault(KeySearchTimeout, "0s")
	v.SetDefault(KeyMetricsAddr, ":9090")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyTransport, TransportWebSocket)

	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}

	return v
}

// Load reads envFile if it exists, then decodes and validates the configuration.
// An empty envFile skips the file.
func Load(v *viper.Viper, envFile string) (cfg Config, err error) {
	if envFile != "" {
		err = readEnvFile(v, envFile)
		if err != nil {
			return cfg, err
		}
	}

	err = v.Unmarshal(&cfg)
	if err != nil {
		err = fmt.Errorf("decoding configuration: %w", err)
		return cfg, err
	}

	err = cfg.Validate()
	return cfg, err
}

// readEnvFile merges a dotenv file into v. A missing file is not an error.
func readEnvFile(v *viper.Viper, path string) (err error) {
	_, statErr := os.Stat(path)
	if errors.Is(statErr, os.ErrNotExist) {
		return err
	}

	v.SetConfigFile(path)
	v.SetConfigType("env")

	err = v.ReadInConfig()
	if err != nil {
		err = fmt.Errorf("reading %s: %w", path, err)
		return err
	}

	return err
}

// Validate checks the configuration for values the server cannot start with.
func (c Config) Validate() (err error) {
	if c.AnthropicAPIKey == "" {
		err = ErrMissingAPIKey
		return err
	}

	if c.Port < 1 || c.Port > 65535 {
		err = fmt.Errorf("invalid WEBSOCKET_PORT %d", c.Port)
		return err
	}

	if c.Transport != TransportWebSocket && c.Transport != TransportStdio {
		err = fmt.Errorf("invalid MCP_TRANSPORT %q (want %s or %s)", c.Transport, TransportWebSocket, TransportStdio)
		return err
	}

	if c.SearchMaxTokens <= 0 {
		err = fmt.Errorf("invalid SEARCH_MAX_TOKENS %d", c.SearchMaxTokens)
		return err
	}

	if c.SearchTimeout < 0 {
		err = fmt.Errorf("invalid SEARCH_TIMEOUT %s", c.SearchTimeout)
		return err
	}

	_, err = ParseLogLevel(c.LogLevel)
	return err
}

// Addr returns the WebSocket listen address.
func (c Config) Addr() (result string) {
	result = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	return result
}

// ParseLogLevel maps a level name onto a slog.Level.
func ParseLogLevel(name string) (level slog.Level, err error) {
	switch strings.ToLower(name) {
	case "debug":
		level = slog.LevelDebug

	case "", "info":
		level = slog.LevelInfo

	case "warn", "warning":
		level = slog.LevelWarn

	case "error":
		level = slog.LevelError

	default:
		err = fmt.Errorf("invalid LOG_LEVEL %q", name)
	}

	return level, err
}
