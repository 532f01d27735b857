// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.hamzawi/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: model selection per generation mode (chat, title, image, video)
//   - Storage: local data directory for the session database
//   - Video: polling cadence for long-running video operations
//   - Serve: HTTP listen address and per-IP rate limits
//
// Security: the API key is never logged; the config directory uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the Gemini API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidHistoryLimit indicates the history limit is out of range.
	ErrInvalidHistoryLimit = errors.New("invalid history limit")

	// ErrInvalidPollInterval indicates a video poll interval is out of range.
	ErrInvalidPollInterval = errors.New("invalid poll interval")

	// ErrInvalidRateLimit indicates the outbound rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidDataDir indicates the data directory is empty.
	ErrInvalidDataDir = errors.New("invalid data directory")
)

// Default model identifiers per generation mode.
const (
	// DefaultChatModel is the conversational model.
	DefaultChatModel = "gemini-2.5-flash"

	// DefaultTitleModel generates short session titles.
	DefaultTitleModel = "gemini-2.5-flash"

	// DefaultImageModel generates images from text prompts.
	DefaultImageModel = "imagen-4.0-generate-001"

	// DefaultVideoModel starts long-running video generation operations.
	DefaultVideoModel = "veo-2.0-generate-001"
)

const (
	// DefaultMaxHistoryMessages is the default number of prior turns
	// replayed into a chat handle.
	DefaultMaxHistoryMessages = 100

	// MaxAllowedHistoryMessages is the absolute maximum to prevent OOM.
	MaxAllowedHistoryMessages = 10000
)

// PersonaConfig declares a user-defined persona in the config file.
type PersonaConfig struct {
	ID           string `mapstructure:"id" json:"id"`
	Name         string `mapstructure:"name" json:"name"`
	Tagline      string `mapstructure:"tagline" json:"tagline,omitempty"`
	Theme        string `mapstructure:"theme" json:"theme,omitempty"`
	SystemPrompt string `mapstructure:"system_prompt" json:"-"`
}

// Config stores application configuration.
// SECURITY: the API key is explicitly masked in MarshalJSON().
type Config struct {
	// Gemini API key. Usually supplied via GEMINI_API_KEY.
	APIKey string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON

	// Model selection per generation mode.
	ChatModel  string `mapstructure:"chat_model" json:"chat_model"`
	TitleModel string `mapstructure:"title_model" json:"title_model"`
	ImageModel string `mapstructure:"image_model" json:"image_model"`
	VideoModel string `mapstructure:"video_model" json:"video_model"`

	// Language is the preferred response language ("auto" = follow the user).
	Language string `mapstructure:"language" json:"language"`

	// Personas declared in the config file, layered over the built-ins.
	Personas []PersonaConfig `mapstructure:"personas" json:"personas,omitempty"`

	// DataDir holds the session database and lock file.
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	// MaxHistoryMessages bounds how many prior turns are replayed into
	// a chat handle when it is (re)created.
	MaxHistoryMessages int `mapstructure:"max_history_messages" json:"max_history_messages"`

	// Video operation polling cadence.
	VideoPollInitialDelay time.Duration `mapstructure:"video_poll_initial_delay" json:"video_poll_initial_delay"`
	VideoPollInterval     time.Duration `mapstructure:"video_poll_interval" json:"video_poll_interval"`

	// Proactive outbound rate limiting toward the Gemini API.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second"`
	RequestBurst      int     `mapstructure:"request_burst" json:"request_burst"`

	// Serve mode.
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Logging.
	LogFile  string `mapstructure:"log_file" json:"log_file"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".hamzawi")

	// Ensure directory exists (0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("chat_model", DefaultChatModel)
	v.SetDefault("title_model", DefaultTitleModel)
	v.SetDefault("image_model", DefaultImageModel)
	v.SetDefault("video_model", DefaultVideoModel)
	v.SetDefault("language", "auto")
	v.SetDefault("data_dir", configDir)
	v.SetDefault("max_history_messages", DefaultMaxHistoryMessages)
	v.SetDefault("video_poll_initial_delay", 5*time.Second)
	v.SetDefault("video_poll_interval", 10*time.Second)
	v.SetDefault("requests_per_second", 10.0)
	v.SetDefault("request_burst", 30)
	v.SetDefault("listen_addr", "127.0.0.1:3400")
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key string, envVars ...string) {
		args := append([]string{key}, envVars...)
		if err := v.BindEnv(args...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %v: %v", key, envVars, err))
		}
	}

	// The Gemini API key: GEMINI_API_KEY is the canonical name.
	mustBind("api_key", "GEMINI_API_KEY", "HAMZAWI_API_KEY")

	mustBind("chat_model", "HAMZAWI_CHAT_MODEL")
	mustBind("image_model", "HAMZAWI_IMAGE_MODEL")
	mustBind("video_model", "HAMZAWI_VIDEO_MODEL")
	mustBind("data_dir", "HAMZAWI_DATA_DIR")
	mustBind("listen_addr", "HAMZAWI_LISTEN_ADDR")
	mustBind("log_file", "HAMZAWI_LOG_FILE")
	mustBind("log_level", "HAMZAWI_LOG_LEVEL")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid substring matching against real values.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Fully masks short secrets; shows first/last 2 characters of longer ones.
//
// THREAT MODEL: this defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate keys.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - APIKey
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.APIKey = maskSecret(a.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// SlogLevel maps the configured log level string to a slog.Level.
// Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
