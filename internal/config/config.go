// Package config loads application configuration from an optional TOML file
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the application configuration.
type Config struct {
	ListenAddr      string
	DBPath          string
	UploadDir       string
	AppID           string
	AppSecret       string
	EncryptionKey   string
	CipherMode      string
	RefreshInterval time.Duration
	GraphBaseURL    string
	DefaultUserID   int64
	LogLevel        string
	LogFormat       string

	// ConfigFile is the TOML file values were read from, if any.
	ConfigFile string
	// UndecodedKeys lists keys in ConfigFile that matched no setting.
	UndecodedKeys []string
}

// fileConfig mirrors Config for TOML decoding. Durations are strings.
type fileConfig struct {
	ListenAddr      string `toml:"listen_addr"`
	DBPath          string `toml:"db_path"`
	UploadDir       string `toml:"upload_dir"`
	CipherMode      string `toml:"cipher_mode"`
	RefreshInterval string `toml:"refresh_interval"`
	GraphBaseURL    string `toml:"graph_base_url"`
	DefaultUserID   int64  `toml:"default_user_id"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`

	Facebook struct {
		AppID     string `toml:"app_id"`
		AppSecret string `toml:"app_secret"`
	} `toml:"facebook"`

	EncryptionKey string `toml:"encryption_key"`
}

// defaults returns the configuration used when nothing is set.
func defaults() *Config {
	return &Config{
		ListenAddr:      "127.0.0.1:8080",
		DBPath:          "pagescheduler.db",
		UploadDir:       "uploads",
		CipherMode:      "aes-256-cbc",
		RefreshInterval: 24 * time.Hour,
		DefaultUserID:   1,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// HasAppCredentials returns true when both the Facebook app id and secret
// are configured. Values stored through the settings API can still supply
// them when this is false.
func (c *Config) HasAppCredentials() bool {
	return c.AppID != "" && c.AppSecret != ""
}

// Load builds the configuration: defaults, then the TOML file named by
// FPS_CONFIG_FILE (if set), then FPS_* environment variables. All values are
// optional.
func Load() (*Config, error) {
	cfg := defaults()

	if path, ok := os.LookupEnv("FPS_CONFIG_FILE"); ok && path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := overlayEnv(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	md, err := toml.Decode(string(data), &fc)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.ConfigFile = path
	for _, k := range md.Undecoded() {
		cfg.UndecodedKeys = append(cfg.UndecodedKeys, k.String())
	}

	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.UploadDir, fc.UploadDir)
	setString(&cfg.AppID, fc.Facebook.AppID)
	setString(&cfg.AppSecret, fc.Facebook.AppSecret)
	setString(&cfg.EncryptionKey, fc.EncryptionKey)
	setString(&cfg.CipherMode, fc.CipherMode)
	setString(&cfg.GraphBaseURL, fc.GraphBaseURL)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	if fc.DefaultUserID != 0 {
		cfg.DefaultUserID = fc.DefaultUserID
	}
	if fc.RefreshInterval != "" {
		d, err := time.ParseDuration(fc.RefreshInterval)
		if err != nil {
			return fmt.Errorf("config file %s: refresh_interval has invalid duration %q: %w", path, fc.RefreshInterval, err)
		}
		cfg.RefreshInterval = d
	}
	return nil
}

func overlayEnv(cfg *Config) error {
	envString(&cfg.ListenAddr, "FPS_LISTEN_ADDR")
	envString(&cfg.DBPath, "FPS_DB_PATH")
	envString(&cfg.UploadDir, "FPS_UPLOAD_DIR")
	envString(&cfg.AppID, "FPS_FACEBOOK_APP_ID")
	envString(&cfg.AppSecret, "FPS_FACEBOOK_APP_SECRET")
	envString(&cfg.EncryptionKey, "FPS_ENCRYPTION_KEY")
	envString(&cfg.CipherMode, "FPS_CIPHER_MODE")
	envString(&cfg.GraphBaseURL, "FPS_GRAPH_BASE_URL")
	envString(&cfg.LogLevel, "FPS_LOG_LEVEL")
	envString(&cfg.LogFormat, "FPS_LOG_FORMAT")

	if v, ok := os.LookupEnv("FPS_REFRESH_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FPS_REFRESH_INTERVAL has invalid duration %q: %w", v, err)
		}
		cfg.RefreshInterval = parsed
	}

	if v, ok := os.LookupEnv("FPS_DEFAULT_USER_ID"); ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FPS_DEFAULT_USER_ID has invalid user id %q: %w", v, err)
		}
		cfg.DefaultUserID = parsed
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", cfg.RefreshInterval)
	}
	if cfg.DefaultUserID <= 0 {
		return fmt.Errorf("default user id must be positive, got %d", cfg.DefaultUserID)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", cfg.LogLevel)
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", cfg.LogFormat)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}
