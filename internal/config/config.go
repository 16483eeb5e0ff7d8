package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`
	ConfigFile string `mapstructure:"CONFIG_FILE"`

	GeminiAPIKey string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel  string        `mapstructure:"GEMINI_MODEL"`
	AITimeout    time.Duration `mapstructure:"AI_TIMEOUT"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
}

// fileKeys maps keys of the JSON override file to the environment variable
// whose value they supply.
var fileKeys = map[string]string{
	"host":     "DB_HOST",
	"port":     "DB_PORT",
	"user":     "DB_USER",
	"password": "DB_PASSWORD",
	"dbname":   "DB_NAME",
}

// Load reads configuration from the environment, an optional .env file and
// an optional JSON file (CONFIG_FILE, default config.json). The JSON file
// only supplies database values whose environment variable is unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "postgres")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("CONFIG_FILE", "config.json")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("AI_TIMEOUT", "30s")
	v.SetDefault("REQUEST_TIMEOUT", "90s")
	v.SetDefault("BODY_LIMIT", "1M")

	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "CONFIG_FILE",
		"GEMINI_API_KEY", "GEMINI_MODEL", "AI_TIMEOUT",
		"REQUEST_TIMEOUT", "BODY_LIMIT",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	if err := applyFileOverrides(v, v.GetString("CONFIG_FILE")); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFileOverrides merges database values from a JSON file for every key
// not set in the environment. A missing file is not an error.
func applyFileOverrides(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}

	fv := viper.New()
	fv.SetConfigFile(path)
	fv.SetConfigType("json")
	if err := fv.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	for fileKey, envKey := range fileKeys {
		if !fv.IsSet(fileKey) {
			continue
		}
		if _, ok := os.LookupEnv(envKey); ok || v.InConfig(envKey) {
			continue
		}
		v.Set(envKey, fv.GetString(fileKey))
	}
	return nil
}

// Validate fails with one message naming every missing database field.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"DB_NAME", c.DBName},
		{"DB_USER", c.DBUser},
		{"DB_PASSWORD", c.DBPassword},
		{"DB_HOST", c.DBHost},
		{"DB_PORT", c.DBPort},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.AITimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be positive, got %s", c.AITimeout)
	}
	if c.RequestTimeout <= 2*c.AITimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must exceed twice AI_TIMEOUT (%s)", c.RequestTimeout, c.AITimeout)
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// DatabaseURL builds the postgres connection URL from the individual fields.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   net.JoinHostPort(c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	if c.DBSSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.DBSSLMode}}.Encode()
	}
	return u.String()
}

// AIEnabled reports whether a generative model credential is configured.
func (c *Config) AIEnabled() bool {
	return c.GeminiAPIKey != ""
}
