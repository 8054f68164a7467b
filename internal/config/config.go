// Package config loads the server configuration from defaults, an optional
// YAML file and CARDREC_* environment variables, in that order of precedence.
package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"golang.org/x/crypto/hkdf"
)

// ConfigPathEnvVar names the variable holding an explicit config file path.
const ConfigPathEnvVar = "CARDREC_CONFIG"

// DefaultConfigPaths are searched when CARDREC_CONFIG is unset.
var DefaultConfigPaths = []string{"cardrec.yaml", "/etc/cardrec/cardrec.yaml"}

const envPrefix = "CARDREC_"

// Config is the full server configuration.
type Config struct {
	Env      string `koanf:"env" validate:"oneof=development production"`
	Addr     string `koanf:"addr" validate:"required"`
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
	Debug    bool   `koanf:"debug"`

	Backend  BackendConfig  `koanf:"backend"`
	Store    StoreConfig    `koanf:"store"`
	Email    EmailConfig    `koanf:"email"`
	Security SecurityConfig `koanf:"security"`
}

// BackendConfig configures the recommendation API client.
type BackendConfig struct {
	URL             string        `koanf:"url" validate:"required,http_url"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown" validate:"gt=0"`
}

// StoreConfig configures where view state lives.
type StoreConfig struct {
	Driver        string        `koanf:"driver" validate:"oneof=memory sqlite"`
	Path          string        `koanf:"path" validate:"required_if=Driver sqlite"`
	ViewTTL       time.Duration `koanf:"view_ttl" validate:"gte=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	SlowQuery     time.Duration `koanf:"slow_query" validate:"gte=0"`
}

// EmailConfig configures recommendation email delivery. An empty ResendKey
// selects the logging no-op sender.
type EmailConfig struct {
	ResendKey string `koanf:"resend_key"`
	From      string `koanf:"from" validate:"required"`
	ReplyTo   string `koanf:"reply_to" validate:"omitempty,email"`
}

// SecurityConfig holds the master secret and request limits.
type SecurityConfig struct {
	Secret        string  `koanf:"secret" validate:"omitempty,hexadecimal,len=64"`
	SecureCookies bool    `koanf:"secure_cookies"`
	RateLimit     float64 `koanf:"rate_limit" validate:"gt=0"`
	RateBurst     int     `koanf:"rate_burst" validate:"gte=1"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Env:      "development",
		Addr:     ":8080",
		LogLevel: "info",
		Backend: BackendConfig{
			URL:             "http://localhost:5000",
			Timeout:         15 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:        "memory",
			Path:          "cardrec.db",
			ViewTTL:       24 * time.Hour,
			SweepInterval: 10 * time.Minute,
			SlowQuery:     50 * time.Millisecond,
		},
		Email: EmailConfig{
			From: "Card Recommender <noreply@cardrec.local>",
		},
		Security: SecurityConfig{
			RateLimit: 5,
			RateBurst: 20,
		},
	}
}

// envMappings maps CARDREC_* variables (prefix stripped, lower-cased) to koanf paths.
var envMappings = map[string]string{
	"env":                      "env",
	"addr":                     "addr",
	"log_level":                "log_level",
	"debug":                    "debug",
	"backend_url":              "backend.url",
	"backend_timeout":          "backend.timeout",
	"backend_breaker_failures": "backend.breaker_failures",
	"backend_breaker_cooldown": "backend.breaker_cooldown",
	"store_driver":             "store.driver",
	"store_path":               "store.path",
	"view_ttl":                 "store.view_ttl",
	"sweep_interval":           "store.sweep_interval",
	"slow_query":               "store.slow_query",
	"resend_key":               "email.resend_key",
	"email_from":               "email.from",
	"reply_to":                 "email.reply_to",
	"secret":                   "security.secret",
	"secure_cookies":           "security.secure_cookies",
	"rate_limit":               "security.rate_limit",
	"rate_burst":               "security.rate_burst",
}

// envTransformFunc maps an environment key to its koanf path. Unknown
// CARDREC_* variables map to "" and are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return envMappings[key]
}

// Load reads .env (if present), then layers defaults, the config file and
// the environment, and validates the result.
// POST: Returns a validated Config with a usable secret
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if cfg.Security.Secret == "" && !cfg.IsProduction() {
		secret, err := randomSecret(rand.Reader)
		if err != nil {
			return nil, err
		}
		cfg.Security.Secret = secret
		slog.Warn("config_event", "event", "generated_secret",
			"hint", "set CARDREC_SECRET so sessions survive restarts")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "" when there is none.
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	if c.IsProduction() && c.Security.Secret == "" {
		return errors.New("CARDREC_SECRET is required in production")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SlogLevel returns the configured log level.
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

// Keys are independent keys derived from the master secret.
type Keys struct {
	CSRF        []byte // 32 bytes, gorilla/csrf
	CookieHash  []byte // 64 bytes, securecookie HMAC
	CookieBlock []byte // 32 bytes, securecookie AES-256
}

// Keys expands the master secret with HKDF-SHA256, one info label per key.
// PRE: Validate has succeeded and Secret is set
func (c *Config) Keys() (Keys, error) {
	master, err := hex.DecodeString(c.Security.Secret)
	if err != nil {
		return Keys{}, fmt.Errorf("invalid secret: %w", err)
	}
	if len(master) == 0 {
		return Keys{}, errors.New("secret is not set")
	}
	derive := func(info string, n int) ([]byte, error) {
		out := make([]byte, n)
		if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), out); err != nil {
			return nil, fmt.Errorf("derive %s key: %w", info, err)
		}
		return out, nil
	}
	var k Keys
	if k.CSRF, err = derive("cardrec csrf", 32); err != nil {
		return Keys{}, err
	}
	if k.CookieHash, err = derive("cardrec cookie hash", 64); err != nil {
		return Keys{}, err
	}
	if k.CookieBlock, err = derive("cardrec cookie block", 32); err != nil {
		return Keys{}, err
	}
	return k, nil
}

func randomSecret(r io.Reader) (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
