package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"aercd/pkg/auth"
)

// ConfigPath is the default config file, relative to the working directory.
const ConfigPath = "config.yaml"

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
	SessionJWT    = "jwt"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string         `yaml:"port"`
	LogLevel                string         `yaml:"logLevel"`
	CORSOrigins             []string       `yaml:"corsOrigins"`
	TrustedProxyCIDRs       []string       `yaml:"trustedProxyCidrs"`
	RedisAddr               string         `yaml:"redisAddr"`
	RedisPassword           string         `yaml:"redisPassword"`
	SessionBackend          string         `yaml:"sessionBackend"`
	SessionSecret           string         `yaml:"sessionSecret"`
	SessionTTL              string         `yaml:"sessionTTL"`
	CookieSecure            bool           `yaml:"cookieSecure"`
	GeminiAPIKey            string         `yaml:"geminiApiKey"`
	GenerationProvider      string         `yaml:"generationProvider"`
	GenerationModel         string         `yaml:"generationModel"`
	GenerationBaseURL       string         `yaml:"generationBaseURL"`
	ChatTimeout             string         `yaml:"chatTimeout"`
	ChatHistoryLimit        int            `yaml:"chatHistoryLimit"`
	LoginRateLimitPerMinute int            `yaml:"loginRateLimitPerMinute"`
	ChatRateLimitPerMinute  int            `yaml:"chatRateLimitPerMinute"`
	SeedFile                string         `yaml:"seedFile"`
	RegistryFile            string         `yaml:"registryFile"`
	Accounts                []auth.Account `yaml:"accounts"`
}

func defaults() FileConfig {
	return FileConfig{
		Port:                    "8080",
		LogLevel:                "info",
		SessionBackend:          SessionMemory,
		SessionTTL:              "24h",
		GenerationProvider:      "gemini",
		GenerationModel:         "gemini-2.5-flash",
		ChatTimeout:             "30s",
		ChatHistoryLimit:        10,
		LoginRateLimitPerMinute: 10,
		ChatRateLimitPerMinute:  20,
	}
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides. A missing default config file is not an error.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	explicit := path != ""
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString("SITE_PORT", &cfg.Port)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setString("SESSION_BACKEND", &cfg.SessionBackend)
	setString("SESSION_SECRET", &cfg.SessionSecret)
	setString("SESSION_TTL", &cfg.SessionTTL)
	setString("GEMINI_API_KEY", &cfg.GeminiAPIKey)
	setString("GENERATION_PROVIDER", &cfg.GenerationProvider)
	setString("GENERATION_MODEL", &cfg.GenerationModel)
	setString("GENERATION_BASE_URL", &cfg.GenerationBaseURL)
	setString("CHAT_TIMEOUT", &cfg.ChatTimeout)
	setString("SEED_FILE", &cfg.SeedFile)
	setString("REGISTRY_FILE", &cfg.RegistryFile)
	setInt("CHAT_HISTORY_LIMIT", &cfg.ChatHistoryLimit)
	setInt("LOGIN_RATE_LIMIT_PER_MINUTE", &cfg.LoginRateLimitPerMinute)
	setInt("CHAT_RATE_LIMIT_PER_MINUTE", &cfg.ChatRateLimitPerMinute)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.CookieSecure = b
		}
	}
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml or SITE_PORT)")
	}
	switch cfg.SessionBackend {
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis session backend")
		}
	case SessionJWT:
		if len(cfg.SessionSecret) < 16 {
			return errors.New("config: sessionSecret of at least 16 characters is required for the jwt session backend")
		}
	default:
		return fmt.Errorf("config: unknown sessionBackend %q (memory, redis or jwt)", cfg.SessionBackend)
	}
	if _, err := ParseDuration("sessionTTL", cfg.SessionTTL); err != nil {
		return err
	}
	if _, err := ParseDuration("chatTimeout", cfg.ChatTimeout); err != nil {
		return err
	}
	if cfg.ChatHistoryLimit < 0 {
		return errors.New("config: chatHistoryLimit must be >= 0")
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.ChatRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseDuration parses a positive duration setting; name is used in errors.
func ParseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", name)
	}
	return d, nil
}

// SessionTTLDuration returns the validated session lifetime.
func (c FileConfig) SessionTTLDuration() time.Duration {
	d, _ := ParseDuration("sessionTTL", c.SessionTTL)
	return d
}

// ChatTimeoutDuration returns the validated per-call generation timeout.
func (c FileConfig) ChatTimeoutDuration() time.Duration {
	d, _ := ParseDuration("chatTimeout", c.ChatTimeout)
	return d
}
