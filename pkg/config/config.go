// Package config loads gateway configuration from an optional YAML file
// and the environment. Environment variables always win over file
// values, matching how the gateway is deployed as a single container
// with env-only configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Admin    AdminConfig    `yaml:"admin"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Sessions SessionConfig  `yaml:"sessions"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port"`
	// Addr, when set, overrides Port as the full listen address.
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"` // optional UI asset directory
}

// AdminConfig configures the admin UI login and the external API key.
type AdminConfig struct {
	Username string `yaml:"username"`
	// Password is either plaintext or a bcrypt hash ($2a$/$2b$ prefix).
	Password string `yaml:"password"`
	// APIKey is the shared static secret for the /api/v1 family.
	// The family refuses all requests when empty.
	APIKey string `yaml:"api_key"`
}

// UpstreamConfig configures the HuggingFace endpoints and credentials.
type UpstreamConfig struct {
	// Users is the raw "username[:token]" comma-separated credential
	// string, identical to the HF_USER environment variable.
	Users string `yaml:"users"`

	APIBase     string `yaml:"api_base"`
	MetricsBase string `yaml:"metrics_base"`
}

// CacheConfig configures the space inventory cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// SessionConfig configures admin session lifetimes.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Default endpoints and credentials.
const (
	DefaultPort        = 8080
	DefaultAPIBase     = "https://huggingface.co"
	DefaultMetricsBase = "https://api.hf.space"

	defaultAdminUsername = "admin"
	defaultAdminPassword = "password"
)

// Load reads configuration from an optional YAML file, then applies
// environment overrides and defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		// #nosec G304 -- path comes from CLI flags, controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		data = []byte(expandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyEnv overlays environment variables onto the config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		cfg.Server.StaticDir = v
	}
	if v := os.Getenv("HF_USER"); v != "" {
		cfg.Upstream.Users = v
	}
	if v := os.Getenv("HF_API_BASE"); v != "" {
		cfg.Upstream.APIBase = v
	}
	if v := os.Getenv("HF_METRICS_BASE"); v != "" {
		cfg.Upstream.MetricsBase = v
	}
	if v := os.Getenv("USER_NAME"); v != "" {
		cfg.Admin.Username = v
	}
	if v := os.Getenv("USER_PASSWORD"); v != "" {
		cfg.Admin.Password = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Admin.APIKey = v
	}
}

func parsePort(s string) (int, error) {
	var port int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &port); err != nil {
		return 0, err
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}

// applyDefaults fills in defaults for unset values.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = defaultAdminUsername
	}
	if cfg.Admin.Password == "" {
		cfg.Admin.Password = defaultAdminPassword
	}
	if cfg.Upstream.APIBase == "" {
		cfg.Upstream.APIBase = DefaultAPIBase
	}
	if cfg.Upstream.MetricsBase == "" {
		cfg.Upstream.MetricsBase = DefaultMetricsBase
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Sessions.TTL == 0 {
		cfg.Sessions.TTL = 24 * time.Hour
	}
	if cfg.Sessions.SweepInterval == 0 {
		cfg.Sessions.SweepInterval = time.Hour
	}
}

// Warnings returns non-fatal configuration problems. An empty
// credential list or API key keeps the process runnable but is worth
// surfacing at startup.
func (c *Config) Warnings() []string {
	var warns []string

	if c.Upstream.Users == "" {
		warns = append(warns, "upstream.users (HF_USER) is empty; no spaces will be aggregated")
	}
	if c.Admin.APIKey == "" {
		warns = append(warns, "admin.api_key (API_KEY) is empty; the /api/v1 API is disabled")
	}
	return warns
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	if c.Server.Addr != "" {
		return c.Server.Addr
	}
	return fmt.Sprintf(":%d", c.Server.Port)
}
