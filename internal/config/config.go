// Package config loads and validates the agent configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIKeyPrefix is the tag every ingest API key starts with.
const APIKeyPrefix = "nub_"

// DefaultAPIURL is used when neither the config file nor API_URL set one.
const DefaultAPIURL = "https://nubilus.akashtwt.me/api"

// EnvPrefix scopes environment overrides, e.g. NUBILUS_SERVER_API_KEY.
const EnvPrefix = "NUBILUS"

// MinInterval is the shortest allowed reporting interval.
const MinInterval = 10 * time.Second

// Endpoint check types.
const (
	CheckTypeHTTP = "http"
	CheckTypeICMP = "icmp"
)

// Config is the full agent configuration. It is loaded once at startup and
// treated as read-only afterwards.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Features FeaturesConfig `mapstructure:"features"`
	Log      LogConfig      `mapstructure:"log"`
	Status   StatusConfig   `mapstructure:"status"`
	State    StateConfig    `mapstructure:"state"`
}

// ServerConfig holds the ingest API connection settings.
type ServerConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

// AgentConfig controls identity and reporting cadence.
type AgentConfig struct {
	Name                     string `mapstructure:"name"`
	MetricsIntervalSeconds   int    `mapstructure:"metrics_interval_seconds"`
	HeartbeatIntervalSeconds int    `mapstructure:"heartbeat_interval_seconds"`
}

// FeaturesConfig holds optional feature flags.
type FeaturesConfig struct {
	CollectProcesses           bool             `mapstructure:"collect_processes"`
	HTTPHealthChecks           bool             `mapstructure:"http_health_checks"`
	HealthCheckIntervalSeconds int              `mapstructure:"health_check_interval_seconds"`
	HealthCheckRate            float64          `mapstructure:"health_check_rate"`
	Endpoints                  []EndpointConfig `mapstructure:"endpoints"`
}

// EndpointConfig is a target probed by the health check loop.
type EndpointConfig struct {
	ID     string `mapstructure:"id"`
	Target string `mapstructure:"target"`
	Type   string `mapstructure:"type"`
}

// LogConfig controls log level, encoding and optional file rotation.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StatusConfig configures the local status endpoint. An empty ListenAddr
// disables it.
type StatusConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// StateConfig points at the local registration record database. An empty
// Path disables it.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsInterval returns the metrics submission period.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.Agent.MetricsIntervalSeconds) * time.Second
}

// HeartbeatInterval returns the heartbeat period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Agent.HeartbeatIntervalSeconds) * time.Second
}

// HealthCheckInterval returns the endpoint probe period.
func (c *Config) HealthCheckInterval() time.Duration {
	return time.Duration(c.Features.HealthCheckIntervalSeconds) * time.Second
}

// HealthChecksEnabled reports whether the health check loop should run.
func (c *Config) HealthChecksEnabled() bool {
	return c.Features.HTTPHealthChecks && len(c.Features.Endpoints) > 0
}

// DefaultPath returns the platform default config file location.
func DefaultPath() string {
	if runtime.GOOS == "windows" {
		return `C:\ProgramData\nubilus\agent.toml`
	}
	return "/etc/nubilus/agent.toml"
}

// DefaultStatePath returns the platform default registration database location.
func DefaultStatePath() string {
	if runtime.GOOS == "windows" {
		return `C:\ProgramData\nubilus\agent.db`
	}
	return "/var/lib/nubilus/agent.db"
}

// DefaultAPIURLFromEnv returns API_URL when set, otherwise DefaultAPIURL.
func DefaultAPIURLFromEnv() string {
	if v := os.Getenv("API_URL"); v != "" {
		return v
	}
	return DefaultAPIURL
}

// Default returns a configuration populated with defaults only. It does not
// pass validation until an API key and name are filled in.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Decoding defaults into a zero struct cannot fail.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads the TOML file at path, applies NUBILUS_* environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("toml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return FromViper(v)
}

// FromViper decodes and validates an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server.APIURL = strings.TrimSpace(cfg.Server.APIURL)
	cfg.Server.APIKey = strings.TrimSpace(cfg.Server.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every invariant the runtime relies on. All violations are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.APIURL == "" {
		errs = append(errs, errors.New("server.api_url cannot be empty"))
	}
	switch {
	case c.Server.APIKey == "":
		errs = append(errs, errors.New("server.api_key cannot be empty"))
	case !strings.HasPrefix(c.Server.APIKey, APIKeyPrefix):
		errs = append(errs, fmt.Errorf("server.api_key must start with %q", APIKeyPrefix))
	}
	if strings.TrimSpace(c.Agent.Name) == "" {
		errs = append(errs, errors.New("agent.name cannot be empty"))
	}
	if c.MetricsInterval() < MinInterval {
		errs = append(errs, fmt.Errorf("agent.metrics_interval_seconds must be at least %d", int(MinInterval.Seconds())))
	}
	if c.HeartbeatInterval() < MinInterval {
		errs = append(errs, fmt.Errorf("agent.heartbeat_interval_seconds must be at least %d", int(MinInterval.Seconds())))
	}

	if c.Features.HTTPHealthChecks {
		if c.HealthCheckInterval() < MinInterval {
			errs = append(errs, fmt.Errorf("features.health_check_interval_seconds must be at least %d", int(MinInterval.Seconds())))
		}
		if c.Features.HealthCheckRate <= 0 {
			errs = append(errs, errors.New("features.health_check_rate must be positive"))
		}
		seen := make(map[string]bool, len(c.Features.Endpoints))
		for i, ep := range c.Features.Endpoints {
			if ep.ID == "" {
				errs = append(errs, fmt.Errorf("features.endpoints[%d].id cannot be empty", i))
			} else if seen[ep.ID] {
				errs = append(errs, fmt.Errorf("features.endpoints[%d].id %q is duplicated", i, ep.ID))
			}
			seen[ep.ID] = true
			if ep.Target == "" {
				errs = append(errs, fmt.Errorf("features.endpoints[%d].target cannot be empty", i))
			}
			if ep.Type != CheckTypeHTTP && ep.Type != CheckTypeICMP {
				errs = append(errs, fmt.Errorf("features.endpoints[%d].type %q must be %q or %q", i, ep.Type, CheckTypeHTTP, CheckTypeICMP))
			}
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.api_url", DefaultAPIURLFromEnv())
	v.SetDefault("server.api_key", "")
	v.SetDefault("agent.name", "")
	v.SetDefault("agent.metrics_interval_seconds", 30)
	v.SetDefault("agent.heartbeat_interval_seconds", 30)
	v.SetDefault("features.collect_processes", false)
	v.SetDefault("features.http_health_checks", false)
	v.SetDefault("features.health_check_interval_seconds", 60)
	v.SetDefault("features.health_check_rate", 5.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("status.listen_addr", "")
	v.SetDefault("state.path", DefaultStatePath())
}
