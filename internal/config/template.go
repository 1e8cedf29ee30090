package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Template renders a commented starter configuration file.
func Template(apiURL string) string {
	return fmt.Sprintf(`# Nubilus Agent Configuration
# Location: %s

[server]
# URL of your Nubilus backend API
api_url = %q
# Your organization's API key (from the dashboard)
api_key = "nub_your_api_key_here"

[agent]
# Friendly name for this server (shown in dashboard)
name = "my-server-01"
# How often to collect and send metrics (minimum: 10 seconds)
metrics_interval_seconds = 30
# How often to send heartbeat (minimum: 10 seconds)
heartbeat_interval_seconds = 30

[features]
# Include top process information in metrics
collect_processes = true
# Enable agent-side endpoint health checks
http_health_checks = false
health_check_interval_seconds = 60
# Maximum probes started per second within one round
health_check_rate = 5.0

# [[features.endpoints]]
# id = "endpoint-uuid-from-dashboard"
# target = "https://example.com/healthz"
# type = "http"

[log]
# debug, info, warn, error
level = "info"
# console or json
format = "console"
# Optional log file, rotated by size
file = ""

[status]
# Local status endpoint serving /healthz and /metrics, e.g. "127.0.0.1:9101"
listen_addr = ""

[state]
# Registration record database; empty disables it
path = %q
`, DefaultPath(), apiURL, DefaultStatePath())
}

// Save writes every field of cfg as TOML to path, creating parent
// directories. The file is made owner-readable only since it contains the
// API key.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory %s: %w", dir, err)
		}
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("server.api_url", cfg.Server.APIURL)
	v.Set("server.api_key", cfg.Server.APIKey)
	v.Set("agent.name", cfg.Agent.Name)
	v.Set("agent.metrics_interval_seconds", cfg.Agent.MetricsIntervalSeconds)
	v.Set("agent.heartbeat_interval_seconds", cfg.Agent.HeartbeatIntervalSeconds)
	v.Set("features.collect_processes", cfg.Features.CollectProcesses)
	v.Set("features.http_health_checks", cfg.Features.HTTPHealthChecks)
	v.Set("features.health_check_interval_seconds", cfg.Features.HealthCheckIntervalSeconds)
	v.Set("features.health_check_rate", cfg.Features.HealthCheckRate)
	if len(cfg.Features.Endpoints) > 0 {
		endpoints := make([]map[string]any, 0, len(cfg.Features.Endpoints))
		for _, ep := range cfg.Features.Endpoints {
			endpoints = append(endpoints, map[string]any{
				"id":     ep.ID,
				"target": ep.Target,
				"type":   ep.Type,
			})
		}
		v.Set("features.endpoints", endpoints)
	}
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("log.file", cfg.Log.File)
	v.Set("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.Set("log.max_backups", cfg.Log.MaxBackups)
	v.Set("log.max_age_days", cfg.Log.MaxAgeDays)
	v.Set("status.listen_addr", cfg.Status.ListenAddr)
	v.Set("state.path", cfg.State.Path)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("restrict config permissions: %w", err)
	}
	return nil
}
