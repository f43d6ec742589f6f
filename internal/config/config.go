// Package config handles loading and validating Zana configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Zana.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`           // Persistent data directory. Default: ~/.zana/data. Override: ZANA_DATA_DIR env var.
	Log           *LogConfig           `json:"log,omitempty" yaml:"log,omitempty"`                     // nil = info-level JSON logging
	Vault         *VaultConfig         `json:"vault,omitempty" yaml:"vault,omitempty"`                 // nil = file backend under the data dir
	Server        *ServerConfig        `json:"server,omitempty" yaml:"server,omitempty"`               // nil = stdio transport
	Admin         *AdminConfig         `json:"admin,omitempty" yaml:"admin,omitempty"`                 // nil = admin API disabled
	Tools         ToolsConfig          `json:"tools" yaml:"tools"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Maintenance   *MaintenanceConfig   `json:"maintenance,omitempty" yaml:"maintenance,omitempty"`     // nil = maintenance schedule disabled
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // "debug", "info" (default), "warn", or "error".
	Format string `json:"format" yaml:"format"` // "json" (default) or "text".
}

// SlogLevel maps the configured level to a slog.Level, defaulting to info.
func (l *LogConfig) SlogLevel() slog.Level {
	if l == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(l.Level) {
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

// LogFormat returns the configured format, defaulting to "json".
func (l *LogConfig) LogFormat() string {
	if l != nil && l.Format != "" {
		return l.Format
	}
	return "json"
}

// VaultConfig configures the encrypted credential store.
// When nil, the file backend under the data directory is used.
type VaultConfig struct {
	Backend     string `json:"backend" yaml:"backend"`                               // "file" (default), "sqlite", or "postgres".
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`                 // File backend directory. Default: <data_dir>/vault. Override: ZANA_VAULT_PATH env var.
	SQLitePath  string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`   // SQLite backend database file. Default: <data_dir>/vault.db.
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"` // PostgreSQL backend connection string.
	KeyEnv      string `json:"key_env,omitempty" yaml:"key_env,omitempty"`           // Env var holding the master passphrase. Default: ZANA_VAULT_KEY.
	KeyFile     string `json:"key_file,omitempty" yaml:"key_file,omitempty"`         // Raw key file used when the passphrase env is unset. Default: <data_dir>/vault.key.
}

// BackendName returns the configured backend, defaulting to "file".
func (v *VaultConfig) BackendName() string {
	if v != nil && v.Backend != "" {
		return v.Backend
	}
	return "file"
}

// KeyEnvName returns the env var holding the master passphrase.
func (v *VaultConfig) KeyEnvName() string {
	if v != nil && v.KeyEnv != "" {
		return v.KeyEnv
	}
	return "ZANA_VAULT_KEY"
}

// ServerConfig configures the MCP transport.
// When nil, the server speaks MCP over stdio.
type ServerConfig struct {
	Transport  string `json:"transport" yaml:"transport"`           // "stdio" (default) or "http".
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`       // Standalone http transport address, e.g. ":8080".
	Path       string `json:"path,omitempty" yaml:"path,omitempty"` // HTTP mount path. Default: "/mcp".
}

// TransportName returns the configured transport, defaulting to "stdio".
func (s *ServerConfig) TransportName() string {
	if s != nil && s.Transport != "" {
		return s.Transport
	}
	return "stdio"
}

// MountPath returns the HTTP mount path, defaulting to "/mcp".
func (s *ServerConfig) MountPath() string {
	if s != nil && s.Path != "" {
		return s.Path
	}
	return "/mcp"
}

// AdminConfig configures the admin HTTP API.
// When nil, the admin API is disabled.
type AdminConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // Default: ":9090".
}

// Addr returns the listen address, defaulting to ":9090".
func (a *AdminConfig) Addr() string {
	if a != nil && a.ListenAddr != "" {
		return a.ListenAddr
	}
	return ":9090"
}

// ToolsConfig configures individual tool settings.
type ToolsConfig struct {
	Browser   BrowserToolConfig   `json:"browser" yaml:"browser"`
	Postgres  PostgresToolConfig  `json:"postgres" yaml:"postgres"`
	Wikipedia WikipediaToolConfig `json:"wikipedia" yaml:"wikipedia"`
}

// BrowserToolConfig configures the browser automation tools.
type BrowserToolConfig struct {
	EngineURL      string   `json:"engine_url" yaml:"engine_url"`           // WebSocket URL of the browser engine. Override: ZANA_BROWSER_ENGINE_URL env var.
	AllowedDomains []string `json:"allowed_domains" yaml:"allowed_domains"` // Default allowlist applied when a task sets none.
}

// PostgresToolConfig configures the read-only PostgreSQL tools.
type PostgresToolConfig struct {
	DSN                string `json:"dsn" yaml:"dsn"`                                   // Fallback connection string. Can be overridden by ZANA_TOOL_DB_DSN env var.
	MaxRows            int    `json:"max_rows" yaml:"max_rows"`                         // Maximum rows per query. Default: 1000.
	StatementTimeoutMS int    `json:"statement_timeout_ms" yaml:"statement_timeout_ms"` // Server-side statement timeout. Default: 3000.
}

// WikipediaToolConfig configures the Wikipedia search tool.
type WikipediaToolConfig struct {
	Language       string `json:"language" yaml:"language"`               // Default language code. Default: "en".
	UserAgent      string `json:"user_agent" yaml:"user_agent"`           // Identifying User-Agent header.
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"` // Per-request timeout. Default: 10.
}

// ObservabilityConfig configures metrics, tracing, and anomaly detection.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "zana"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// AnomalyConfig configures threshold-based anomaly detection.
type AnomalyConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	ErrorRateThreshold float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"` // e.g. 0.5 = 50% errors
	WindowSeconds      int     `json:"window_seconds" yaml:"window_seconds"`             // Sliding window. Default: 300
}

// MaintenanceConfig configures the background maintenance schedule.
// When nil, no maintenance jobs run.
type MaintenanceConfig struct {
	Schedule string `json:"schedule" yaml:"schedule"` // Cron spec. Default: "@hourly".
}

// ScheduleSpec returns the cron spec, defaulting to "@hourly".
func (m *MaintenanceConfig) ScheduleSpec() string {
	if m != nil && m.Schedule != "" {
		return m.Schedule
	}
	return "@hourly"
}

// DefaultConfigPath returns the default config file path. The YAML file is
// preferred; an existing JSON file is picked up for compatibility.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/zana.yaml" // fallback for environments without a home dir
	}
	yamlPath := filepath.Join(home, ".zana", "config.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	jsonPath := filepath.Join(home, ".zana", "config.json")
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath
	}
	return yamlPath
}

// Default returns the configuration used when no config file exists:
// stdio transport, file vault under the data directory, no admin API.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	return cfg
}

// Load reads a YAML or JSON config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Paths and connection strings can be set in the config file
// or overridden by environment variables. Environment variables take
// precedence.
func Load(path string) (*Config, error) {
	// Expand ~ in config path.
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides — env vars take
// precedence over config values.
func applyEnvOverrides(cfg *Config) {
	if envDD := os.Getenv("ZANA_DATA_DIR"); envDD != "" {
		cfg.DataDir = envDD
	}
	if envPath := os.Getenv("ZANA_VAULT_PATH"); envPath != "" {
		if cfg.Vault == nil {
			cfg.Vault = &VaultConfig{}
		}
		cfg.Vault.Path = envPath
	}
	if envDSN := os.Getenv("ZANA_TOOL_DB_DSN"); envDSN != "" {
		cfg.Tools.Postgres.DSN = envDSN
	}
	if envURL := os.Getenv("ZANA_BROWSER_ENGINE_URL"); envURL != "" {
		cfg.Tools.Browser.EngineURL = envURL
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".zana", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// VaultPath returns the file backend directory.
func (c *Config) VaultPath() string {
	if c.Vault != nil && c.Vault.Path != "" {
		return c.Vault.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "vault")
}

// VaultSQLitePath returns the SQLite backend database path.
func (c *Config) VaultSQLitePath() string {
	if c.Vault != nil && c.Vault.SQLitePath != "" {
		return c.Vault.SQLitePath
	}
	return filepath.Join(c.ResolvedDataDir(), "vault.db")
}

// VaultKeyFile returns the raw key file path used when no passphrase env
// is set.
func (c *Config) VaultKeyFile() string {
	if c.Vault != nil && c.Vault.KeyFile != "" {
		return c.Vault.KeyFile
	}
	return filepath.Join(c.ResolvedDataDir(), "vault.key")
}

func (c *Config) validate() error {
	if c.Vault != nil && c.Vault.Backend != "" {
		switch c.Vault.Backend {
		case "file", "sqlite", "postgres":
			// valid
		default:
			return fmt.Errorf("vault.backend %q is not supported (use file, sqlite, or postgres)", c.Vault.Backend)
		}
	}
	if c.Vault != nil && c.Vault.Backend == "postgres" && c.Vault.PostgresDSN == "" {
		return fmt.Errorf("vault.postgres_dsn is required for the postgres backend")
	}
	if c.Server != nil && c.Server.Transport != "" {
		switch c.Server.Transport {
		case "stdio", "http":
			// valid
		default:
			return fmt.Errorf("server.transport %q is not supported (use stdio or http)", c.Server.Transport)
		}
	}
	if c.Server.TransportName() == "http" && c.Server.ListenAddr == "" && (c.Admin == nil || !c.Admin.Enabled) {
		return fmt.Errorf("server.listen_addr is required for the http transport unless the admin API serves it")
	}
	if c.Tools.Postgres.MaxRows < 0 {
		return fmt.Errorf("tools.postgres.max_rows must not be negative")
	}
	if c.Tools.Postgres.StatementTimeoutMS < 0 {
		return fmt.Errorf("tools.postgres.statement_timeout_ms must not be negative")
	}
	if c.Tools.Wikipedia.TimeoutSeconds < 0 {
		return fmt.Errorf("tools.wikipedia.timeout_seconds must not be negative")
	}
	if c.Observability != nil && c.Observability.Tracing != nil && c.Observability.Tracing.Enabled {
		t := c.Observability.Tracing
		if t.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
		switch t.Protocol {
		case "", "grpc", "http":
			// valid
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", t.Protocol)
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be between 0.0 and 1.0")
		}
	}
	if c.Observability != nil && c.Observability.Anomaly != nil && c.Observability.Anomaly.Enabled {
		a := c.Observability.Anomaly
		if a.ErrorRateThreshold < 0 || a.ErrorRateThreshold > 1 {
			return fmt.Errorf("observability.anomaly.error_rate_threshold must be between 0.0 and 1.0")
		}
	}
	return nil
}
