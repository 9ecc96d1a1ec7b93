package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/campushq/rolegate/internal/models"
)

// Config represents the runtime configuration for the RoleGate backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Authz       AuthzConfig       `mapstructure:"authz"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig controls the permission decision cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// AuthzConfig tunes permission checking and the role change workflow.
type AuthzConfig struct {
	BulkCheckLimit       int           `mapstructure:"bulk_check_limit"`
	RequestTTL           time.Duration `mapstructure:"request_ttl"`
	RequireApprovalRoles []string      `mapstructure:"require_approval_roles"`
	AutoApproveRoles     []string      `mapstructure:"auto_approve_roles"`
}

// AuditConfig tunes the audit log and its suspicion heuristics.
type AuditConfig struct {
	RetentionDays        int           `mapstructure:"retention_days"`
	RapidChangeWindow    time.Duration `mapstructure:"rapid_change_window"`
	RapidChangeThreshold int           `mapstructure:"rapid_change_threshold"`
	BusinessHoursStart   int           `mapstructure:"business_hours_start"`
	BusinessHoursEnd     int           `mapstructure:"business_hours_end"`
}

// MaintenanceConfig schedules the background sweeper.
type MaintenanceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RequireApproval translates the configured role names, skipping unknown ones.
func (c AuthzConfig) RequireApproval() []models.Role {
	return parseRoles(c.RequireApprovalRoles)
}

// AutoApprove translates the configured role names, skipping unknown ones.
func (c AuthzConfig) AutoApprove() []models.Role {
	return parseRoles(c.AutoApproveRoles)
}

func parseRoles(names []string) []models.Role {
	var roles []models.Role
	for _, name := range names {
		if role, err := models.ParseRole(name); err == nil {
			roles = append(roles, role)
		}
	}
	return roles
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("ROLEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/rolegate.sqlite")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("authz.bulk_check_limit", 50)
	v.SetDefault("authz.request_ttl", "168h") // 7 days
	v.SetDefault("authz.require_approval_roles", []string{})
	v.SetDefault("authz.auto_approve_roles", []string{})

	v.SetDefault("audit.retention_days", 365)
	v.SetDefault("audit.rapid_change_window", "1h")
	v.SetDefault("audit.rapid_change_threshold", 3)
	v.SetDefault("audit.business_hours_start", 7)
	v.SetDefault("audit.business_hours_end", 19)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@hourly")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
