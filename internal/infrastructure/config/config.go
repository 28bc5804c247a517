package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when SCHOOLHUB_CONFIG is unset.
const DefaultPath = "configs/config.yaml"

// MinJWTSecretLength is the shortest signing secret Validate accepts.
const MinJWTSecretLength = 32

// Config is the root configuration structure for SchoolHub Core.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies the school this instance serves.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds
}

// MQTTConfig contains MQTT broker connection settings.
// The event publisher is optional; Enabled=false keeps it offline.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains reconnection behaviour settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"` // seconds
	MaxDelay     int `yaml:"max_delay"`     // seconds
	MaxAttempts  int `yaml:"max_attempts"`  // 0 = infinite
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	TLS          APITLSConfig     `yaml:"tls"`
	Timeouts     APITimeoutConfig `yaml:"timeouts"`
	CORS         CORSConfig       `yaml:"cors"`
	MaxBodyBytes int64            `yaml:"max_body_bytes"`
}

// APITLSConfig contains TLS settings for the API server.
type APITLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`  // seconds
	Write int `yaml:"write"` // seconds
	Idle  int `yaml:"idle"`  // seconds
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains settings for the admin event feed.
type WebSocketConfig struct {
	MaxMessageSize int64 `yaml:"max_message_size"` // bytes
	PingInterval   int   `yaml:"ping_interval"`    // seconds
	PongTimeout    int   `yaml:"pong_timeout"`     // seconds
	TicketTTL      int   `yaml:"ticket_ttl"`       // seconds
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stdout, stderr
}

// SecurityConfig contains authentication and authorisation settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// UnifyCredentialErrors reports unknown usernames and wrong passwords
	// with the same message.
	UnifyCredentialErrors bool `yaml:"unify_credential_errors"`

	// ForbiddenStatus is returned for inactive accounts and missing roles.
	// Only 400 and 403 are accepted.
	ForbiddenStatus int `yaml:"forbidden_status"`

	SeedAdmin SeedAdminConfig `yaml:"seed_admin"`
}

// JWTConfig contains token signing settings.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`  // minutes
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"` // minutes
}

// RateLimitConfig contains per-client rate limiting for the auth endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// SeedAdminConfig controls first-boot administrator creation.
// An empty Password makes the seeder generate one and log it once.
type SeedAdminConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	FullName string `yaml:"full_name"`
	Password string `yaml:"password"`
}

// PathFromEnv returns the config file path from SCHOOLHUB_CONFIG,
// falling back to DefaultPath.
func PathFromEnv() string {
	if v := os.Getenv("SCHOOLHUB_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads configuration from a YAML file and applies environment overrides.
// A missing file is not an error: defaults and environment still apply.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "school-001",
			Name:     "SchoolHub",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/schoolhub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "schoolhub-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			MaxBodyBytes: 1 << 20,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			TicketTTL:      60,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Org:           "schoolhub",
			Bucket:        "auth",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  30,
				RefreshTokenTTL: 10080,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             10,
			},
			ForbiddenStatus: 400,
			SeedAdmin: SeedAdminConfig{
				Enabled:  true,
				Username: "admin",
				FullName: "Administrator",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SCHOOLHUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"SCHOOLHUB_SITE_ID":             &cfg.Site.ID,
		"SCHOOLHUB_DATABASE_PATH":       &cfg.Database.Path,
		"SCHOOLHUB_MQTT_HOST":           &cfg.MQTT.Broker.Host,
		"SCHOOLHUB_MQTT_USERNAME":       &cfg.MQTT.Auth.Username,
		"SCHOOLHUB_MQTT_PASSWORD":       &cfg.MQTT.Auth.Password,
		"SCHOOLHUB_API_HOST":            &cfg.API.Host,
		"SCHOOLHUB_INFLUXDB_URL":        &cfg.InfluxDB.URL,
		"SCHOOLHUB_INFLUXDB_TOKEN":      &cfg.InfluxDB.Token,
		"SCHOOLHUB_LOG_LEVEL":           &cfg.Logging.Level,
		"SCHOOLHUB_JWT_SECRET":          &cfg.Security.JWT.Secret,
		"SCHOOLHUB_SEED_ADMIN_PASSWORD": &cfg.Security.SeedAdmin.Password,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SCHOOLHUB_MQTT_PORT":        &cfg.MQTT.Broker.Port,
		"SCHOOLHUB_API_PORT":         &cfg.API.Port,
		"SCHOOLHUB_JWT_ACCESS_TTL":   &cfg.Security.JWT.AccessTokenTTL,
		"SCHOOLHUB_JWT_REFRESH_TTL":  &cfg.Security.JWT.RefreshTokenTTL,
		"SCHOOLHUB_FORBIDDEN_STATUS": &cfg.Security.ForbiddenStatus,
	}
	var errs []string
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: not an integer", key))
			continue
		}
		*dst = n
	}

	bools := map[string]*bool{
		"SCHOOLHUB_MQTT_ENABLED":          &cfg.MQTT.Enabled,
		"SCHOOLHUB_INFLUXDB_ENABLED":      &cfg.InfluxDB.Enabled,
		"SCHOOLHUB_UNIFY_CREDENTIAL_ERRS": &cfg.Security.UnifyCredentialErrors,
		"SCHOOLHUB_SEED_ADMIN_ENABLED":    &cfg.Security.SeedAdmin.Enabled,
	}
	for key, dst := range bools {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: not a boolean", key))
			continue
		}
		*dst = b
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks that required configuration values are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when tls is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn, or error")
	}

	if len(c.Security.JWT.Secret) < MinJWTSecretLength {
		errs = append(errs, fmt.Sprintf("security.jwt.secret must be at least %d characters", MinJWTSecretLength))
	}
	if c.Security.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "security.jwt.access_token_ttl must be positive")
	}
	if c.Security.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, "security.jwt.refresh_token_ttl must be positive")
	}
	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive when enabled")
	}
	if c.Security.ForbiddenStatus != 400 && c.Security.ForbiddenStatus != 403 {
		errs = append(errs, "security.forbidden_status must be 400 or 403")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// AccessTokenTTL returns the access token lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.RefreshTokenTTL) * time.Minute
}

// TicketTTL returns how long a WebSocket ticket stays redeemable.
func (c *Config) TicketTTL() time.Duration {
	return time.Duration(c.WebSocket.TicketTTL) * time.Second
}
