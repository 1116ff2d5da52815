// ABOUTME: Configuration loading and parsing for cap360-server
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, CAP360_* env overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. CAP360_AUTH_JWT_SECRET.
const EnvPrefix = "CAP360_"

// MinJWTSecretLength mirrors auth.MinSecretLength.
const MinJWTSecretLength = 32

// Database drivers
const (
	DriverSQLite    = "sqlite"
	DriverSQLiteCGO = "sqlite3"
	DriverPostgres  = "postgres"
	DriverMongo     = "mongo"
)

// Role grant policies
const (
	GrantPolicyAppend       = "append"
	GrantPolicySkipExisting = "skip_existing"
)

// Config represents the complete cap360-server configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server" envPrefix:"SERVER_"`
	Tailscale    TailscaleConfig    `yaml:"tailscale" toml:"tailscale" envPrefix:"TAILSCALE_"`
	Database     DatabaseConfig     `yaml:"database" toml:"database" envPrefix:"DATABASE_"`
	Auth         AuthConfig         `yaml:"auth" toml:"auth" envPrefix:"AUTH_"`
	Provisioning ProvisioningConfig `yaml:"provisioning" toml:"provisioning" envPrefix:"PROVISIONING_"`
	CORS         CORSConfig         `yaml:"cors" toml:"cors" envPrefix:"CORS_"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging" envPrefix:"LOGGING_"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" toml:"telemetry" envPrefix:"TELEMETRY_"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" env:"HTTP_ADDR"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr" env:"GRPC_ADDR"`

	ReadHeaderTimeout    time.Duration `yaml:"-" toml:"-"`
	ReadHeaderTimeoutRaw string        `yaml:"read_header_timeout" toml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Hostname  string `yaml:"hostname" toml:"hostname" env:"HOSTNAME"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key" env:"AUTH_KEY"`
	StateDir  string `yaml:"state_dir" toml:"state_dir" env:"STATE_DIR"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral" env:"EPHEMERAL"`
	HTTPS     bool   `yaml:"https" toml:"https" env:"HTTPS"`   // serve HTTP with tailnet certificates
	Funnel    bool   `yaml:"funnel" toml:"funnel" env:"FUNNEL"` // public Funnel (implies HTTPS)
}

// DatabaseConfig selects and configures the store backend
type DatabaseConfig struct {
	Driver        string `yaml:"driver" toml:"driver" env:"DRIVER"`
	Path          string `yaml:"path" toml:"path" env:"PATH"`
	DSN           string `yaml:"dsn" toml:"dsn" env:"DSN"`
	MongoDatabase string `yaml:"mongo_database" toml:"mongo_database" env:"MONGO_DATABASE"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret" env:"JWT_SECRET"`

	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl" env:"TOKEN_TTL"`
}

// ProvisioningConfig controls partial-failure and duplicate-grant behaviour
type ProvisioningConfig struct {
	RollbackOnFailure bool   `yaml:"rollback_on_failure" toml:"rollback_on_failure" env:"ROLLBACK_ON_FAILURE"`
	RoleGrantPolicy   string `yaml:"role_grant_policy" toml:"role_grant_policy" env:"ROLE_GRANT_POLICY"`
}

// CORSConfig holds cross-origin settings for the HTTP API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LEVEL"`
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
}

// TelemetryConfig holds OpenTelemetry trace export settings
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" toml:"service_name" env:"SERVICE_NAME"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded, then CAP360_*
// variables override individual fields. Duration strings are parsed into
// time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := decode(path, []byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// decode picks the parser from the file extension. Unknown extensions are read as YAML.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values left empty by the file and environment.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if c.Provisioning.RoleGrantPolicy == "" {
		c.Provisioning.RoleGrantPolicy = GrantPolicyAppend
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "cap360-server"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server addresses are required unless Tailscale is enabled
	if !c.Tailscale.Enabled {
		if c.Server.GRPCAddr == "" {
			return errors.New("server.grpc_addr is required (or enable tailscale)")
		}
		if c.Server.HTTPAddr == "" {
			return errors.New("server.http_addr is required (or enable tailscale)")
		}
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverSQLiteCGO:
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case DriverPostgres, DriverMongo:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}

	switch c.Provisioning.RoleGrantPolicy {
	case GrantPolicyAppend, GrantPolicySkipExisting:
	default:
		return fmt.Errorf("provisioning.role_grant_policy must be %q or %q", GrantPolicyAppend, GrantPolicySkipExisting)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.ReadHeaderTimeoutRaw != "" {
		cfg.Server.ReadHeaderTimeout, err = time.ParseDuration(cfg.Server.ReadHeaderTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing read_header_timeout %q: %w", cfg.Server.ReadHeaderTimeoutRaw, err)
		}
	}

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	return nil
}
