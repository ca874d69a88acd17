// Package config
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	TLS         TLSConfig         `yaml:"tls"`
	CORS        CORSConfig        `yaml:"cors"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Crawl       CrawlConfig       `yaml:"crawl"`
	Probe       ProbeConfig       `yaml:"probe"`
	SNMP        SNMPConfig        `yaml:"snmp"`
	Transport   TransportConfig   `yaml:"transport"`
	Templates   TemplatesConfig   `yaml:"templates"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Events      EventsConfig      `yaml:"events"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAgeSeconds  int      `yaml:"max_age_seconds"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"ssl_mode"`
}

type AuthConfig struct {
	AdminUsername  string `yaml:"admin_username"`
	AdminPassword  string `yaml:"admin_password"`
	JWTSecret      string `yaml:"jwt_secret"`
	JWTExpiryHours int    `yaml:"jwt_expiry_hours"`
	EncryptionKey  string `yaml:"encryption_key"`
}

type CrawlConfig struct {
	MaxHops            int      `yaml:"max_hops"`
	ConnectTimeoutMS   int      `yaml:"connect_timeout_ms"`
	CommandTimeoutMS   int      `yaml:"command_timeout_ms"`
	Commands           []string `yaml:"commands"`
	ProtocolPreference []string `yaml:"protocol_preference"`
}

type ProbeConfig struct {
	ICMPEnabled bool `yaml:"icmp_enabled"`
	Privileged  bool `yaml:"privileged"`
	Packets     int  `yaml:"packets"`
	TimeoutMS   int  `yaml:"timeout_ms"`
}

type SNMPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Community string `yaml:"community"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type TransportConfig struct {
	Kind     string `yaml:"kind"` // "ssh" or "winrm"
	Port     int    `yaml:"port"`
	UseHTTPS bool   `yaml:"use_https"`
	Domain   string `yaml:"domain"`
}

type TemplatesConfig struct {
	Directory string `yaml:"directory"`
}

type CredentialsConfig struct {
	File string `yaml:"file"`
}

type EventsConfig struct {
	RequestBufferSize   int `yaml:"request_buffer_size"`
	ProgressBufferSize  int `yaml:"progress_buffer_size"`
	CompletedBufferSize int `yaml:"completed_buffer_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Default returns the configuration used when no file is given. The CLI runs
// on these plus flags; the server overlays its config file on top.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeoutMS:  15000,
			WriteTimeoutMS: 15000,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "topocrawl",
			DBName:  "topocrawl",
			SSLMode: "disable",
		},
		Auth: AuthConfig{
			AdminUsername:  "admin",
			JWTExpiryHours: 24,
		},
		Crawl: CrawlConfig{
			MaxHops:          3,
			ConnectTimeoutMS: 5000,
			CommandTimeoutMS: 30000,
		},
		Probe: ProbeConfig{
			ICMPEnabled: true,
			Packets:     1,
			TimeoutMS:   2000,
		},
		SNMP: SNMPConfig{
			Port:      161,
			Community: "public",
			TimeoutMS: 2000,
		},
		Transport: TransportConfig{
			Kind: "ssh",
			Port: 22,
		},
		Credentials: CredentialsConfig{
			File: "credentials.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variable overrides, in that order.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the fields every binary depends on. Server-only
// requirements live in ValidateServer so the CLI can run without them.
func (c *Config) Validate() error {
	kind := strings.ToLower(c.Transport.Kind)
	if !slices.Contains([]string{"ssh", "winrm"}, kind) {
		return fmt.Errorf("transport kind must be ssh or winrm, got %q", c.Transport.Kind)
	}

	if c.Crawl.MaxHops < 0 {
		return fmt.Errorf("crawl max_hops cannot be negative")
	}
	if c.Crawl.ConnectTimeoutMS < 0 || c.Crawl.CommandTimeoutMS < 0 {
		return fmt.Errorf("crawl timeouts cannot be negative")
	}

	if c.Logging.Level != "" && !c.Logging.IsLogLevelValid() {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}

	return nil
}

// ValidateServer ensures the values required to expose the API are set.
func (c *Config) ValidateServer() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("TOPO_AUTH_JWT_SECRET is required (minimum 32 characters)")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters")
	}

	if c.Auth.AdminPassword == "" || c.Auth.AdminPassword == "changeme" {
		return fmt.Errorf("TOPO_AUTH_ADMIN_PASSWORD must be set to a strong password")
	}

	if c.Auth.EncryptionKey != "" && len(c.Auth.EncryptionKey) != 32 {
		return fmt.Errorf("encryption_key must be exactly 32 bytes")
	}

	if c.Database.Enabled && (c.Database.Host == "" || c.Database.DBName == "") {
		return fmt.Errorf("database host and dbname are required when the database is enabled")
	}

	return nil
}

// applyEnvOverrides checks for environment variables with TOPO_ prefix
func applyEnvOverrides(cfg *Config) {
	// Database overrides
	if v := os.Getenv("TOPO_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("TOPO_DATABASE_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Database.Port)
	}
	if v := os.Getenv("TOPO_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}

	// Auth overrides
	if v := os.Getenv("TOPO_AUTH_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if v := os.Getenv("TOPO_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TOPO_AUTH_ENCRYPTION_KEY"); v != "" {
		cfg.Auth.EncryptionKey = v
	}

	// SNMP overrides
	if v := os.Getenv("TOPO_SNMP_COMMUNITY"); v != "" {
		cfg.SNMP.Community = v
	}
}

// GetReadTimeout returns the read timeout as a duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// GetWriteTimeout returns the write timeout as a duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// GetDSN returns the PostgreSQL connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// GetJWTExpiry returns JWT expiry as duration
func (a *AuthConfig) GetJWTExpiry() time.Duration {
	return time.Duration(a.JWTExpiryHours) * time.Hour
}

// GetConnectTimeout returns the session connect timeout as a duration
func (c *CrawlConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// GetCommandTimeout returns the per-command timeout as a duration
func (c *CrawlConfig) GetCommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMS) * time.Millisecond
}

// GetTimeout returns the probe timeout as a duration
func (p *ProbeConfig) GetTimeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// GetTimeout returns the SNMP request timeout as a duration
func (s *SNMPConfig) GetTimeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}
