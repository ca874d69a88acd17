package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Transport.Kind != "ssh" || cfg.Transport.Port != 22 {
		t.Errorf("transport defaults = %s/%d, want ssh/22", cfg.Transport.Kind, cfg.Transport.Port)
	}
	if cfg.Crawl.MaxHops != 3 {
		t.Errorf("default max_hops = %d, want 3", cfg.Crawl.MaxHops)
	}
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9443
database:
  enabled: true
  host: db.internal
  dbname: topo
crawl:
  max_hops: 5
  commands:
    - show cdp neighbors detail
transport:
  kind: winrm
  port: 5985
  use_https: true
probe:
  icmp_enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9443 {
		t.Errorf("server port = %d, want 9443", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server host default lost, got %q", cfg.Server.Host)
	}
	if !cfg.Database.Enabled || cfg.Database.Host != "db.internal" {
		t.Errorf("database section not applied: %+v", cfg.Database)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("database port default lost, got %d", cfg.Database.Port)
	}
	if cfg.Crawl.MaxHops != 5 {
		t.Errorf("max_hops = %d, want 5", cfg.Crawl.MaxHops)
	}
	if len(cfg.Crawl.Commands) != 1 {
		t.Errorf("commands = %v, want one entry", cfg.Crawl.Commands)
	}
	if cfg.Transport.Kind != "winrm" || !cfg.Transport.UseHTTPS {
		t.Errorf("transport section not applied: %+v", cfg.Transport)
	}
	if cfg.Probe.ICMPEnabled {
		t.Error("probe icmp_enabled false not applied")
	}
	if cfg.Probe.TimeoutMS != 2000 {
		t.Errorf("probe timeout default lost, got %d", cfg.Probe.TimeoutMS)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("TOPO_DATABASE_HOST", "pg.example.net")
	t.Setenv("TOPO_DATABASE_PORT", "5433")
	t.Setenv("TOPO_AUTH_JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("TOPO_SNMP_COMMUNITY", "monitoring")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host != "pg.example.net" || cfg.Database.Port != 5433 {
		t.Errorf("database env overrides not applied: %+v", cfg.Database)
	}
	if len(cfg.Auth.JWTSecret) != 32 {
		t.Errorf("jwt secret override not applied")
	}
	if cfg.SNMP.Community != "monitoring" {
		t.Errorf("snmp community = %q, want monitoring", cfg.SNMP.Community)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"winrm transport", func(c *Config) { c.Transport.Kind = "winrm" }, false},
		{"unknown transport", func(c *Config) { c.Transport.Kind = "telnet" }, true},
		{"negative max hops", func(c *Config) { c.Crawl.MaxHops = -1 }, true},
		{"negative timeout", func(c *Config) { c.Crawl.CommandTimeoutMS = -5 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServer(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Auth.JWTSecret = strings.Repeat("k", 32)
		cfg.Auth.AdminPassword = "str0ng-adm1n-pw"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid server config", func(c *Config) {}, false},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"default admin password", func(c *Config) { c.Auth.AdminPassword = "changeme" }, true},
		{"wrong key length", func(c *Config) { c.Auth.EncryptionKey = "tooshort" }, true},
		{"valid key length", func(c *Config) { c.Auth.EncryptionKey = strings.Repeat("e", 32) }, false},
		{"db enabled without host", func(c *Config) { c.Database.Enabled = true; c.Database.Host = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.ValidateServer()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServer() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := Default()
	if got := cfg.Crawl.GetCommandTimeout(); got != 30*time.Second {
		t.Errorf("command timeout = %v, want 30s", got)
	}
	if got := cfg.Crawl.GetConnectTimeout(); got != 5*time.Second {
		t.Errorf("connect timeout = %v, want 5s", got)
	}
	if got := cfg.Probe.GetTimeout(); got != 2*time.Second {
		t.Errorf("probe timeout = %v, want 2s", got)
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	want := "host=h port=5432 user=u password=p dbname=n sslmode=disable"
	if got := d.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
