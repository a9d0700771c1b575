package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Engine.Timeout != 30*time.Second {
		t.Errorf("Engine.Timeout = %s, want 30s", cfg.Engine.Timeout)
	}
	if cfg.Engine.MaxConcurrent != 100 {
		t.Errorf("Engine.MaxConcurrent = %d, want 100", cfg.Engine.MaxConcurrent)
	}
	if cfg.Policy.CommandPrefix != "!" {
		t.Errorf("Policy.CommandPrefix = %q, want %q", cfg.Policy.CommandPrefix, "!")
	}
	if cfg.Policy.StateFile == "" {
		t.Error("Policy.StateFile should have a default")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return DefaultConfig()
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"server port 0", func(c *Config) { c.Server.Port = 0 }, true},
		{"server port 99999", func(c *Config) { c.Server.Port = 99999 }, true},
		{"timeout > max_timeout", func(c *Config) {
			c.Engine.Timeout = 2 * time.Minute
			c.Engine.MaxTimeout = 1 * time.Minute
		}, true},
		{"max_concurrent 0", func(c *Config) { c.Engine.MaxConcurrent = 0 }, true},
		{"max_code_bytes 0", func(c *Config) { c.Engine.MaxCodeBytes = 0 }, true},
		{"empty state file", func(c *Config) { c.Policy.StateFile = "" }, true},
		{"empty command prefix", func(c *Config) { c.Policy.CommandPrefix = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
server:
  host: "127.0.0.1"
  port: 9090
engine:
  timeout: 15s
  max_timeout: 120s
  max_concurrent: 50
policy:
  owner_id: 1234
  state_file: "/var/lib/snippet/policy.json"
`
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(yamlContent); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Engine.Timeout != 15*time.Second {
		t.Errorf("Engine.Timeout = %s, want 15s", cfg.Engine.Timeout)
	}
	if cfg.Policy.OwnerID != 1234 {
		t.Errorf("Policy.OwnerID = %d, want 1234", cfg.Policy.OwnerID)
	}

	// Unspecified sections keep defaults.
	if cfg.Security.RateLimitRPS != 100 {
		t.Errorf("Security.RateLimitRPS = %v, want default 100", cfg.Security.RateLimitRPS)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString("server: [not a map"); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	if _, err := Load(tmpFile.Name()); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "10.0.0.1"
	cfg.Server.Port = 9000

	if got := cfg.Address(); got != "10.0.0.1:9000" {
		t.Errorf("Address() = %q, want %q", got, "10.0.0.1:9000")
	}
}
