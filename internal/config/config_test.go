package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
logging:
  level: debug
  console: true
http:
  addr: "127.0.0.1:9000"
storage:
  driver: sqlite
  path: ./dp.db
  delivery_log_max: 25
dispatch:
  rate_per_sec: 5
  send_timeout: 3s
transport:
  driver: log
`)
	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Fatalf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" || cfg.Storage.DeliveryLogMax != 25 {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "config.yaml", `
logging:
  level: info
notifire:
  enabled: true
`)
	if _, err := NewConfigManager(path).Load(); err == nil {
		t.Fatal("unknown top-level key must be rejected")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mut    func(*Config)
		wantOK bool
	}{
		{"zero value ok", func(c *Config) {}, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"bad duration", func(c *Config) { c.Dispatch.SendTimeout = "soon" }, false},
		{"negative duration", func(c *Config) { c.HTTP.ReadTimeout = "-1s" }, false},
		{"sqlite needs path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, false},
		{"memory needs nothing", func(c *Config) { c.Storage = &StorageConfig{Driver: "memory"} }, true},
		{"unknown storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres"} }, false},
		{"negative log bound", func(c *Config) { c.Storage = &StorageConfig{DeliveryLogMax: -1} }, false},
		{"fcm without credentials uses ADC", func(c *Config) { c.Transport.Driver = "fcm" }, true},
		{"fcm with credentials", func(c *Config) {
			c.Transport.Driver = "fcm"
			c.Transport.CredentialsFile = "/etc/dreampulse/sa.json"
		}, true},
		{"unknown transport driver", func(c *Config) { c.Transport.Driver = "apns" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c Config
			tc.mut(&c)
			err := c.Validate()
			if tc.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.wantOK && err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	newCfg := &Config{
		Logging:  LoggingConfig{Level: "debug"},
		Dispatch: DispatchConfig{RatePerSec: 10},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if len(changed) != 2 || changed[0] != "dispatch" || changed[1] != "logging" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs for changed sections")
	}
	if c, _ := SummarizeConfigChange(newCfg, newCfg); len(c) != 0 {
		t.Fatalf("identical configs should report no changes, got %v", c)
	}
}
