package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// HTTP is the public REST API surface.
	HTTP HTTPConfig `json:"http"`

	// Storage controls the persistence layer. If omitted, an in-memory
	// store is used (nothing survives a restart).
	Storage *StorageConfig `json:"storage,omitempty"`

	// Dispatch controls the delivery fan-out.
	Dispatch DispatchConfig `json:"dispatch"`

	// Transport selects the push driver.
	Transport TransportConfig `json:"transport"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPConfig controls the REST API server.
//
// All timeouts are Go duration strings (e.g. "10s", "1m").
type HTTPConfig struct {
	Addr         string `json:"addr"` // default: "127.0.0.1:8880"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./dreampulse.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // "memory" or "sqlite"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// DeliveryLogMax bounds the per-user delivery log. 0 means the
	// built-in default.
	DeliveryLogMax int `json:"delivery_log_max,omitempty"`
}

// DispatchConfig controls the delivery fan-out.
//
// Defaults (when fields are omitted/zero):
//   - rate_per_sec: 20
//   - send_timeout: "10s"
type DispatchConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// SendTimeout is a Go duration string bounding one push attempt.
	SendTimeout string `json:"send_timeout,omitempty"`
}

// TransportConfig selects the push driver.
//
// Driver "log" writes deliveries to the log instead of sending them and
// needs no credentials. Driver "fcm" uses a service-account credentials
// file when one is given, otherwise the application default credentials
// environment lookup.
type TransportConfig struct {
	Driver          string `json:"driver"` // "log" or "fcm"
	CredentialsFile string `json:"credentials_file,omitempty"`
	ProjectID       string `json:"project_id,omitempty"`
}

// Validate checks everything that can be checked without touching the
// network or filesystem. It is used both at startup and as the reload
// gate, so a bad edit never reaches running services.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}

	if _, err := ParseDurationField("http.read_timeout", c.HTTP.ReadTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("http.write_timeout", c.HTTP.WriteTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("http.idle_timeout", c.HTTP.IdleTimeout); err != nil {
		return err
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "memory":
		case "sqlite":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("storage.path: required for sqlite driver")
			}
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
		if s.DeliveryLogMax < 0 {
			return fmt.Errorf("storage.delivery_log_max: must be >= 0")
		}
	}

	if c.Dispatch.RatePerSec < 0 {
		return fmt.Errorf("dispatch.rate_per_sec: must be >= 0")
	}
	if _, err := ParseDurationField("dispatch.send_timeout", c.Dispatch.SendTimeout); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(c.Transport.Driver)) {
	case "", "log", "fcm":
		// fcm with no credentials_file falls back to application default
		// credentials at startup.
	default:
		return fmt.Errorf("transport.driver: unknown driver %q", c.Transport.Driver)
	}

	return nil
}
