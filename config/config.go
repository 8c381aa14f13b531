// Package config holds the runtime configuration of the veilvote daemon.
package config

import (
	"fmt"
	"time"

	"go.vocdoni.io/dvote/db"

	"github.com/veilvote/veilvote/api"
	"github.com/veilvote/veilvote/issuer"
)

// Config is the runtime configuration of the daemon.
type Config struct {
	// Host is the address the API server binds to.
	Host string
	// Port is the TCP port of the API server.
	Port int
	// Role selects which endpoints this instance serves: "ia" for the
	// issuing authority, "po" for the poll operator, "both" for all.
	Role string
	// DataDir is the directory holding the key-value store.
	DataDir string
	// DBType selects the key-value store engine.
	DBType string
	// LogLevel is one of debug, info, warn or error.
	LogLevel string
	// LogOutput is stdout, stderr or a file path.
	LogOutput string
	// KeyRotation is how often the issuer starts a new key epoch. Issued
	// tokens stay redeemable for up to twice this interval.
	KeyRotation time.Duration
}

// Default returns the configuration the daemon runs with when no flag
// overrides it.
func Default() *Config {
	return &Config{
		Host:        "0.0.0.0",
		Port:        9090,
		Role:        api.RoleBoth,
		DataDir:     ".veilvote",
		DBType:      db.TypePebble,
		LogLevel:    "info",
		LogOutput:   "stdout",
		KeyRotation: issuer.DefaultRotationInterval,
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Role != api.RoleIssuer && c.Role != api.RoleOperator && c.Role != api.RoleBoth {
		return fmt.Errorf("invalid role %q, must be %q, %q or %q",
			c.Role, api.RoleIssuer, api.RoleOperator, api.RoleBoth)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	if c.KeyRotation < 0 {
		return fmt.Errorf("key rotation interval cannot be negative")
	}
	return nil
}
