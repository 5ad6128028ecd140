// Package config loads runtime settings for the device-side engine.
// Sources overlay in order: defaults, then a JSON file, then flags.
package config

import (
	"fmt"
	"time"
)

// Config holds runtime settings for the herdsync device engine.
type Config struct {
	// ServerEndpointAddr is the base URL of the remote store API.
	ServerEndpointAddr string
	// DatabasePath is the local SQLite file.
	DatabasePath string
	// SyncInterval is how often a sync cycle starts automatically.
	SyncInterval time.Duration
	// SessionTimeout is the editing inactivity timeout; it doubles as the
	// default lock TTL.
	SessionTimeout time.Duration
	// LockSweepInterval is the cadence of expired-lock reclamation.
	LockSweepInterval time.Duration

	// Object storage for tombstone archival; empty bucket disables it.
	S3Region       string
	S3Bucket       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
}

// LoadDefaults populates c with the reference configuration.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabasePath = "herd.db"
	c.SyncInterval = 60 * time.Second
	c.SessionTimeout = 300 * time.Second
	c.LockSweepInterval = 5 * time.Minute
}

// Validate rejects non-positive intervals; everything else is taken as-is.
func (c *Config) Validate() error {
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive")
	}
	if c.LockSweepInterval <= 0 {
		return fmt.Errorf("lock sweep interval must be positive")
	}
	return nil
}

// LoadConfig constructs a Config from defaults, JSON file and flags, with
// later sources taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg); err != nil {
		return nil, err
	}
	parseFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
