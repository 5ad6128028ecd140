package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pasturelabs/herdsync/internal/flagx"
	"github.com/pasturelabs/herdsync/internal/timex"
)

// JsonConfig is the DTO for the JSON config file. Durations accept either
// strings like "60s" or integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	DatabasePath       string         `json:"database_path"`
	SyncInterval       timex.Duration `json:"sync_interval"`
	SessionTimeout     timex.Duration `json:"session_timeout"`
	LockSweepInterval  timex.Duration `json:"lock_sweep_interval"`
	S3Region           string         `json:"s3_region"`
	S3Bucket           string         `json:"s3_bucket"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	S3AccessKey        string         `json:"s3_access_key"`
	S3SecretKey        string         `json:"s3_secret_key"`
}

// parseJson overlays cfg with values from the file named by -c/-config.
// No flag means no JSON source; missing fields keep their current values.
func parseJson(cfg *Config) error {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
	if jc.SessionTimeout.Duration != 0 {
		cfg.SessionTimeout = time.Duration(jc.SessionTimeout.Duration)
	}
	if jc.LockSweepInterval.Duration != 0 {
		cfg.LockSweepInterval = time.Duration(jc.LockSweepInterval.Duration)
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.S3BaseEndpoint != "" {
		cfg.S3BaseEndpoint = jc.S3BaseEndpoint
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
	return nil
}
