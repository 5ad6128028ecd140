package config

import (
	"flag"
	"os"
	"time"

	"github.com/pasturelabs/herdsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   base URL of the remote store API
//	-d string   local database path
//	-i int      sync interval in seconds
//	-t int      session timeout in seconds
//
// Args are filtered through flagx.FilterArgs so flags owned by other
// components do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-i", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "base URL of the remote store API")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")
	sessionTimeout := fs.Int("t", int(cfg.SessionTimeout.Seconds()), "session timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		return
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
	cfg.SessionTimeout = time.Duration(*sessionTimeout) * time.Second
}
