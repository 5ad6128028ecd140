package config

import (
	"flag"
	"os"

	"github.com/pasturelabs/herdsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   listen address of the HTTP API
//	-dsn string Postgres connection string
//	-k string   token signing key
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-dsn", "-k"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.EndpointAddr, "a", cfg.EndpointAddr, "listen address")
	fs.StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "database connection string")
	fs.StringVar(&cfg.SecretKey, "k", cfg.SecretKey, "token signing key")

	_ = fs.Parse(args)
}
