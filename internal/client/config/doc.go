// Package config loads runtime configuration for the gophauth CLI.
//
// # Sources and precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. GOPHAUTH_* environment variables.
//  4. Command-line flags -a, -i, -d and -t.
//
// # JSON schema
//
// Durations are timex.Duration, so they may be strings like "3s" or integer
// nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "request_timeout": "10s",
//	  "session_db_path": "gophauth.db",
//	  "min_password_length": 8,
//	  "log_level": "debug",
//	  "otel_endpoint": "localhost:4318"
//	}
package config
