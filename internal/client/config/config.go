package config

import (
	"fmt"
	"time"
)

// Config holds runtime settings for the gophauth CLI.
type Config struct {
	// ServerEndpointAddr is host:port of the account service gRPC endpoint.
	ServerEndpointAddr string `env:"GOPHAUTH_SERVER_ADDR"`
	// OnlineCheckInterval is how often the client probes the service.
	OnlineCheckInterval time.Duration `env:"GOPHAUTH_ONLINE_CHECK_INTERVAL"`
	// RequestTimeout bounds every account service call.
	RequestTimeout time.Duration `env:"GOPHAUTH_REQUEST_TIMEOUT"`
	// SessionDBPath is the SQLite file the session is kept in. Empty keeps
	// the session in memory only.
	SessionDBPath string `env:"GOPHAUTH_SESSION_DB"`

	MinNameLength     int `env:"GOPHAUTH_MIN_NAME_LENGTH"`
	MinUsernameLength int `env:"GOPHAUTH_MIN_USERNAME_LENGTH"`
	MinPasswordLength int `env:"GOPHAUTH_MIN_PASSWORD_LENGTH"`

	LogLevel string `env:"GOPHAUTH_LOG_LEVEL"`
	// OTelEndpoint enables OTLP/HTTP trace export when set (host:port).
	OTelEndpoint string `env:"GOPHAUTH_OTLP_ENDPOINT"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.SessionDBPath = "gophauth.db"
	c.MinNameLength = 2
	c.MinUsernameLength = 2
	c.MinPasswordLength = 8
	c.LogLevel = "info"
	c.OTelEndpoint = ""
}

// Validate reports settings the client cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.ServerEndpointAddr == "":
		return fmt.Errorf("server address is empty")
	case c.OnlineCheckInterval <= 0:
		return fmt.Errorf("online check interval must be positive, got %s", c.OnlineCheckInterval)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	case c.MinNameLength < 1 || c.MinUsernameLength < 1 || c.MinPasswordLength < 1:
		return fmt.Errorf("minimum lengths must be at least 1")
	}
	return nil
}

// LoadConfig builds a Config from defaults, then the JSON file named by
// -c/-config, then GOPHAUTH_* environment variables, then flags. Later
// sources win. args excludes the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
