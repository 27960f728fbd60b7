/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package app

import (
	"io"

	"github.com/acronis/go-fleetguard/authguard"
	"github.com/acronis/go-fleetguard/config"
	"github.com/acronis/go-fleetguard/httpclient"
	"github.com/acronis/go-fleetguard/log"
	"github.com/acronis/go-fleetguard/metricsserver"
	"github.com/acronis/go-fleetguard/ratelimit"
)

// DefaultEnvVarsPrefix is the prefix of environment variables that override configuration values.
const DefaultEnvVarsPrefix = "FLEETGUARD"

// Config aggregates configurations of all components of the application.
type Config struct {
	Log           *log.Config
	APIThrottle   *ratelimit.Config
	AuthThrottle  *ratelimit.Config
	Auth          *authguard.Config
	APIClient     *httpclient.Config
	MetricsServer *metricsserver.Config
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{
		Log:           log.NewConfig(),
		APIThrottle:   ratelimit.NewAPIConfig(),
		AuthThrottle:  ratelimit.NewAuthConfig(),
		Auth:          authguard.NewConfig(),
		APIClient:     httpclient.NewConfig(),
		MetricsServer: metricsserver.NewConfig(),
	}
}

func (c *Config) parts() []config.Config {
	return []config.Config{c.Log, c.APIThrottle, c.AuthThrottle, c.Auth, c.APIClient, c.MetricsServer}
}

// LoadConfig loads the configuration from the file.
// Values may be overridden by environment variables prefixed with DefaultEnvVarsPrefix
// (e.g. FLEETGUARD_THROTTLE_AUTH_RATE).
func LoadConfig(path string, dataType config.DataType) (*Config, error) {
	cfg := NewConfig()
	parts := cfg.parts()
	if err := config.NewDefaultLoader(DefaultEnvVarsPrefix).LoadFromFile(path, dataType, parts[0], parts[1:]...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromReader loads the configuration from the reader. Environment variables are not used.
func LoadConfigFromReader(reader io.Reader, dataType config.DataType) (*Config, error) {
	cfg := NewConfig()
	parts := cfg.parts()
	if err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(reader, dataType, parts[0], parts[1:]...); err != nil {
		return nil, err
	}
	return cfg, nil
}
