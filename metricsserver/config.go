/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package metricsserver

import (
	"fmt"
	"strings"

	"github.com/acronis/go-fleetguard/config"
)

// Default configuration values.
const (
	DefaultAddress      = ":9090"
	DefaultPath         = "/metrics"
	DefaultCfgKeyPrefix = "metricsServer"
)

const (
	cfgKeyEnabled = "enabled"
	cfgKeyAddress = "address"
	cfgKeyPath    = "path"
)

// Config represents a set of configuration parameters for the metrics server.
type Config struct {
	Enabled bool
	Address string
	Path    string

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(DefaultCfgKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the metrics server in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, true)
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	dp.SetDefault(cfgKeyPath, DefaultPath)
}

// Set sets metrics server configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Path, err = dp.GetString(cfgKeyPath); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Path, "/") {
		return dp.WrapKeyErr(cfgKeyPath, fmt.Errorf("should start with /"))
	}
	return nil
}
