/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package authguard

import (
	"strings"

	"github.com/acronis/go-fleetguard/config"
	"github.com/acronis/go-fleetguard/log"
)

const cfgDefaultKeyPrefix = "auth"

const (
	cfgKeyKeyBy          = "keyBy"
	cfgKeyResetOnSuccess = "resetOnSuccess"
)

// KeyBy defines how sign-in attempts are keyed.
type KeyBy string

// Keying modes.
const (
	KeyByEmail  KeyBy = "email"
	KeyByGlobal KeyBy = "global"
)

// Config represents configuration of the Guard.
type Config struct {
	KeyBy          KeyBy
	ResetOnSuccess bool
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values for the Guard in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyKeyBy, string(KeyByEmail))
	dp.SetDefault(cfgKeyResetOnSuccess, false)
}

// Set sets Guard configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	keyBy, err := dp.GetStringFromSet(cfgKeyKeyBy, []string{string(KeyByEmail), string(KeyByGlobal)}, true)
	if err != nil {
		return err
	}
	c.KeyBy = KeyBy(strings.ToLower(keyBy))
	c.ResetOnSuccess, err = dp.GetBool(cfgKeyResetOnSuccess)
	return err
}

// Opts converts the configuration into Guard options.
func (c *Config) Opts(logger log.FieldLogger) Opts {
	opts := Opts{Key: KeyPerEmail, ResetOnSuccess: c.ResetOnSuccess, Logger: logger}
	if c.KeyBy == KeyByGlobal {
		opts.Key = KeyConstant(LoginAttemptKey)
	}
	return opts
}
