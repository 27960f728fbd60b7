/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-fleetguard/config"
	"github.com/acronis/go-fleetguard/retry"
)

// Default configuration values.
const (
	DefaultClientWaitTimeout    = 10 * time.Second
	DefaultSlowRequestThreshold = time.Second
	DefaultCfgKeyPrefix         = "apiClient"
)

// Retry policies.
const (
	RetryPolicyExponential = "exponential"
	RetryPolicyConstant    = "constant"
)

const (
	cfgKeyTimeout                                 = "timeout"
	cfgKeyCategoriesDefault                       = "categories.default"
	cfgKeyCategoriesRules                         = "categories.rules"
	cfgKeyRetriesEnabled                          = "retries.enabled"
	cfgKeyRetriesMaxAttempts                      = "retries.maxAttempts"
	cfgKeyRetriesMaxRetryAfter                    = "retries.maxRetryAfter"
	cfgKeyRetriesPolicyStrategy                   = "retries.policy.strategy"
	cfgKeyRetriesPolicyExponentialInitialInterval = "retries.policy.exponentialBackoffInitialInterval"
	cfgKeyRetriesPolicyExponentialMultiplier      = "retries.policy.exponentialBackoffMultiplier"
	cfgKeyRetriesPolicyConstantInterval           = "retries.policy.constantBackoffInterval"
	cfgKeyLoggerEnabled                           = "logger.enabled"
	cfgKeyLoggerMode                              = "logger.mode"
	cfgKeyLoggerSlowRequestThreshold              = "logger.slowRequestThreshold"
	cfgKeyMetricsEnabled                          = "metrics.enabled"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// CategoriesConfig represents configuration of request categories used as rate limiting keys.
type CategoriesConfig struct {
	// Default is a category of requests that match no rule.
	Default string `mapstructure:"default"`

	// Rules are checked in order, the first matching rule wins.
	Rules []CategoryRule `mapstructure:"rules"`
}

// PolicyConfig represents configuration options for policy retry.
type PolicyConfig struct {
	// Strategy is a strategy for retry policy: exponential or constant.
	Strategy string `mapstructure:"strategy"`

	ExponentialBackoffInitialInterval time.Duration `mapstructure:"exponentialBackoffInitialInterval"`
	ExponentialBackoffMultiplier      float64       `mapstructure:"exponentialBackoffMultiplier"`
	ConstantBackoffInterval           time.Duration `mapstructure:"constantBackoffInterval"`
}

// RetriesConfig represents configuration options for HTTP client retries policy.
type RetriesConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// MaxAttempts is the maximum number of retry attempts.
	MaxAttempts int `mapstructure:"maxAttempts"`

	// MaxRetryAfter limits the wait time requested by the server in Retry-After header.
	MaxRetryAfter time.Duration `mapstructure:"maxRetryAfter"`

	Policy PolicyConfig `mapstructure:"policy"`
}

// GetPolicy returns a retry policy based on strategy or nil if none is provided.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	switch c.Policy.Strategy {
	case RetryPolicyExponential:
		initialInterval, multiplier := c.Policy.ExponentialBackoffInitialInterval, c.Policy.ExponentialBackoffMultiplier
		return retry.PolicyFunc(func() backoff.BackOff {
			bf := backoff.NewExponentialBackOff()
			bf.InitialInterval = initialInterval
			bf.Multiplier = multiplier
			bf.MaxElapsedTime = 0
			bf.Reset()
			return bf
		})
	case RetryPolicyConstant:
		return retry.NewConstantBackoffPolicy(c.Policy.ConstantBackoffInterval, 0)
	}
	return nil
}

// TransportOpts returns transport options.
func (c *RetriesConfig) TransportOpts() RetryableRoundTripperOpts {
	return RetryableRoundTripperOpts{
		MaxRetryAttempts: c.MaxAttempts,
		MaxRetryAfter:    c.MaxRetryAfter,
		BackoffPolicy:    c.GetPolicy(),
	}
}

// LoggerConfig represents configuration options for HTTP client logs.
type LoggerConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold"`

	// Mode of logging: none, all, failed.
	Mode LoggingMode `mapstructure:"mode"`
}

// TransportOpts returns transport options.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{Mode: c.Mode, SlowRequestThreshold: c.SlowRequestThreshold}
}

// MetricsConfig represents configuration options for HTTP client metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config represents options for HTTP client configuration.
type Config struct {
	// Timeout is the maximum time to wait for a request including retries and rate limiting backlog.
	Timeout time.Duration `mapstructure:"timeout"`

	Categories CategoriesConfig `mapstructure:"categories"`
	Retries    RetriesConfig    `mapstructure:"retries"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`

	keyPrefix string
}

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

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultClientWaitTimeout.String())
	dp.SetDefault(cfgKeyCategoriesDefault, DefaultCategory)
	dp.SetDefault(cfgKeyRetriesEnabled, true)
	dp.SetDefault(cfgKeyRetriesMaxAttempts, DefaultMaxRetryAttempts)
	dp.SetDefault(cfgKeyRetriesPolicyStrategy, RetryPolicyExponential)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialInitialInterval, DefaultExponentialBackoffInitialInterval.String())
	dp.SetDefault(cfgKeyRetriesPolicyExponentialMultiplier, DefaultExponentialBackoffMultiplier)
	dp.SetDefault(cfgKeyLoggerEnabled, true)
	dp.SetDefault(cfgKeyLoggerMode, string(LoggingModeAll))
	dp.SetDefault(cfgKeyLoggerSlowRequestThreshold, DefaultSlowRequestThreshold.String())
	dp.SetDefault(cfgKeyMetricsEnabled, true)
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("should be >= 0"))
	}

	if err = c.setCategories(dp); err != nil {
		return err
	}
	if err = c.setRetries(dp); err != nil {
		return err
	}
	if err = c.setLogger(dp); err != nil {
		return err
	}

	c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}

func (c *Config) setCategories(dp config.DataProvider) error {
	var err error
	if c.Categories.Default, err = dp.GetString(cfgKeyCategoriesDefault); err != nil {
		return err
	}
	c.Categories.Rules = nil
	if err = dp.UnmarshalKey(cfgKeyCategoriesRules, &c.Categories.Rules); err != nil {
		return err
	}
	for i, rule := range c.Categories.Rules {
		if err = rule.Validate(); err != nil {
			return dp.WrapKeyErr(cfgKeyCategoriesRules, fmt.Errorf("rule #%d: %w", i, err))
		}
	}
	return nil
}

func (c *Config) setRetries(dp config.DataProvider) error {
	var err error
	if c.Retries.Enabled, err = dp.GetBool(cfgKeyRetriesEnabled); err != nil {
		return err
	}
	if !c.Retries.Enabled {
		return nil
	}

	if c.Retries.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMaxAttempts); err != nil {
		return err
	}
	if c.Retries.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, fmt.Errorf("should be >= 0"))
	}
	if c.Retries.MaxRetryAfter, err = dp.GetDuration(cfgKeyRetriesMaxRetryAfter); err != nil {
		return err
	}
	if c.Retries.MaxRetryAfter < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxRetryAfter, fmt.Errorf("should be >= 0"))
	}

	policy := &c.Retries.Policy
	if policy.Strategy, err = dp.GetStringFromSet(
		cfgKeyRetriesPolicyStrategy, []string{RetryPolicyExponential, RetryPolicyConstant}, false,
	); err != nil {
		return err
	}
	switch policy.Strategy {
	case RetryPolicyExponential:
		if policy.ExponentialBackoffInitialInterval, err = dp.GetDuration(
			cfgKeyRetriesPolicyExponentialInitialInterval); err != nil {
			return err
		}
		if policy.ExponentialBackoffInitialInterval <= 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialInitialInterval, fmt.Errorf("should be > 0"))
		}
		if policy.ExponentialBackoffMultiplier, err = dp.GetFloat64(cfgKeyRetriesPolicyExponentialMultiplier); err != nil {
			return err
		}
		if policy.ExponentialBackoffMultiplier <= 1 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialMultiplier, fmt.Errorf("should be > 1"))
		}
	case RetryPolicyConstant:
		if policy.ConstantBackoffInterval, err = dp.GetDuration(cfgKeyRetriesPolicyConstantInterval); err != nil {
			return err
		}
		if policy.ConstantBackoffInterval <= 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyConstantInterval, fmt.Errorf("should be > 0"))
		}
	}
	return nil
}

func (c *Config) setLogger(dp config.DataProvider) error {
	var err error
	if c.Logger.Enabled, err = dp.GetBool(cfgKeyLoggerEnabled); err != nil {
		return err
	}
	if !c.Logger.Enabled {
		return nil
	}

	var mode string
	if mode, err = dp.GetString(cfgKeyLoggerMode); err != nil {
		return err
	}
	c.Logger.Mode = LoggingMode(mode)
	if !c.Logger.Mode.IsValid() {
		return dp.WrapKeyErr(cfgKeyLoggerMode, fmt.Errorf("should be one of: [none, all, failed]"))
	}
	if c.Logger.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLoggerSlowRequestThreshold); err != nil {
		return err
	}
	if c.Logger.SlowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLoggerSlowRequestThreshold, fmt.Errorf("should be >= 0"))
	}
	return nil
}
