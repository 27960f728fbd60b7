/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-fleetguard/config"
)

// Rate limiting algorithms.
const (
	AlgorithmSlidingLog    = "sliding_log"
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmLeakyBucket   = "leaky_bucket"
	AlgorithmTokenBucket   = "token_bucket"
)

var availableAlgorithms = []string{
	AlgorithmSlidingLog, AlgorithmSlidingWindow, AlgorithmLeakyBucket, AlgorithmTokenBucket,
}

// Well-known limiters of the application and their default rates.
const (
	CfgKeyPrefixAPI  = "throttle.api"
	CfgKeyPrefixAuth = "throttle.auth"

	DefaultAPIRate  = "100/m"
	DefaultAuthRate = "5/15m"
)

const (
	cfgKeyAlgorithm      = "algorithm"
	cfgKeyRate           = "rate"
	cfgKeyBurst          = "burst"
	cfgKeyMaxKeys        = "maxKeys"
	cfgKeyPruneInterval  = "pruneInterval"
	cfgKeyBacklogLimit   = "backlog.limit"
	cfgKeyBacklogMaxKeys = "backlog.maxKeys"
	cfgKeyBacklogTimeout = "backlog.timeout"
)

// BacklogConfig represents configuration of the backlog used by RequestProcessor.
type BacklogConfig struct {
	Limit   int
	MaxKeys int
	Timeout time.Duration
}

// Config represents configuration of a single limiter.
type Config struct {
	Algorithm string
	Rate      Rate

	// Burst is used by leaky_bucket (max burst) and token_bucket (bucket size, 0 means Rate.Count).
	Burst int

	// MaxKeys bounds the number of tracked keys, 0 means no bound.
	MaxKeys int

	// PruneInterval is the interval between prunes of idle keys, 0 disables pruning.
	PruneInterval time.Duration

	Backlog BacklogConfig

	keyPrefix   string
	defaultRate Rate
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig(keyPrefix string, defaultRate Rate) *Config {
	return &Config{keyPrefix: keyPrefix, defaultRate: defaultRate}
}

// NewAPIConfig creates a new configuration of the limiter for API calls.
func NewAPIConfig() *Config {
	return NewConfig(CfgKeyPrefixAPI, MustParseRate(DefaultAPIRate))
}

// NewAuthConfig creates a new configuration of the limiter for sign-in attempts.
func NewAuthConfig() *Config {
	return NewConfig(CfgKeyPrefixAuth, MustParseRate(DefaultAuthRate))
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the limiter in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAlgorithm, AlgorithmSlidingLog)
	dp.SetDefault(cfgKeyRate, c.defaultRate.String())
	dp.SetDefault(cfgKeyBacklogTimeout, DefaultBacklogTimeout.String())
}

// Set sets limiter configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	var algorithm string
	if algorithm, err = dp.GetStringFromSet(cfgKeyAlgorithm, availableAlgorithms, true); err != nil {
		return err
	}
	c.Algorithm = strings.ToLower(algorithm)

	var rateStr string
	if rateStr, err = dp.GetString(cfgKeyRate); err != nil {
		return err
	}
	if c.Rate, err = ParseRate(rateStr); err != nil {
		return dp.WrapKeyErr(cfgKeyRate, err)
	}
	if err = c.Rate.Validate(); err != nil {
		return dp.WrapKeyErr(cfgKeyRate, err)
	}

	if c.Burst, err = getNonNegativeInt(dp, cfgKeyBurst); err != nil {
		return err
	}
	if c.MaxKeys, err = getNonNegativeInt(dp, cfgKeyMaxKeys); err != nil {
		return err
	}
	if c.PruneInterval, err = dp.GetDuration(cfgKeyPruneInterval); err != nil {
		return err
	}
	if c.PruneInterval < 0 {
		return dp.WrapKeyErr(cfgKeyPruneInterval, fmt.Errorf("should be >= 0"))
	}

	if c.Backlog.Limit, err = getNonNegativeInt(dp, cfgKeyBacklogLimit); err != nil {
		return err
	}
	if c.Backlog.MaxKeys, err = getNonNegativeInt(dp, cfgKeyBacklogMaxKeys); err != nil {
		return err
	}
	if c.Backlog.Timeout, err = dp.GetDuration(cfgKeyBacklogTimeout); err != nil {
		return err
	}
	if c.Backlog.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyBacklogTimeout, fmt.Errorf("should be >= 0"))
	}
	return nil
}

func getNonNegativeInt(dp config.DataProvider, key string) (int, error) {
	v, err := dp.GetInt(key)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("should be >= 0"))
	}
	return v, nil
}

// NewLimiter creates a limiter of the configured algorithm.
// Options passed explicitly take precedence over the configuration.
func NewLimiter(cfg *Config, opts ...Option) (Limiter, error) {
	opts = append([]Option{WithMaxKeys(cfg.MaxKeys)}, opts...)
	var lim Limiter
	var err error
	switch cfg.Algorithm {
	case AlgorithmSlidingLog, "":
		lim, err = NewSlidingLogLimiter(cfg.Rate.Count, cfg.Rate.Duration, opts...)
	case AlgorithmSlidingWindow:
		lim, err = NewSlidingWindowLimiter(cfg.Rate, opts...)
	case AlgorithmLeakyBucket:
		lim, err = NewLeakyBucketLimiter(cfg.Rate, cfg.Burst, opts...)
	case AlgorithmTokenBucket:
		lim, err = NewTokenBucketLimiter(cfg.Rate, cfg.Burst, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfiguration, cfg.Algorithm)
	}
	if err != nil {
		return nil, err
	}
	return lim, nil
}

// NewRequestProcessorFromConfig creates a RequestProcessor for the limiter with the configured backlog.
func NewRequestProcessorFromConfig(limiter Limiter, cfg *Config) (*RequestProcessor, error) {
	return NewRequestProcessor(limiter, BacklogParams{
		Limit:   cfg.Backlog.Limit,
		MaxKeys: cfg.Backlog.MaxKeys,
		Timeout: cfg.Backlog.Timeout,
	})
}
