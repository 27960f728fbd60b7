/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Limiter interface defines the rate limiting contract.
// A rejection is reported as allow=false with the estimated time after which the key may be admitted again,
// err is reserved for failures of the limiter itself.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// Resetter is implemented by limiters that can forget all state of a key.
type Resetter interface {
	Reset(key string)
}

// QuotaReporter is implemented by limiters that can tell how many requests a key may still do right now.
type QuotaReporter interface {
	RemainingRequests(key string) int
}

// Pruner is implemented by limiters that can drop keys which no longer carry any state.
type Pruner interface {
	Prune() int
}

// Rate describes the frequency of requests: Count requests per Duration.
type Rate struct {
	Count    int
	Duration time.Duration
}

// String returns a string representation of the rate ("10/s", "100/m", "5/15m0s").
// Implements fmt.Stringer interface.
func (r Rate) String() string {
	if r.Count == 0 && r.Duration == 0 {
		return ""
	}
	var d string
	switch r.Duration {
	case time.Second:
		d = "s"
	case time.Minute:
		d = "m"
	case time.Hour:
		d = "h"
	default:
		d = r.Duration.String()
	}
	return fmt.Sprintf("%d/%s", r.Count, d)
}

// Validate checks that both count and duration are positive.
func (r Rate) Validate() error {
	if r.Count <= 0 {
		return &ConfigurationError{Param: "max requests", Value: r.Count}
	}
	if r.Duration <= 0 {
		return &ConfigurationError{Param: "window", Value: r.Duration}
	}
	return nil
}

// ParseRate parses rate in N/(s|m|h) or N/<duration> format, for example 10/s, 100/m, 5/15m.
func ParseRate(s string) (Rate, error) {
	var r Rate
	if err := r.unmarshal(s); err != nil {
		return Rate{}, err
	}
	return r, nil
}

// MustParseRate is like ParseRate but panics if the rate cannot be parsed.
func MustParseRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (r *Rate) UnmarshalText(text []byte) error {
	return r.unmarshal(string(text))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (r *Rate) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	return r.unmarshal(text)
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (r *Rate) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return err
	}
	return r.unmarshal(text)
}

func (r *Rate) unmarshal(rate string) error {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		*r = Rate{}
		return nil
	}
	incorrectFormatErr := fmt.Errorf(
		"incorrect format for rate %q, should be N/(s|m|h) or N/<duration>, for example 10/s, 100/m, 5/15m", rate)
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		return incorrectFormatErr
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return incorrectFormatErr
	}
	var dur time.Duration
	switch unit := strings.ToLower(strings.TrimSpace(parts[1])); unit {
	case "s":
		dur = time.Second
	case "m":
		dur = time.Minute
	case "h":
		dur = time.Hour
	default:
		if dur, err = time.ParseDuration(unit); err != nil {
			return incorrectFormatErr
		}
	}
	*r = Rate{Count: count, Duration: dur}
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// MarshalJSON implements the json.Marshaler interface.
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// MarshalYAML implements the yaml.Marshaler interface.
func (r Rate) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}
