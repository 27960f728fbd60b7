/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package authguard throttles sign-in attempts before the credentials reach the authentication provider.
package authguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-fleetguard/log"
	"github.com/acronis/go-fleetguard/ratelimit"
)

// LoginAttemptKey is the key used by KeyConstant mode, all sign-in attempts share one quota.
const LoginAttemptKey = "login_attempt"

// ErrTooManyAttempts is matched (errors.Is) by TooManyAttemptsError.
var ErrTooManyAttempts = errors.New("too many attempts, try again later")

// TooManyAttemptsError is returned by Guard.SignIn when the attempt is throttled.
// Its message is safe to show to the user.
type TooManyAttemptsError struct {
	RetryAfter time.Duration
}

func (e *TooManyAttemptsError) Error() string {
	return ErrTooManyAttempts.Error()
}

// Is makes errors.Is(err, ErrTooManyAttempts) work.
func (e *TooManyAttemptsError) Is(target error) bool {
	return target == ErrTooManyAttempts
}

// RetryDelay returns the time after which the next attempt may be accepted.
func (e *TooManyAttemptsError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// Credentials are the e-mail and password the user signs in with.
type Credentials struct {
	Email    string
	Password string
}

// Session is the result of a successful sign-in.
type Session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Authenticator checks credentials against the authentication provider.
type Authenticator interface {
	SignIn(ctx context.Context, creds Credentials) (Session, error)
}

// AuthenticatorFunc is an adapter to allow the use of ordinary functions as Authenticator.
type AuthenticatorFunc func(ctx context.Context, creds Credentials) (Session, error)

// SignIn implements Authenticator interface.
func (f AuthenticatorFunc) SignIn(ctx context.Context, creds Credentials) (Session, error) {
	return f(ctx, creds)
}

// KeyFunc derives the rate limiting key from credentials.
type KeyFunc func(creds Credentials) string

// KeyPerEmail gives every e-mail address its own quota. Addresses are compared case-insensitively.
func KeyPerEmail(creds Credentials) string {
	return strings.ToLower(strings.TrimSpace(creds.Email))
}

// KeyConstant makes all sign-in attempts share the quota of the given key.
func KeyConstant(key string) KeyFunc {
	return func(Credentials) string {
		return key
	}
}

// Opts contains optional parameters for constructing Guard.
type Opts struct {
	// Key derives the rate limiting key, KeyPerEmail is used by default.
	Key KeyFunc

	// ResetOnSuccess clears the quota of the key after a successful sign-in.
	// It takes effect only if the limiter implements ratelimit.Resetter.
	ResetOnSuccess bool

	Logger log.FieldLogger
}

// Guard admits sign-in attempts through a rate limiter.
type Guard struct {
	limiter        ratelimit.Limiter
	auth           Authenticator
	key            KeyFunc
	resetOnSuccess bool
	logger         log.FieldLogger
}

// New creates a new Guard with default options.
func New(limiter ratelimit.Limiter, auth Authenticator) *Guard {
	return NewWithOpts(limiter, auth, Opts{})
}

// NewWithOpts creates a new Guard.
func NewWithOpts(limiter ratelimit.Limiter, auth Authenticator, opts Opts) *Guard {
	if opts.Key == nil {
		opts.Key = KeyPerEmail
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	return &Guard{
		limiter:        limiter,
		auth:           auth,
		key:            opts.Key,
		resetOnSuccess: opts.ResetOnSuccess,
		logger:         opts.Logger,
	}
}

// SignIn checks the rate limit and, if the attempt is admitted, passes the credentials to the Authenticator.
// A throttled attempt fails with *TooManyAttemptsError and never reaches the Authenticator.
// Errors of the Authenticator are returned as is.
func (g *Guard) SignIn(ctx context.Context, creds Credentials) (Session, error) {
	key := g.key(creds)
	logger := g.logger.With(log.String("identifier", key))

	allow, retryAfter, err := g.limiter.Allow(ctx, key)
	if err != nil {
		return Session{}, fmt.Errorf("check sign-in rate limit: %w", err)
	}
	if !allow {
		logger.Warn("sign-in attempt throttled", log.Duration("retry_after", retryAfter))
		return Session{}, &TooManyAttemptsError{RetryAfter: retryAfter}
	}

	session, err := g.auth.SignIn(ctx, creds)
	if err != nil {
		logger.Info("sign-in attempt failed", log.Error(err))
		return Session{}, err
	}

	if g.resetOnSuccess {
		if resetter, ok := g.limiter.(ratelimit.Resetter); ok {
			resetter.Reset(key)
		}
	}
	logger.Info("signed in", log.String("user_id", session.UserID))
	return session, nil
}

// RemainingAttempts returns how many sign-in attempts the e-mail has left.
// The second value is false if the limiter can't tell.
func (g *Guard) RemainingAttempts(email string) (int, bool) {
	reporter, ok := g.limiter.(ratelimit.QuotaReporter)
	if !ok {
		return 0, false
	}
	return reporter.RemainingRequests(g.key(Credentials{Email: email})), true
}
