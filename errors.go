package tokenguard

import "errors"

var (
	// ErrUnauthorized is the single rejection returned by every validation
	// path. The reason is recorded in logs, metrics and audit events only.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRefreshInvalid is returned by Refresh for any rejected refresh token
	// or failed user lookup.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrInvalidInput is returned for empty subjects, service ids or tokens.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBlacklistUnavailable is returned when a revocation write or query
	// cannot reach the blacklist store.
	ErrBlacklistUnavailable = errors.New("blacklist store unavailable")
	// ErrTokenIssue is returned when a token cannot be signed.
	ErrTokenIssue = errors.New("token issuance failed")
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidConfig matches every *ConfigurationError through errors.Is.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConfigurationError is returned by [Config.Validate] and [Builder.Build]. It
// is fatal: an engine is never built from a configuration that fails.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "tokenguard: invalid configuration: " + e.Field + ": " + e.Reason
}

// Is makes errors.Is(err, ErrInvalidConfig) hold for any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func configError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}
