package helpers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type CacheError struct {
	Message string
	Cause   error
}

func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Distinct error categories, matched with errors.As.
type ConfigurationError struct{ CacheError }
type ConnectivityError struct{ CacheError }
type PersistenceError struct{ CacheError }
type LifecycleError struct{ CacheError }
type ValidationError struct{ CacheError }

// -----------------------------------------------------------------------------

func NewConfigurationError(msg string, cause error) error {
	return &ConfigurationError{CacheError{Message: msg, Cause: cause}}
}

func NewConnectivityError(msg string, cause error) error {
	return &ConnectivityError{CacheError{Message: msg, Cause: cause}}
}

func NewPersistenceError(msg string, cause error) error {
	return &PersistenceError{CacheError{Message: msg, Cause: cause}}
}

func NewLifecycleError(msg string, cause error) error {
	return &LifecycleError{CacheError{Message: msg, Cause: cause}}
}

func NewValidationError(msg string, cause error) error {
	return &ValidationError{CacheError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------

// IsConnectivityError reports whether err is, or wraps, a ConnectivityError.
func IsConnectivityError(err error) bool {
	var target *ConnectivityError
	return errors.As(err, &target)
}

// IsBusyError reports SQLite lock contention.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database table is locked")
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff runs fn up to maxRetries times with exponential backoff while
// retryable(err) holds. A nil retryable retries every error. The wait is
// abandoned when ctx is done.
func RetryWithBackoff(ctx context.Context, maxRetries int, baseDelay time.Duration, retryable func(error) bool, fn func() error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}

	return lastErr
}
