// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrRateLimited       = errors.New("rate limited")
	ErrTimeout           = errors.New("operation timed out")
	ErrDataNotFound      = errors.New("data not found")
	ErrCacheMiss         = errors.New("cache miss")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrMonitorRunning    = errors.New("monitoring service already running")
	ErrMonitorNotRunning = errors.New("monitoring service not running")
	ErrCircuitOpen       = errors.New("circuit breaker is open")
)

// UpstreamKind classifies an upstream provider failure into the closed
// taxonomy callers branch on. Only RateLimited and Transient failures are
// retryable.
type UpstreamKind string

const (
	// UpstreamRateLimited is an HTTP 429 class failure.
	UpstreamRateLimited UpstreamKind = "rate_limited"
	// UpstreamTransient covers network failures and 5xx responses.
	UpstreamTransient UpstreamKind = "transient"
	// UpstreamPermanent covers non-429 4xx responses and malformed payloads.
	UpstreamPermanent UpstreamKind = "permanent"
)

// UpstreamError represents a failure from an upstream market-data provider.
type UpstreamError struct {
	Provider   string
	Kind       UpstreamKind
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream error [%s/%s] %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream error [%s/%s] %s", e.Provider, e.Kind, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying.
func (e *UpstreamError) Retryable() bool {
	return e.Kind != UpstreamPermanent
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(provider string, kind UpstreamKind, statusCode int, message string, err error) *UpstreamError {
	return &UpstreamError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// IsRateLimited reports whether err is a 429-class upstream failure.
func IsRateLimited(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind == UpstreamRateLimited
	}
	return errors.Is(err, ErrRateLimited)
}

// IsPermanent reports whether err is a non-retryable upstream failure.
func IsPermanent(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind == UpstreamPermanent
	}
	return false
}

// EvaluationError represents a failure while evaluating an alert rule.
type EvaluationError struct {
	RuleID  string
	Symbol  string
	Message string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluation error [%s] %s: %s: %v", e.RuleID, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("evaluation error [%s] %s: %s", e.RuleID, e.Symbol, e.Message)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// NewEvaluationError creates a new EvaluationError.
func NewEvaluationError(ruleID, symbol, message string, err error) *EvaluationError {
	return &EvaluationError{
		RuleID:  ruleID,
		Symbol:  symbol,
		Message: message,
		Err:     err,
	}
}

// NotificationError represents a per-channel delivery failure.
type NotificationError struct {
	Channel string
	RuleID  string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification error [%s] rule %s: %v", e.Channel, e.RuleID, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotificationError creates a new NotificationError.
func NewNotificationError(channel, ruleID string, err error) *NotificationError {
	return &NotificationError{
		Channel: channel,
		RuleID:  ruleID,
		Err:     err,
	}
}

// StoreError represents a persistence failure.
type StoreError struct {
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error [%s]: %v", e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation string, err error) *StoreError {
	return &StoreError{Operation: operation, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
