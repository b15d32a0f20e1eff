package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors for the domain layer.
var (
	ErrAgentNotFound    = fmt.Errorf("agent not found")
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrConfigInvalid    = fmt.Errorf("invalid configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")
	ErrEncryption       = fmt.Errorf("encryption operation failed")

	// LLM boundary errors.
	ErrRateLimit          = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid        = fmt.Errorf("authentication failed")
	ErrProviderFailure    = fmt.Errorf("llm provider failure")
	ErrEmptyResponse      = fmt.Errorf("llm returned an empty response")
	ErrCircuitOpen        = fmt.Errorf("circuit breaker open")
	ErrAllProvidersFailed = fmt.Errorf("all providers failed")

	// Routing protocol errors.
	ErrNoStructuredDecision = fmt.Errorf("no structured routing decision")
	ErrRoutingViolation     = fmt.Errorf("routing protocol violation")

	// Tool errors.
	ErrToolFailure = fmt.Errorf("tool execution failed")
	ErrToolRate    = fmt.Errorf("tool rate limit exceeded")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Get")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on
// another provider.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProviderFailure) ||
		errors.Is(err, ErrCircuitOpen)
}

// ErrorCode is a machine-parseable error category for clients and monitoring.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeDuplicate          ErrorCode = "DUPLICATE"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	CodeProviderNotFound   ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeConfigInvalid      ErrorCode = "CONFIG_INVALID"
	CodeDecryption         ErrorCode = "DECRYPTION"
	CodeEncryption         ErrorCode = "ENCRYPTION"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeProviderFailure    ErrorCode = "PROVIDER_FAILURE"
	CodeEmptyResponse      ErrorCode = "EMPTY_RESPONSE"
	CodeCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	CodeAllProvidersFailed ErrorCode = "ALL_PROVIDERS_FAILED"
	CodeNoDecision         ErrorCode = "NO_STRUCTURED_DECISION"
	CodeRoutingViolation   ErrorCode = "ROUTING_VIOLATION"
	CodeToolFailure        ErrorCode = "TOOL_FAILURE"
	CodeToolRate           ErrorCode = "TOOL_RATE_LIMIT"
)

// errorCodes is checked in order, so an error wrapping several sentinels
// reports the most specific outcome first: a failover chain that ended on a
// rate limit is still ALL_PROVIDERS_FAILED.
var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrAllProvidersFailed, CodeAllProvidersFailed},
	{ErrCircuitOpen, CodeCircuitOpen},
	{ErrAgentNotFound, CodeAgentNotFound},
	{ErrProviderNotFound, CodeProviderNotFound},
	{ErrToolNotFound, CodeToolNotFound},
	{ErrToolRate, CodeToolRate},
	{ErrNoStructuredDecision, CodeNoDecision},
	{ErrRoutingViolation, CodeRoutingViolation},
	{ErrEmptyResponse, CodeEmptyResponse},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrTimeout, CodeTimeout},
	{ErrProviderFailure, CodeProviderFailure},
	{ErrToolFailure, CodeToolFailure},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrConfigInvalid, CodeConfigInvalid},
	{ErrDecryption, CodeDecryption},
	{ErrEncryption, CodeEncryption},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrDuplicate, CodeDuplicate},
	{ErrNotFound, CodeNotFound},
}

// ErrorCodeOf returns the machine-parseable error code for err, or
// CodeUnknown when it wraps no known sentinel.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
