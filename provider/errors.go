package provider

import (
	"errors"
	"fmt"
)

// GatewayErrorCode tags a GatewayError with the operation that failed
type GatewayErrorCode string

const (
	ErrCodeInitFailed     GatewayErrorCode = "init_failed"
	ErrCodeStatusFailed   GatewayErrorCode = "status_failed"
	ErrCodeCaptureFailed  GatewayErrorCode = "capture_failed"
	ErrCodeCancelFailed   GatewayErrorCode = "cancel_failed"
	ErrCodeRefundFailed   GatewayErrorCode = "refund_failed"
	ErrCodeRetrieveFailed GatewayErrorCode = "retrieve_failed"
	ErrCodeUpdateFailed   GatewayErrorCode = "update_failed"
	ErrCodeNotAuthorized  GatewayErrorCode = "not_authorized"
	ErrCodeUnknown        GatewayErrorCode = "unknown"
)

// GatewayError is a normalized processor failure. It is always returned as a
// value from provider operations; Detail carries the processor's diagnostic
// text verbatim. Never persisted.
type GatewayError struct {
	Code   GatewayErrorCode
	Detail string
	Cause  error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Detail != "" && e.Cause != nil:
		return fmt.Sprintf("gateway error %s: %s: %v", e.Code, e.Detail, e.Cause)
	case e.Detail != "":
		return fmt.Sprintf("gateway error %s: %s", e.Code, e.Detail)
	case e.Cause != nil:
		return fmt.Sprintf("gateway error %s: %v", e.Code, e.Cause)
	default:
		return fmt.Sprintf("gateway error %s", e.Code)
	}
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// NewGatewayError creates an operation-tagged error with processor diagnostic text
func NewGatewayError(code GatewayErrorCode, detail string) *GatewayError {
	return &GatewayError{Code: code, Detail: detail}
}

// WrapGatewayError wraps a transport or decode failure. The code is always
// unknown for such failures; timeouts are treated identically.
func WrapGatewayError(cause error) *GatewayError {
	return &GatewayError{Code: ErrCodeUnknown, Cause: cause}
}

// AsGatewayError extracts a *GatewayError from an error chain
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// AuthenticationError reports a failed or malformed token exchange with the
// processor's auth endpoint. Fatal to the calling operation; never retried
// internally.
type AuthenticationError struct {
	Detail string
	Cause  error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Detail, e.Cause)
	}
	return fmt.Sprintf("authentication failed: %s", e.Detail)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// VerificationError reports a webhook signature mismatch. The request is
// rejected as unauthorized and no state changes. The message never includes
// secret material.
type VerificationError struct {
	Detail string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("webhook verification failed: %s", e.Detail)
}
