package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType represents the kind of failure an operation reported
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeCommand    ErrorType = "command"
	ErrorTypeCancelled  ErrorType = "cancelled"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// knownTypes lists every ErrorType accepted by ParseErrorType
var knownTypes = []ErrorType{
	ErrorTypeNetwork,
	ErrorTypeTimeout,
	ErrorTypeRateLimit,
	ErrorTypeNotFound,
	ErrorTypeConfig,
	ErrorTypePermission,
	ErrorTypeCommand,
	ErrorTypeCancelled,
	ErrorTypeUnknown,
}

// Error is a failure tagged with its kind
type Error struct {
	Type    ErrorType
	Op      string
	Message string
	Err     error
}

// New creates a typed error without an underlying cause
func New(errorType ErrorType, op, message string) *Error {
	return &Error{Type: errorType, Op: op, Message: message}
}

// Wrap tags err with errorType. The message defaults to err's text.
func Wrap(errorType ErrorType, op string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Type: errorType, Op: op, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Typed errors report their own Type; context, timeout
// and DNS lookup failures are recognised; anything else is ErrorTypeUnknown.
func KindOf(err error) ErrorType {
	if err == nil {
		return ""
	}

	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type
	}

	if stderrors.Is(err, context.Canceled) {
		return ErrorTypeCancelled
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return ErrorTypeNotFound
		}
		if dnsErr.IsTimeout {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	return ErrorTypeUnknown
}

// Is reports whether err is classified as errorType
func Is(err error, errorType ErrorType) bool {
	return err != nil && KindOf(err) == errorType
}

// IsRetryable checks if an error type is usually worth retrying
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeUnknown:
		return true
	case ErrorTypeNotFound, ErrorTypeConfig, ErrorTypePermission, ErrorTypeCommand, ErrorTypeCancelled:
		return false
	default:
		return false
	}
}

// ParseErrorType converts a string such as "not_found" to an ErrorType
func ParseErrorType(s string) (ErrorType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range knownTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown error type: %q", s)
}
