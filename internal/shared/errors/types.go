// Package errors classifies broker errors as transient or permanent so
// retry and circuit-breaking logic can make uniform decisions across the
// registry resolver, tool client pool, and dispatcher.
package errors

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
)

// ErrorType is the coarse classification used for retry decisions.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeTransient
	ErrorTypePermanent
	ErrorTypeDegraded
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// TransientError marks a failure that is expected to succeed on retry.
type TransientError struct {
	err     error
	message string
}

func NewTransientError(err error, message string) *TransientError {
	return &TransientError{err: err, message: message}
}

func (e *TransientError) Error() string { return e.message }
func (e *TransientError) Unwrap() error { return e.err }

// PermanentError marks a failure that will not succeed on retry.
type PermanentError struct {
	err     error
	message string
}

func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{err: err, message: message}
}

func (e *PermanentError) Error() string { return e.message }
func (e *PermanentError) Unwrap() error { return e.err }

// DegradedError marks a failure where a fallback path was taken instead
// of the primary one (e.g. the circuit breaker tripped open).
type DegradedError struct {
	err      error
	message  string
	Fallback string
}

func NewDegradedError(err error, message, fallback string) *DegradedError {
	return &DegradedError{err: err, message: message, Fallback: fallback}
}

func (e *DegradedError) Error() string { return e.message }
func (e *DegradedError) Unwrap() error { return e.err }

// Broker domain error kinds named in the design: NotFound, Timeout,
// Transport, Protocol, Validation, Policy, Unsupported, Internal.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindTimeout     Kind = "timeout"
	KindTransport   Kind = "transport"
	KindProtocol    Kind = "protocol"
	KindValidation  Kind = "validation"
	KindPolicy      Kind = "policy"
	KindUnsupported Kind = "unsupported"
	KindInternal    Kind = "internal"
)

// BrokerError is the typed error surfaced by core components, carrying a
// Kind the caller can switch on without string-sniffing messages.
type BrokerError struct {
	Kind    Kind
	Message string
	err     error
}

func New(kind Kind, message string) *BrokerError {
	return &BrokerError{Kind: kind, Message: message}
}

func Wrap(kind Kind, err error, message string) *BrokerError {
	return &BrokerError{Kind: kind, Message: message, err: err}
}

func (e *BrokerError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *BrokerError) Unwrap() error { return e.err }

func Is(err error, kind Kind) bool {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

func IsDegraded(err error) bool {
	var de *DegradedError
	return errors.As(err, &de)
}

var (
	transientStatus = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}
	permanentStatus = map[int]bool{400: true, 401: true, 403: true, 404: true, 405: true, 409: true, 422: true}

	transientPhrases = []string{
		"context deadline exceeded", "connection refused", "connection reset",
		"timeout", "timed out", "i/o timeout", "eof", "temporary failure",
		"no such host", "broken pipe",
	}
	permanentPhrases = []string{
		"file not found", "permission denied", "no such file or directory",
		"invalid argument", "unauthorized", "forbidden",
	}
)

// IsTransient reports whether err looks retryable: explicit classification
// wins, then well-known network error interfaces, then HTTP-status and
// message sniffing as a last resort for errors from collaborators we do
// not control the shape of.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}
	type temporary interface{ Temporary() bool }
	var tempErr temporary
	if errors.As(err, &tempErr) && tempErr.Temporary() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if code := extractHTTPStatusCode(err); code != 0 {
		if transientStatus[code] {
			return true
		}
		if permanentStatus[code] {
			return false
		}
	}
	for _, p := range transientPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsPermanent reports whether err looks non-retryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	var te *TransientError
	if errors.As(err, &te) {
		return false
	}

	msg := strings.ToLower(err.Error())
	if code := extractHTTPStatusCode(err); code != 0 {
		if permanentStatus[code] {
			return true
		}
		if transientStatus[code] {
			return false
		}
	}
	for _, p := range permanentPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// GetErrorType classifies err for metrics and dashboards.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	var de *DegradedError
	if errors.As(err, &de) {
		return ErrorTypeDegraded
	}
	if IsTransient(err) {
		return ErrorTypeTransient
	}
	if IsPermanent(err) {
		return ErrorTypePermanent
	}
	return ErrorTypeUnknown
}

// FormatForLLM renders a short, human-readable explanation of err suitable
// for surfacing in a ring-slot failure notification.
func FormatForLLM(err error) string {
	if err == nil {
		return ""
	}
	var te *TransientError
	if errors.As(err, &te) {
		return te.message
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "127.0.0.1:8082") || strings.Contains(msg, "llama.cpp"):
		return "llama.cpp server is not running"
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return "rate limit reached, please retry shortly"
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout"):
		return "operation timed out"
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return "Authentication failed"
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return "resource not found"
	case strings.Contains(msg, "500") || strings.Contains(msg, "internal server error"):
		return "Server error, please retry"
	default:
		return err.Error()
	}
}

// extractHTTPStatusCode sniffs a 3-digit status code out of an error
// message produced by an HTTP client that doesn't expose a structured
// status. Recognises "API error 429:", "HTTP 429:", "status 429", "429 ...".
func extractHTTPStatusCode(err error) int {
	if err == nil {
		return 0
	}
	s := err.Error()
	for i := 0; i+3 <= len(s); i++ {
		if s[i] < '1' || s[i] > '5' {
			continue
		}
		if i+3 <= len(s) && isDigits(s[i:i+3]) {
			if code, cerr := strconv.Atoi(s[i : i+3]); cerr == nil {
				if code >= 100 && code < 600 {
					if (i == 0 || !isDigit(s[i-1])) && (i+3 == len(s) || !isDigit(s[i+3])) {
						return code
					}
				}
			}
		}
	}
	return 0
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
