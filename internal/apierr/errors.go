// Package apierr defines the error taxonomy shared by every layer of the
// request pipeline: transport, session, task queue, and service methods.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// ClientErrorCode is the platform code reported for failures that happened
// on this side of the wire (I/O errors, panics, decode failures).
const ClientErrorCode = -777

// Kind classifies a failure for callers that need to branch on it.
type Kind int

const (
	KindTransport Kind = iota + 1
	KindAuthorization
	KindSessionClosed
	KindAPIStatus
	KindParameter
	KindRejected
)

// Sentinel errors, one per Kind. Use errors.Is(err, apierr.ErrSessionClosed).
var (
	ErrTransport     = errors.New("kakao: transport failure")
	ErrAuthorization = errors.New("kakao: authorization failure")
	ErrSessionClosed = errors.New("kakao: session closed")
	ErrAPIStatus     = errors.New("kakao: api error")
	ErrParameter     = errors.New("kakao: invalid parameter")
	ErrRejected      = errors.New("kakao: task rejected")
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuthorization:
		return "authorization"
	case KindSessionClosed:
		return "session_closed"
	case KindAPIStatus:
		return "api_status"
	case KindParameter:
		return "parameter"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindAuthorization:
		return ErrAuthorization
	case KindSessionClosed:
		return ErrSessionClosed
	case KindAPIStatus:
		return ErrAPIStatus
	case KindParameter:
		return ErrParameter
	case KindRejected:
		return ErrRejected
	default:
		return nil
	}
}

// Error is the single failure type delivered to callbacks and returned from
// blocking calls. Code is the raw platform code, HTTPStatus the response
// status (500 for local failures).
type Error struct {
	Kind       Kind
	Code       int
	Message    string
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if e.HTTPStatus != 0 {
		return fmt.Sprintf("kakao: %s (HTTP %d, code %d): %s", e.Kind, e.HTTPStatus, e.Code, msg)
	}

	return fmt.Sprintf("kakao: %s (code %d): %s", e.Kind, e.Code, msg)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// Variant returns the tagged platform code of the error.
func (e *Error) Variant() ErrorCode {
	return CodeOf(e.Code)
}

// Result returns the flat error record handed to presentation layers.
func (e *Error) Result() ErrorResult {
	return ErrorResult{ErrorCode: e.Code, ErrorMessage: e.Message, HTTPStatus: e.HTTPStatus}
}

// ErrorResult is the plain code / message / status triple.
type ErrorResult struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	HTTPStatus   int    `json:"http_status"`
}

func (r ErrorResult) String() string {
	return fmt.Sprintf("ErrorResult{errorCode=%d, errorMessage=%q}", r.ErrorCode, r.ErrorMessage)
}

// Transport wraps a local or I/O failure.
func Transport(err error) *Error {
	return &Error{
		Kind:       KindTransport,
		Code:       ClientErrorCode,
		Message:    errMessage(err),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// SessionClosed reports that no usable token exists and a fresh login is required.
func SessionClosed(msg string, cause error) *Error {
	return &Error{
		Kind:       KindSessionClosed,
		Code:       int(CodeUnauthorized),
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
		Err:        cause,
	}
}

// Parameter reports locally detected invalid input.
func Parameter(format string, args ...any) *Error {
	return &Error{
		Kind:    KindParameter,
		Code:    ClientErrorCode,
		Message: fmt.Sprintf(format, args...),
	}
}

// Rejected reports that a task could not be accepted by the queue.
func Rejected(msg string) *Error {
	return &Error{
		Kind:       KindRejected,
		Code:       ClientErrorCode,
		Message:    msg,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// FromResponse classifies a non-2xx API response. code and msg come from
// the decoded {"code","msg"} body and may be zero when the body was empty.
func FromResponse(status, code int, msg string) *Error {
	kind := KindAPIStatus
	if status == http.StatusUnauthorized || code == int(CodeUnauthorized) {
		kind = KindAuthorization
	}

	if msg == "" {
		msg = http.StatusText(status)
	}

	return &Error{Kind: kind, Code: code, Message: msg, HTTPStatus: status}
}

// Normalize converts any error into an *Error. Errors that already are
// *Error pass through; everything else, context cancellation included,
// becomes a transport failure carrying ClientErrorCode.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	return Transport(err)
}

// KindOf returns the Kind of err, or 0 when err is nil.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}

	return Normalize(err).Kind
}

// IsAuthorization reports whether err is an authorization failure.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrAuthorization)
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
