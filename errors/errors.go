package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an API error. Every failure raised by the services carries
// exactly one kind, which fixes both the HTTP status and the machine-readable
// code surfaced to callers.
type Kind int

const (
	KindAuth Kind = iota
	KindBadRequest
	KindNotFound
	KindDownstream
)

// Error is the structured error propagated unmodified from the point of
// detection to the HTTP boundary, where it is rendered as {message, code}.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Status maps the error kind to its HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDownstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Stable machine-readable error codes.
const (
	CodeMissingAuthHeader   = "MISSING_AUTH_HEADER"
	CodeInvalidIdentity     = "INVALID_IDENTITY_TOKEN"
	CodeVerifierUnreachable = "VERIFIER_UNREACHABLE"
	CodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	CodeEmailRequired       = "EMAIL_REQUIRED"
	CodeInvalidInvite       = "INVALID_INVITE_TOKEN"
	CodeInviteNotPending    = "INVITE_NOT_PENDING"
	CodeInviteExpired       = "INVITE_EXPIRED"
	CodeInviteEmailMismatch = "INVITE_EMAIL_MISMATCH"
	CodeInviteRedeemed      = "INVITE_ALREADY_REDEEMED"
	CodeNotAuthenticated    = "NOT_AUTHENTICATED"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeSessionRevoked      = "SESSION_REVOKED"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeMissingField        = "MISSING_FIELD"
	CodeEmptyUpdate         = "EMPTY_UPDATE"
	CodeUnknownField        = "UNKNOWN_FIELD"
	CodeDuplicateUser       = "DUPLICATE_USER"
	CodeNotificationFailed  = "NOTIFICATION_FAILED"
	CodeStorageFailure      = "STORAGE_FAILURE"
)

// NewAuthError builds a 401 error with the given code.
func NewAuthError(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

// NewBadRequest builds a 400 error with the given code.
func NewBadRequest(code, message string) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Message: message}
}

// NewNotFound builds a 404 error with the given code.
func NewNotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// NewDownstream builds a 502 error with the given code.
func NewDownstream(code, message string) *Error {
	return &Error{Kind: KindDownstream, Code: code, Message: message}
}

// FromError extracts a *Error from err, or wraps err as an opaque storage
// failure when it carries no kind of its own.
func FromError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewDownstream(CodeStorageFailure, "internal storage failure")
}

// IsKind reports whether err is an API error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}
