package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API clients. Validation codes are client-input
// faults and are never retried automatically. Conflict codes are recoverable
// by the caller re-deciding (pick another slot, confirm the override, re-fetch
// and retry) - conflicts are never resolved silently on the server.
const (
	CodeInvalidRange      = "INVALID_RANGE"
	CodeInvalidDate       = "INVALID_DATE"
	CodeInvalidRecurrence = "INVALID_RECURRENCE"

	CodeSlotTaken       = "SLOT_TAKEN"
	CodeOverlapWarning  = "OVERLAP_WARNING"
	CodeVersionMismatch = "VERSION_MISMATCH"

	CodeUndoExpired = "UNDO_EXPIRED"

	CodeResourceUnavailable = "RESOURCE_UNAVAILABLE"
	CodeCertRequired        = "CERT_REQUIRED"

	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL"
)

// APIError is an error with a stable machine-readable code and an http status.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// AsAPIError unwraps err into an APIError, or returns nil.
func AsAPIError(err error) *APIError {
	apiErr := &APIError{}
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

func Invalid(code, format string, args ...any) *APIError {
	return &APIError{Status: http.StatusUnprocessableEntity, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Conflict(code, format string, args ...any) *APIError {
	return &APIError{Status: http.StatusConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *APIError {
	return &APIError{Status: http.StatusForbidden, Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}
