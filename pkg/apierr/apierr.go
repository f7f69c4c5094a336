// Package apierr defines the API error taxonomy. Every error carries the
// HTTP status it maps to and renders as `Kind: detail` in the standard
// error body, so handlers never invent ad-hoc status codes.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is an API-visible failure. Kind names the failure class (it
// doubles as the client-side discriminator), Code is the HTTP status.
type Error struct {
	Kind    string
	Message string
	Code    int
	// Fields carries per-field detail for validation failures.
	Fields map[string]string
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Message
}

// New builds a taxonomy error. Prefer the named constructors below.
func New(kind string, code int, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NoPostData(model string) *Error {
	return New("NoPostData", http.StatusBadRequest, "no data in %s request body", model)
}

func SchemaValidation(model string, fields map[string]string) *Error {
	detail, _ := json.Marshal(fields)
	e := New("SchemaValidationError", http.StatusBadRequest, "%s payload invalid: %s", model, detail)
	e.Fields = fields
	return e
}

func MissingParameter(model, param string) *Error {
	return New("MissingParameter", http.StatusBadRequest, "missing parameter %s.%s in request", model, param)
}

func ResourceNotFound(model string, id any) *Error {
	return New("ResourceNotFound", http.StatusNotFound, "resource %s %v not found", model, id)
}

func ResourceAlreadyExists(model string, id any) *Error {
	return New("ResourceAlreadyExists", http.StatusConflict, "resource %s %v already exists", model, id)
}

func FieldForbidden(model, field string) *Error {
	return New("FieldForbidden", http.StatusForbidden, "not allowed to filter on or modify %s.%s", model, field)
}

func Forbidden(model, field string) *Error {
	return New("Forbidden", http.StatusForbidden, "not allowed to modify %s.%s", model, field)
}

func FilterInvalid(model string, filter any) *Error {
	return New("FilterInvalid", http.StatusBadRequest, "invalid filter for model %s: %v", model, filter)
}

func FilterNotSupported(model, op string) *Error {
	return New("FilterNotSupported", http.StatusBadRequest, "filter operator %q not supported for model %s", op, model)
}

func Unauthorized(detail string) *Error {
	return New("Unauthorized", http.StatusUnauthorized, "%s", detail)
}

func BadRequest(format string, args ...any) *Error {
	return New("BadRequest", http.StatusBadRequest, format, args...)
}

// Internal wraps an unexpected error as a generic 500. The original error
// text is preserved but no stack detail leaks to the client.
func Internal(err error) *Error {
	return New("InternalError", http.StatusInternalServerError, "%v", err)
}

// As unwraps err into a taxonomy error, if it is one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
