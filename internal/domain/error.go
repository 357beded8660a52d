package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
	CodeFailedPrecond    ErrorCode = "FAILED_PRECONDITION"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	CodeInternal         ErrorCode = "INTERNAL"
	CodeCanceled         ErrorCode = "CANCELED"
	CodeDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
)

type Error struct {
	Code      ErrorCode
	Op        string
	Message   string
	Cause     error
	Retryable bool
	Meta      map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:      existing.Code,
			Op:        op,
			Message:   existing.Message,
			Cause:     existing.Cause,
			Retryable: existing.Retryable,
			Meta:      existing.Meta,
		}
	}
	return E(code, op, "", err)
}

// ValidationError reports an invalid field on a domain entity. The field name
// travels in Meta so callers can surface it without string parsing.
func ValidationError(op, field, msg string) *Error {
	return &Error{
		Code:    CodeInvalidArgument,
		Op:      op,
		Message: msg,
		Meta:    map[string]string{"field": field},
	}
}

// Field returns the offending field recorded by ValidationError, if any.
func Field(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Meta != nil {
		return domainErr.Meta["field"]
	}
	return ""
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrInvalidToolID), errors.Is(err, ErrInvalidRequest):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrToolNotFound), errors.Is(err, ErrPresetNotFound), errors.Is(err, ErrBindingNotFound), errors.Is(err, ErrMethodNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrCircuitOpen):
		return CodeUnavailable, true
	case errors.Is(err, ErrCatalogTimeout):
		return CodeDeadlineExceeded, true
	case errors.Is(err, ErrAmbiguousResourceRoute):
		return CodeFailedPrecond, true
	case errors.Is(err, ErrAccessDenied):
		return CodePermissionDenied, true
	default:
		return "", false
	}
}

var ErrInvalidRequest = errors.New("invalid request")
var ErrMethodNotFound = errors.New("method not found")
var ErrToolNotFound = errors.New("tool not found")
var ErrInvalidToolID = errors.New("invalid composite tool id")
var ErrPresetNotFound = errors.New("preset not found")
var ErrBindingNotFound = errors.New("server binding not found")
var ErrCircuitOpen = errors.New("service temporarily unavailable")
var ErrCatalogTimeout = errors.New("tool catalog load timed out")
var ErrAmbiguousResourceRoute = errors.New("ambiguous resource route")
var ErrAccessDenied = errors.New("access denied")
