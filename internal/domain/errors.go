package domain

import (
	"errors"
	"fmt"
)

type ErrCode string

const (
	CodeValidation       ErrCode = "validation_error"
	CodeNotFound         ErrCode = "not_found"
	CodeDuplicate        ErrCode = "duplicate_request"
	CodeLimitExceeded    ErrCode = "limit_exceeded"
	CodeCorruptState     ErrCode = "corrupt_state"
	CodeUpstreamNotFound ErrCode = "upstream_not_found"
)

type AppError struct {
	Code    ErrCode
	Message string
	Meta    map[string]string
	Err     error
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(e.Meta) > 0 {
		msg = fmt.Sprintf("%s (%v)", msg, e.Meta)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

func ErrValidation(msg string) error { return &AppError{Code: CodeValidation, Message: msg} }
func ErrValidationMeta(msg string, meta map[string]string) error {
	return &AppError{Code: CodeValidation, Message: msg, Meta: meta}
}
func ErrNotFound(msg string) error { return &AppError{Code: CodeNotFound, Message: msg} }
func ErrDuplicate(msg string) error {
	return &AppError{Code: CodeDuplicate, Message: msg}
}
func ErrLimitExceeded(limit int) error {
	return &AppError{
		Code:    CodeLimitExceeded,
		Message: fmt.Sprintf("limit of %d tracking requests reached", limit),
		Meta:    map[string]string{"limit": fmt.Sprint(limit)},
	}
}
func ErrCorruptState(path string, err error) error {
	return &AppError{
		Code:    CodeCorruptState,
		Message: "persisted state is unreadable",
		Meta:    map[string]string{"path": path},
		Err:     err,
	}
}
func ErrUpstreamNotFound(msg string) error {
	return &AppError{Code: CodeUpstreamNotFound, Message: msg}
}

// HasCode reports whether err (or anything it wraps) is an AppError with the given code.
func HasCode(err error, code ErrCode) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
