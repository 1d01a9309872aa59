// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the broker core and its wire status mapping.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a broker failure independently of its wire status.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidHandle
	ErrCodeAccessDenied
	ErrCodeNoMemory
	ErrCodePending
	ErrCodeTimeout
	ErrCodeInvalidParameter
	ErrCodeObjectTypeMismatch
	ErrCodeHandleNotClosable
	ErrCodeNameNotFound
	ErrCodeMutantNotOwned
	ErrCodeSemaphoreLimit
	ErrCodeNotSupported
	ErrCodeProcessTerminating
	ErrCodeInvalidCID
	ErrCodeInternal
)

// Common errors used across the broker. They are compared with errors.Is,
// which matches on Code, so decorated copies still match their sentinel.
var (
	ErrInvalidHandle      = NewError(ErrCodeInvalidHandle, "invalid handle")
	ErrAccessDenied       = NewError(ErrCodeAccessDenied, "access denied")
	ErrNoMemory           = NewError(ErrCodeNoMemory, "out of memory")
	ErrPending            = NewError(ErrCodePending, "operation pending")
	ErrTimeout            = NewError(ErrCodeTimeout, "operation timeout")
	ErrInvalidParameter   = NewError(ErrCodeInvalidParameter, "invalid parameter")
	ErrObjectTypeMismatch = NewError(ErrCodeObjectTypeMismatch, "object type mismatch")
	ErrHandleNotClosable  = NewError(ErrCodeHandleNotClosable, "handle not closable")
	ErrNameNotFound       = NewError(ErrCodeNameNotFound, "object name not found")
	ErrMutantNotOwned     = NewError(ErrCodeMutantNotOwned, "mutex not owned")
	ErrSemaphoreLimit     = NewError(ErrCodeSemaphoreLimit, "semaphore limit exceeded")
	ErrNotSupported       = NewError(ErrCodeNotSupported, "operation not supported")
	ErrProcessTerminating = NewError(ErrCodeProcessTerminating, "process is terminating")
	ErrInvalidCID         = NewError(ErrCodeInvalidCID, "invalid client id")
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithContext returns a copy of e carrying an extra context value.
// Sentinels are never mutated.
func (e *Error) WithContext(key string, value any) *Error {
	out := &Error{
		Code:    e.Code,
		Message: e.Message,
		Context: make(map[string]any, len(e.Context)+1),
	}
	for k, v := range e.Context {
		out.Context[k] = v
	}
	out.Context[key] = value
	return out
}

// CodeOf extracts the ErrorCode of err; ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
