// File: api/status.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wire status values returned to clients.

package api

import "fmt"

// Status is the 32-bit completion code written into every reply header.
// Values follow the NT status layout clients expect.
type Status uint32

const (
	StatusSuccess              Status = 0x00000000
	StatusWait0                Status = 0x00000000
	StatusAbandonedWait0       Status = 0x00000080
	StatusUserAPC              Status = 0x000000C0
	StatusTimeout              Status = 0x00000102
	StatusPending              Status = 0x00000103
	StatusObjectNameExists     Status = 0x40000000
	StatusInvalidCID           Status = 0xC000000B
	StatusInvalidHandle        Status = 0xC0000008
	StatusInvalidParameter     Status = 0xC000000D
	StatusNoMemory             Status = 0xC0000017
	StatusAccessDenied         Status = 0xC0000022
	StatusObjectTypeMismatch   Status = 0xC0000024
	StatusObjectNameNotFound   Status = 0xC0000034
	StatusMutantNotOwned       Status = 0xC0000046
	StatusSemaphoreLimit       Status = 0xC0000047
	StatusNotSupported         Status = 0xC00000BB
	StatusProcessIsTerminating Status = 0xC000010A
	StatusHandleNotClosable    Status = 0xC0000235
	StatusInternalError        Status = 0xC00000E5
)

// MaxWaitObjects bounds a single select request.
const MaxWaitObjects = 64

var codeStatus = map[ErrorCode]Status{
	ErrCodeOK:                 StatusSuccess,
	ErrCodeInvalidHandle:      StatusInvalidHandle,
	ErrCodeAccessDenied:       StatusAccessDenied,
	ErrCodeNoMemory:           StatusNoMemory,
	ErrCodePending:            StatusPending,
	ErrCodeTimeout:            StatusTimeout,
	ErrCodeInvalidParameter:   StatusInvalidParameter,
	ErrCodeObjectTypeMismatch: StatusObjectTypeMismatch,
	ErrCodeHandleNotClosable:  StatusHandleNotClosable,
	ErrCodeNameNotFound:       StatusObjectNameNotFound,
	ErrCodeMutantNotOwned:     StatusMutantNotOwned,
	ErrCodeSemaphoreLimit:     StatusSemaphoreLimit,
	ErrCodeNotSupported:       StatusNotSupported,
	ErrCodeProcessTerminating: StatusProcessIsTerminating,
	ErrCodeInvalidCID:         StatusInvalidCID,
	ErrCodeInternal:           StatusInternalError,
}

// StatusOf maps err onto the wire status; nil is StatusSuccess.
func StatusOf(err error) Status {
	return codeStatus[CodeOf(err)]
}

// IsError reports whether s is an error severity status.
func (s Status) IsError() bool {
	return s&0xC0000000 == 0xC0000000
}

func (s Status) String() string {
	return fmt.Sprintf("0x%08x", uint32(s))
}

var statusErrors = map[Status]*Error{
	StatusInvalidHandle:        ErrInvalidHandle,
	StatusAccessDenied:         ErrAccessDenied,
	StatusNoMemory:             ErrNoMemory,
	StatusInvalidParameter:     ErrInvalidParameter,
	StatusObjectTypeMismatch:   ErrObjectTypeMismatch,
	StatusHandleNotClosable:    ErrHandleNotClosable,
	StatusObjectNameNotFound:   ErrNameNotFound,
	StatusMutantNotOwned:       ErrMutantNotOwned,
	StatusSemaphoreLimit:       ErrSemaphoreLimit,
	StatusNotSupported:         ErrNotSupported,
	StatusProcessIsTerminating: ErrProcessTerminating,
	StatusInvalidCID:           ErrInvalidCID,
}

// ErrorOf is the client-side inverse of StatusOf: nil for every non-error
// status, the matching sentinel otherwise.
func ErrorOf(s Status) error {
	if !s.IsError() {
		return nil
	}
	if err, ok := statusErrors[s]; ok {
		return err
	}
	return NewError(ErrCodeInternal, "broker status "+s.String())
}
