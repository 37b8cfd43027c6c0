package oci

import (
	"errors"
	"fmt"
)

// Status is the numeric return of every native call.
type Status int

const (
	StatusSuccess         Status = 0
	StatusSuccessWithInfo Status = 1
	StatusNoData          Status = 100
	StatusNeedData        Status = 99
	StatusInvalidHandle   Status = -2
	StatusStillExecuting  Status = -3123
	StatusError           Status = -1
)

// Error is a failed native call. Code is the ORA-nnnnn number for server
// errors, or the status for the special statuses.
type Error struct {
	Code    int
	Message string
	Op      string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("ORA-%05d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: ORA-%05d: %s", e.Op, e.Code, e.Message)
}

// NewError builds an Error, applying the message rewrites the engine relies on.
func NewError(code int, message, op string) *Error {
	if code == 24347 {
		message = "NULL column in a aggregate function"
	}
	return &Error{Code: code, Message: message, Op: op}
}

// Check converts a call status into an error. lastError resolves a generic
// failure into the server error and may be nil.
func Check(status Status, op string, lastError func() *Error) error {
	switch status {
	case StatusSuccess, StatusSuccessWithInfo:
		return nil
	case StatusNoData:
		return &Error{Code: int(status), Message: "No data", Op: op}
	case StatusInvalidHandle:
		return &Error{Code: int(status), Message: "Invalid handle", Op: op}
	case StatusNeedData:
		return &Error{Code: int(status), Message: "Need data", Op: op}
	case StatusStillExecuting:
		return &Error{Code: int(status), Message: "Still executing", Op: op}
	}
	if lastError != nil {
		if err := lastError(); err != nil {
			return NewError(err.Code, err.Message, op)
		}
	}
	return &Error{Code: int(status), Message: "Error", Op: op}
}

// Code returns the native error code carried by err, or 0 when err does not
// wrap an *Error.
func Code(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsNoData reports whether err is the end-of-fetch status.
func IsNoData(err error) bool {
	return Code(err) == int(StatusNoData)
}

// IsNeedData reports whether err asks for the next piece of a piecewise call.
func IsNeedData(err error) bool {
	return Code(err) == int(StatusNeedData)
}

// Well known server error codes.
const (
	ErrInvalidIdentifier     = 904
	ErrTableNotFound         = 942
	ErrNameInUse             = 955
	ErrSynonymInvalid        = 980
	ErrSynonymIdentifier     = 995
	ErrInsufficientPrivilege = 1031
	ErrIndexColumnsIndexed   = 1408
	ErrUserNotFound          = 1918
	ErrUserConnected         = 1940
	ErrRemoteNotFound        = 2019
	ErrConstraintNameInUse   = 2264
	ErrSingleKeyExists       = 2275
	ErrInvalidState          = 6575
	ErrCompilation           = 24344
)
