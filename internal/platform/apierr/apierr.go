// Package apierr is the error shape the HTTP layer serializes. The
// response package maps domain sentinels onto these before writing.
package apierr

import "fmt"

// Error pairs an HTTP status with a stable machine-readable code. The
// wrapped cause stays available to errors.Is on the way out.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}
