package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a session operation runs after Disconnect.
	ErrNotConnected = errors.New("mqrequest: session is not connected")

	// ErrHandleClosed is returned for put/get/close on a handle that was closed.
	ErrHandleClosed = errors.New("mqrequest: queue handle is closed")

	// ErrForeignHandle is returned when a handle from another session or
	// transport is passed to a session.
	ErrForeignHandle = errors.New("mqrequest: queue handle does not belong to this session")

	// ErrWrongMode is returned when a put targets an input handle or a get
	// targets an output handle.
	ErrWrongMode = errors.New("mqrequest: operation not allowed in this open mode")

	// ErrEmptyCredentials is returned when the user or secret is empty.
	ErrEmptyCredentials = errors.New("mqrequest: credentials must not be empty")

	// ErrNoSession is returned when an engine is built without a session.
	ErrNoSession = errors.New("mqrequest: session is nil")

	// ErrAlreadyRunning is returned when Run is called on a running engine.
	ErrAlreadyRunning = errors.New("mqrequest: engine already running")

	// ErrNoOutcome is reported when a round trip returns without an error
	// and without recording an outcome.
	ErrNoOutcome = errors.New("mqrequest: round trip ended without an outcome")
)

// ReasonError is the error form of a non-OK transport call. A warning is
// reported as a ReasonError with CompletionWarning alongside a usable result.
type ReasonError struct {
	Op         string
	Completion CompletionCode
	Reason     ReasonCode
	Err        error
}

func (e *ReasonError) Error() string {
	msg := fmt.Sprintf("%s: %s, %s", e.Op, e.Completion, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReasonError) Unwrap() error { return e.Err }

// Failed builds a ReasonError with CompletionFailed.
func Failed(op string, reason ReasonCode, err error) *ReasonError {
	return &ReasonError{Op: op, Completion: CompletionFailed, Reason: reason, Err: err}
}

// Warning builds a ReasonError with CompletionWarning.
func Warning(op string, reason ReasonCode, err error) *ReasonError {
	return &ReasonError{Op: op, Completion: CompletionWarning, Reason: reason, Err: err}
}

// StatusOf extracts the completion and reason codes carried by err.
// A nil error is (CompletionOK, ReasonNone); an error that is not a
// ReasonError is reported as a failed unexpected error, except context
// cancellation which maps to ReasonStopping.
func StatusOf(err error) (CompletionCode, ReasonCode) {
	if err == nil {
		return CompletionOK, ReasonNone
	}
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Completion, re.Reason
	}
	if errors.Is(err, context.Canceled) {
		return CompletionFailed, ReasonStopping
	}
	return CompletionFailed, ReasonUnexpectedError
}

// IsWarning reports whether err only carries a warning.
func IsWarning(err error) bool {
	cc, _ := StatusOf(err)
	return err != nil && cc == CompletionWarning
}

// IsReason reports whether err carries the given reason code.
func IsReason(err error, reason ReasonCode) bool {
	_, rc := StatusOf(err)
	return err != nil && rc == reason
}
