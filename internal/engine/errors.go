package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a scheduling or delivery step the engine could
// not complete.
//
// Most runtime errors are logged and absorbed (the engine never crashes on
// them); DeliverNow returns them to the caller.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// ItemID identifies the affected item, if any.
	ItemID string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeNoCandidate indicates the corpus offered nothing to select.
	ErrCodeNoCandidate RuntimeErrorCode = "NO_CANDIDATE"

	// ErrCodePaused indicates deliveries are suspended.
	ErrCodePaused RuntimeErrorCode = "PAUSED"

	// ErrCodeTransportFailed indicates the transport rejected a request.
	ErrCodeTransportFailed RuntimeErrorCode = "TRANSPORT_FAILED"

	// ErrCodePersistFailed indicates engine state could not be stored.
	ErrCodePersistFailed RuntimeErrorCode = "PERSIST_FAILED"

	// ErrCodeUnknownItem indicates a confirmation for an item not in the corpus.
	ErrCodeUnknownItem RuntimeErrorCode = "UNKNOWN_ITEM"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ItemID != "" {
		msg += fmt.Sprintf(" (item=%s)", e.ItemID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// codeOf returns the RuntimeErrorCode of err, or "" if err is not a RuntimeError.
func codeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsNoCandidate returns true if err reports an empty corpus.
// Uses errors.As to handle wrapped errors.
func IsNoCandidate(err error) bool {
	return codeOf(err) == ErrCodeNoCandidate
}

// IsTransportError returns true if err is a transport failure.
func IsTransportError(err error) bool {
	return codeOf(err) == ErrCodeTransportFailed
}

// IsPaused returns true if err reports suspended deliveries.
func IsPaused(err error) bool {
	return codeOf(err) == ErrCodePaused
}

// NewNoCandidateError creates a RuntimeError for an empty corpus.
func NewNoCandidateError() *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNoCandidate,
		Message: "no item available to select",
	}
}

// NewTransportError creates a RuntimeError for a failed transport operation.
func NewTransportError(op, itemID string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeTransportFailed,
		Message: op + " failed",
		ItemID:  itemID,
		Err:     err,
	}
}
