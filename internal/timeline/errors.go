package timeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/cutline/internal/scene"
)

// ErrorCode categorizes failures of timeline operations.
type ErrorCode string

const (
	// ErrCodeValidation: the request was rejected before any mutation.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeResource: an engine read or write failed.
	ErrCodeResource ErrorCode = "RESOURCE"

	// ErrCodeCancelled: the work was cancelled. Never shown to users.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// Error is the typed failure returned by editing, playback and scrubbing
// operations. Op and Block carry the operation context into the message.
type Error struct {
	Code    ErrorCode
	Op      string
	Block   scene.BlockID
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Block.Valid() {
		return fmt.Sprintf("%s %s: %s: %s", e.Op, e.Block, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validationf returns a validation error for op.
func Validationf(op string, block scene.BlockID, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Op:      op,
		Block:   block,
		Message: fmt.Sprintf(format, args...),
	}
}

// Resource wraps an engine failure. A cancelled context becomes a
// cancellation error instead.
func Resource(op string, block scene.BlockID, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return Cancelled(op, block, err)
	}
	return &Error{Code: ErrCodeResource, Op: op, Block: block, Err: err}
}

// Cancelled wraps a cancellation.
func Cancelled(op string, block scene.BlockID, err error) *Error {
	return &Error{Code: ErrCodeCancelled, Op: op, Block: block, Message: "cancelled", Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsResource reports whether err is an engine read/write failure.
func IsResource(err error) bool {
	return hasCode(err, ErrCodeResource)
}

// IsCancelled reports whether err is a cancellation, typed or raw.
func IsCancelled(err error) bool {
	return hasCode(err, ErrCodeCancelled) || errors.Is(err, context.Canceled)
}
