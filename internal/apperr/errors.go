// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")

	// ErrCycle is returned when a move would make a record its own descendant.
	ErrCycle = errors.New("move would create a cycle")
	// ErrInvalidMove covers malformed gestures (unknown relation, virtual root as source).
	ErrInvalidMove = errors.New("invalid move")
	// ErrTransport wraps record store failures during dispatch; the move may be retried.
	ErrTransport = errors.New("record store unavailable")
	// ErrBusy is returned while another move is dispatching or rebuilding.
	ErrBusy = errors.New("another move is in progress")
)
