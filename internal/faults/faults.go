// Package faults centralizes error classification for the queue consumers.
// Every per-message error resolves to a class, and the class decides whether
// the message is consumed (retry would not help) or left on the queue for
// redelivery (the fault may clear).
package faults

import (
	"errors"
	"fmt"

	"github.com/glacierlabs/floe/internal/storage"
)

// Class is the error taxonomy.
type Class int

const (
	// Transient covers infrastructure faults (queue, store, table) that a
	// later redelivery may get past.
	Transient Class = iota
	// Terminal covers per-message input faults where no retry is
	// productive: the message is consumed.
	Terminal
	// Capacity is the single anticipated condition triggering the
	// expedited-to-standard retrieval fallback.
	Capacity
)

func (c Class) String() string {
	return []string{"transient", "terminal", "capacity"}[c]
}

// errInput marks terminal input errors.
type errInput struct {
	err error
}

func (e *errInput) Error() string { return e.err.Error() }
func (e *errInput) Unwrap() error { return e.err }

// Input wraps an error as a terminal input fault.
func Input(format string, args ...interface{}) error {
	return &errInput{err: fmt.Errorf(format, args...)}
}

// Classify resolves an error to its class. Unrecognized errors default to
// Transient, so unknown faults are redelivered rather than dropped.
func Classify(err error) Class {
	if errors.Is(err, storage.ErrInsufficientCapacity) {
		return Capacity
	}
	var in *errInput
	if errors.As(err, &in) {
		return Terminal
	}
	return Transient
}

// Disposition says what to do with the queue message after an error.
type Disposition int

const (
	// Redeliver leaves the message for a later attempt.
	Redeliver Disposition = iota
	// Consume deletes the message; retrying would not help.
	Consume
)

// DispositionFor maps an error to the message disposition.
func DispositionFor(err error) Disposition {
	if err == nil {
		return Consume
	}
	if Classify(err) == Terminal {
		return Consume
	}
	return Redeliver
}
