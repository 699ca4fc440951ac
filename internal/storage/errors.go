package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested run or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned on an illegal lifecycle transition,
	// e.g. closing a pipeline run that is already terminal.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrInvalidInput is returned when a store receives structurally
	// unusable input (nil record, empty key fields). Domain invariant
	// violations are reported as domain.ErrValidation instead.
	ErrInvalidInput = errors.New("invalid input")
)
