package service

import "errors"

var (
	// ErrNotAuthorized is returned when the actor lacks the permission level
	// an operation requires.
	ErrNotAuthorized = errors.New("actor is not authorized for this operation")
	// ErrInvalidState is returned when an operation would violate an
	// aggregate invariant; the aggregate is left unchanged.
	ErrInvalidState = errors.New("operation would leave the node in an invalid state")
	// ErrNotFound is returned when a referenced guid or entity does not
	// resolve, or resolves to a soft-deleted entity.
	ErrNotFound = errors.New("entity not found")
	// ErrValidation is returned for malformed input, rejected before any
	// mutation is applied.
	ErrValidation = errors.New("validation failed")
)
