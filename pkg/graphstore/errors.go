package graphstore

import "errors"

// Errors returned by graph store engines.
var (
	// ErrNotFound means the element does not exist in the store. Callers must
	// be able to tell this apart from transport/engine failure.
	ErrNotFound = errors.New("element not found")
	// ErrAlreadyExists means a create collided with an existing element.
	ErrAlreadyExists = errors.New("element already exists")
	// ErrInvalidRef means the reference number is nil or malformed.
	ErrInvalidRef = errors.New("invalid element reference")
	// ErrInvalidData means the record payload failed validation.
	ErrInvalidData = errors.New("invalid element data")
	// ErrStorageClosed means the engine has been closed.
	ErrStorageClosed = errors.New("storage engine is closed")
	// ErrCyclicOwnership means an ownership chain revisited an element.
	// Upstream data is supposed to terminate every chain at a self-owned
	// root; a cycle is data corruption, not a tolerable condition.
	ErrCyclicOwnership = errors.New("cyclic ownership chain")
)
