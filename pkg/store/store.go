// Package store defines the error types and conformance suite shared by the
// metadata store backends. The MetadataStore contract itself lives in
// pkg/memory, next to the coordinators that consume it.
package store

import (
	"fmt"

	"github.com/temporalmem/temporalmem/pkg/memory"
)

// NotFoundError indicates that the requested record does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record not found: %s", e.ID)
}

// Unwrap lets callers match with errors.Is(err, memory.ErrNotFound).
func (e *NotFoundError) Unwrap() error {
	return memory.ErrNotFound
}

// DuplicateKeyError indicates that a record with the given ID already exists.
type DuplicateKeyError struct {
	ID string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("record already exists: %s", e.ID)
}

// InvalidTransitionError indicates an attempted backward status transition.
type InvalidTransitionError struct {
	ID   string
	From memory.Status
	To   memory.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for %s: %s -> %s", e.ID, e.From, e.To)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Cause
}

// SerializationError indicates a failure in record (de)serialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}
