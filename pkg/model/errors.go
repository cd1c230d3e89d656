package model

import "errors"

var (
	// ErrSourceUnavailable indicates the object store is unreachable or a raw
	// dataset file is missing. Callers degrade to the synthetic fallback.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSchemaMismatch indicates a source file lacks an expected column or
	// stores it with an unsupported physical type.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrNotFound indicates a persisted table or a requested key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersistence indicates a derived table could not be written.
	ErrPersistence = errors.New("persistence failure")
)
