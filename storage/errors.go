package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a document, version, profile or owner
	// match is missing.
	ErrNotFound = errors.New("not found")

	// ErrVersionExists is returned when a version number is written twice.
	// Versions are append-only.
	ErrVersionExists = errors.New("version already exists")

	// ErrProfileExists is returned when creating a profile whose name the
	// owner already uses.
	ErrProfileExists = errors.New("profile already exists")
)
