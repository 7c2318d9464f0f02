package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrMigrationFailed indicates that a migration execution failed
	ErrMigrationFailed = errors.New("migration execution failed")

	// ErrNoMigrations indicates that the embedded migration set is empty
	ErrNoMigrations = errors.New("no migrations embedded")
)

// MigrationError wraps migration-specific errors with additional context
type MigrationError struct {
	Version   int64  // Migration version that caused the error
	Source    string // Name of the migration file
	Operation string // Operation being performed (up, down, status)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *MigrationError) Error() string {
	if e.Version != 0 {
		return fmt.Sprintf("migration %d (%s): %s: %v", e.Version, e.Source, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration error: %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// NewMigrationError creates a new MigrationError with context
func NewMigrationError(version int64, source, operation string, err error) *MigrationError {
	return &MigrationError{
		Version:   version,
		Source:    source,
		Operation: operation,
		Err:       err,
	}
}

// DatabaseError wraps failures while opening or configuring the database
type DatabaseError struct {
	Operation string // open, configure, ping, ...
	DSN       string
	Err       error
}

// Error implements the error interface
func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s of %s: %v", e.Operation, e.DSN, e.Err)
}

// Unwrap returns the underlying error
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(operation, dsn string, err error) *DatabaseError {
	return &DatabaseError{
		Operation: operation,
		DSN:       dsn,
		Err:       err,
	}
}
