package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
)

var (
	// ErrUnauthorized is returned when no authenticated principal is present.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is returned when a write would break the room history invariants.
	ErrConflict = errors.New("application: conflict")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func fieldError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.add(field, message)
	return v
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflictWith(conflicts []occupancy.Conflict) error {
	parts := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		to := "open"
		if c.Interval.To != nil {
			to = c.Interval.To.String()
		}
		parts = append(parts, fmt.Sprintf("%s (%s..%s)", c.WithAssignmentID, c.Interval.From, to))
	}
	return fmt.Errorf("%w: overlaps existing assignment %s", ErrConflict, strings.Join(parts, ", "))
}
