package application

import (
	"errors"
	"strings"
	"testing"

	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"toDate": "invalid", "roomId": "missing"}}
	if got := withFields.Error(); got != "validation failed: roomId, toDate" {
		t.Fatalf("expected sorted field list, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if err := (&ValidationError{}).HasErrors(); err {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	if err := (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors(); !err {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_Add(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	base.add("first", "replaced")
	if len(base.FieldErrors) != 1 || base.FieldErrors["first"] != "replaced" {
		t.Fatalf("expected add to overwrite the field, got %+v", base.FieldErrors)
	}
}

func TestConflictWith(t *testing.T) {
	t.Parallel()

	err := conflictWith([]occupancy.Conflict{{
		WithAssignmentID: "h-1",
		Interval:         occupancy.Interval{From: occupancy.MustParseDate("2024-01-01")},
	}})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "h-1 (2024-01-01..open)") {
		t.Fatalf("expected conflicting assignment in message, got %q", err.Error())
	}
}
