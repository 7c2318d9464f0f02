package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/BerniPi/BGBB-IKT/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestServiceLogger_PrefersContextLogger(t *testing.T) {
	t.Parallel()

	var fromCtx, base bytes.Buffer
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&fromCtx, nil)))

	serviceLogger(ctx, slog.New(slog.NewTextHandler(&base, nil)), "HistoryService", "MoveDevice", "device_id", "dev-1").Info("hello")

	if base.Len() != 0 {
		t.Fatalf("expected base logger to be unused")
	}
	out := fromCtx.String()
	for _, want := range []string{"service=HistoryService", "operation=MoveDevice", "device_id=dev-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := map[string]error{
		"":             nil,
		"unauthorized": ErrUnauthorized,
		"not_found":    fmt.Errorf("lookup: %w", ErrNotFound),
		"conflict":     fmt.Errorf("%w: overlaps", ErrConflict),
		"validation":   fieldError("toDate", "bad"),
		"unexpected":   errors.New("disk I/O error"),
	}
	for want, err := range tests {
		if got := ErrorKind(err); got != want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
