package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/BerniPi/BGBB-IKT/internal/persistence"
	"github.com/BerniPi/BGBB-IKT/internal/persistence/sqlite"
	"github.com/BerniPi/BGBB-IKT/internal/persistence/sqlite/migration"
)

// SQLiteHarness is a migrated temporary database for integration-style tests.
type SQLiteHarness struct {
	Storage *sqlite.Storage

	tb      testing.TB
	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a temporary database file. Close is
// registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "inventory.db")
	storage, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage: storage,
		tb:      tb,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedRooms inserts the rooms and returns them.
func (h *SQLiteHarness) SeedRooms(rooms ...persistence.Room) []persistence.Room {
	h.tb.Helper()
	for _, room := range rooms {
		if err := h.Storage.InsertRoom(context.Background(), room); err != nil {
			h.tb.Fatalf("failed to seed room %s: %v", room.ID, err)
		}
	}
	return rooms
}

// SeedDevice inserts a device together with its history rows in one
// transaction.
func (h *SQLiteHarness) SeedDevice(device persistence.Device, history ...persistence.RoomAssignment) persistence.Device {
	h.tb.Helper()
	ctx := context.Background()
	err := h.Storage.WithinTx(ctx, func(tx persistence.Tx) error {
		if err := tx.InsertDevice(ctx, device); err != nil {
			return err
		}
		for _, row := range history {
			row.DeviceID = device.ID
			if err := tx.InsertInterval(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.tb.Fatalf("failed to seed device %s: %v", device.ID, err)
	}
	return device
}

// History returns the stored rows of deviceID ordered by start day.
func (h *SQLiteHarness) History(deviceID string) []persistence.RoomAssignment {
	h.tb.Helper()
	rows, err := h.Storage.ListHistory(context.Background(), deviceID)
	if err != nil {
		h.tb.Fatalf("failed to list history of %s: %v", deviceID, err)
	}
	return rows
}
