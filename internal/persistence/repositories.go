package persistence

import (
	"context"

	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
)

// Tx exposes the reads and writes available inside a single transaction.
// Every method observes the writes made earlier in the same transaction.
type Tx interface {
	DeviceExists(ctx context.Context, deviceID string) (bool, error)
	RoomExists(ctx context.Context, roomID string) (bool, error)

	GetInterval(ctx context.Context, id string) (RoomAssignment, error)
	FindOpenIntervals(ctx context.Context, deviceID string) ([]RoomAssignment, error)
	FindMostRecentInterval(ctx context.Context, deviceID string) (RoomAssignment, error)
	FindOverlapping(ctx context.Context, deviceID string, interval occupancy.Interval, excludeID string) ([]RoomAssignment, error)
	CloseInterval(ctx context.Context, id string, to occupancy.Date) error
	InsertInterval(ctx context.Context, assignment RoomAssignment) error
	UpdateInterval(ctx context.Context, assignment RoomAssignment) error
	DeleteInterval(ctx context.Context, id string) error

	GetDevice(ctx context.Context, deviceID string) (Device, error)
	InsertDevice(ctx context.Context, device Device) error
	UpdateDevice(ctx context.Context, device Device) error
	// DeleteDevice removes the device together with its room history and
	// reports how many history rows went with it.
	DeleteDevice(ctx context.Context, deviceID string) (int64, error)
	SetLastInspected(ctx context.Context, deviceID string, date occupancy.Date) error
	MarkInspectedInRoom(ctx context.Context, roomID string, date occupancy.Date) (int64, error)
}

// UnitOfWork runs fn inside a transaction that commits when fn returns nil
// and rolls back otherwise.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// HistoryReader serves read-only room history queries.
type HistoryReader interface {
	ListHistory(ctx context.Context, deviceID string) ([]RoomAssignment, error)
}

// DeviceReader serves read-only device lookups.
type DeviceReader interface {
	GetDevice(ctx context.Context, deviceID string) (Device, error)
	ListDevices(ctx context.Context, filter DeviceFilter) ([]Device, error)
}

// ActivityRepository appends to and reads the audit log.
type ActivityRepository interface {
	AppendActivity(ctx context.Context, entry ActivityEntry) error
	ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityEntry, error)
}
