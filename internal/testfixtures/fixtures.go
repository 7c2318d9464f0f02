package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

var (
	roomCounter       uint64
	deviceCounter     uint64
	assignmentCounter uint64
)

var referenceTime = time.Date(2025, time.June, 15, 9, 30, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Date parses a YYYY-MM-DD literal and panics on malformed input.
func Date(value string) occupancy.Date {
	return occupancy.MustParseDate(value)
}

// DatePtr is Date for nullable columns.
func DatePtr(value string) *occupancy.Date {
	return occupancy.DatePtr(Date(value))
}

// ----------------------------- Room fixtures -----------------------------

// RoomOption configures the generated room.
type RoomOption func(*persistence.Room)

// NewRoom returns a deterministic room lookup entry.
func NewRoom(opts ...RoomOption) persistence.Room {
	idx := atomic.AddUint64(&roomCounter, 1)
	room := persistence.Room{
		ID:         fmt.Sprintf("room-%03d", idx),
		RoomNumber: fmt.Sprintf("%d", 100+idx),
		RoomName:   fmt.Sprintf("Room %03d", idx),
	}
	for _, opt := range opts {
		opt(&room)
	}
	return room
}

// WithRoomID overrides the room identifier.
func WithRoomID(id string) RoomOption {
	return func(r *persistence.Room) { r.ID = id }
}

// WithRoomName overrides the number and name shown in history listings.
func WithRoomName(number, name string) RoomOption {
	return func(r *persistence.Room) {
		r.RoomNumber = number
		r.RoomName = name
	}
}

// ---------------------------- Device fixtures ----------------------------

// DeviceOption configures the generated device.
type DeviceOption func(*persistence.Device)

// NewDevice returns an active device with a unique hostname and serial.
func NewDevice(opts ...DeviceOption) persistence.Device {
	idx := atomic.AddUint64(&deviceCounter, 1)
	hostname := fmt.Sprintf("pc-%03d", idx)
	serial := fmt.Sprintf("SN-%05d", idx)
	device := persistence.Device{
		ID:           fmt.Sprintf("device-%03d", idx),
		Hostname:     &hostname,
		SerialNumber: &serial,
		Status:       persistence.DeviceStatusActive,
		CreatedAt:    referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&device)
	}
	return device
}

// WithDeviceID overrides the device identifier.
func WithDeviceID(id string) DeviceOption {
	return func(d *persistence.Device) { d.ID = id }
}

// WithStatus overrides the lifecycle status.
func WithStatus(status persistence.DeviceStatus) DeviceOption {
	return func(d *persistence.Device) { d.Status = status }
}

// WithLastInspected sets the last inspection date.
func WithLastInspected(value string) DeviceOption {
	return func(d *persistence.Device) { d.LastInspected = DatePtr(value) }
}

// -------------------------- Assignment fixtures --------------------------

// AssignmentOption configures the generated history row.
type AssignmentOption func(*persistence.RoomAssignment)

// NewAssignment returns a history row placing deviceID in roomID from the
// given day. The row is open unless WithToDate is applied.
func NewAssignment(deviceID, roomID, from string, opts ...AssignmentOption) persistence.RoomAssignment {
	idx := atomic.AddUint64(&assignmentCounter, 1)
	assignment := persistence.RoomAssignment{
		ID:        fmt.Sprintf("history-%03d", idx),
		DeviceID:  deviceID,
		RoomID:    roomID,
		FromDate:  Date(from),
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&assignment)
	}
	return assignment
}

// WithAssignmentID overrides the history entry identifier.
func WithAssignmentID(id string) AssignmentOption {
	return func(a *persistence.RoomAssignment) { a.ID = id }
}

// WithToDate closes the row on the given day.
func WithToDate(value string) AssignmentOption {
	return func(a *persistence.RoomAssignment) { a.ToDate = DatePtr(value) }
}

// WithNotes attaches a free text note.
func WithNotes(notes string) AssignmentOption {
	return func(a *persistence.RoomAssignment) { a.Notes = &notes }
}

// WithCreatedAt overrides the creation timestamp used to break ties.
func WithCreatedAt(t time.Time) AssignmentOption {
	return func(a *persistence.RoomAssignment) { a.CreatedAt = t }
}
