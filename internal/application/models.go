package application

import (
	"encoding/json"
	"time"

	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

// Principal identifies the caller of an operation.
type Principal struct {
	Username string
}

// RoomAssignment is one entry of a device's room history.
type RoomAssignment struct {
	ID         string
	DeviceID   string
	RoomID     string
	RoomNumber string
	RoomName   string
	FromDate   occupancy.Date
	ToDate     *occupancy.Date
	Notes      *string
	CreatedAt  time.Time
}

// IsOpen reports whether the assignment is the device's current room.
func (a RoomAssignment) IsOpen() bool {
	return a.ToDate == nil
}

// MoveDeviceParams moves a device into a new room from MoveDate on.
type MoveDeviceParams struct {
	Principal Principal
	DeviceID  string
	NewRoomID string
	MoveDate  occupancy.Date
	Notes     *string
}

// CorrectRoomParams rewrites the room of a device's latest assignment.
type CorrectRoomParams struct {
	Principal Principal
	DeviceID  string
	NewRoomID string
}

// EndOccupancyParams closes a device's open assignment.
type EndOccupancyParams struct {
	Principal Principal
	DeviceID  string
	ToDate    occupancy.Date
}

// IntervalInput describes an assignment to insert.
type IntervalInput struct {
	RoomID   string
	FromDate occupancy.Date
	ToDate   *occupancy.Date
	Notes    *string
}

// AddIntervalParams inserts an assignment into one device's history.
type AddIntervalParams struct {
	Principal Principal
	DeviceID  string
	Input     IntervalInput
}

// IntervalPatch lists the fields an edit touches. Nil pointers leave the
// stored value unchanged; ToDateSet and NotesSet allow clearing a value.
type IntervalPatch struct {
	RoomID    *string
	FromDate  *occupancy.Date
	ToDateSet bool
	ToDate    *occupancy.Date
	NotesSet  bool
	Notes     *string
}

// UpdateIntervalParams edits a single history entry. When DeviceID is set the
// entry must belong to that device.
type UpdateIntervalParams struct {
	Principal      Principal
	DeviceID       string
	HistoryEntryID string
	Patch          IntervalPatch
}

// DeleteIntervalParams removes a single history entry.
type DeleteIntervalParams struct {
	Principal      Principal
	DeviceID       string
	HistoryEntryID string
}

// BulkMoveParams moves several devices into one room in a single transaction.
type BulkMoveParams struct {
	Principal Principal
	DeviceIDs []string
	RoomID    string
	MoveDate  occupancy.Date
	Notes     *string
}

// BulkAddIntervalParams inserts the same assignment for several devices in a
// single transaction.
type BulkAddIntervalParams struct {
	Principal Principal
	DeviceIDs []string
	Input     IntervalInput
}

// Device is an inventory item together with its current room.
type Device struct {
	ID              string
	Hostname        *string
	SerialNumber    *string
	InventoryNumber *string
	Status          string
	LastInspected   *occupancy.Date
	Notes           *string
	CreatedAt       time.Time

	CurrentRoomID     *string
	CurrentRoomNumber *string
	CurrentRoomName   *string
}

// DeviceInput carries the writable fields of a device.
type DeviceInput struct {
	Hostname        *string
	SerialNumber    *string
	InventoryNumber *string
	Status          string
	Notes           *string
}

// CreateDeviceParams registers a device and optionally places it in a room.
type CreateDeviceParams struct {
	Principal     Principal
	Input         DeviceInput
	InitialRoomID string
	PlacedOn      occupancy.Date
}

// DeviceQuery narrows device listings.
type DeviceQuery struct {
	RoomID string
	Status string
	Search string
}

// DevicePatch lists the device fields an update touches. A field is only
// written when its Set flag is true; a nil value clears it. Status is left
// alone when empty.
type DevicePatch struct {
	HostnameSet        bool
	Hostname           *string
	SerialNumberSet    bool
	SerialNumber       *string
	InventoryNumberSet bool
	InventoryNumber    *string
	Status             string
	LastInspectedSet   bool
	LastInspected      *occupancy.Date
	NotesSet           bool
	Notes              *string
}

// UpdateDeviceParams edits a device record.
type UpdateDeviceParams struct {
	Principal Principal
	DeviceID  string
	Patch     DevicePatch
}

// DeleteDeviceParams removes a device and its room history.
type DeleteDeviceParams struct {
	Principal Principal
	DeviceID  string
}

// MarkInspectedParams stamps a device's last inspection date. A zero Date
// means today.
type MarkInspectedParams struct {
	Principal Principal
	DeviceID  string
	Date      occupancy.Date
}

// BulkMarkInspectedParams stamps every device located in RoomID on Date.
type BulkMarkInspectedParams struct {
	Principal Principal
	RoomID    string
	Date      occupancy.Date
}

// ActivityEntry is one audit log record.
type ActivityEntry struct {
	ID         int64
	Timestamp  time.Time
	Username   string
	ActionType string
	EntityType string
	EntityID   *string
	Details    json.RawMessage
}

// ActivityQuery narrows activity log listings.
type ActivityQuery struct {
	Limit      int
	EntityType string
	EntityID   string
}

func fromPersistenceAssignment(a persistence.RoomAssignment) RoomAssignment {
	return RoomAssignment{
		ID:         a.ID,
		DeviceID:   a.DeviceID,
		RoomID:     a.RoomID,
		RoomNumber: a.RoomNumber,
		RoomName:   a.RoomName,
		FromDate:   a.FromDate,
		ToDate:     a.ToDate,
		Notes:      a.Notes,
		CreatedAt:  a.CreatedAt,
	}
}

func fromPersistenceDevice(d persistence.Device) Device {
	return Device{
		ID:              d.ID,
		Hostname:        d.Hostname,
		SerialNumber:    d.SerialNumber,
		InventoryNumber: d.InventoryNumber,
		Status:          string(d.Status),
		LastInspected:   d.LastInspected,
		Notes:           d.Notes,
		CreatedAt:       d.CreatedAt,

		CurrentRoomID:     d.CurrentRoomID,
		CurrentRoomNumber: d.CurrentRoomNumber,
		CurrentRoomName:   d.CurrentRoomName,
	}
}

func fromPersistenceActivity(e persistence.ActivityEntry) ActivityEntry {
	return ActivityEntry{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		Username:   e.Username,
		ActionType: string(e.ActionType),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Details:    e.Details,
	}
}
