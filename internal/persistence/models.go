package persistence

import (
	"encoding/json"
	"time"

	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
)

// RoomAssignment is one row of a device's room history.
type RoomAssignment struct {
	ID        string
	DeviceID  string
	RoomID    string
	FromDate  occupancy.Date
	ToDate    *occupancy.Date
	Notes     *string
	CreatedAt time.Time

	// Populated by history listings only.
	RoomNumber string
	RoomName   string
}

// Interval returns the assignment's date range.
func (a RoomAssignment) Interval() occupancy.Interval {
	return occupancy.Interval{From: a.FromDate, To: a.ToDate}
}

// Assignment converts the row into the value used for overlap planning.
func (a RoomAssignment) Assignment() occupancy.Assignment {
	return occupancy.Assignment{ID: a.ID, DeviceID: a.DeviceID, RoomID: a.RoomID, Interval: a.Interval()}
}

// DeviceStatus mirrors the CHECK constraint on devices.status.
type DeviceStatus string

const (
	DeviceStatusActive         DeviceStatus = "active"
	DeviceStatusStorage        DeviceStatus = "storage"
	DeviceStatusDefective      DeviceStatus = "defective"
	DeviceStatusDecommissioned DeviceStatus = "decommissioned"
)

// Device is an inventory item that can be placed in rooms.
type Device struct {
	ID              string
	Hostname        *string
	SerialNumber    *string
	InventoryNumber *string
	Status          DeviceStatus
	LastInspected   *occupancy.Date
	Notes           *string
	CreatedAt       time.Time

	// CurrentRoomID and its labels are derived from the open history row, if any.
	CurrentRoomID     *string
	CurrentRoomNumber *string
	CurrentRoomName   *string
}

// DeviceFilter narrows device listings. Empty fields match everything;
// Search is a substring match on identifiers, notes and current room labels.
type DeviceFilter struct {
	RoomID string
	Status DeviceStatus
	Search string
}

// Room is a read-only lookup entry.
type Room struct {
	ID         string
	RoomNumber string
	RoomName   string
	Floor      *int
}

// ActionType mirrors the CHECK constraint on activity_log.action_type.
type ActionType string

const (
	ActionCreate     ActionType = "CREATE"
	ActionUpdate     ActionType = "UPDATE"
	ActionDelete     ActionType = "DELETE"
	ActionBulkUpdate ActionType = "BULK_UPDATE"
	ActionMove       ActionType = "MOVE"
	ActionOther      ActionType = "OTHER"
)

// ActivityEntry is one audit log record.
type ActivityEntry struct {
	ID         int64
	Timestamp  time.Time
	Username   string
	ActionType ActionType
	EntityType string
	EntityID   *string
	Details    json.RawMessage
}

// ActivityFilter narrows activity log queries.
type ActivityFilter struct {
	Limit      int
	EntityType string
	EntityID   string
}
