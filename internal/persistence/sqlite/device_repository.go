package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

type deviceRow struct {
	ID              string          `db:"device_id"`
	Hostname        sql.NullString  `db:"hostname"`
	SerialNumber    sql.NullString  `db:"serial_number"`
	InventoryNumber sql.NullString  `db:"inventory_number"`
	Status          string          `db:"status"`
	LastInspected   *occupancy.Date `db:"last_inspected"`
	Notes           sql.NullString  `db:"notes"`
	CreatedAt       string          `db:"created_at"`
	CurrentRoomID   sql.NullString  `db:"current_room_id"`
	RoomNumber      sql.NullString  `db:"current_room_number"`
	RoomName        sql.NullString  `db:"current_room_name"`
}

// deviceSelect joins each device with the room of its latest open history row.
const deviceSelect = `
		SELECT d.device_id, d.hostname, d.serial_number, d.inventory_number, d.status,
		       d.last_inspected, d.notes, d.created_at,
		       cur.room_id AS current_room_id,
		       r.room_number AS current_room_number,
		       r.room_name AS current_room_name
		FROM devices d
		LEFT JOIN room_device_history cur ON cur.history_id = (
			SELECT h.history_id FROM room_device_history h
			WHERE h.device_id = d.device_id AND h.to_date IS NULL
			ORDER BY h.from_date DESC, h.rowid DESC LIMIT 1)
		LEFT JOIN rooms r ON r.room_id = cur.room_id`

func (r deviceRow) toPersistence() persistence.Device {
	return persistence.Device{
		ID:              r.ID,
		Hostname:        stringPtr(r.Hostname),
		SerialNumber:    stringPtr(r.SerialNumber),
		InventoryNumber: stringPtr(r.InventoryNumber),
		Status:          persistence.DeviceStatus(r.Status),
		LastInspected:   r.LastInspected,
		Notes:           stringPtr(r.Notes),
		CreatedAt:       parseTimestamp(r.CreatedAt),
		CurrentRoomID:     stringPtr(r.CurrentRoomID),
		CurrentRoomNumber: stringPtr(r.RoomNumber),
		CurrentRoomName:   stringPtr(r.RoomName),
	}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// GetDevice loads a device together with the room of its open history row.
func (q queries) GetDevice(ctx context.Context, deviceID string) (persistence.Device, error) {
	var row deviceRow
	err := sqlx.GetContext(ctx, q.ext, &row, deviceSelect+` WHERE d.device_id = ?`, deviceID)
	if err != nil {
		return persistence.Device{}, q.mapper.MapError(err)
	}
	return row.toPersistence(), nil
}

// ListDevices returns the devices matching filter ordered by hostname, then id.
func (q queries) ListDevices(ctx context.Context, filter persistence.DeviceFilter) ([]persistence.Device, error) {
	var (
		wheres []string
		args   []any
	)
	if filter.RoomID != "" {
		wheres = append(wheres, "cur.room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.Status != "" {
		wheres = append(wheres, "d.status = ?")
		args = append(args, string(filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		wheres = append(wheres, `(d.hostname LIKE ? OR d.serial_number LIKE ? OR d.inventory_number LIKE ?
			OR d.notes LIKE ? OR r.room_number LIKE ? OR r.room_name LIKE ?)`)
		term := "%" + search + "%"
		args = append(args, term, term, term, term, term, term)
	}

	query := deviceSelect
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY d.hostname IS NULL, d.hostname, d.device_id"

	var rows []deviceRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, q.mapper.MapError(err)
	}
	out := make([]persistence.Device, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toPersistence())
	}
	return out, nil
}

func (t *txStore) InsertDevice(ctx context.Context, device persistence.Device) error {
	if device.ID == "" {
		return persistence.ErrConstraintViolation
	}
	status := device.Status
	if status == "" {
		status = persistence.DeviceStatusActive
	}
	_, err := t.ext.ExecContext(ctx, `
		INSERT INTO devices (device_id, hostname, serial_number, inventory_number, status, last_inspected, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, device.ID,
		nullableString(device.Hostname),
		nullableString(device.SerialNumber),
		nullableString(device.InventoryNumber),
		string(status),
		device.LastInspected,
		nullableString(device.Notes),
		formatTimestamp(device.CreatedAt),
	)
	return t.mapper.MapError(err)
}

func (t *txStore) UpdateDevice(ctx context.Context, device persistence.Device) error {
	if device.ID == "" || device.Status == "" {
		return persistence.ErrConstraintViolation
	}
	return t.execAffectingOne(ctx, `
		UPDATE devices
		SET hostname = ?, serial_number = ?, inventory_number = ?, status = ?, last_inspected = ?, notes = ?
		WHERE device_id = ?
	`, nullableString(device.Hostname),
		nullableString(device.SerialNumber),
		nullableString(device.InventoryNumber),
		string(device.Status),
		device.LastInspected,
		nullableString(device.Notes),
		device.ID,
	)
}

// DeleteDevice removes the history rows explicitly so the result does not
// depend on the foreign_keys pragma.
func (t *txStore) DeleteDevice(ctx context.Context, deviceID string) (int64, error) {
	result, err := t.ext.ExecContext(ctx, `DELETE FROM room_device_history WHERE device_id = ?`, deviceID)
	if err != nil {
		return 0, t.mapper.MapError(err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if err := t.execAffectingOne(ctx, `DELETE FROM devices WHERE device_id = ?`, deviceID); err != nil {
		return 0, err
	}
	return removed, nil
}

func (t *txStore) SetLastInspected(ctx context.Context, deviceID string, date occupancy.Date) error {
	return t.execAffectingOne(ctx, `UPDATE devices SET last_inspected = ? WHERE device_id = ?`, date, deviceID)
}

// MarkInspectedInRoom stamps every device whose history places it in roomID on date.
func (t *txStore) MarkInspectedInRoom(ctx context.Context, roomID string, date occupancy.Date) (int64, error) {
	result, err := t.ext.ExecContext(ctx, `
		UPDATE devices
		SET last_inspected = ?
		WHERE device_id IN (
			SELECT h.device_id FROM room_device_history h
			WHERE h.room_id = ?
			  AND h.from_date <= ?
			  AND (h.to_date IS NULL OR h.to_date >= ?)
		)
	`, date, roomID, date, date)
	if err != nil {
		return 0, t.mapper.MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
