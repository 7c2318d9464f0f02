package sqlite

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

const assignmentColumns = `h.history_id, h.device_id, h.room_id, h.from_date, h.to_date, h.notes, h.created_at`

type assignmentRow struct {
	ID         string          `db:"history_id"`
	DeviceID   string          `db:"device_id"`
	RoomID     string          `db:"room_id"`
	FromDate   occupancy.Date  `db:"from_date"`
	ToDate     *occupancy.Date `db:"to_date"`
	Notes      sql.NullString  `db:"notes"`
	CreatedAt  string          `db:"created_at"`
	RoomNumber sql.NullString  `db:"room_number"`
	RoomName   sql.NullString  `db:"room_name"`
}

func (r assignmentRow) toPersistence() persistence.RoomAssignment {
	a := persistence.RoomAssignment{
		ID:         r.ID,
		DeviceID:   r.DeviceID,
		RoomID:     r.RoomID,
		FromDate:   r.FromDate,
		ToDate:     r.ToDate,
		CreatedAt:  parseTimestamp(r.CreatedAt),
		RoomNumber: r.RoomNumber.String,
		RoomName:   r.RoomName.String,
	}
	if r.Notes.Valid {
		notes := r.Notes.String
		a.Notes = &notes
	}
	return a
}

func toAssignments(rows []assignmentRow) []persistence.RoomAssignment {
	if len(rows) == 0 {
		return nil
	}
	out := make([]persistence.RoomAssignment, len(rows))
	for i, row := range rows {
		out[i] = row.toPersistence()
	}
	return out
}

func (q queries) selectAssignments(ctx context.Context, query string, args ...any) ([]persistence.RoomAssignment, error) {
	var rows []assignmentRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, q.mapper.MapError(err)
	}
	return toAssignments(rows), nil
}

func (q queries) getAssignment(ctx context.Context, query string, args ...any) (persistence.RoomAssignment, error) {
	var row assignmentRow
	if err := sqlx.GetContext(ctx, q.ext, &row, query, args...); err != nil {
		return persistence.RoomAssignment{}, q.mapper.MapError(err)
	}
	return row.toPersistence(), nil
}

// ListHistory returns a device's room history, oldest first, with room labels.
func (q queries) ListHistory(ctx context.Context, deviceID string) ([]persistence.RoomAssignment, error) {
	return q.selectAssignments(ctx, `
		SELECT `+assignmentColumns+`, r.room_number, r.room_name
		FROM room_device_history h
		LEFT JOIN rooms r ON r.room_id = h.room_id
		WHERE h.device_id = ?
		ORDER BY h.from_date ASC, h.created_at ASC, h.rowid ASC
	`, deviceID)
}

func (t *txStore) DeviceExists(ctx context.Context, deviceID string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM devices WHERE device_id = ?)`, deviceID)
}

func (t *txStore) RoomExists(ctx context.Context, roomID string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE room_id = ?)`, roomID)
}

func (t *txStore) GetInterval(ctx context.Context, id string) (persistence.RoomAssignment, error) {
	return t.getAssignment(ctx, `
		SELECT `+assignmentColumns+`
		FROM room_device_history h
		WHERE h.history_id = ?
	`, id)
}

func (t *txStore) FindOpenIntervals(ctx context.Context, deviceID string) ([]persistence.RoomAssignment, error) {
	return t.selectAssignments(ctx, `
		SELECT `+assignmentColumns+`
		FROM room_device_history h
		WHERE h.device_id = ? AND h.to_date IS NULL
		ORDER BY h.from_date DESC, h.created_at DESC, h.rowid DESC
	`, deviceID)
}

func (t *txStore) FindMostRecentInterval(ctx context.Context, deviceID string) (persistence.RoomAssignment, error) {
	return t.getAssignment(ctx, `
		SELECT `+assignmentColumns+`
		FROM room_device_history h
		WHERE h.device_id = ?
		ORDER BY h.from_date DESC, h.created_at DESC, h.rowid DESC
		LIMIT 1
	`, deviceID)
}

// FindOverlapping returns the device's intervals sharing at least one day
// with interval, skipping excludeID.
func (t *txStore) FindOverlapping(ctx context.Context, deviceID string, interval occupancy.Interval, excludeID string) ([]persistence.RoomAssignment, error) {
	return t.selectAssignments(ctx, `
		SELECT `+assignmentColumns+`
		FROM room_device_history h
		WHERE h.device_id = ?
		  AND h.history_id <> ?
		  AND (h.to_date IS NULL OR h.to_date >= ?)
		  AND (? IS NULL OR h.from_date <= ?)
		ORDER BY h.from_date ASC, h.created_at ASC, h.rowid ASC
	`, deviceID, excludeID, interval.From, interval.To, interval.To)
}

func (t *txStore) CloseInterval(ctx context.Context, id string, to occupancy.Date) error {
	return t.execAffectingOne(ctx, `UPDATE room_device_history SET to_date = ? WHERE history_id = ?`, to, id)
}

func (t *txStore) InsertInterval(ctx context.Context, a persistence.RoomAssignment) error {
	if a.ID == "" || a.DeviceID == "" || a.RoomID == "" || a.FromDate.IsZero() {
		return persistence.ErrConstraintViolation
	}
	_, err := t.ext.ExecContext(ctx, `
		INSERT INTO room_device_history (history_id, device_id, room_id, from_date, to_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.DeviceID, a.RoomID, a.FromDate, a.ToDate, nullableString(a.Notes), formatTimestamp(a.CreatedAt))
	return t.mapper.MapError(err)
}

func (t *txStore) UpdateInterval(ctx context.Context, a persistence.RoomAssignment) error {
	if a.ID == "" || a.RoomID == "" || a.FromDate.IsZero() {
		return persistence.ErrConstraintViolation
	}
	return t.execAffectingOne(ctx, `
		UPDATE room_device_history
		SET room_id = ?, from_date = ?, to_date = ?, notes = ?
		WHERE history_id = ?
	`, a.RoomID, a.FromDate, a.ToDate, nullableString(a.Notes), a.ID)
}

func (t *txStore) DeleteInterval(ctx context.Context, id string) error {
	return t.execAffectingOne(ctx, `DELETE FROM room_device_history WHERE history_id = ?`, id)
}
