package sqlite

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

type roomRow struct {
	ID         string        `db:"room_id"`
	RoomNumber string        `db:"room_number"`
	RoomName   string        `db:"room_name"`
	Floor      sql.NullInt64 `db:"floor"`
}

func (r roomRow) toPersistence() persistence.Room {
	room := persistence.Room{ID: r.ID, RoomNumber: r.RoomNumber, RoomName: r.RoomName}
	if r.Floor.Valid {
		floor := int(r.Floor.Int64)
		room.Floor = &floor
	}
	return room
}

// GetRoom loads a room lookup entry.
func (q queries) GetRoom(ctx context.Context, roomID string) (persistence.Room, error) {
	var row roomRow
	if err := sqlx.GetContext(ctx, q.ext, &row, `
		SELECT room_id, room_number, room_name, floor FROM rooms WHERE room_id = ?
	`, roomID); err != nil {
		return persistence.Room{}, q.mapper.MapError(err)
	}
	return row.toPersistence(), nil
}

// InsertRoom adds a room lookup entry. Rooms are maintained outside this
// service; the method exists for provisioning and tests.
func (s *Storage) InsertRoom(ctx context.Context, room persistence.Room) error {
	if room.ID == "" || room.RoomNumber == "" || room.RoomName == "" {
		return persistence.ErrConstraintViolation
	}
	var floor any
	if room.Floor != nil {
		floor = *room.Floor
	}
	_, err := s.pool.DB().ExecContext(ctx, `
		INSERT INTO rooms (room_id, room_number, room_name, floor) VALUES (?, ?, ?, ?)
	`, room.ID, room.RoomNumber, room.RoomName, floor)
	return s.mapper.MapError(err)
}
