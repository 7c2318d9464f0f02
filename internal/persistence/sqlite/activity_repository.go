package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

const defaultActivityLimit = 100

type activityRow struct {
	ID         int64          `db:"log_id"`
	Timestamp  string         `db:"timestamp"`
	Username   sql.NullString `db:"username"`
	ActionType string         `db:"action_type"`
	EntityType sql.NullString `db:"entity_type"`
	EntityID   sql.NullString `db:"entity_id"`
	Details    sql.NullString `db:"details_json"`
}

func (r activityRow) toPersistence() persistence.ActivityEntry {
	entry := persistence.ActivityEntry{
		ID:         r.ID,
		Timestamp:  parseTimestamp(r.Timestamp),
		Username:   r.Username.String,
		ActionType: persistence.ActionType(r.ActionType),
		EntityType: r.EntityType.String,
		EntityID:   stringPtr(r.EntityID),
	}
	if r.Details.Valid && r.Details.String != "" {
		entry.Details = json.RawMessage(r.Details.String)
	}
	return entry
}

// AppendActivity writes one audit record.
func (s *Storage) AppendActivity(ctx context.Context, entry persistence.ActivityEntry) error {
	var details any
	if len(entry.Details) > 0 {
		details = string(entry.Details)
	}
	_, err := s.pool.DB().ExecContext(ctx, `
		INSERT INTO activity_log (timestamp, username, action_type, entity_type, entity_id, details_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, formatTimestamp(entry.Timestamp),
		entry.Username,
		string(entry.ActionType),
		entry.EntityType,
		nullableString(entry.EntityID),
		details,
	)
	return s.mapper.MapError(err)
}

// ListActivity returns audit records, newest first.
func (s *Storage) ListActivity(ctx context.Context, filter persistence.ActivityFilter) ([]persistence.ActivityEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultActivityLimit
	}

	var (
		where []string
		args  []any
	)
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	query := `SELECT log_id, timestamp, username, action_type, entity_type, entity_id, details_json FROM activity_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, log_id DESC LIMIT ?"
	args = append(args, limit)

	var rows []activityRow
	if err := s.pool.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, s.mapper.MapError(err)
	}
	entries := make([]persistence.ActivityEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toPersistence())
	}
	return entries, nil
}
