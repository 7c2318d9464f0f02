package migration

import "time"

// AppliedMigration describes one migration run by Up.
type AppliedMigration struct {
	Version  int64
	Source   string
	Duration time.Duration
}

// MigrationState reports whether a known migration has been applied.
type MigrationState struct {
	Version   int64
	Source    string
	Applied   bool
	AppliedAt time.Time
}

// MigrationStatus summarises the schema version of a database.
type MigrationStatus struct {
	CurrentVersion int64
	Migrations     []MigrationState
}

// Pending returns the migrations that have not been applied yet.
func (s MigrationStatus) Pending() []MigrationState {
	var pending []MigrationState
	for _, m := range s.Migrations {
		if !m.Applied {
			pending = append(pending, m)
		}
	}
	return pending
}
