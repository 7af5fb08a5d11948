package store

import (
	"database/sql"
)

// SampleRecord is one field observation as persisted locally.
// The photo is stored on disk; PhotoPath references it, never raw bytes.
// RemoteID being set implies IsSynced; the converse holds only after the
// record's first successful sync.
type SampleRecord struct {
	ID        int64           `db:"id"`
	Latitude  float64         `db:"latitude"`
	Longitude float64         `db:"longitude"`
	Altitude  sql.NullFloat64 `db:"altitude"`
	Accuracy  sql.NullFloat64 `db:"accuracy"`
	Note      string          `db:"note"`
	PhotoPath sql.NullString  `db:"photo_path"`
	Timestamp int64           `db:"timestamp"` // milliseconds since epoch
	FarmID    sql.NullString  `db:"farm_id"`
	FieldID   sql.NullString  `db:"field_id"`
	IsSynced  bool            `db:"is_synced"`
	RemoteID  sql.NullString  `db:"remote_id"`
}

// SyncJob is a persisted one-shot trigger. One row per trigger kind, so
// single-flight falls out of the primary key. Rows outlive a process
// restart; the scheduler reloads them on start.
type SyncJob struct {
	Kind      string `db:"kind"`
	NotBefore int64  `db:"not_before"` // milliseconds since epoch
	Attempts  int    `db:"attempts"`
	CreatedAt int64  `db:"created_at"`
}
