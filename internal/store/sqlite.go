package store

import (
	"context"
	"database/sql"
	"fmt"

	"soil-sync-service/internal/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS soil_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	altitude REAL,
	accuracy REAL,
	note TEXT NOT NULL DEFAULT '',
	photo_path TEXT,
	timestamp INTEGER NOT NULL,
	farm_id TEXT,
	field_id TEXT,
	is_synced INTEGER NOT NULL DEFAULT 0,
	remote_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_soil_samples_unsynced ON soil_samples(is_synced, timestamp);
CREATE TABLE IF NOT EXISTS sync_jobs (
	kind TEXT PRIMARY KEY,
	not_before INTEGER NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
`

const sampleColumns = `id, latitude, longitude, altitude, accuracy, note, photo_path, timestamp, farm_id, field_id, is_synced, remote_id`

type SQLiteStore struct {
	db *database.Database
}

func NewSQLiteStore(db *database.Database) (*SQLiteStore, error) {
	if _, err := db.DB.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSample(row interface{ Scan(...interface{}) error }) (*SampleRecord, error) {
	var rec SampleRecord
	err := row.Scan(
		&rec.ID,
		&rec.Latitude,
		&rec.Longitude,
		&rec.Altitude,
		&rec.Accuracy,
		&rec.Note,
		&rec.PhotoPath,
		&rec.Timestamp,
		&rec.FarmID,
		&rec.FieldID,
		&rec.IsSynced,
		&rec.RemoteID,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) querySamples(ctx context.Context, query string, args ...interface{}) ([]*SampleRecord, error) {
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SampleRecord
	for rows.Next() {
		rec, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ListUnsynced returns records still waiting for a successful sync,
// oldest capture first.
func (s *SQLiteStore) ListUnsynced(ctx context.Context) ([]*SampleRecord, error) {
	query := `SELECT ` + sampleColumns + ` FROM soil_samples WHERE is_synced = 0 ORDER BY timestamp ASC`
	return s.querySamples(ctx, query)
}

// MarkSynced sets the sync flag and remote id in one statement. Calling it
// again with the same arguments leaves the row unchanged.
func (s *SQLiteStore) MarkSynced(ctx context.Context, localID int64, remoteID string) error {
	query := `UPDATE soil_samples SET is_synced = 1, remote_id = ? WHERE id = ?`
	_, err := s.db.DB.ExecContext(ctx, query, remoteID, localID)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*SampleRecord, error) {
	query := `SELECT ` + sampleColumns + ` FROM soil_samples WHERE id = ?`

	rec, err := scanSample(s.db.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *SampleRecord) (int64, error) {
	query := `INSERT INTO soil_samples (latitude, longitude, altitude, accuracy, note, photo_path, timestamp, farm_id, field_id, is_synced, remote_id)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.DB.ExecContext(ctx, query,
		rec.Latitude,
		rec.Longitude,
		rec.Altitude,
		rec.Accuracy,
		rec.Note,
		rec.PhotoPath,
		rec.Timestamp,
		rec.FarmID,
		rec.FieldID,
		rec.IsSynced,
		rec.RemoteID,
	)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	rec.ID = id
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, rec *SampleRecord) error {
	query := `UPDATE soil_samples SET latitude = ?, longitude = ?, altitude = ?, accuracy = ?, note = ?, photo_path = ?, timestamp = ?, farm_id = ?, field_id = ?, is_synced = ?, remote_id = ?
			  WHERE id = ?`

	_, err := s.db.DB.ExecContext(ctx, query,
		rec.Latitude,
		rec.Longitude,
		rec.Altitude,
		rec.Accuracy,
		rec.Note,
		rec.PhotoPath,
		rec.Timestamp,
		rec.FarmID,
		rec.FieldID,
		rec.IsSynced,
		rec.RemoteID,
		rec.ID,
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM soil_samples WHERE id = ?`
	_, err := s.db.DB.ExecContext(ctx, query, id)
	return err
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]*SampleRecord, error) {
	query := `SELECT ` + sampleColumns + ` FROM soil_samples ORDER BY timestamp DESC`
	return s.querySamples(ctx, query)
}

func (s *SQLiteStore) ListByFarm(ctx context.Context, farmID string) ([]*SampleRecord, error) {
	query := `SELECT ` + sampleColumns + ` FROM soil_samples WHERE farm_id = ? ORDER BY timestamp DESC`
	return s.querySamples(ctx, query, farmID)
}

func (s *SQLiteStore) ListByField(ctx context.Context, fieldID string) ([]*SampleRecord, error) {
	query := `SELECT ` + sampleColumns + ` FROM soil_samples WHERE field_id = ? ORDER BY timestamp DESC`
	return s.querySamples(ctx, query, fieldID)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM soil_samples`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM soil_samples WHERE is_synced = 0`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) PutJob(ctx context.Context, job *SyncJob) error {
	query := `INSERT INTO sync_jobs (kind, not_before, attempts, created_at)
			  VALUES (?, ?, ?, ?)
			  ON CONFLICT(kind) DO UPDATE SET
			  not_before = excluded.not_before,
			  attempts = excluded.attempts`

	_, err := s.db.DB.ExecContext(ctx, query,
		job.Kind,
		job.NotBefore,
		job.Attempts,
		job.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, kind string) error {
	_, err := s.db.DB.ExecContext(ctx, `DELETE FROM sync_jobs WHERE kind = ?`, kind)
	return err
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*SyncJob, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT kind, not_before, attempts, created_at FROM sync_jobs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*SyncJob
	for rows.Next() {
		var job SyncJob
		if err := rows.Scan(&job.Kind, &job.NotBefore, &job.Attempts, &job.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}
