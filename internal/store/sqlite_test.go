package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"soil-sync-service/internal/config"
	"soil-sync-service/internal/database"
	"soil-sync-service/internal/logger"
)

func TestMain(m *testing.M) {
	if err := logger.InitLogger("error", "console"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dir := t.TempDir()
	db, err := database.NewDatabase(config.DatabaseConfig{
		Path:    filepath.Join(dir, "test.db"),
		DataDir: dir,
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	s, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func sampleAt(ts int64) *SampleRecord {
	return &SampleRecord{
		Latitude:  -23.55,
		Longitude: -46.63,
		Note:      "test sample",
		Timestamp: ts,
	}
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleAt(1000)
	rec.Altitude = sql.NullFloat64{Float64: 760.5, Valid: true}
	rec.FarmID = sql.NullString{String: "farm-1", Valid: true}

	id, err := s.Insert(ctx, rec)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id == 0 {
		t.Fatal("Expected non-zero id")
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected record, got nil")
	}
	if got.Latitude != rec.Latitude || got.Longitude != rec.Longitude {
		t.Errorf("Coordinates mismatch: got %v,%v", got.Latitude, got.Longitude)
	}
	if !got.Altitude.Valid || got.Altitude.Float64 != 760.5 {
		t.Errorf("Altitude mismatch: got %+v", got.Altitude)
	}
	if got.FarmID.String != "farm-1" {
		t.Errorf("FarmID mismatch: got %q", got.FarmID.String)
	}
	if got.IsSynced {
		t.Error("New record must not be synced")
	}
	if got.RemoteID.Valid {
		t.Error("New record must not have a remote id")
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get(context.Background(), 9999)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing record, got %+v", got)
	}
}

func TestListUnsyncedOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Insert out of capture order.
	for _, ts := range []int64{3000, 1000, 2000} {
		if _, err := s.Insert(ctx, sampleAt(ts)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	recs, err := s.ListUnsynced(ctx)
	if err != nil {
		t.Fatalf("ListUnsynced failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(recs))
	}
	for i, want := range []int64{1000, 2000, 3000} {
		if recs[i].Timestamp != want {
			t.Errorf("Position %d: expected timestamp %d, got %d", i, want, recs[i].Timestamp)
		}
	}
}

func TestListUnsyncedExcludesSynced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, _ := s.Insert(ctx, sampleAt(1000))
	s.Insert(ctx, sampleAt(2000))

	if err := s.MarkSynced(ctx, id1, "remote-1"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	recs, err := s.ListUnsynced(ctx)
	if err != nil {
		t.Fatalf("ListUnsynced failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Expected 1 unsynced record, got %d", len(recs))
	}
	if recs[0].Timestamp != 2000 {
		t.Errorf("Wrong record left unsynced: %+v", recs[0])
	}
}

func TestMarkSyncedIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.Insert(ctx, sampleAt(1000))

	if err := s.MarkSynced(ctx, id, "remote-abc"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	first, _ := s.Get(ctx, id)

	if err := s.MarkSynced(ctx, id, "remote-abc"); err != nil {
		t.Fatalf("Second MarkSynced failed: %v", err)
	}
	second, _ := s.Get(ctx, id)

	if *first != *second {
		t.Errorf("MarkSynced not idempotent: %+v vs %+v", first, second)
	}
	if !second.IsSynced || second.RemoteID.String != "remote-abc" {
		t.Errorf("Record not marked synced: %+v", second)
	}
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.Insert(ctx, sampleAt(1000))
	rec, _ := s.Get(ctx, id)

	rec.Note = "edited"
	rec.Latitude = -22.0
	if err := s.Update(ctx, rec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := s.Get(ctx, id)
	if got.Note != "edited" || got.Latitude != -22.0 {
		t.Errorf("Update not applied: %+v", got)
	}
}

func TestDeleteAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, _ := s.Insert(ctx, sampleAt(1000))
	s.Insert(ctx, sampleAt(2000))
	s.MarkSynced(ctx, id1, "remote-1")

	total, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if total != 2 {
		t.Errorf("Expected total 2, got %d", total)
	}

	unsynced, err := s.CountUnsynced(ctx)
	if err != nil {
		t.Fatalf("CountUnsynced failed: %v", err)
	}
	if unsynced != 1 {
		t.Errorf("Expected 1 unsynced, got %d", unsynced)
	}

	if err := s.Delete(ctx, id1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	total, _ = s.Count(ctx)
	if total != 1 {
		t.Errorf("Expected total 1 after delete, got %d", total)
	}
}

func TestListByFarmAndField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleAt(1000)
	a.FarmID = sql.NullString{String: "farm-1", Valid: true}
	a.FieldID = sql.NullString{String: "field-9", Valid: true}
	b := sampleAt(2000)
	b.FarmID = sql.NullString{String: "farm-2", Valid: true}
	s.Insert(ctx, a)
	s.Insert(ctx, b)

	byFarm, err := s.ListByFarm(ctx, "farm-1")
	if err != nil {
		t.Fatalf("ListByFarm failed: %v", err)
	}
	if len(byFarm) != 1 || byFarm[0].Timestamp != 1000 {
		t.Errorf("ListByFarm wrong result: %+v", byFarm)
	}

	byField, err := s.ListByField(ctx, "field-9")
	if err != nil {
		t.Fatalf("ListByField failed: %v", err)
	}
	if len(byField) != 1 {
		t.Errorf("ListByField wrong result: %+v", byField)
	}
}

func TestJobRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &SyncJob{Kind: "immediate-sync", NotBefore: 5000, Attempts: 2, CreatedAt: 1000}
	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("PutJob failed: %v", err)
	}

	// Same kind replaces, never stacks.
	job.NotBefore = 9000
	job.Attempts = 3
	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("Second PutJob failed: %v", err)
	}

	jobs, err := s.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(jobs))
	}
	if jobs[0].NotBefore != 9000 || jobs[0].Attempts != 3 {
		t.Errorf("Job not replaced: %+v", jobs[0])
	}

	if err := s.DeleteJob(ctx, "immediate-sync"); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	jobs, _ = s.ListJobs(ctx)
	if len(jobs) != 0 {
		t.Errorf("Expected empty jobs, got %d", len(jobs))
	}
}
