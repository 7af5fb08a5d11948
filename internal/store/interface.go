package store

import (
	"context"
)

type SampleStore interface {
	// Samples
	ListUnsynced(ctx context.Context) ([]*SampleRecord, error)
	MarkSynced(ctx context.Context, localID int64, remoteID string) error
	Get(ctx context.Context, id int64) (*SampleRecord, error)
	Insert(ctx context.Context, rec *SampleRecord) (int64, error)
	Update(ctx context.Context, rec *SampleRecord) error
	Delete(ctx context.Context, id int64) error
	ListAll(ctx context.Context) ([]*SampleRecord, error)
	ListByFarm(ctx context.Context, farmID string) ([]*SampleRecord, error)
	ListByField(ctx context.Context, fieldID string) ([]*SampleRecord, error)
	Count(ctx context.Context) (int, error)
	CountUnsynced(ctx context.Context) (int, error)

	// Persisted trigger state
	PutJob(ctx context.Context, job *SyncJob) error
	DeleteJob(ctx context.Context, kind string) error
	ListJobs(ctx context.Context) ([]*SyncJob, error)

	// General
	Close() error
}
