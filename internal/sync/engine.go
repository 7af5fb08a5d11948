package sync

import (
	"context"
	"os"

	"go.uber.org/zap"

	"soil-sync-service/internal/logger"
	"soil-sync-service/internal/remote"
	"soil-sync-service/internal/store"
)

// RecordStore is the slice of the local store the sync subsystem needs.
type RecordStore interface {
	ListUnsynced(ctx context.Context) ([]*store.SampleRecord, error)
	MarkSynced(ctx context.Context, localID int64, remoteID string) error
	CountUnsynced(ctx context.Context) (int, error)
	PutJob(ctx context.Context, job *store.SyncJob) error
	DeleteJob(ctx context.Context, kind string) error
	ListJobs(ctx context.Context) ([]*store.SyncJob, error)
}

// Engine runs one synchronization pass at a time: read unsynced records,
// push each to the remote gateway, write back sync status. Records are
// isolated; one failure never aborts the others.
type Engine struct {
	store   RecordStore
	gateway remote.Gateway
}

func NewEngine(recordStore RecordStore, gateway remote.Gateway) *Engine {
	return &Engine{
		store:   recordStore,
		gateway: gateway,
	}
}

// RunPass sweeps all unsynced records in ascending capture-timestamp order.
// The only local mutation is MarkSynced, performed last and only after the
// remote insert is confirmed.
func (e *Engine) RunPass(ctx context.Context) *PassResult {
	result := &PassResult{}

	records, err := e.store.ListUnsynced(ctx)
	if err != nil {
		logger.Log.Error("Failed to read unsynced samples, aborting pass", zap.Error(err))
		result.Status = PassFailure
		return result
	}

	if len(records) == 0 {
		logger.Log.Debug("No samples pending sync")
		result.Status = PassSuccess
		return result
	}

	logger.Log.Info("Starting sync pass", zap.Int("pending", len(records)))

	for _, rec := range records {
		result.Attempted++

		if err := e.syncRecord(ctx, rec); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RecordError{LocalID: rec.ID, Err: err})
			logError(rec.ID, err)
			continue
		}

		result.Succeeded++
	}

	result.classify()

	logger.Log.Info("Sync pass finished",
		zap.String("status", string(result.Status)),
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)

	return result
}

func (e *Engine) syncRecord(ctx context.Context, rec *store.SampleRecord) error {
	photoURL, err := e.uploadPhoto(ctx, rec)
	if err != nil {
		return err
	}

	payload := buildPayload(rec, photoURL)

	remoteID, err := e.gateway.InsertRecord(ctx, payload)
	if err != nil {
		// The record stays unsynced and retries on the next pass. An already
		// uploaded photo is left in place; the retry reuses nothing, so the
		// orphan is cleaned up best-effort.
		if photoURL != "" {
			e.gateway.DeleteBlob(ctx, photoURL)
		}
		return err
	}

	if err := e.store.MarkSynced(ctx, rec.ID, remoteID); err != nil {
		return err
	}

	logger.Log.Info("Sample synced",
		zap.Int64("localID", rec.ID),
		zap.String("remoteID", remoteID),
	)

	return nil
}

// uploadPhoto pushes the record's photo if one exists and is readable.
// A missing file or a recoverable upload failure never blocks metadata
// sync; the record simply goes up without a photo URL. Only a fatal upload
// state fails the record for this pass.
func (e *Engine) uploadPhoto(ctx context.Context, rec *store.SampleRecord) (string, error) {
	if !rec.PhotoPath.Valid || rec.PhotoPath.String == "" {
		return "", nil
	}

	path := rec.PhotoPath.String
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		logger.Log.Warn("Photo file missing or unreadable, syncing without it",
			zap.Int64("localID", rec.ID),
			zap.String("path", path),
		)
		return "", nil
	}

	photoURL, err := e.gateway.UploadBlob(ctx, path)
	if err != nil {
		if remote.IsFatalUpload(err) {
			return "", err
		}
		logError(rec.ID, err)
		logger.Log.Warn("Photo upload failed, syncing without it", zap.Int64("localID", rec.ID))
		return "", nil
	}

	return photoURL, nil
}

func buildPayload(rec *store.SampleRecord, photoURL string) *remote.Payload {
	payload := &remote.Payload{
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Note:      rec.Note,
		PhotoURL:  photoURL,
		Timestamp: rec.Timestamp,
	}
	if rec.Altitude.Valid {
		alt := rec.Altitude.Float64
		payload.Altitude = &alt
	}
	if rec.Accuracy.Valid {
		acc := rec.Accuracy.Float64
		payload.Accuracy = &acc
	}
	if rec.FarmID.Valid {
		payload.FarmID = rec.FarmID.String
	}
	if rec.FieldID.Valid {
		payload.FieldID = rec.FieldID.String
	}
	return payload
}

// logError keeps network noise at debug and real failures at error.
func logError(localID int64, err error) {
	if remote.IsNetworkError(err) {
		logger.Log.Debug("Network error while syncing sample",
			zap.Int64("localID", localID),
			zap.Error(err),
		)
		return
	}
	logger.Log.Error("Failed to sync sample",
		zap.Int64("localID", localID),
		zap.Error(err),
	)
}
