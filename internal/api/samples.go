package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"soil-sync-service/internal/logger"
	"soil-sync-service/internal/store"
)

// sampleRequest is the write-path body. Latitude and longitude are the only
// required fields; timestamp defaults to now.
type sampleRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
	Accuracy  *float64 `json:"accuracy"`
	Note      string   `json:"note"`
	PhotoPath string   `json:"photo_path"`
	Timestamp int64    `json:"timestamp"`
	FarmID    string   `json:"farm_id"`
	FieldID   string   `json:"field_id"`
}

type sampleResponse struct {
	ID        int64    `json:"id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Note      string   `json:"note"`
	PhotoPath string   `json:"photo_path,omitempty"`
	Timestamp int64    `json:"timestamp"`
	FarmID    string   `json:"farm_id,omitempty"`
	FieldID   string   `json:"field_id,omitempty"`
	IsSynced  bool     `json:"is_synced"`
	RemoteID  string   `json:"remote_id,omitempty"`
}

func toResponse(rec *store.SampleRecord) sampleResponse {
	resp := sampleResponse{
		ID:        rec.ID,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
		Note:      rec.Note,
		Timestamp: rec.Timestamp,
		IsSynced:  rec.IsSynced,
	}
	if rec.Altitude.Valid {
		alt := rec.Altitude.Float64
		resp.Altitude = &alt
	}
	if rec.Accuracy.Valid {
		acc := rec.Accuracy.Float64
		resp.Accuracy = &acc
	}
	if rec.PhotoPath.Valid {
		resp.PhotoPath = rec.PhotoPath.String
	}
	if rec.FarmID.Valid {
		resp.FarmID = rec.FarmID.String
	}
	if rec.FieldID.Valid {
		resp.FieldID = rec.FieldID.String
	}
	if rec.RemoteID.Valid {
		resp.RemoteID = rec.RemoteID.String
	}
	return resp
}

func toResponses(recs []*store.SampleRecord) []sampleResponse {
	out := make([]sampleResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResponse(rec))
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// CreateSample is the UI-adjacent write path: persist locally first, then
// kick the debounced post-write sync.
func (h *Handler) CreateSample(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		http.Error(w, "latitude and longitude are required", http.StatusBadRequest)
		return
	}

	rec := &store.SampleRecord{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Altitude:  nullFloat(req.Altitude),
		Accuracy:  nullFloat(req.Accuracy),
		Note:      req.Note,
		PhotoPath: nullString(req.PhotoPath),
		Timestamp: req.Timestamp,
		FarmID:    nullString(req.FarmID),
		FieldID:   nullString(req.FieldID),
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}

	if _, err := h.store.Insert(r.Context(), rec); err != nil {
		logger.Log.Error("Failed to insert sample", zap.Error(err))
		http.Error(w, "failed to save sample", http.StatusInternalServerError)
		return
	}

	h.scheduler.TriggerAfterWrite()

	writeJSON(w, http.StatusCreated, toResponse(rec))
}

func (h *Handler) ListSamples(w http.ResponseWriter, r *http.Request) {
	var (
		recs []*store.SampleRecord
		err  error
	)
	switch {
	case r.URL.Query().Get("farm_id") != "":
		recs, err = h.store.ListByFarm(r.Context(), r.URL.Query().Get("farm_id"))
	case r.URL.Query().Get("field_id") != "":
		recs, err = h.store.ListByField(r.Context(), r.URL.Query().Get("field_id"))
	default:
		recs, err = h.store.ListAll(r.Context())
	}
	if err != nil {
		logger.Log.Error("Failed to list samples", zap.Error(err))
		http.Error(w, "failed to list samples", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toResponses(recs))
}

func (h *Handler) GetSample(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid sample id", http.StatusBadRequest)
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		logger.Log.Error("Failed to get sample", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "failed to get sample", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "sample not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(rec))
}

// UpdateSample applies user edits to note and location fields. Sync status
// is owned by the engine and cannot be changed here.
func (h *Handler) UpdateSample(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid sample id", http.StatusBadRequest)
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		logger.Log.Error("Failed to get sample", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "failed to get sample", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "sample not found", http.StatusNotFound)
		return
	}

	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Latitude != nil {
		rec.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		rec.Longitude = *req.Longitude
	}
	if req.Altitude != nil {
		rec.Altitude = nullFloat(req.Altitude)
	}
	if req.Accuracy != nil {
		rec.Accuracy = nullFloat(req.Accuracy)
	}
	rec.Note = req.Note
	if req.FarmID != "" {
		rec.FarmID = nullString(req.FarmID)
	}
	if req.FieldID != "" {
		rec.FieldID = nullString(req.FieldID)
	}

	if err := h.store.Update(r.Context(), rec); err != nil {
		logger.Log.Error("Failed to update sample", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "failed to update sample", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(rec))
}

// DeleteSample removes the record and its photo file. Deletion is a user
// action only; the sync subsystem never deletes records.
func (h *Handler) DeleteSample(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid sample id", http.StatusBadRequest)
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		logger.Log.Error("Failed to get sample", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "failed to get sample", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "sample not found", http.StatusNotFound)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		logger.Log.Error("Failed to delete sample", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "failed to delete sample", http.StatusInternalServerError)
		return
	}

	if rec.PhotoPath.Valid && rec.PhotoPath.String != "" {
		if err := os.Remove(rec.PhotoPath.String); err != nil && !os.IsNotExist(err) {
			logger.Log.Warn("Failed to remove photo file",
				zap.String("path", rec.PhotoPath.String),
				zap.Error(err),
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) GetSampleStats(w http.ResponseWriter, r *http.Request) {
	total, err := h.store.Count(r.Context())
	if err != nil {
		logger.Log.Error("Failed to count samples", zap.Error(err))
		http.Error(w, "failed to count samples", http.StatusInternalServerError)
		return
	}
	unsynced, err := h.store.CountUnsynced(r.Context())
	if err != nil {
		logger.Log.Error("Failed to count unsynced samples", zap.Error(err))
		http.Error(w, "failed to count samples", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"total":    total,
		"unsynced": unsynced,
	})
}
