package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"soil-sync-service/internal/store"
	syncpkg "soil-sync-service/internal/sync"
)

// SyncControl is the trigger surface the API exposes to clients; satisfied
// by *sync.Scheduler.
type SyncControl interface {
	TriggerImmediate()
	TriggerAfterWrite()
	SchedulePeriodic()
	CancelPeriodic()
	CancelAll()
	Stats() syncpkg.SyncStats
}

type Handler struct {
	store     store.SampleStore
	scheduler SyncControl
	authToken string
}

func NewHandler(sampleStore store.SampleStore, scheduler SyncControl, authToken string) *Handler {
	return &Handler{
		store:     sampleStore,
		scheduler: scheduler,
		authToken: authToken,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Route("/samples", func(r chi.Router) {
			r.Post("/", h.CreateSample)
			r.Get("/", h.ListSamples)
			r.Get("/stats", h.GetSampleStats)
			r.Get("/{id}", h.GetSample)
			r.Put("/{id}", h.UpdateSample)
			r.Delete("/{id}", h.DeleteSample)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/trigger", h.TriggerSync)
			r.Post("/cancel", h.CancelSync)
			r.Post("/periodic/start", h.StartPeriodic)
			r.Post("/periodic/stop", h.StopPeriodic)
			r.Get("/stats", h.GetSyncStats)
		})
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	h.scheduler.TriggerImmediate()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (h *Handler) CancelSync(w http.ResponseWriter, r *http.Request) {
	h.scheduler.CancelAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) StartPeriodic(w http.ResponseWriter, r *http.Request) {
	h.scheduler.SchedulePeriodic()
	writeJSON(w, http.StatusOK, map[string]string{"status": "scheduled"})
}

func (h *Handler) StopPeriodic(w http.ResponseWriter, r *http.Request) {
	h.scheduler.CancelPeriodic()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) GetSyncStats(w http.ResponseWriter, r *http.Request) {
	stats := h.scheduler.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":     stats.Running,
		"enqueued":    stats.Enqueued,
		"succeeded":   stats.Succeeded,
		"failed":      stats.Failed,
		"has_pending": stats.HasPending(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware enforces the static bearer token when one is configured.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authToken != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != h.authToken {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
