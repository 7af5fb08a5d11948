package sync

import (
	"fmt"
)

type PassStatus string

const (
	// PassSuccess: every candidate synced, or there were none.
	PassSuccess PassStatus = "success"
	// PassPartial: some records synced, some failed. Progress was made, so
	// the scheduler treats it as success; failures surface in Errors.
	PassPartial PassStatus = "partial"
	// PassFailure: every attempted record failed, or the pass itself broke.
	// Signals the scheduler to retry with backoff.
	PassFailure PassStatus = "failure"
)

// RecordError describes one record's failure within a pass.
type RecordError struct {
	LocalID int64
	Err     error
}

func (e RecordError) String() string {
	return fmt.Sprintf("sample %d: %v", e.LocalID, e.Err)
}

// PassResult aggregates one engine run. Consumed by the scheduler to pick
// the next action, then discarded.
type PassResult struct {
	Status    PassStatus
	Attempted int
	Succeeded int
	Failed    int
	Errors    []RecordError
}

func (r *PassResult) classify() {
	switch {
	case r.Failed == 0:
		r.Status = PassSuccess
	case r.Succeeded > 0:
		r.Status = PassPartial
	default:
		r.Status = PassFailure
	}
}

// SyncStats is a point-in-time snapshot of scheduler state, recomputed on
// demand for observability.
type SyncStats struct {
	Running   int `json:"running"`
	Enqueued  int `json:"enqueued"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (s SyncStats) HasPending() bool {
	return s.Running > 0 || s.Enqueued > 0
}

func (s SyncStats) Total() int {
	return s.Running + s.Enqueued + s.Succeeded + s.Failed
}
