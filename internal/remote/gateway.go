package remote

import (
	"context"
)

// Payload is the wire shape for one sample insert. Field names are a
// contract with the backend schema. user_id is filled in by the backend's
// auth layer, never by this client.
type Payload struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Note      string   `json:"note,omitempty"`
	PhotoURL  string   `json:"photo_url,omitempty"`
	Timestamp int64    `json:"timestamp"`
	FarmID    string   `json:"farm_id,omitempty"`
	FieldID   string   `json:"field_id,omitempty"`
}

// Gateway is the remote side of the sync protocol: one blob store and one
// record table. Implementations are stateless from the engine's point of
// view.
type Gateway interface {
	// UploadBlob sends a local file to the blob store and returns its public
	// URL. The remote object name is collision-resistant; an existing object
	// is never overwritten.
	UploadBlob(ctx context.Context, localPath string) (string, error)

	// InsertRecord writes one payload and returns the remote identifier.
	InsertRecord(ctx context.Context, payload *Payload) (string, error)

	// DeleteBlob is a best-effort compensating action. Failures are logged
	// and never returned, so cleanup cannot mask a primary error.
	DeleteBlob(ctx context.Context, url string)
}
