package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"soil-sync-service/internal/config"
	"soil-sync-service/internal/logger"
)

// SupabaseGateway talks to a Supabase project over its REST surface:
// Storage for photo blobs, PostgREST for the samples table.
type SupabaseGateway struct {
	baseURL string
	anonKey string
	bucket  string
	table   string
	client  *http.Client
}

func NewSupabaseGateway(cfg config.SupabaseConfig) *SupabaseGateway {
	return &SupabaseGateway{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		anonKey: cfg.AnonKey,
		bucket:  cfg.Bucket,
		table:   cfg.Table,
		client: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
	}
}

func (g *SupabaseGateway) authHeaders(req *http.Request) {
	req.Header.Set("apikey", g.anonKey)
	req.Header.Set("Authorization", "Bearer "+g.anonKey)
}

// objectName builds a remote name that cannot collide across concurrent
// uploads: millisecond timestamp plus a uuid fragment plus the original
// file name.
func objectName(localPath string) string {
	return fmt.Sprintf("%d_%s_%s",
		time.Now().UnixMilli(),
		uuid.NewString()[:8],
		filepath.Base(localPath),
	)
}

func (g *SupabaseGateway) UploadBlob(ctx context.Context, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", &UploadError{Path: localPath, Err: err}
	}

	name := objectName(localPath)
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", g.baseURL, g.bucket, url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", &UploadError{Path: localPath, Err: err}
	}
	g.authHeaders(req)
	req.Header.Set("Content-Type", "application/octet-stream")
	// Never overwrite an existing object.
	req.Header.Set("x-upsert", "false")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &UploadError{Path: localPath, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &UploadError{
			Path:   localPath,
			Status: resp.StatusCode,
			Fatal:  resp.StatusCode == http.StatusRequestEntityTooLarge,
			Err:    fmt.Errorf("storage returned %s: %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}

	publicURL := fmt.Sprintf("%s/storage/v1/object/public/%s/%s", g.baseURL, g.bucket, url.PathEscape(name))

	logger.Log.Debug("Uploaded photo",
		zap.String("path", localPath),
		zap.String("url", publicURL),
	)

	return publicURL, nil
}

// insertResponse is the representation PostgREST returns for the new row.
type insertResponse struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

func (g *SupabaseGateway) InsertRecord(ctx context.Context, payload *Payload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &InsertError{Err: err}
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", g.baseURL, g.table)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &InsertError{Err: err}
	}
	g.authHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &InsertError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &InsertError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("rest returned %s: %s", resp.Status, strings.TrimSpace(string(respBody))),
		}
	}

	var rows []insertResponse
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return "", &InsertError{Err: fmt.Errorf("failed to decode representation: %w", err)}
	}
	if len(rows) == 0 || rows[0].ID == "" {
		return "", &InsertError{Err: fmt.Errorf("representation missing id")}
	}

	return rows[0].ID, nil
}

func (g *SupabaseGateway) DeleteBlob(ctx context.Context, blobURL string) {
	name := blobURL[strings.LastIndex(blobURL, "/")+1:]
	if name == "" {
		logger.Log.Warn("Cannot delete blob, no object name in URL", zap.String("url", blobURL))
		return
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", g.baseURL, g.bucket, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		logger.Log.Warn("Failed to build blob delete request", zap.Error(err))
		return
	}
	g.authHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		logger.Log.Warn("Failed to delete blob", zap.String("url", blobURL), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Log.Warn("Blob delete rejected",
			zap.String("url", blobURL),
			zap.Int("status", resp.StatusCode),
		)
		return
	}

	logger.Log.Debug("Deleted blob", zap.String("url", blobURL))
}
