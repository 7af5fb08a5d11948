package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// UploadError reports a failed blob transfer. Fatal marks states no retry
// can fix for this file (payload too large, bucket gone); everything else
// is retried on a later pass.
type UploadError struct {
	Path   string
	Status int
	Fatal  bool
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed (status %d): %v", e.Path, e.Status, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// InsertError reports a failed remote metadata write. Always recoverable:
// the record stays unsynced and is retried on the next pass.
type InsertError struct {
	Status int
	Err    error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("insert failed (status %d): %v", e.Status, e.Err)
}

func (e *InsertError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err looks like a connectivity problem
// (timeout, DNS, unreachable host). Only affects logging verbosity; both
// network and non-network recoverable errors take the same retry path.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsFatalUpload reports whether err is an upload failure that should fail
// the record for the current pass instead of syncing without the photo.
func IsFatalUpload(err error) bool {
	var upErr *UploadError
	return errors.As(err, &upErr) && upErr.Fatal
}
