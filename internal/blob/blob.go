// Package blob abstracts the object store that uploaded CSV files live in.
package blob

import (
	"context"
	"fmt"
	"time"

	"ledgerly/internal/uuid"
)

// Store is the pipeline's view of the object store. Clients upload directly
// via pre-signed URLs; the pipeline only ever reads and deletes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// SignedUploadURL issues a PUT URL for a client-direct upload of key.
	SignedUploadURL(key, contentType string, expires time.Duration) (string, error)
}

// UploadKey generates a unique per-owner object key for a new upload.
func UploadKey(userID, filename string) string {
	return fmt.Sprintf("imports/%s/%s/%s", userID, uuid.New(), filename)
}
