package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// GCS is a Store backed by a Google Cloud Storage bucket. It assumes
// Application Default Credentials are configured.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a Store over the given bucket.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Get downloads the object's full content.
func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object reader %q: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return data, nil
}

// Delete removes the object.
func (g *GCS) Delete(ctx context.Context, key string) error {
	if err := g.client.Bucket(g.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

// SignedUploadURL issues a V4 signed PUT URL for a client-direct upload.
func (g *GCS) SignedUploadURL(key, contentType string, expires time.Duration) (string, error) {
	url, err := g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		Expires:     time.Now().Add(expires),
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("sign upload URL for %q: %w", key, err)
	}
	return url, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

var _ Store = (*GCS)(nil)
