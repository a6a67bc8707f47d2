package storage

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
)

// GCSMirror uploads to a Google Cloud Storage bucket using Application
// Default Credentials.
type GCSMirror struct {
	client *gcs.Client
	bucket string
	prefix string
}

func NewGCSMirror(ctx context.Context, bucket, prefix string) (*GCSMirror, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSMirror{client: client, bucket: bucket, prefix: prefix}, nil
}

func (m *GCSMirror) Name() string { return "gcs" }

func (m *GCSMirror) Save(ctx context.Context, name string, data []byte) error {
	key := objectKey(m.prefix, name)
	w := m.client.Bucket(m.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType(data)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", key, err)
	}
	return nil
}

// Close releases the client.
func (m *GCSMirror) Close() error {
	return m.client.Close()
}
