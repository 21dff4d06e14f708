// Package target stores and retrieves objects in cloud object storage. It is
// used to fetch .dar packages published by a build pipeline and to archive
// task execution reports.
package target

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Get and Head when the key does not exist.
var ErrNotFound = errors.New("object not found")

// PutOptions controls optional behavior for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	KMSKeyID    string
}

// ObjectMeta describes a stored object.
type ObjectMeta struct {
	ETag        string
	Size        int64
	ContentType string
}

// ObjectInfo is a single entry returned from List.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// Target is a bucket-like store addressed by slash-separated keys. Keys are
// relative to the target's configured prefix.
type Target interface {
	// Put writes an object, replacing any existing one.
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error
	// Get opens an object for reading. Returns ErrNotFound if the key does not
	// exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error)
	// Head returns object metadata without the body.
	Head(ctx context.Context, key string) (ObjectMeta, error)
	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the objects under prefix sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Name identifies the target in logs and diagnostics.
	Name() string
}

// Config describes one provider `target` block.
type Config struct {
	Name           string
	Type           string // "s3", "azure", "gcs", "memory"
	Bucket         string
	Region         string
	Prefix         string
	StorageAccount string
	ContainerName  string
	KMSKeyID       string
	MaxRetries     int
	RetryBackoff   string // "exponential" | "linear"
}

// backends maps a cloud target type to its constructor.
var backends = map[string]func(Config) (Target, error){
	"s3":    newS3Target,
	"gcs":   newGCSTarget,
	"azure": newAzureTarget,
}

// NewTarget builds the backend named by cfg.Type. Cloud backends are wrapped
// in a RetryTarget when cfg.MaxRetries is positive; memory targets are shared
// by name.
func NewTarget(cfg Config) (Target, error) {
	if cfg.Type == "memory" {
		return GetOrCreateMemoryTarget(cfg.Name), nil
	}
	newBackend, ok := backends[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported target type %q (must be s3, gcs, azure or memory)", cfg.Type)
	}
	t, err := newBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s target %q: %w", cfg.Type, cfg.Name, err)
	}
	if cfg.MaxRetries > 0 {
		t = NewRetryTarget(t, cfg.MaxRetries, cfg.RetryBackoff)
	}
	return t, nil
}

func normalizePrefix(p string) string {
	if p != "" && p[len(p)-1] != '/' {
		p += "/"
	}
	return p
}
