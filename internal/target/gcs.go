package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	gcsstorage "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

type gcsTarget struct {
	client     *gcsstorage.Client
	name       string
	bucket     string
	prefix     string
	kmsKeyName string
}

// newGCSTarget uses Application Default Credentials.
func newGCSTarget(cfg Config) (Target, error) {
	client, err := gcsstorage.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return &gcsTarget{
		client:     client,
		name:       cfg.Name,
		bucket:     cfg.Bucket,
		prefix:     normalizePrefix(cfg.Prefix),
		kmsKeyName: cfg.KMSKeyID,
	}, nil
}

func (t *gcsTarget) Name() string { return t.name }

func (t *gcsTarget) object(key string) *gcsstorage.ObjectHandle {
	return t.client.Bucket(t.bucket).Object(t.prefix + key)
}

func (t *gcsTarget) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) error {
	w := t.object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.Metadata = opts.Metadata
	w.KMSKeyName = t.kmsKeyName
	if opts.KMSKeyID != "" {
		w.KMSKeyName = opts.KMSKeyID
	}

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write gs://%s/%s%s: %w", t.bucket, t.prefix, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs write gs://%s/%s%s: %w", t.bucket, t.prefix, key, err)
	}
	return nil
}

func (t *gcsTarget) Get(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	r, err := t.object(key).NewReader(ctx)
	if err != nil {
		if isGCSNotFound(err) {
			return nil, ObjectMeta{}, ErrNotFound
		}
		return nil, ObjectMeta{}, fmt.Errorf("gcs read gs://%s/%s%s: %w", t.bucket, t.prefix, key, err)
	}
	return r, ObjectMeta{
		Size:        r.Attrs.Size,
		ContentType: r.Attrs.ContentType,
	}, nil
}

func (t *gcsTarget) Head(ctx context.Context, key string) (ObjectMeta, error) {
	attrs, err := t.object(key).Attrs(ctx)
	if err != nil {
		if isGCSNotFound(err) {
			return ObjectMeta{}, ErrNotFound
		}
		return ObjectMeta{}, fmt.Errorf("gcs attrs gs://%s/%s%s: %w", t.bucket, t.prefix, key, err)
	}
	return ObjectMeta{ETag: attrs.Etag, Size: attrs.Size, ContentType: attrs.ContentType}, nil
}

func (t *gcsTarget) Delete(ctx context.Context, key string) error {
	if err := t.object(key).Delete(ctx); err != nil && !isGCSNotFound(err) {
		return fmt.Errorf("gcs delete gs://%s/%s%s: %w", t.bucket, t.prefix, key, err)
	}
	return nil
}

func (t *gcsTarget) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := t.client.Bucket(t.bucket).Objects(ctx, &gcsstorage.Query{Prefix: t.prefix + prefix})

	var out []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list gs://%s/%s%s: %w", t.bucket, t.prefix, prefix, err)
		}
		out = append(out, ObjectInfo{
			Key:  strings.TrimPrefix(attrs.Name, t.prefix),
			Size: attrs.Size,
			ETag: attrs.Etag,
		})
	}
}

func isGCSNotFound(err error) bool {
	if errors.Is(err, gcsstorage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
