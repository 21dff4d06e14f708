package target

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// Download copies the object at key into a new file in dir and returns the
// file's path. The file keeps the base name of the key.
func Download(ctx context.Context, t Target, key, dir string) (string, error) {
	rc, _, err := t.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get %q from target %q: %w", key, t.Name(), err)
	}
	defer rc.Close()

	dest := filepath.Join(dir, path.Base(key))
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", fmt.Errorf("download %q: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dest, nil
}

// PutBytes writes data at key.
func PutBytes(ctx context.Context, t Target, key string, data []byte, contentType string) error {
	return t.Put(ctx, key, bytes.NewReader(data), PutOptions{ContentType: contentType})
}

// ReadAll returns the full content of the object at key.
func ReadAll(ctx context.Context, t Target, key string) ([]byte, error) {
	rc, _, err := t.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
