package xldeploy

import (
	"context"
	"fmt"
	"net/http"
)

// Exists reports whether a CI with the given ID is stored in the repository.
func (c *Client) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := c.do(ctx, http.MethodGet, "/repository/exists/"+idPath(id), nil, &exists); err != nil {
		return false, fmt.Errorf("check existence of %q: %w", id, err)
	}
	return exists, nil
}

// Read retrieves a CI by its ID.
func (c *Client) Read(ctx context.Context, id string) (*ConfigurationItem, error) {
	var ci ConfigurationItem
	if err := c.do(ctx, http.MethodGet, "/repository/ci/"+idPath(id), nil, &ci); err != nil {
		return nil, fmt.Errorf("read %q: %w", id, err)
	}
	return &ci, nil
}

// Create stores a new CI under the given ID and returns the stored object.
func (c *Client) Create(ctx context.Context, id string, ci *ConfigurationItem) (*ConfigurationItem, error) {
	var created ConfigurationItem
	if err := c.do(ctx, http.MethodPost, "/repository/ci/"+idPath(id), ci, &created); err != nil {
		return nil, fmt.Errorf("create %q: %w", id, err)
	}
	return &created, nil
}

// Update overwrites an existing CI.
func (c *Client) Update(ctx context.Context, id string, ci *ConfigurationItem) (*ConfigurationItem, error) {
	var updated ConfigurationItem
	if err := c.do(ctx, http.MethodPut, "/repository/ci/"+idPath(id), ci, &updated); err != nil {
		return nil, fmt.Errorf("update %q: %w", id, err)
	}
	return &updated, nil
}

// Delete removes a CI from the repository.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/repository/ci/"+idPath(id), nil, nil); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	return nil
}
