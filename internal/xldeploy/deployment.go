package xldeploy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// PrepareInitial prepares the first deployment of an application version to
// an environment.
func (c *Client) PrepareInitial(ctx context.Context, versionID, environmentID string) (*Deployment, error) {
	q := url.Values{}
	q.Set("version", versionID)
	q.Set("environment", environmentID)

	var d Deployment
	if err := c.do(ctx, http.MethodGet, "/deployment/prepare/initial?"+q.Encode(), nil, &d); err != nil {
		return nil, fmt.Errorf("prepare initial deployment of %q to %q: %w", versionID, environmentID, err)
	}
	return &d, nil
}

// PrepareUpdate prepares an upgrade of an already deployed application.
func (c *Client) PrepareUpdate(ctx context.Context, versionID, deployedApplicationID string) (*Deployment, error) {
	q := url.Values{}
	q.Set("version", versionID)
	q.Set("deployedApplication", deployedApplicationID)

	var d Deployment
	if err := c.do(ctx, http.MethodGet, "/deployment/prepare/update?"+q.Encode(), nil, &d); err != nil {
		return nil, fmt.Errorf("prepare update of %q to %q: %w", deployedApplicationID, versionID, err)
	}
	return &d, nil
}

// PrepareUndeploy prepares the removal of a deployed application.
func (c *Client) PrepareUndeploy(ctx context.Context, deployedApplicationID string) (*Deployment, error) {
	q := url.Values{}
	q.Set("deployedApplication", deployedApplicationID)

	var d Deployment
	if err := c.do(ctx, http.MethodGet, "/deployment/prepare/undeploy?"+q.Encode(), nil, &d); err != nil {
		return nil, fmt.Errorf("prepare undeploy of %q: %w", deployedApplicationID, err)
	}
	return &d, nil
}

// PrepareAutoDeployeds lets the server generate the deployeds for every
// deployable/container pair of the deployment.
func (c *Client) PrepareAutoDeployeds(ctx context.Context, d *Deployment) (*Deployment, error) {
	var out Deployment
	if err := c.do(ctx, http.MethodPost, "/deployment/prepare/deployeds", d, &out); err != nil {
		return nil, fmt.Errorf("generate deployeds: %w", err)
	}
	return &out, nil
}

// Validate asks the server to validate the deployment. Validation problems do
// not fail the call; they come back attached to the deployeds.
func (c *Client) Validate(ctx context.Context, d *Deployment) (*Deployment, error) {
	var out Deployment
	if err := c.do(ctx, http.MethodPost, "/deployment/validate", d, &out); err != nil {
		return nil, fmt.Errorf("validate deployment: %w", err)
	}
	return &out, nil
}

// CreateTask turns a prepared deployment into a task and returns its ID.
func (c *Client) CreateTask(ctx context.Context, d *Deployment) (string, error) {
	var taskID string
	if err := c.do(ctx, http.MethodPost, "/deployment", d, &taskID); err != nil {
		return "", fmt.Errorf("create deployment task: %w", err)
	}
	if taskID == "" {
		return "", fmt.Errorf("create deployment task: server returned an empty task id")
	}
	return taskID, nil
}

// ImportPackage uploads a .dar archive from local disk and returns the
// imported application version.
func (c *Client) ImportPackage(ctx context.Context, darPath string) (*ConfigurationItem, error) {
	fileName := filepath.Base(darPath)

	buildBody := func() (io.Reader, string, error) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)

		part, err := writer.CreateFormFile("fileData", fileName)
		if err != nil {
			return nil, "", fmt.Errorf("create form file %q: %w", fileName, err)
		}

		f, err := os.Open(darPath)
		if err != nil {
			return nil, "", fmt.Errorf("open package %q: %w", darPath, err)
		}
		defer f.Close()

		if _, err := io.Copy(part, f); err != nil {
			return nil, "", fmt.Errorf("copy package %q: %w", darPath, err)
		}

		if err := writer.Close(); err != nil {
			return nil, "", fmt.Errorf("close multipart writer: %w", err)
		}

		return &buf, writer.FormDataContentType(), nil
	}

	var ci ConfigurationItem
	if err := c.send(ctx, http.MethodPost, "/package/upload/"+url.PathEscape(fileName), buildBody, &ci); err != nil {
		return nil, fmt.Errorf("import package %q: %w", fileName, err)
	}
	return &ci, nil
}
