// Package xldeploy is a JSON/HTTP client for the deployment server's remote
// API: the repository, task, deployment and package services.
package xldeploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultURL            = "http://localhost:4516"
	defaultMaxRetries     = 3
	defaultTimeoutSeconds = 30
	apiContext            = "/deployit"
)

// ClientConfig holds configuration for constructing a new Client.
type ClientConfig struct {
	URL            string
	Username       string
	Password       string
	MaxRetries     int
	TimeoutSeconds int
}

// Client talks to a single deployment server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	maxRetries int
}

// NewClient creates a new client from the given configuration.
func NewClient(cfg ClientConfig) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}

	timeoutSec := cfg.TimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = defaultTimeoutSeconds
	}

	baseURL := defaultURL
	if cfg.URL != "" {
		baseURL = strings.TrimSuffix(cfg.URL, "/")
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
		baseURL:    baseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		maxRetries: maxRetries,
	}
}

// URL returns the server base URL the client is configured for.
func (c *Client) URL() string {
	return c.baseURL
}

// do performs a JSON request. body is JSON-encoded (nil for no body) and the
// response is decoded into result (nil to discard it).
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("xldeploy: marshal request body: %w", err)
		}
	}

	buildBody := func() (io.Reader, string, error) {
		if encoded == nil {
			return nil, "", nil
		}
		return bytes.NewReader(encoded), "application/json", nil
	}

	return c.send(ctx, method, path, buildBody, result)
}

// send runs the request with retries. buildBody is called on every attempt so
// that streaming bodies (multipart uploads) can be rebuilt.
func (c *Client) send(ctx context.Context, method, path string, buildBody func() (io.Reader, string, error), result interface{}) error {
	reqURL := c.baseURL + apiContext + path

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s, ...
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		bodyReader, contentType, err := buildBody()
		if err != nil {
			return fmt.Errorf("xldeploy: build request body: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if err != nil {
			return fmt.Errorf("xldeploy: create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("xldeploy: request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("xldeploy: read response body: %w", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if result != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, result); err != nil {
					return fmt.Errorf("xldeploy: decode response: %w", err)
				}
			}
			return nil
		}

		apiErr := parseAPIError(resp.StatusCode, respBody)

		// Retry on 429 (rate limit) and 5xx (server errors).
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}

		return apiErr
	}

	if lastErr != nil {
		return fmt.Errorf("xldeploy: request failed after %d retries: %w", c.maxRetries, lastErr)
	}
	return fmt.Errorf("xldeploy: request failed after %d retries", c.maxRetries)
}

// parseAPIError builds an APIError from a response body. The server answers
// with either a JSON object carrying "message" or a plain-text stack summary.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var structured struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &structured) == nil {
		switch {
		case structured.Message != "":
			apiErr.Message = structured.Message
			return apiErr
		case structured.Error != "":
			apiErr.Message = structured.Error
			return apiErr
		}
	}

	msg := strings.TrimSpace(string(body))
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	apiErr.Message = msg
	return apiErr
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// idPath escapes every segment of a repository ID while keeping the slashes,
// e.g. "Environments/Dev Env" -> "Environments/Dev%20Env".
func idPath(id string) string {
	segments := strings.Split(strings.Trim(id, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
