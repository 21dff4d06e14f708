package xldeploy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

func taskPath(taskID string) string {
	return "/tasks/v2/" + url.PathEscape(taskID)
}

// Start starts (or resumes) a task.
func (c *Client) Start(ctx context.Context, taskID string) error {
	if err := c.do(ctx, http.MethodPost, taskPath(taskID)+"/start", nil, nil); err != nil {
		return fmt.Errorf("start task %q: %w", taskID, err)
	}
	return nil
}

// Archive moves an executed task to the archive.
func (c *Client) Archive(ctx context.Context, taskID string) error {
	if err := c.do(ctx, http.MethodPost, taskPath(taskID)+"/archive", nil, nil); err != nil {
		return fmt.Errorf("archive task %q: %w", taskID, err)
	}
	return nil
}

// Cancel cancels a task that is not executing.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	if err := c.do(ctx, http.MethodDelete, taskPath(taskID), nil, nil); err != nil {
		return fmt.Errorf("cancel task %q: %w", taskID, err)
	}
	return nil
}

// Skip marks the given step numbers (1-based) as skipped.
func (c *Client) Skip(ctx context.Context, taskID string, steps []int) error {
	path := "/task/" + url.PathEscape(taskID) + "/skip"
	if steps == nil {
		steps = []int{}
	}
	if err := c.do(ctx, http.MethodPost, path, steps, nil); err != nil {
		return fmt.Errorf("skip %d step(s) of task %q: %w", len(steps), taskID, err)
	}
	return nil
}

// GetTask retrieves the current state of a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*TaskState, error) {
	var ts TaskState
	if err := c.do(ctx, http.MethodGet, taskPath(taskID), nil, &ts); err != nil {
		return nil, fmt.Errorf("get task %q: %w", taskID, err)
	}
	if ts.ID == "" {
		ts.ID = taskID
	}
	return &ts, nil
}

// GetStep retrieves the state of a single step of a task.
func (c *Client) GetStep(ctx context.Context, taskID string, stepNr int) (*StepState, error) {
	path := "/task/" + url.PathEscape(taskID) + "/step/" + strconv.Itoa(stepNr)
	var ss StepState
	if err := c.do(ctx, http.MethodGet, path, nil, &ss); err != nil {
		return nil, fmt.Errorf("get step %d of task %q: %w", stepNr, taskID, err)
	}
	return &ss, nil
}
