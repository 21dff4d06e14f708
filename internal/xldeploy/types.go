package xldeploy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// ConfigurationItem is a repository object (environment, container,
// deployable, deployed, application version, ...). On the wire it is a flat
// JSON object: "id", "type" and "validation-messages" are reserved keys, every
// other key is a property.
type ConfigurationItem struct {
	ID          string
	Type        string
	Properties  map[string]interface{}
	Validations []ValidationMessage
}

const (
	keyID          = "id"
	keyType        = "type"
	keyValidations = "validation-messages"
)

// NewConfigurationItem returns an empty CI of the given type.
func NewConfigurationItem(id, ciType string) *ConfigurationItem {
	return &ConfigurationItem{
		ID:         id,
		Type:       ciType,
		Properties: make(map[string]interface{}),
	}
}

// Property returns the raw value of a property.
func (ci *ConfigurationItem) Property(name string) (interface{}, bool) {
	if ci == nil || ci.Properties == nil {
		return nil, false
	}
	v, ok := ci.Properties[name]
	return v, ok
}

// SetProperty sets a property value, allocating the map if needed.
func (ci *ConfigurationItem) SetProperty(name string, value interface{}) {
	if ci.Properties == nil {
		ci.Properties = make(map[string]interface{})
	}
	ci.Properties[name] = value
}

// StringList returns a list-of-strings property. CI references may be sent
// either as plain IDs or as {"ci": "<id>"} objects; both are accepted.
func (ci *ConfigurationItem) StringList(name string) []string {
	raw, ok := ci.Property(name)
	if !ok || raw == nil {
		return nil
	}

	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch iv := item.(type) {
			case string:
				out = append(out, iv)
			case map[string]interface{}:
				if ref, ok := iv["ci"].(string); ok {
					out = append(out, ref)
				} else if ref, ok := iv[keyID].(string); ok {
					out = append(out, ref)
				}
			default:
				out = append(out, fmt.Sprint(iv))
			}
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}

// Reference returns the ID held by a single CI-reference property. Like list
// members, it may be a plain ID or a {"ci": "<id>"} object.
func (ci *ConfigurationItem) Reference(name string) string {
	raw, ok := ci.Property(name)
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case map[string]interface{}:
		if ref, ok := v["ci"].(string); ok {
			return ref
		}
		if ref, ok := v[keyID].(string); ok {
			return ref
		}
	}
	return ""
}

// MarshalJSON flattens the CI into a single JSON object. Property keys are
// emitted in sorted order.
func (ci ConfigurationItem) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(ci.Properties))
	for k := range ci.Properties {
		if k == keyID || k == keyType || k == keyValidations {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	appendField := func(k string, v interface{}) error {
		if len(buf) > 1 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("property %q: %w", k, err)
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
		return nil
	}

	if err := appendField(keyID, ci.ID); err != nil {
		return nil, err
	}
	if err := appendField(keyType, ci.Type); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := appendField(k, ci.Properties[k]); err != nil {
			return nil, err
		}
	}
	if len(ci.Validations) > 0 {
		if err := appendField(keyValidations, ci.Validations); err != nil {
			return nil, err
		}
	}

	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (ci *ConfigurationItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*ci = ConfigurationItem{Properties: make(map[string]interface{}, len(raw))}

	for k, v := range raw {
		switch k {
		case keyID:
			if err := json.Unmarshal(v, &ci.ID); err != nil {
				return fmt.Errorf("decode id: %w", err)
			}
		case keyType:
			if err := json.Unmarshal(v, &ci.Type); err != nil {
				return fmt.Errorf("decode type: %w", err)
			}
		case keyValidations:
			if err := json.Unmarshal(v, &ci.Validations); err != nil {
				return fmt.Errorf("decode validation messages: %w", err)
			}
		default:
			var val interface{}
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("decode property %q: %w", k, err)
			}
			ci.Properties[k] = val
		}
	}
	return nil
}

// ValidationMessage is attached by the server to a deployed CI that failed
// validation.
type ValidationMessage struct {
	CIID         string `json:"ci"`
	PropertyName string `json:"property,omitempty"`
	Message      string `json:"message"`
	Level        string `json:"level,omitempty"`
}

// String renders the message the way the server's own UI does.
func (m ValidationMessage) String() string {
	if m.PropertyName != "" {
		return fmt.Sprintf("%s.%s: %s", m.CIID, m.PropertyName, m.Message)
	}
	return fmt.Sprintf("%s: %s", m.CIID, m.Message)
}

// DeploymentType distinguishes the kind of deployment being prepared.
type DeploymentType string

const (
	DeploymentInitial  DeploymentType = "INITIAL"
	DeploymentUpdate   DeploymentType = "UPDATE"
	DeploymentUndeploy DeploymentType = "UNDEPLOYMENT"
)

// Deployment is a prepared (and possibly validated) deployment plan.
type Deployment struct {
	ID                  string               `json:"id"`
	Type                DeploymentType       `json:"type"`
	Application         *ConfigurationItem   `json:"application,omitempty"`
	DeployedApplication *ConfigurationItem   `json:"deployedApplication,omitempty"`
	Deployeds           []*ConfigurationItem `json:"deployeds"`
}

// TaskExecutionState is the server-side state of a task.
type TaskExecutionState string

const (
	TaskPending    TaskExecutionState = "PENDING"
	TaskQueued     TaskExecutionState = "QUEUED"
	TaskExecuting  TaskExecutionState = "EXECUTING"
	TaskExecuted   TaskExecutionState = "EXECUTED"
	TaskStopping   TaskExecutionState = "STOPPING"
	TaskStopped    TaskExecutionState = "STOPPED"
	TaskAborting   TaskExecutionState = "ABORTING"
	TaskAborted    TaskExecutionState = "ABORTED"
	TaskFailing    TaskExecutionState = "FAILING"
	TaskFailed     TaskExecutionState = "FAILED"
	TaskCancelling TaskExecutionState = "CANCELLING"
	TaskCancelled  TaskExecutionState = "CANCELLED"
	TaskDone       TaskExecutionState = "DONE"
)

// IsPassiveAfterExecuting reports whether the task has stopped making
// progress on its own and is waiting for the client (archive, cancel, retry).
func (s TaskExecutionState) IsPassiveAfterExecuting() bool {
	switch s {
	case TaskExecuted, TaskStopped, TaskAborted, TaskFailed, TaskCancelled, TaskDone:
		return true
	default:
		return false
	}
}

// TaskState is a snapshot of a task.
type TaskState struct {
	ID             string             `json:"id"`
	Description    string             `json:"description"`
	State          TaskExecutionState `json:"state"`
	CurrentStep    int                `json:"currentStep"`
	NrSteps        int                `json:"nrSteps"`
	StartDate      *time.Time         `json:"startDate,omitempty"`
	CompletionDate *time.Time         `json:"completionDate,omitempty"`
	Owner          string             `json:"owner,omitempty"`
}

// StepState is a snapshot of a single task step.
type StepState struct {
	Description    string     `json:"description"`
	State          string     `json:"state"`
	Log            string     `json:"log,omitempty"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	CompletionDate *time.Time `json:"completionDate,omitempty"`
	FailureCount   int        `json:"failureCount"`
}

// APIError represents a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("xldeploy: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("xldeploy: HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err wraps a 404 APIError.
func IsNotFound(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}
