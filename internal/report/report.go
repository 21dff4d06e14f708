// Package report captures the outcome of a deployment task as a document that
// can be archived next to the build that produced it.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SchemaVersion is written into every report.
const SchemaVersion = 1

// Supported encodings.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Report is a snapshot of a task and its steps.
type Report struct {
	SchemaVersion int        `json:"schema_version" yaml:"schema_version"`
	RunID         string     `json:"run_id" yaml:"run_id"`
	TaskID        string     `json:"task_id" yaml:"task_id"`
	Description   string     `json:"description" yaml:"description"`
	State         string     `json:"state" yaml:"state"`
	Owner         string     `json:"owner,omitempty" yaml:"owner,omitempty"`
	Application   string     `json:"application,omitempty" yaml:"application,omitempty"`
	Version       string     `json:"version,omitempty" yaml:"version,omitempty"`
	Environment   string     `json:"environment,omitempty" yaml:"environment,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	CurrentStep   int        `json:"current_step" yaml:"current_step"`
	Steps         []Step     `json:"steps" yaml:"steps"`
}

// Step is one step of the task, numbered from 1.
type Step struct {
	Number       int    `json:"number" yaml:"number"`
	Description  string `json:"description" yaml:"description"`
	State        string `json:"state" yaml:"state"`
	FailureCount int    `json:"failure_count,omitempty" yaml:"failure_count,omitempty"`
	Log          string `json:"log,omitempty" yaml:"log,omitempty"`
}

// Marshal encodes r in the given format. JSON output is indented and ends
// with a newline, so identical reports produce identical bytes.
func Marshal(r *Report, format string) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("report: cannot marshal nil report")
	}
	switch normalizeFormat(format) {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("report: marshal json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("report: marshal yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("report: marshal yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("report: unsupported format %q", format)
	}
}

// Unmarshal decodes a report encoded with Marshal.
func Unmarshal(data []byte, format string) (*Report, error) {
	var r Report
	var err error
	switch normalizeFormat(format) {
	case FormatJSON:
		err = json.Unmarshal(data, &r)
	case FormatYAML:
		err = yaml.Unmarshal(data, &r)
	default:
		return nil, fmt.Errorf("report: unsupported format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("report: unmarshal %s: %w", format, err)
	}
	return &r, nil
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	if normalizeFormat(format) == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Failed returns the steps that did not complete successfully.
func (r *Report) Failed() []Step {
	var out []Step
	for _, s := range r.Steps {
		if s.State == "FAILED" || s.FailureCount > 0 {
			out = append(out, s)
		}
	}
	return out
}

func normalizeFormat(f string) string {
	switch f = strings.ToLower(f); f {
	case "", FormatJSON:
		return FormatJSON
	case "yml":
		return FormatYAML
	default:
		return f
	}
}
