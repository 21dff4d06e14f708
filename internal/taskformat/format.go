// Package taskformat renders the human-readable lines logged while a
// deployment task is inspected and executed. The layout mirrors the server's
// own CLI output: one line per fact, prefixed with the task ID.
package taskformat

import (
	"fmt"
	"strings"
	"time"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// DateLayout is used for task start and completion timestamps.
const DateLayout = "2006/01/02 15:04:05"

const rule = "-----------------------"

// TaskHeader returns the three-line banner that separates the execution phases,
// e.g. "Task execution plan: ".
func TaskHeader(title string) []string {
	return []string{rule, title + ": ", rule}
}

// DescriptionLine renders the task description.
func DescriptionLine(taskID string, ts *xldeploy.TaskState) string {
	return fmt.Sprintf("%s Description    %s", taskID, ts.Description)
}

// StateLine renders the state and progress of a task.
func StateLine(taskID string, ts *xldeploy.TaskState) string {
	return fmt.Sprintf("%s State          %s %d/%d", taskID, ts.State, ts.CurrentStep, ts.NrSteps)
}

// StartLine renders the task start date. ok is false when the task has not
// started yet.
func StartLine(taskID string, ts *xldeploy.TaskState) (line string, ok bool) {
	if ts.StartDate == nil {
		return "", false
	}
	return fmt.Sprintf("%s Start      %s", taskID, formatDate(*ts.StartDate)), true
}

// CompletionLine renders the task completion date. ok is false when the task
// has not completed yet.
func CompletionLine(taskID string, ts *xldeploy.TaskState) (line string, ok bool) {
	if ts.CompletionDate == nil {
		return "", false
	}
	return fmt.Sprintf("%s Completion %s", taskID, formatDate(*ts.CompletionDate)), true
}

// TaskLines returns every task-level line in logging order.
func TaskLines(taskID string, ts *xldeploy.TaskState) []string {
	lines := []string{DescriptionLine(taskID, ts), StateLine(taskID, ts)}
	if l, ok := StartLine(taskID, ts); ok {
		lines = append(lines, l)
	}
	if l, ok := CompletionLine(taskID, ts); ok {
		lines = append(lines, l)
	}
	return lines
}

// StepLine renders a single step. The step log is appended on its own line
// unless it is empty or just repeats the description.
func StepLine(taskID string, stepNr int, step *xldeploy.StepState) string {
	if step.Log == "" || step.Log == step.Description {
		return fmt.Sprintf("%s step #%d %s\t%s", taskID, stepNr, step.State, step.Description)
	}
	return fmt.Sprintf("%s step #%d %s\t%s\n%s", taskID, stepNr, step.State, step.Description, step.Log)
}

// ValidationLine renders a validation message attached to a deployed.
func ValidationLine(msg xldeploy.ValidationMessage) string {
	level := msg.Level
	if level == "" {
		level = "ERROR"
	}
	return fmt.Sprintf("[%s] %s", level, msg.String())
}

// MemberLine renders an environment member.
func MemberLine(memberID string) string {
	return fmt.Sprintf(" Member: %s ", memberID)
}

// Summary returns a single-line summary of a task.
func Summary(ts *xldeploy.TaskState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "task %s: %s (%d/%d steps)", ts.ID, ts.State, ts.CurrentStep, ts.NrSteps)
	if ts.StartDate != nil && ts.CompletionDate != nil {
		fmt.Fprintf(&b, " in %s", ts.CompletionDate.Sub(*ts.StartDate).Round(time.Second))
	}
	return b.String()
}

func formatDate(t time.Time) string {
	return t.Local().Format(DateLayout)
}
