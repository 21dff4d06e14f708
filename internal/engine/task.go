package engine

import (
	"context"
	"fmt"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/report"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/taskformat"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// SkipAllSteps marks every step of the task as skipped.
func (e *Engine) SkipAllSteps(ctx context.Context, taskID string) error {
	ts, err := e.svc.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	steps := make([]int, ts.NrSteps)
	for i := range steps {
		steps[i] = i + 1
	}
	return e.svc.Tasks.Skip(ctx, taskID, steps)
}

// ExecuteAndArchiveTask starts the task, waits until it no longer makes
// progress on its own, logs the outcome and archives it. The returned state
// is one of the passive-after-executing states. When the task ended STOPPED
// or FAILED a *TaskStoppedError is returned and the task is left unarchived
// so that it can be retried or cancelled.
func (e *Engine) ExecuteAndArchiveTask(ctx context.Context, taskID string) (xldeploy.TaskExecutionState, error) {
	state, _, err := e.execute(ctx, taskID, nil)
	return state, err
}

// execute implements ExecuteAndArchiveTask. When snapshot is non-nil it is
// filled with a report of the finished task before the task is archived.
func (e *Engine) execute(ctx context.Context, taskID string, snapshot *report.Report) (xldeploy.TaskExecutionState, *report.Report, error) {
	e.header(ctx, "Task execution plan")
	if err := e.LogTaskState(ctx, taskID); err != nil {
		return "", nil, err
	}

	e.header(ctx, "Task execution progress")
	if err := e.svc.Tasks.Start(ctx, taskID); err != nil {
		return "", nil, err
	}

	ts, err := e.svc.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return "", nil, err
	}
	// Steps are numbered from 1; a step is logged once, after the poll that
	// first reports it as current.
	lastLogged := 0
	for !ts.State.IsPassiveAfterExecuting() {
		if err := sleep(ctx, e.pollInterval); err != nil {
			return ts.State, nil, fmt.Errorf("waiting for task %s: %w", taskID, err)
		}
		e.log.Debug(ctx, "Waiting for task to be done...", map[string]interface{}{"task_id": taskID})

		if ts, err = e.svc.Tasks.GetTask(ctx, taskID); err != nil {
			return "", nil, err
		}
		if ts.CurrentStep > lastLogged {
			if err := e.LogStepState(ctx, taskID, ts.CurrentStep); err != nil {
				return ts.State, nil, err
			}
			lastLogged = ts.CurrentStep
		}
	}

	e.header(ctx, "Task execution result")
	if err := e.LogTaskState(ctx, taskID); err != nil {
		return ts.State, nil, err
	}

	var rep *report.Report
	if snapshot != nil {
		if rep, err = e.fillReport(ctx, taskID, snapshot); err != nil {
			return ts.State, nil, err
		}
	}

	if err := e.svc.Tasks.Archive(ctx, taskID); err != nil {
		return ts.State, rep, err
	}
	e.log.Info(ctx, taskformat.Summary(ts), map[string]interface{}{"task_id": taskID, "state": string(ts.State)})
	return ts.State, rep, nil
}

// LogTaskState logs the task and each of its steps. It returns a
// *TaskStoppedError when the task is STOPPED or FAILED; ExecuteAndArchiveTask
// leaves such tasks unarchived, FAILED ones included.
func (e *Engine) LogTaskState(ctx context.Context, taskID string) error {
	ts, err := e.svc.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	for _, line := range taskformat.TaskLines(taskID, ts) {
		e.log.Info(ctx, line)
	}
	for i := 1; i <= ts.NrSteps; i++ {
		if err := e.LogStepState(ctx, taskID, i); err != nil {
			return err
		}
	}

	if ts.State == xldeploy.TaskStopped || ts.State == xldeploy.TaskFailed {
		return &TaskStoppedError{TaskID: taskID, State: ts.State}
	}
	return nil
}

// LogStepState logs a single step, numbered from 1.
func (e *Engine) LogStepState(ctx context.Context, taskID string, stepNr int) error {
	step, err := e.svc.Tasks.GetStep(ctx, taskID, stepNr)
	if err != nil {
		return err
	}
	e.log.Info(ctx, taskformat.StepLine(taskID, stepNr, step))
	return nil
}

// TaskReport captures the current state of a task and its steps. The task
// must not be archived yet.
func (e *Engine) TaskReport(ctx context.Context, taskID string) (*report.Report, error) {
	return e.fillReport(ctx, taskID, &report.Report{})
}

func (e *Engine) fillReport(ctx context.Context, taskID string, rep *report.Report) (*report.Report, error) {
	ts, err := e.svc.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	rep.SchemaVersion = report.SchemaVersion
	rep.TaskID = taskID
	rep.Description = ts.Description
	rep.State = string(ts.State)
	rep.Owner = ts.Owner
	rep.StartedAt = ts.StartDate
	rep.CompletedAt = ts.CompletionDate
	rep.CurrentStep = ts.CurrentStep
	rep.Steps = make([]report.Step, 0, ts.NrSteps)

	for i := 1; i <= ts.NrSteps; i++ {
		step, err := e.svc.Tasks.GetStep(ctx, taskID, i)
		if err != nil {
			return nil, err
		}
		rep.Steps = append(rep.Steps, report.Step{
			Number:       i,
			Description:  step.Description,
			State:        step.State,
			FailureCount: step.FailureCount,
			Log:          step.Log,
		})
	}
	return rep, nil
}

func (e *Engine) header(ctx context.Context, title string) {
	for _, line := range taskformat.TaskHeader(title) {
		e.log.Info(ctx, line)
	}
}
