package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/report"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/runid"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/taskformat"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// ValidateDeployment asks the server to validate d. Every validation message
// attached to a deployed is logged; if there is at least one a
// *DeploymentValidationError is returned.
func (e *Engine) ValidateDeployment(ctx context.Context, d *xldeploy.Deployment) (*xldeploy.Deployment, error) {
	validated, err := e.svc.Deployments.Validate(ctx, d)
	if err != nil {
		return nil, err
	}

	var msgs []xldeploy.ValidationMessage
	for _, deployed := range validated.Deployeds {
		if deployed == nil {
			continue
		}
		msgs = append(msgs, deployed.Validations...)
	}
	if len(msgs) > 0 {
		for _, m := range msgs {
			e.log.Warn(ctx, taskformat.ValidationLine(m), map[string]interface{}{"ci": m.CIID})
		}
		return nil, &DeploymentValidationError{Messages: msgs}
	}
	return validated, nil
}

// PrepareDeployment prepares an update when the application is already
// deployed to the environment and an initial deployment otherwise. With
// autoDeployeds the server generates the deployeds.
func (e *Engine) PrepareDeployment(ctx context.Context, versionID, environmentID string, autoDeployeds bool) (*xldeploy.Deployment, error) {
	deployedID, err := DeployedApplicationID(versionID, environmentID)
	if err != nil {
		return nil, err
	}
	deployed, err := e.svc.Repository.Exists(ctx, deployedID)
	if err != nil {
		return nil, err
	}

	var d *xldeploy.Deployment
	if deployed {
		e.log.Info(ctx, "Preparing update of "+deployedID+" to "+versionID)
		d, err = e.svc.Deployments.PrepareUpdate(ctx, versionID, deployedID)
	} else {
		e.log.Info(ctx, "Preparing initial deployment of "+versionID+" to "+environmentID)
		d, err = e.svc.Deployments.PrepareInitial(ctx, versionID, environmentID)
	}
	if err != nil {
		return nil, err
	}

	if autoDeployeds {
		return e.svc.Deployments.PrepareAutoDeployeds(ctx, d)
	}
	return d, nil
}

// DeployRequest describes a deployment of an application version.
type DeployRequest struct {
	VersionID     string
	EnvironmentID string
	AutoDeployeds bool
	SkipAllSteps  bool
	// CancelTaskOnError cancels a task that ended STOPPED or FAILED instead
	// of leaving it for a retry.
	CancelTaskOnError bool
	// Report requests a snapshot of the task before it is archived.
	Report bool
}

// DeployResult is the outcome of Deploy.
type DeployResult struct {
	DeployedApplicationID string
	DeploymentType        xldeploy.DeploymentType
	TaskID                string
	State                 xldeploy.TaskExecutionState
	// Report is set when requested and the task reached the archive step.
	Report *report.Report
}

// Deploy prepares, validates and executes a deployment. The result is
// returned together with the error when the task was created, so callers
// can surface the task ID of a failed run.
func (e *Engine) Deploy(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	deployedID, err := DeployedApplicationID(req.VersionID, req.EnvironmentID)
	if err != nil {
		return nil, err
	}

	d, err := e.PrepareDeployment(ctx, req.VersionID, req.EnvironmentID, req.AutoDeployeds)
	if err != nil {
		return nil, err
	}
	if d, err = e.ValidateDeployment(ctx, d); err != nil {
		return nil, err
	}

	taskID, err := e.svc.Deployments.CreateTask(ctx, d)
	if err != nil {
		return nil, err
	}
	res := &DeployResult{DeployedApplicationID: deployedID, DeploymentType: d.Type, TaskID: taskID}

	if req.SkipAllSteps {
		if err := e.SkipAllSteps(ctx, taskID); err != nil {
			return res, err
		}
	}

	var snapshot *report.Report
	if req.Report {
		snapshot = &report.Report{
			RunID:       runid.New(),
			Application: applicationName(req.VersionID),
			Version:     req.VersionID,
			Environment: req.EnvironmentID,
		}
	}
	res.State, res.Report, err = e.execute(ctx, taskID, snapshot)
	if err != nil {
		e.cancelOnError(ctx, taskID, req.CancelTaskOnError, err)
		return res, err
	}
	return res, nil
}

// Undeploy removes a deployed application from its environment.
func (e *Engine) Undeploy(ctx context.Context, deployedApplicationID string, cancelOnError bool) (xldeploy.TaskExecutionState, error) {
	d, err := e.svc.Deployments.PrepareUndeploy(ctx, deployedApplicationID)
	if err != nil {
		return "", err
	}
	taskID, err := e.svc.Deployments.CreateTask(ctx, d)
	if err != nil {
		return "", err
	}
	state, err := e.ExecuteAndArchiveTask(ctx, taskID)
	if err != nil {
		e.cancelOnError(ctx, taskID, cancelOnError, err)
	}
	return state, err
}

func (e *Engine) cancelOnError(ctx context.Context, taskID string, enabled bool, err error) {
	var stopped *TaskStoppedError
	if !enabled || !errors.As(err, &stopped) {
		return
	}
	if cerr := e.svc.Tasks.Cancel(ctx, taskID); cerr != nil {
		stopped.CancelErr = cerr
		e.log.Warn(ctx, "Cancelling task failed", map[string]interface{}{"task_id": taskID, "error": cerr.Error()})
		return
	}
	stopped.Cancelled = true
	e.log.Info(ctx, "Cancelled task "+taskID, map[string]interface{}{"state": string(stopped.State)})
}

// applicationName returns the application segment of a version ID.
func applicationName(versionID string) string {
	segments := strings.Split(versionID, "/")
	if len(segments) < 2 {
		return versionID
	}
	return segments[len(segments)-2]
}
