package engine

import (
	"fmt"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// DeploymentValidationError is returned when the server attached validation
// messages to the deployeds of a deployment.
type DeploymentValidationError struct {
	Messages []xldeploy.ValidationMessage
}

func (e *DeploymentValidationError) Error() string {
	return fmt.Sprintf("Deployment contains %d validation messages, see above", len(e.Messages))
}

// EnvironmentAlreadyExistsError is returned by CreateEnvironment when the
// environment is already stored in the repository.
type EnvironmentAlreadyExistsError struct {
	ID string
}

func (e *EnvironmentAlreadyExistsError) Error() string {
	return fmt.Sprintf("Can not create environment [%s] because it already exists.", e.ID)
}

// TaskStoppedError is returned when a task ended in an error state and waits
// for the user to retry or cancel it. When cancellation on error was
// requested, Cancelled or CancelErr records how it went.
type TaskStoppedError struct {
	TaskID    string
	State     xldeploy.TaskExecutionState
	Cancelled bool
	CancelErr error
}

func (e *TaskStoppedError) Error() string {
	return fmt.Sprintf("Errors when executing task %s", e.TaskID)
}
