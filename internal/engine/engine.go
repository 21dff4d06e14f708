// Package engine drives a deployment server through the lifecycle of an
// application: creating environments, importing packages, validating and
// executing deployment tasks, and reporting on them.
package engine

import (
	"context"
	"time"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/logging"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// DefaultPollInterval is how long ExecuteAndArchiveTask waits between two
// task status checks.
const DefaultPollInterval = 1000 * time.Millisecond

// Repository reads and writes configuration items.
type Repository interface {
	Exists(ctx context.Context, id string) (bool, error)
	Read(ctx context.Context, id string) (*xldeploy.ConfigurationItem, error)
	Create(ctx context.Context, id string, ci *xldeploy.ConfigurationItem) (*xldeploy.ConfigurationItem, error)
	Delete(ctx context.Context, id string) error
}

// Tasks controls task execution.
type Tasks interface {
	Start(ctx context.Context, taskID string) error
	Archive(ctx context.Context, taskID string) error
	Cancel(ctx context.Context, taskID string) error
	Skip(ctx context.Context, taskID string, steps []int) error
	GetTask(ctx context.Context, taskID string) (*xldeploy.TaskState, error)
	GetStep(ctx context.Context, taskID string, stepNr int) (*xldeploy.StepState, error)
}

// Deployments prepares and validates deployment plans.
type Deployments interface {
	PrepareInitial(ctx context.Context, versionID, environmentID string) (*xldeploy.Deployment, error)
	PrepareUpdate(ctx context.Context, versionID, deployedApplicationID string) (*xldeploy.Deployment, error)
	PrepareUndeploy(ctx context.Context, deployedApplicationID string) (*xldeploy.Deployment, error)
	PrepareAutoDeployeds(ctx context.Context, d *xldeploy.Deployment) (*xldeploy.Deployment, error)
	Validate(ctx context.Context, d *xldeploy.Deployment) (*xldeploy.Deployment, error)
	CreateTask(ctx context.Context, d *xldeploy.Deployment) (string, error)
}

// PackageImporter imports deployment archives.
type PackageImporter interface {
	ImportPackage(ctx context.Context, darPath string) (*xldeploy.ConfigurationItem, error)
}

// Services bundles the remote services the engine talks to.
type Services struct {
	Repository  Repository
	Tasks       Tasks
	Deployments Deployments
	Packages    PackageImporter
}

// ServicesFor exposes every service of a single client.
func ServicesFor(c *xldeploy.Client) Services {
	return Services{Repository: c, Tasks: c, Deployments: c, Packages: c}
}

// Options tunes the engine.
type Options struct {
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
}

// Engine runs deployment operations against a server. It is safe for
// concurrent use as long as the underlying services are.
type Engine struct {
	svc          Services
	log          logging.Logger
	pollInterval time.Duration
}

// New returns an Engine. A nil logger discards output.
func New(svc Services, log logging.Logger, opts Options) *Engine {
	if log == nil {
		log = logging.Discard{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Engine{svc: svc, log: log, pollInterval: opts.PollInterval}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
