package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/taskformat"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// EnvironmentType is the CI type of environments created by the engine.
const EnvironmentType = "udm.Environment"

// DeployedApplicationID returns the ID under which the application of the
// source version is deployed to target. The application name is the
// second-to-last segment of source, e.g. "Applications/petclinic/1.0"
// deployed to "Environments/dev" lives at "Environments/dev/petclinic".
func DeployedApplicationID(source, target string) (string, error) {
	segments := strings.Split(source, "/")
	if len(segments) < 2 {
		return "", fmt.Errorf("cannot derive application name from %q: expected <application>/<version>", source)
	}
	return target + "/" + segments[len(segments)-2], nil
}

// IsApplicationDeployed reports whether the application of the source
// version is deployed to target.
func (e *Engine) IsApplicationDeployed(ctx context.Context, source, target string) (bool, error) {
	id, err := DeployedApplicationID(source, target)
	if err != nil {
		return false, err
	}
	return e.svc.Repository.Exists(ctx, id)
}

// ReadCIOrNil returns the CI with the given ID, or nil when it does not exist.
func (e *Engine) ReadCIOrNil(ctx context.Context, id string) (*xldeploy.ConfigurationItem, error) {
	e.log.Debug(ctx, "reading the environment "+id)

	exists, err := e.svc.Repository.Exists(ctx, id)
	if err != nil || !exists {
		return nil, err
	}
	return e.svc.Repository.Read(ctx, id)
}

// LogEnvironment logs an environment and its members. A nil environment is
// ignored.
func (e *Engine) LogEnvironment(ctx context.Context, env *xldeploy.ConfigurationItem) {
	if env == nil {
		return
	}
	e.log.Debug(ctx, " dumping members of "+env.ID)
	for _, member := range env.StringList("members") {
		e.log.Debug(ctx, taskformat.MemberLine(member))
	}
}

// CreateEnvironment stores the members and then an environment that groups
// them. It fails with *EnvironmentAlreadyExistsError if id is taken.
func (e *Engine) CreateEnvironment(ctx context.Context, id string, members []*xldeploy.ConfigurationItem) (*xldeploy.ConfigurationItem, error) {
	exists, err := e.svc.Repository.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &EnvironmentAlreadyExistsError{ID: id}
	}

	memberIDs := make([]string, 0, len(members))
	for _, m := range members {
		if _, err := e.svc.Repository.Create(ctx, m.ID, m); err != nil {
			return nil, err
		}
		memberIDs = append(memberIDs, m.ID)
	}

	env := xldeploy.NewConfigurationItem(id, EnvironmentType)
	env.SetProperty("members", memberIDs)
	return e.svc.Repository.Create(ctx, id, env)
}

// DeleteEnvironment removes an environment and then the given members.
// Members that are already gone are skipped.
func (e *Engine) DeleteEnvironment(ctx context.Context, id string, memberIDs []string) error {
	if err := e.svc.Repository.Delete(ctx, id); err != nil && !xldeploy.IsNotFound(err) {
		return err
	}
	for _, m := range memberIDs {
		if err := e.svc.Repository.Delete(ctx, m); err != nil && !xldeploy.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// UploadPackage imports a .dar archive and returns the imported version.
func (e *Engine) UploadPackage(ctx context.Context, darPath string) (*xldeploy.ConfigurationItem, error) {
	abs, err := filepath.Abs(darPath)
	if err != nil {
		return nil, err
	}
	e.log.Info(ctx, "Importing dar file "+abs)
	return e.svc.Packages.ImportPackage(ctx, abs)
}
