package deployment

import "github.com/hashicorp/terraform-plugin-framework/types"

// DeploymentResourceModel maps the xldeploy_deployment resource schema to a
// Go struct.
type DeploymentResourceModel struct {
	// Required
	VersionID     types.String `tfsdk:"version_id"`
	EnvironmentID types.String `tfsdk:"environment_id"`

	// Optional
	AutoDeployeds     types.Bool `tfsdk:"auto_deployeds"`
	SkipAllSteps      types.Bool `tfsdk:"skip_all_steps"`
	CancelTaskOnError types.Bool `tfsdk:"cancel_task_on_error"`
	ArchiveReport     types.Bool `tfsdk:"archive_report"`

	// Computed
	ID             types.String `tfsdk:"id"`
	DeploymentType types.String `tfsdk:"deployment_type"`
	TaskID         types.String `tfsdk:"task_id"`
	TaskState      types.String `tfsdk:"task_state"`
	RunID          types.String `tfsdk:"run_id"`
	ReportKey      types.String `tfsdk:"report_key"`
}
