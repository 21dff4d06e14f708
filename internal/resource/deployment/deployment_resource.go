package deployment

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/diag"
	tfpath "github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/booldefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/engine"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/providerdata"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/report"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/taskformat"
)

// Compile-time interface checks.
var (
	_ resource.Resource                = &DeploymentResource{}
	_ resource.ResourceWithConfigure   = &DeploymentResource{}
	_ resource.ResourceWithModifyPlan  = &DeploymentResource{}
	_ resource.ResourceWithImportState = &DeploymentResource{}
)

// NewDeploymentResource returns a new resource.Resource for the
// xldeploy_deployment type.
func NewDeploymentResource() resource.Resource {
	return &DeploymentResource{}
}

// DeploymentResource implements the xldeploy_deployment Terraform resource.
// Creating it deploys an application version to an environment, changing
// version_id upgrades the deployed application in place and destroying it
// undeploys the application.
type DeploymentResource struct {
	providerData *providerdata.ProviderData
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

func (r *DeploymentResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_deployment"
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

func (r *DeploymentResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Deploys an application version to an environment and waits for the deployment task to finish. Changing `version_id` to another version of the same application runs an update deployment.",

		Attributes: map[string]schema.Attribute{
			// ---- Required ----
			"version_id": schema.StringAttribute{
				MarkdownDescription: "Repository ID of the application version to deploy, e.g. `Applications/petclinic/1.0`.",
				Required:            true,
			},
			"environment_id": schema.StringAttribute{
				MarkdownDescription: "Repository ID of the target environment, e.g. `Environments/dev`.",
				Required:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},

			// ---- Optional ----
			"auto_deployeds": schema.BoolAttribute{
				MarkdownDescription: "Let the server generate the deployeds of the deployment. Defaults to `true`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(true),
			},
			"skip_all_steps": schema.BoolAttribute{
				MarkdownDescription: "Skip every step of the deployment task, recording the deployment without executing it. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},
			"cancel_task_on_error": schema.BoolAttribute{
				MarkdownDescription: "Cancel the task when it stops on an error instead of leaving it on the server for a retry. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},
			"archive_report": schema.BoolAttribute{
				MarkdownDescription: "Archive an execution report of the task to the provider's `report_targets`. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},

			// ---- Computed ----
			"id": schema.StringAttribute{
				MarkdownDescription: "Repository ID of the deployed application, e.g. `Environments/dev/petclinic`.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"deployment_type": schema.StringAttribute{
				MarkdownDescription: "Kind of the last deployment: `INITIAL` or `UPDATE`.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"task_id": schema.StringAttribute{
				MarkdownDescription: "ID of the task that ran the last deployment.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"task_state": schema.StringAttribute{
				MarkdownDescription: "Final state of the last deployment task.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"run_id": schema.StringAttribute{
				MarkdownDescription: "Run ID of the archived execution report, when one was archived.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"report_key": schema.StringAttribute{
				MarkdownDescription: "Object key of the archived execution report, when one was archived.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
		},
	}
}

// --------------------------------------------------------------------------
// Configure
// --------------------------------------------------------------------------

func (r *DeploymentResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}

	pd, ok := req.ProviderData.(*providerdata.ProviderData)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Resource Configure Type",
			fmt.Sprintf("Expected *providerdata.ProviderData, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	r.providerData = pd
}

// --------------------------------------------------------------------------
// ModifyPlan
// --------------------------------------------------------------------------

// ModifyPlan derives the deployed application ID, forces replacement when the
// version belongs to another application, and marks the task attributes
// unknown when a new deployment will run.
func (r *DeploymentResource) ModifyPlan(ctx context.Context, req resource.ModifyPlanRequest, resp *resource.ModifyPlanResponse) {
	if req.Plan.Raw.IsNull() {
		return
	}

	var plan DeploymentResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if plan.ArchiveReport.ValueBool() && r.providerData != nil && len(r.providerData.ReportTargets) == 0 {
		resp.Diagnostics.AddAttributeWarning(
			tfpath.Root("archive_report"),
			"No Report Targets",
			"archive_report is set but the provider has no report_targets. No execution report will be archived.",
		)
	}

	var state *DeploymentResourceModel
	if !req.State.Raw.IsNull() {
		state = &DeploymentResourceModel{}
		resp.Diagnostics.Append(req.State.Get(ctx, state)...)
		if resp.Diagnostics.HasError() {
			return
		}
	}

	if plan.VersionID.IsUnknown() || plan.EnvironmentID.IsUnknown() {
		// The version is only known at apply time, e.g. when it comes from
		// an xldeploy_package that is being replaced.
		if state != nil {
			plan.ID = types.StringUnknown()
			markRedeploy(&plan)
			resp.Diagnostics.Append(resp.Plan.Set(ctx, &plan)...)
		}
		return
	}

	deployedID, err := engine.DeployedApplicationID(plan.VersionID.ValueString(), plan.EnvironmentID.ValueString())
	if err != nil {
		resp.Diagnostics.AddAttributeError(tfpath.Root("version_id"), "Invalid Version ID", err.Error())
		return
	}

	if state == nil {
		plan.ID = types.StringValue(deployedID)
		resp.Diagnostics.Append(resp.Plan.Set(ctx, &plan)...)
		return
	}

	if deployedID != state.ID.ValueString() {
		resp.RequiresReplace = append(resp.RequiresReplace, tfpath.Root("version_id"))
		return
	}

	if !plan.VersionID.Equal(state.VersionID) {
		markRedeploy(&plan)
		resp.Diagnostics.Append(resp.Plan.Set(ctx, &plan)...)
	}
}

// markRedeploy marks the attributes a new deployment task will set as
// unknown.
func markRedeploy(m *DeploymentResourceModel) {
	m.DeploymentType = types.StringUnknown()
	m.TaskID = types.StringUnknown()
	m.TaskState = types.StringUnknown()
	m.RunID = types.StringUnknown()
	m.ReportKey = types.StringUnknown()
}

// --------------------------------------------------------------------------
// Create
// --------------------------------------------------------------------------

func (r *DeploymentResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan DeploymentResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(r.deploy(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

// --------------------------------------------------------------------------
// Read
// --------------------------------------------------------------------------

func (r *DeploymentResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state DeploymentResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	id := state.ID.ValueString()
	exists, err := r.providerData.Client.Exists(ctx, id)
	if err != nil {
		resp.Diagnostics.AddError("Read Deployment Failed", fmt.Sprintf("Failed to check deployed application %q: %s", id, err))
		return
	}
	if !exists {
		tflog.Info(ctx, "deployed application not found in repository, removing from state", map[string]interface{}{
			"id": id,
		})
		resp.State.RemoveResource(ctx)
		return
	}
	deployed, err := r.providerData.Client.Read(ctx, id)
	if err != nil {
		resp.Diagnostics.AddError("Read Deployment Failed", fmt.Sprintf("Failed to read deployed application %q: %s", id, err))
		return
	}

	// The deployed application points at the version it runs; a version
	// changed outside Terraform shows up as drift on version_id.
	if v := deployed.Reference("version"); v != "" {
		state.VersionID = types.StringValue(v)
	}
	if e := deployed.Reference("environment"); e != "" {
		state.EnvironmentID = types.StringValue(e)
	} else if state.EnvironmentID.IsNull() {
		state.EnvironmentID = types.StringValue(path.Dir(id))
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

// --------------------------------------------------------------------------
// Update
// --------------------------------------------------------------------------

// Update runs an update deployment when version_id changed. Changes to the
// flags alone are recorded without touching the server.
func (r *DeploymentResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state DeploymentResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if plan.VersionID.Equal(state.VersionID) {
		state.AutoDeployeds = plan.AutoDeployeds
		state.SkipAllSteps = plan.SkipAllSteps
		state.CancelTaskOnError = plan.CancelTaskOnError
		state.ArchiveReport = plan.ArchiveReport
		resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
		return
	}

	resp.Diagnostics.Append(r.deploy(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

// --------------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------------

func (r *DeploymentResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state DeploymentResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	id := state.ID.ValueString()
	exists, err := r.providerData.Client.Exists(ctx, id)
	if err != nil {
		resp.Diagnostics.AddError("Undeploy Failed", fmt.Sprintf("Failed to check deployed application %q: %s", id, err))
		return
	}
	if !exists {
		return
	}

	tflog.Info(ctx, "undeploying application", map[string]interface{}{"id": id})

	taskState, err := r.providerData.Engine.Undeploy(ctx, id, state.CancelTaskOnError.ValueBool())
	if err != nil {
		resp.Diagnostics.AddError("Undeploy Failed", fmt.Sprintf("Failed to undeploy %q: %s", id, taskFailureDetail(err)))
		return
	}
	tflog.Info(ctx, "undeployed application", map[string]interface{}{
		"id":    id,
		"state": string(taskState),
	})
}

// --------------------------------------------------------------------------
// ImportState
// --------------------------------------------------------------------------

// ImportState adopts a deployed application by its repository ID, e.g.
// Environments/dev/petclinic. version_id and environment_id are filled in by
// the following Read.
func (r *DeploymentResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	id := strings.Trim(strings.TrimSpace(req.ID), "/")
	if strings.Count(id, "/") < 1 {
		resp.Diagnostics.AddError("Invalid Import ID", "Expected the repository ID of a deployed application, e.g. Environments/dev/petclinic.")
		return
	}
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, tfpath.Root("id"), id)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, tfpath.Root("environment_id"), path.Dir(id))...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, tfpath.Root("auto_deployeds"), true)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, tfpath.Root("skip_all_steps"), false)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, tfpath.Root("cancel_task_on_error"), false)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, tfpath.Root("archive_report"), false)...)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// deploy runs the deployment described by m and fills in its computed
// attributes.
func (r *DeploymentResource) deploy(ctx context.Context, m *DeploymentResourceModel) diag.Diagnostics {
	var diags diag.Diagnostics

	pd := r.providerData
	versionID := m.VersionID.ValueString()
	envID := m.EnvironmentID.ValueString()
	archive := m.ArchiveReport.ValueBool() && len(pd.ReportTargets) > 0
	cancelOnError := m.CancelTaskOnError.ValueBool()

	tflog.Info(ctx, "deploying application version", map[string]interface{}{
		"version_id":     versionID,
		"environment_id": envID,
		"skip_all_steps": m.SkipAllSteps.ValueBool(),
	})

	res, err := pd.Engine.Deploy(ctx, engine.DeployRequest{
		VersionID:         versionID,
		EnvironmentID:     envID,
		AutoDeployeds:     m.AutoDeployeds.ValueBool(),
		SkipAllSteps:      m.SkipAllSteps.ValueBool(),
		CancelTaskOnError: cancelOnError,
		Report:            archive,
	})
	if err != nil {
		var invalid *engine.DeploymentValidationError
		if errors.As(err, &invalid) {
			diags.AddError("Deployment Validation Failed", validationDetail(invalid))
			return diags
		}
		summary := "Deployment Failed"
		if res != nil && res.TaskID != "" {
			summary = "Deployment Task Failed"
		}
		diags.AddError(summary, fmt.Sprintf("Failed to deploy %q to %q: %s", versionID, envID, taskFailureDetail(err)))
		return diags
	}

	m.ID = types.StringValue(res.DeployedApplicationID)
	m.DeploymentType = types.StringValue(string(res.DeploymentType))
	m.TaskID = types.StringValue(res.TaskID)
	m.TaskState = types.StringValue(string(res.State))
	m.RunID = types.StringNull()
	m.ReportKey = types.StringNull()

	if res.Report != nil {
		key, err := report.Archive(ctx, pd.Semaphore, pd.ReportTargetList(), res.Report, pd.ReportFormat)
		if err != nil {
			// The deployment itself succeeded; losing the report must not
			// leave the deployed application untracked.
			diags.AddWarning("Report Archive Failed", fmt.Sprintf("Failed to archive the execution report of task %s: %s", res.TaskID, err))
			return diags
		}
		m.RunID = types.StringValue(res.Report.RunID)
		m.ReportKey = types.StringValue(key)
		tflog.Info(ctx, "archived execution report", map[string]interface{}{
			"run_id": res.Report.RunID,
			"key":    key,
		})
		diags.Append(r.pruneReports(ctx, res.Report)...)
	}
	return diags
}

// pruneReports enforces the provider's report_retention on every report
// target. Failures are warnings; the current run is never pruned.
func (r *DeploymentResource) pruneReports(ctx context.Context, rep *report.Report) diag.Diagnostics {
	var diags diag.Diagnostics

	pd := r.providerData
	if pd.ReportRetention <= 0 {
		return diags
	}
	for _, t := range pd.ReportTargetList() {
		pruned, err := report.Prune(ctx, pd.Semaphore, t, rep.Environment, rep.Application, rep.RunID, pd.ReportRetention)
		if err != nil {
			diags.AddWarning("Report Prune Failed", fmt.Sprintf("Failed to prune archived reports on target %q: %s", t.Name(), err))
			continue
		}
		if len(pruned) > 0 {
			tflog.Info(ctx, "pruned archived reports", map[string]interface{}{
				"target": t.Name(),
				"runs":   pruned,
			})
		}
	}
	return diags
}

// validationDetail lists every validation message, one per line.
func validationDetail(err *engine.DeploymentValidationError) string {
	var b strings.Builder
	b.WriteString(err.Error())
	b.WriteString(":")
	for _, m := range err.Messages {
		b.WriteString("\n  ")
		b.WriteString(taskformat.ValidationLine(m))
	}
	return b.String()
}

// taskFailureDetail explains where a stopped task was left.
func taskFailureDetail(err error) string {
	var stopped *engine.TaskStoppedError
	if !errors.As(err, &stopped) {
		return err.Error()
	}
	if stopped.Cancelled {
		return fmt.Sprintf("%s (state %s). The task was cancelled.", stopped.Error(), stopped.State)
	}
	if stopped.CancelErr != nil {
		return fmt.Sprintf("%s (state %s). Cancelling the task failed (%s); it is left on the server, retry or cancel it there.", stopped.Error(), stopped.State, stopped.CancelErr)
	}
	return fmt.Sprintf("%s (state %s). The task is left on the server; retry or cancel it there.", stopped.Error(), stopped.State)
}
