package environment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/listplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/engine"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/providerdata"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// Compile-time interface checks.
var (
	_ resource.Resource                = &EnvironmentResource{}
	_ resource.ResourceWithConfigure   = &EnvironmentResource{}
	_ resource.ResourceWithImportState = &EnvironmentResource{}
)

// NewEnvironmentResource returns a new resource.Resource for the
// xldeploy_environment type.
func NewEnvironmentResource() resource.Resource {
	return &EnvironmentResource{}
}

// EnvironmentResource implements the xldeploy_environment Terraform resource.
// An environment groups the containers an application is deployed to. The
// members are created together with the environment and removed with it;
// any change forces replacement.
type EnvironmentResource struct {
	providerData *providerdata.ProviderData
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

func (r *EnvironmentResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_environment"
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

func (r *EnvironmentResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Creates an environment and its member containers in the XL Deploy repository. Creation fails when the environment already exists. Any change forces recreation.",

		Attributes: map[string]schema.Attribute{
			// ---- Required ----
			"environment_id": schema.StringAttribute{
				MarkdownDescription: "Repository ID of the environment, e.g. `Environments/dev`.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},

			// ---- Computed ----
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `environment_id`.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"type": schema.StringAttribute{
				MarkdownDescription: "CI type of the environment as stored by the server.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"member_ids": schema.ListAttribute{
				MarkdownDescription: "IDs of the environment members as stored by the server.",
				Computed:            true,
				ElementType:         types.StringType,
				PlanModifiers: []planmodifier.List{
					listplanmodifier.UseStateForUnknown(),
				},
			},
		},

		Blocks: map[string]schema.Block{
			"member": schema.ListNestedBlock{
				MarkdownDescription: "A container created before the environment and added to its members.",
				PlanModifiers: []planmodifier.List{
					listplanmodifier.RequiresReplace(),
				},
				NestedObject: schema.NestedBlockObject{
					Attributes: map[string]schema.Attribute{
						"id": schema.StringAttribute{
							MarkdownDescription: "Repository ID of the member, e.g. `Infrastructure/host/tomcat`.",
							Required:            true,
						},
						"type": schema.StringAttribute{
							MarkdownDescription: "CI type of the member, e.g. `tomcat.Server`.",
							Required:            true,
						},
						"properties": schema.MapAttribute{
							MarkdownDescription: "Properties of the member CI.",
							Optional:            true,
							ElementType:         types.StringType,
						},
					},
				},
			},
		},
	}
}

// --------------------------------------------------------------------------
// Configure
// --------------------------------------------------------------------------

func (r *EnvironmentResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
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
// Create
// --------------------------------------------------------------------------

func (r *EnvironmentResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan EnvironmentResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	members, diags := memberCIs(ctx, plan.Members)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	envID := plan.EnvironmentID.ValueString()
	tflog.Info(ctx, "creating environment", map[string]interface{}{
		"environment_id": envID,
		"members":        len(members),
	})

	env, err := r.providerData.Engine.CreateEnvironment(ctx, envID, members)
	if err != nil {
		var exists *engine.EnvironmentAlreadyExistsError
		if errors.As(err, &exists) {
			resp.Diagnostics.AddError(
				"Environment Already Exists",
				exists.Error()+" Import it with `terraform import` or choose another environment_id.",
			)
			return
		}
		resp.Diagnostics.AddError("Create Environment Failed", fmt.Sprintf("Failed to create environment %q: %s", envID, err))
		return
	}

	resp.Diagnostics.Append(setFromCI(ctx, &plan, env)...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

// --------------------------------------------------------------------------
// Read
// --------------------------------------------------------------------------

func (r *EnvironmentResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state EnvironmentResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	envID := state.EnvironmentID.ValueString()
	env, err := r.providerData.Engine.ReadCIOrNil(ctx, envID)
	if err != nil {
		resp.Diagnostics.AddError("Read Environment Failed", fmt.Sprintf("Failed to read environment %q: %s", envID, err))
		return
	}
	if env == nil {
		tflog.Info(ctx, "environment not found in repository, removing from state", map[string]interface{}{
			"environment_id": envID,
		})
		resp.State.RemoveResource(ctx)
		return
	}
	r.providerData.Engine.LogEnvironment(ctx, env)

	resp.Diagnostics.Append(setFromCI(ctx, &state, env)...)
	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

// --------------------------------------------------------------------------
// Update (not supported -- every argument forces replacement)
// --------------------------------------------------------------------------

func (r *EnvironmentResource) Update(_ context.Context, _ resource.UpdateRequest, resp *resource.UpdateResponse) {
	resp.Diagnostics.AddError(
		"Update Not Supported",
		"xldeploy_environment does not support in-place updates. Changes to environment_id or member blocks force replacement.",
	)
}

// --------------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------------

func (r *EnvironmentResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state EnvironmentResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	envID := state.EnvironmentID.ValueString()
	memberIDs := make([]string, 0, len(state.Members))
	for _, m := range state.Members {
		memberIDs = append(memberIDs, m.ID.ValueString())
	}

	tflog.Info(ctx, "deleting environment", map[string]interface{}{
		"environment_id": envID,
		"members":        memberIDs,
	})

	if err := r.providerData.Engine.DeleteEnvironment(ctx, envID, memberIDs); err != nil {
		resp.Diagnostics.AddError("Delete Environment Failed", fmt.Sprintf("Failed to delete environment %q: %s", envID, err))
	}
}

// --------------------------------------------------------------------------
// ImportState
// --------------------------------------------------------------------------

// ImportState adopts an existing environment. Members are not imported: they
// are left to the server when the imported resource is destroyed.
func (r *EnvironmentResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		resp.Diagnostics.AddError("Invalid Import ID", "Expected the repository ID of an environment, e.g. Environments/dev.")
		return
	}
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("environment_id"), id)...)
	resp.Diagnostics.Append(resp.State.SetAttribute(ctx, path.Root("id"), id)...)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// memberCIs converts member blocks to configuration items.
func memberCIs(ctx context.Context, members []MemberModel) ([]*xldeploy.ConfigurationItem, diag.Diagnostics) {
	var diags diag.Diagnostics
	out := make([]*xldeploy.ConfigurationItem, 0, len(members))
	seen := make(map[string]bool, len(members))

	for _, m := range members {
		id := m.ID.ValueString()
		if seen[id] {
			diags.AddError("Duplicate Member", fmt.Sprintf("Member %q is listed more than once.", id))
			return nil, diags
		}
		seen[id] = true

		ci := xldeploy.NewConfigurationItem(id, m.Type.ValueString())
		if !m.Properties.IsNull() && !m.Properties.IsUnknown() {
			props := make(map[string]string, len(m.Properties.Elements()))
			diags.Append(m.Properties.ElementsAs(ctx, &props, false)...)
			if diags.HasError() {
				return nil, diags
			}
			for k, v := range props {
				ci.SetProperty(k, v)
			}
		}
		out = append(out, ci)
	}
	return out, diags
}

// setFromCI copies the server's view of the environment into the model.
func setFromCI(ctx context.Context, m *EnvironmentResourceModel, env *xldeploy.ConfigurationItem) diag.Diagnostics {
	m.ID = types.StringValue(env.ID)
	m.EnvironmentID = types.StringValue(env.ID)
	m.Type = types.StringValue(env.Type)

	ids := env.StringList("members")
	if ids == nil {
		ids = []string{}
	}
	list, diags := types.ListValueFrom(ctx, types.StringType, ids)
	m.MemberIDs = list
	return diags
}
