package environment

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/providerdata"
)

var (
	_ datasource.DataSource              = &EnvironmentDataSource{}
	_ datasource.DataSourceWithConfigure = &EnvironmentDataSource{}
)

// NewEnvironmentDataSource returns a new datasource.DataSource for the
// xldeploy_environment type.
func NewEnvironmentDataSource() datasource.DataSource {
	return &EnvironmentDataSource{}
}

// EnvironmentDataSource reads an existing environment and its members.
type EnvironmentDataSource struct {
	providerData *providerdata.ProviderData
}

func (d *EnvironmentDataSource) Metadata(_ context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_environment"
}

func (d *EnvironmentDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Reads an environment from the XL Deploy repository.",
		Attributes: map[string]schema.Attribute{
			"environment_id": schema.StringAttribute{
				MarkdownDescription: "Repository ID of the environment, e.g. `Environments/dev`.",
				Required:            true,
			},
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `environment_id`.",
				Computed:            true,
			},
			"type": schema.StringAttribute{
				MarkdownDescription: "CI type of the environment.",
				Computed:            true,
			},
			"members": schema.ListAttribute{
				MarkdownDescription: "IDs of the environment members.",
				Computed:            true,
				ElementType:         types.StringType,
			},
		},
	}
}

func (d *EnvironmentDataSource) Configure(_ context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}

	pd, ok := req.ProviderData.(*providerdata.ProviderData)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Data Source Configure Type",
			fmt.Sprintf("Expected *providerdata.ProviderData, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	d.providerData = pd
}

func (d *EnvironmentDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var cfg EnvironmentDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &cfg)...)
	if resp.Diagnostics.HasError() {
		return
	}

	envID := cfg.EnvironmentID.ValueString()
	env, err := d.providerData.Engine.ReadCIOrNil(ctx, envID)
	if err != nil {
		resp.Diagnostics.AddError("Read Environment Failed", fmt.Sprintf("Failed to read environment %q: %s", envID, err))
		return
	}
	if env == nil {
		resp.Diagnostics.AddError("Environment Not Found", fmt.Sprintf("Environment %q does not exist in the repository.", envID))
		return
	}
	d.providerData.Engine.LogEnvironment(ctx, env)

	members := env.StringList("members")
	if members == nil {
		members = []string{}
	}
	list, diags := types.ListValueFrom(ctx, types.StringType, members)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	cfg.ID = types.StringValue(env.ID)
	cfg.Type = types.StringValue(env.Type)
	cfg.Members = list

	resp.Diagnostics.Append(resp.State.Set(ctx, &cfg)...)
}
