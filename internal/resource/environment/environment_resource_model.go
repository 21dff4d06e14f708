package environment

import "github.com/hashicorp/terraform-plugin-framework/types"

// EnvironmentResourceModel maps the xldeploy_environment resource schema to a
// Go struct.
type EnvironmentResourceModel struct {
	// Required
	EnvironmentID types.String `tfsdk:"environment_id"`

	// Optional
	Members []MemberModel `tfsdk:"member"`

	// Computed
	ID        types.String `tfsdk:"id"`
	Type      types.String `tfsdk:"type"`
	MemberIDs types.List   `tfsdk:"member_ids"` // List of strings
}

// MemberModel maps a member {} block.
type MemberModel struct {
	ID         types.String `tfsdk:"id"`
	Type       types.String `tfsdk:"type"`
	Properties types.Map    `tfsdk:"properties"` // Map of strings
}

// EnvironmentDataSourceModel maps the xldeploy_environment data source schema.
type EnvironmentDataSourceModel struct {
	EnvironmentID types.String `tfsdk:"environment_id"`
	ID            types.String `tfsdk:"id"`
	Type          types.String `tfsdk:"type"`
	Members       types.List   `tfsdk:"members"` // List of strings
}
