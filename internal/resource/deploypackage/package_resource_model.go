package deploypackage

import "github.com/hashicorp/terraform-plugin-framework/types"

// PackageResourceModel maps the xldeploy_package resource schema to a Go
// struct.
type PackageResourceModel struct {
	// Source: either File, or SourceTarget + SourceKey.
	File         types.String `tfsdk:"file"`
	SourceTarget types.String `tfsdk:"source_target"`
	SourceKey    types.String `tfsdk:"source_key"`

	// Optional
	DestroyRemote types.Bool `tfsdk:"destroy_remote"`

	// Computed
	ID          types.String `tfsdk:"id"`
	Application types.String `tfsdk:"application"`
	Version     types.String `tfsdk:"version"`
	SHA256      types.String `tfsdk:"sha256"`
	Size        types.Int64  `tfsdk:"size"`
	ContentType types.String `tfsdk:"content_type"`
	SourceETag  types.String `tfsdk:"source_etag"`
}
