package provider

import "github.com/hashicorp/terraform-plugin-framework/types"

// ProviderModel maps the provider schema to a Go struct.
type ProviderModel struct {
	MaxConcurrency  types.Int64         `tfsdk:"max_concurrency"`
	ReportTargets   types.List          `tfsdk:"report_targets"` // List of strings
	ReportFormat    types.String        `tfsdk:"report_format"`
	ReportRetention types.Int64         `tfsdk:"report_retention"`
	Server          []ServerConfigModel `tfsdk:"server"`
	Targets         []TargetConfigModel `tfsdk:"target"`
}

// ServerConfigModel maps the server {} block.
type ServerConfigModel struct {
	URL            types.String `tfsdk:"url"`
	Username       types.String `tfsdk:"username"`
	Password       types.String `tfsdk:"password"`
	MaxRetries     types.Int64  `tfsdk:"max_retries"`
	TimeoutSeconds types.Int64  `tfsdk:"timeout_seconds"`
	PollIntervalMs types.Int64  `tfsdk:"poll_interval_ms"`
}
