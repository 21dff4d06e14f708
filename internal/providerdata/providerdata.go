// Package providerdata defines the ProviderData struct that is shared between
// the provider and its resources / data sources. It is separated into its own
// package to avoid import cycles (provider -> resource -> provider).
package providerdata

import (
	"github.com/hashicorp/terraform-plugin-framework/types"
	"golang.org/x/sync/semaphore"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/engine"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/target"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// ProviderData is configured during provider.Configure() and shared with
// resources via resp.ResourceData and resp.DataSourceData.
type ProviderData struct {
	Client        *xldeploy.Client
	Engine        *engine.Engine
	Targets       map[string]target.Target
	TargetConfigs map[string]TargetConfigModel
	// ReportTargets lists the targets execution reports are archived to, in
	// configuration order.
	ReportTargets []string
	ReportFormat  string
	// ReportRetention is the number of runs kept per application and
	// environment; 0 keeps all.
	ReportRetention int
	Semaphore       *semaphore.Weighted
}

// ReportTargetList resolves ReportTargets against Targets. Names that were
// validated in Configure always resolve.
func (pd *ProviderData) ReportTargetList() []target.Target {
	out := make([]target.Target, 0, len(pd.ReportTargets))
	for _, name := range pd.ReportTargets {
		if t, ok := pd.Targets[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// TargetConfigModel maps each target {} block in the provider configuration.
type TargetConfigModel struct {
	Name           types.String `tfsdk:"name"`
	Type           types.String `tfsdk:"type"`
	Bucket         types.String `tfsdk:"bucket"`
	Region         types.String `tfsdk:"region"`
	KMSKeyID       types.String `tfsdk:"kms_key_id"`
	StorageAccount types.String `tfsdk:"storage_account"`
	ContainerName  types.String `tfsdk:"container_name"`
	Prefix         types.String `tfsdk:"prefix"`
	MaxRetries     types.Int64  `tfsdk:"max_retries"`
	RetryBackoff   types.String `tfsdk:"retry_backoff"`
}
