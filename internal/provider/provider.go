package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/listvalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"golang.org/x/sync/semaphore"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/engine"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/logging"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/report"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/resource/deploypackage"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/resource/deployment"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/resource/environment"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/target"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// Environment variables consulted when the server block leaves a value unset.
const (
	envURL      = "XLDEPLOY_URL"
	envUsername = "XLDEPLOY_USERNAME"
	envPassword = "XLDEPLOY_PASSWORD"
)

// Ensure XLDeployProvider satisfies the provider.Provider interface.
var _ provider.Provider = &XLDeployProvider{}

// XLDeployProvider implements the xldeploy Terraform provider.
type XLDeployProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and run locally.
	version string
}

// New returns a factory function that creates a new XLDeployProvider instance
// for the given version string. This is the entry-point used in main.go.
func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &XLDeployProvider{
			version: version,
		}
	}
}

// Metadata returns the provider type name.
func (p *XLDeployProvider) Metadata(_ context.Context, _ provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "xldeploy"
	resp.Version = p.version
}

// Schema returns the provider schema.
func (p *XLDeployProvider) Schema(_ context.Context, _ provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The xldeploy provider imports deployment packages, manages environments and runs deployments against an XL Deploy server.",
		Attributes: map[string]schema.Attribute{
			"max_concurrency": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of concurrent storage operations the provider will perform across all targets. Defaults to `16`.",
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"report_targets": schema.ListAttribute{
				MarkdownDescription: "Names of the targets that execution reports are archived to when a deployment sets `archive_report`.",
				Optional:            true,
				ElementType:         types.StringType,
			},
			"report_format": schema.StringAttribute{
				MarkdownDescription: "Encoding of archived execution reports. Supported values are `\"json\"` and `\"yaml\"`. Defaults to `\"json\"`.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.OneOf(report.FormatJSON, report.FormatYAML),
				},
			},
			"report_retention": schema.Int64Attribute{
				MarkdownDescription: "Number of archived runs to keep per application and environment on each report target. Older runs are deleted after a new report is archived. Unset keeps every run.",
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
		},
		Blocks: map[string]schema.Block{
			"server": schema.ListNestedBlock{
				MarkdownDescription: "Connection settings for the XL Deploy server. At most one block may be specified.",
				Validators: []validator.List{
					listvalidator.SizeAtMost(1),
				},
				NestedObject: schema.NestedBlockObject{
					Attributes: map[string]schema.Attribute{
						"url": schema.StringAttribute{
							MarkdownDescription: "Base URL of the server. Falls back to `XLDEPLOY_URL`, then `http://localhost:4516`.",
							Optional:            true,
						},
						"username": schema.StringAttribute{
							MarkdownDescription: "User name for basic authentication. Falls back to `XLDEPLOY_USERNAME`.",
							Optional:            true,
						},
						"password": schema.StringAttribute{
							MarkdownDescription: "Password for basic authentication. Falls back to `XLDEPLOY_PASSWORD`. This value is sensitive and will not appear in plan output.",
							Optional:            true,
							Sensitive:           true,
						},
						"max_retries": schema.Int64Attribute{
							MarkdownDescription: "Maximum number of retries for failed server requests. Defaults to `3`.",
							Optional:            true,
							Validators: []validator.Int64{
								int64validator.AtLeast(0),
							},
						},
						"timeout_seconds": schema.Int64Attribute{
							MarkdownDescription: "Timeout in seconds for individual server requests. Defaults to `30`.",
							Optional:            true,
							Validators: []validator.Int64{
								int64validator.AtLeast(1),
							},
						},
						"poll_interval_ms": schema.Int64Attribute{
							MarkdownDescription: "Interval in milliseconds between task status polls while a task executes. Defaults to `1000`.",
							Optional:            true,
							Validators: []validator.Int64{
								int64validator.AtLeast(1),
							},
						},
					},
				},
			},
			"target": schema.ListNestedBlock{
				MarkdownDescription: "Defines a storage target used as a package source or as an execution report archive.",
				NestedObject: schema.NestedBlockObject{
					Attributes: map[string]schema.Attribute{
						"name": schema.StringAttribute{
							MarkdownDescription: "Unique name used to reference this target from `report_targets` and `xldeploy_package.source_target`.",
							Required:            true,
						},
						"type": schema.StringAttribute{
							MarkdownDescription: "Storage backend type. Supported values are `\"s3\"`, `\"azure\"`, `\"gcs\"` and `\"memory\"`.",
							Required:            true,
							Validators: []validator.String{
								stringvalidator.OneOf("s3", "azure", "gcs", "memory"),
							},
						},
						"bucket": schema.StringAttribute{
							MarkdownDescription: "S3 or GCS bucket name. Required for `s3` and `gcs` target types.",
							Optional:            true,
						},
						"region": schema.StringAttribute{
							MarkdownDescription: "AWS region for the S3 bucket. Required for `s3` target type.",
							Optional:            true,
						},
						"kms_key_id": schema.StringAttribute{
							MarkdownDescription: "AWS KMS key ID or ARN used for server-side encryption of S3 objects.",
							Optional:            true,
						},
						"storage_account": schema.StringAttribute{
							MarkdownDescription: "Azure Storage account name. Required for `azure` target type.",
							Optional:            true,
						},
						"container_name": schema.StringAttribute{
							MarkdownDescription: "Azure Blob Storage container name. Required for `azure` target type.",
							Optional:            true,
						},
						"prefix": schema.StringAttribute{
							MarkdownDescription: "Key prefix prepended to all object paths within the target bucket or container.",
							Optional:            true,
						},
						"max_retries": schema.Int64Attribute{
							MarkdownDescription: "Maximum number of retries for failed operations against this target. Defaults to `3`.",
							Optional:            true,
						},
						"retry_backoff": schema.StringAttribute{
							MarkdownDescription: "Retry backoff strategy for this target. Supported values are `\"exponential\"` and `\"linear\"`. Defaults to `\"exponential\"`.",
							Optional:            true,
							Validators: []validator.String{
								stringvalidator.OneOf("exponential", "linear"),
							},
						},
					},
				},
			},
		},
	}
}

// Configure parses the provider configuration, builds the server client, the
// deployment engine and the storage targets, and stores everything in
// ProviderData for downstream resources.
func (p *XLDeployProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var config ProviderModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &config)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// ----------------------------------------------------------------
	// Resolve top-level defaults
	// ----------------------------------------------------------------
	maxConcurrency := int64(16)
	if !config.MaxConcurrency.IsNull() && !config.MaxConcurrency.IsUnknown() {
		maxConcurrency = config.MaxConcurrency.ValueInt64()
	}

	reportFormat := report.FormatJSON
	if !config.ReportFormat.IsNull() && !config.ReportFormat.IsUnknown() {
		reportFormat = config.ReportFormat.ValueString()
	}

	var reportRetention int
	if !config.ReportRetention.IsNull() && !config.ReportRetention.IsUnknown() {
		reportRetention = int(config.ReportRetention.ValueInt64())
	}

	var reportTargets []string
	if !config.ReportTargets.IsNull() && !config.ReportTargets.IsUnknown() {
		resp.Diagnostics.Append(config.ReportTargets.ElementsAs(ctx, &reportTargets, false)...)
		if resp.Diagnostics.HasError() {
			return
		}
	}

	// ----------------------------------------------------------------
	// Server client and engine
	// ----------------------------------------------------------------
	if len(config.Server) > 1 {
		resp.Diagnostics.AddError(
			"Invalid Server Configuration",
			"At most one server block may be specified.",
		)
		return
	}

	var sc ServerConfigModel
	if len(config.Server) == 1 {
		sc = config.Server[0]
	}

	serverURL := stringOrEnv(sc.URL, envURL)
	username := stringOrEnv(sc.Username, envUsername)
	password := stringOrEnv(sc.Password, envPassword)

	if username != "" && password == "" {
		resp.Diagnostics.AddError(
			"Invalid Server Configuration",
			fmt.Sprintf("A username is configured but no password was given. Set password in the server block or %s.", envPassword),
		)
		return
	}

	sMaxRetries := int64(3)
	if !sc.MaxRetries.IsNull() && !sc.MaxRetries.IsUnknown() {
		sMaxRetries = sc.MaxRetries.ValueInt64()
	}

	sTimeoutSeconds := int64(30)
	if !sc.TimeoutSeconds.IsNull() && !sc.TimeoutSeconds.IsUnknown() {
		sTimeoutSeconds = sc.TimeoutSeconds.ValueInt64()
	}

	sPollIntervalMs := engine.DefaultPollInterval.Milliseconds()
	if !sc.PollIntervalMs.IsNull() && !sc.PollIntervalMs.IsUnknown() {
		sPollIntervalMs = sc.PollIntervalMs.ValueInt64()
	}

	client := xldeploy.NewClient(xldeploy.ClientConfig{
		URL:            serverURL,
		Username:       username,
		Password:       password,
		MaxRetries:     int(sMaxRetries),
		TimeoutSeconds: int(sTimeoutSeconds),
	})

	eng := engine.New(engine.ServicesFor(client), logging.TFLog{}, engine.Options{
		PollInterval: time.Duration(sPollIntervalMs) * time.Millisecond,
	})

	// ----------------------------------------------------------------
	// Validate and build targets
	// ----------------------------------------------------------------
	targets := make(map[string]target.Target, len(config.Targets))
	targetConfigs := make(map[string]TargetConfigModel, len(config.Targets))

	for _, tc := range config.Targets {
		name := tc.Name.ValueString()
		if name == "" {
			resp.Diagnostics.AddError(
				"Invalid Target Configuration",
				"Every target block must have a non-empty name attribute.",
			)
			return
		}

		if _, exists := targets[name]; exists {
			resp.Diagnostics.AddError(
				"Duplicate Target Name",
				fmt.Sprintf("Target name %q is defined more than once.", name),
			)
			return
		}

		// Resolve per-target defaults.
		tMaxRetries := int64(3)
		if !tc.MaxRetries.IsNull() && !tc.MaxRetries.IsUnknown() {
			tMaxRetries = tc.MaxRetries.ValueInt64()
		}

		tRetryBackoff := "exponential"
		if !tc.RetryBackoff.IsNull() && !tc.RetryBackoff.IsUnknown() {
			tRetryBackoff = tc.RetryBackoff.ValueString()
		}

		t, err := target.NewTarget(target.Config{
			Name:           name,
			Type:           tc.Type.ValueString(),
			Bucket:         tc.Bucket.ValueString(),
			Region:         tc.Region.ValueString(),
			KMSKeyID:       tc.KMSKeyID.ValueString(),
			StorageAccount: tc.StorageAccount.ValueString(),
			ContainerName:  tc.ContainerName.ValueString(),
			Prefix:         tc.Prefix.ValueString(),
			MaxRetries:     int(tMaxRetries),
			RetryBackoff:   tRetryBackoff,
		})
		if err != nil {
			resp.Diagnostics.AddError(
				"Target Initialization Failed",
				fmt.Sprintf("Failed to create target %q: %s", name, err),
			)
			return
		}

		targets[name] = t
		targetConfigs[name] = tc
	}

	// Validate that every entry in report_targets references a defined target.
	for _, rt := range reportTargets {
		if _, exists := targets[rt]; !exists {
			resp.Diagnostics.AddError(
				"Invalid Report Target",
				fmt.Sprintf("report_targets references %q which is not defined as a target block.", rt),
			)
			return
		}
	}

	// ----------------------------------------------------------------
	// Build ProviderData and share with resources / data sources
	// ----------------------------------------------------------------
	pd := &ProviderData{
		Client:          client,
		Engine:          eng,
		Targets:         targets,
		TargetConfigs:   targetConfigs,
		ReportTargets:   reportTargets,
		ReportFormat:    reportFormat,
		ReportRetention: reportRetention,
		Semaphore:       semaphore.NewWeighted(maxConcurrency),
	}

	resp.DataSourceData = pd
	resp.ResourceData = pd
}

// Resources returns the set of resource types supported by this provider.
func (p *XLDeployProvider) Resources(_ context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		environment.NewEnvironmentResource,
		deploypackage.NewPackageResource,
		deployment.NewDeploymentResource,
	}
}

// DataSources returns the set of data source types supported by this provider.
func (p *XLDeployProvider) DataSources(_ context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		environment.NewEnvironmentDataSource,
	}
}

// stringOrEnv returns the configured value, or the named environment variable
// when the attribute is unset.
func stringOrEnv(v types.String, env string) string {
	if !v.IsNull() && !v.IsUnknown() {
		return v.ValueString()
	}
	return os.Getenv(env)
}
