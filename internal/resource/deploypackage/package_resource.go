package deploypackage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/booldefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/int64planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/darpackage"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/providerdata"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/target"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// Compile-time interface checks.
var (
	_ resource.Resource               = &PackageResource{}
	_ resource.ResourceWithConfigure  = &PackageResource{}
	_ resource.ResourceWithModifyPlan = &PackageResource{}
)

// NewPackageResource returns a new resource.Resource for the xldeploy_package
// type.
func NewPackageResource() resource.Resource {
	return &PackageResource{}
}

// PackageResource implements the xldeploy_package Terraform resource. It
// imports a .dar archive, read from local disk or from a storage target, as
// an application version. Imported versions are immutable: a changed source
// or archive content forces replacement.
type PackageResource struct {
	providerData *providerdata.ProviderData
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

func (r *PackageResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_package"
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

func (r *PackageResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Imports a deployment archive (`.dar`) into the XL Deploy repository as an application version. Exactly one of `file` or `source_key` must be set.",

		Attributes: map[string]schema.Attribute{
			// ---- Source ----
			"file": schema.StringAttribute{
				MarkdownDescription: "Path of the archive on local disk. Glob patterns such as `build/**/*.dar` are accepted and must match exactly one file.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.ExactlyOneOf(path.MatchRoot("source_key")),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"source_target": schema.StringAttribute{
				MarkdownDescription: "Name of the provider target to download the archive from.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.AlsoRequires(path.MatchRoot("source_key")),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"source_key": schema.StringAttribute{
				MarkdownDescription: "Object key of the archive within `source_target`.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.AlsoRequires(path.MatchRoot("source_target")),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},

			// ---- Optional ----
			"destroy_remote": schema.BoolAttribute{
				MarkdownDescription: "Whether to delete the application version from the repository when the resource is destroyed. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},

			// ---- Computed ----
			"id": schema.StringAttribute{
				MarkdownDescription: "Repository ID of the imported version, e.g. `Applications/petclinic/1.0`.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"application": schema.StringAttribute{
				MarkdownDescription: "Application name of the imported version.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"version": schema.StringAttribute{
				MarkdownDescription: "Version name of the imported version.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"sha256": schema.StringAttribute{
				MarkdownDescription: "SHA-256 of the imported archive, formatted as `sha256:<hex>`.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"size": schema.Int64Attribute{
				MarkdownDescription: "Size of the imported archive in bytes.",
				Computed:            true,
				PlanModifiers: []planmodifier.Int64{
					int64planmodifier.UseStateForUnknown(),
				},
			},
			"content_type": schema.StringAttribute{
				MarkdownDescription: "Detected media type of the archive.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"source_etag": schema.StringAttribute{
				MarkdownDescription: "ETag of the source object when the archive was read from a target.",
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

func (r *PackageResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
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

// ModifyPlan validates the source target reference and forces replacement
// when the archive behind an unchanged file or key has changed.
func (r *PackageResource) ModifyPlan(ctx context.Context, req resource.ModifyPlanRequest, resp *resource.ModifyPlanResponse) {
	if req.Plan.Raw.IsNull() || r.providerData == nil {
		return
	}

	var plan PackageResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	var src target.Target
	if isKnown(plan.SourceTarget) {
		name := plan.SourceTarget.ValueString()
		t, ok := r.providerData.Targets[name]
		if !ok {
			resp.Diagnostics.AddError(
				"Invalid Target Reference",
				fmt.Sprintf("source_target %q is not defined in the provider configuration.", name),
			)
			return
		}
		src = t
	}

	// Only updates of an existing resource can detect drift.
	if req.State.Raw.IsNull() {
		return
	}
	var state PackageResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	switch {
	case isKnown(plan.File) && plan.File.Equal(state.File):
		darPath, err := darpackage.Resolve(plan.File.ValueString())
		if err != nil {
			tflog.Warn(ctx, "plan-time package resolution failed, keeping recorded hash", map[string]interface{}{
				"file":  plan.File.ValueString(),
				"error": err.Error(),
			})
			return
		}
		pkg, err := darpackage.Inspect(darPath)
		if err != nil {
			tflog.Warn(ctx, "plan-time package inspection failed, keeping recorded hash", map[string]interface{}{
				"file":  darPath,
				"error": err.Error(),
			})
			return
		}
		if pkg.Hash != state.SHA256.ValueString() {
			tflog.Info(ctx, "package content changed, replacing", map[string]interface{}{
				"file": darPath,
				"old":  state.SHA256.ValueString(),
				"new":  pkg.Hash,
			})
			plan.SHA256 = types.StringValue(pkg.Hash)
			resp.RequiresReplace = append(resp.RequiresReplace, path.Root("sha256"))
		}

	case src != nil && isKnown(plan.SourceKey) && plan.SourceKey.Equal(state.SourceKey):
		key := plan.SourceKey.ValueString()
		meta, err := src.Head(ctx, key)
		if err != nil {
			if errors.Is(err, target.ErrNotFound) {
				resp.Diagnostics.AddWarning(
					"Package Source Missing",
					fmt.Sprintf("Object %q no longer exists on target %q. The imported version is kept.", key, src.Name()),
				)
			}
			return
		}
		if meta.ETag != "" && meta.ETag != state.SourceETag.ValueString() {
			plan.SourceETag = types.StringValue(meta.ETag)
			resp.RequiresReplace = append(resp.RequiresReplace, path.Root("source_etag"))
		}
	}

	if len(resp.RequiresReplace) > 0 {
		resp.Diagnostics.Append(resp.Plan.Set(ctx, &plan)...)
	}
}

// --------------------------------------------------------------------------
// Create
// --------------------------------------------------------------------------

func (r *PackageResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan PackageResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// 1. Locate the archive on disk, downloading it from a target if needed.
	darPath, etag, cleanup, err := r.localArchive(ctx, plan)
	if err != nil {
		resp.Diagnostics.AddError("Package Source Unavailable", err.Error())
		return
	}
	defer cleanup()

	// 2. Inspect it before sending it to the server.
	pkg, err := darpackage.Inspect(darPath)
	if err != nil {
		resp.Diagnostics.AddError("Invalid Package", fmt.Sprintf("Failed to inspect %q: %s", darPath, err))
		return
	}
	contentType, err := darpackage.ContentType(darPath)
	if err != nil {
		resp.Diagnostics.AddError("Invalid Package", fmt.Sprintf("Failed to detect content type of %q: %s", darPath, err))
		return
	}

	tflog.Info(ctx, "importing package", map[string]interface{}{
		"path":        darPath,
		"application": pkg.Application,
		"version":     pkg.Version,
		"sha256":      pkg.Hash,
	})

	// 3. Import.
	ci, err := r.providerData.Engine.UploadPackage(ctx, darPath)
	if err != nil {
		resp.Diagnostics.AddError("Package Import Failed", fmt.Sprintf("Failed to import %q: %s", darPath, err))
		return
	}

	// 4. Save state.
	app, ver := splitVersionID(ci.ID)
	if app == "" {
		app = pkg.Application
	}
	if ver == "" {
		ver = pkg.Version
	}

	plan.ID = types.StringValue(ci.ID)
	plan.Application = types.StringValue(app)
	plan.Version = types.StringValue(ver)
	plan.SHA256 = types.StringValue(pkg.Hash)
	plan.Size = types.Int64Value(pkg.Size)
	plan.ContentType = types.StringValue(contentType)
	plan.SourceETag = types.StringValue(etag)

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

// --------------------------------------------------------------------------
// Read
// --------------------------------------------------------------------------

func (r *PackageResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state PackageResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	id := state.ID.ValueString()
	exists, err := r.providerData.Client.Exists(ctx, id)
	if err != nil {
		resp.Diagnostics.AddError("Read Package Failed", fmt.Sprintf("Failed to check version %q: %s", id, err))
		return
	}
	if !exists {
		tflog.Info(ctx, "application version not found in repository, removing from state", map[string]interface{}{
			"id": id,
		})
		resp.State.RemoveResource(ctx)
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

// --------------------------------------------------------------------------
// Update
// --------------------------------------------------------------------------

// Update only ever changes destroy_remote; every other argument forces
// replacement.
func (r *PackageResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state PackageResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	state.DestroyRemote = plan.DestroyRemote
	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

// --------------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------------

func (r *PackageResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state PackageResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if !state.DestroyRemote.ValueBool() {
		tflog.Info(ctx, "leaving application version in repository", map[string]interface{}{
			"id": state.ID.ValueString(),
		})
		return
	}

	id := state.ID.ValueString()
	tflog.Info(ctx, "deleting application version", map[string]interface{}{"id": id})
	if err := r.providerData.Client.Delete(ctx, id); err != nil && !xldeploy.IsNotFound(err) {
		resp.Diagnostics.AddError("Delete Package Failed", fmt.Sprintf("Failed to delete version %q: %s", id, err))
	}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// localArchive returns the path of the archive on local disk. For target
// sources the object is downloaded into a temporary directory that cleanup
// removes; etag is then the object's ETag.
func (r *PackageResource) localArchive(ctx context.Context, plan PackageResourceModel) (darPath, etag string, cleanup func(), err error) {
	cleanup = func() {}

	if isKnown(plan.File) {
		darPath, err = darpackage.Resolve(plan.File.ValueString())
		return darPath, "", cleanup, err
	}

	name := plan.SourceTarget.ValueString()
	t, ok := r.providerData.Targets[name]
	if !ok {
		return "", "", cleanup, fmt.Errorf("source_target %q is not defined in the provider configuration", name)
	}
	key := plan.SourceKey.ValueString()

	meta, err := t.Head(ctx, key)
	if err != nil {
		return "", "", cleanup, fmt.Errorf("stat %q on target %q: %w", key, name, err)
	}

	dir, err := os.MkdirTemp("", "xldeploy-package-")
	if err != nil {
		return "", "", cleanup, err
	}
	cleanup = func() { os.RemoveAll(dir) }

	tflog.Debug(ctx, "downloading package", map[string]interface{}{
		"target": name,
		"key":    key,
		"size":   meta.Size,
	})
	darPath, err = target.Download(ctx, t, key, dir)
	if err != nil {
		cleanup()
		return "", "", func() {}, err
	}
	return darPath, meta.ETag, cleanup, nil
}

// splitVersionID splits "Applications/<app>/<version>" into its last two
// segments.
func splitVersionID(id string) (application, version string) {
	segments := strings.Split(strings.Trim(id, "/"), "/")
	if len(segments) < 2 {
		return "", ""
	}
	return segments[len(segments)-2], segments[len(segments)-1]
}

func isKnown(v types.String) bool {
	return !v.IsNull() && !v.IsUnknown() && v.ValueString() != ""
}
