package deploypackage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/providerdata"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/target"
)

// ---------------------------------------------------------------------------
// splitVersionID
// ---------------------------------------------------------------------------

func TestSplitVersionID(t *testing.T) {
	tests := []struct {
		id      string
		app     string
		version string
	}{
		{"Applications/petclinic/1.0", "petclinic", "1.0"},
		{"Applications/Finance/ledger/2.3.1", "ledger", "2.3.1"},
		{"/Applications/petclinic/1.0/", "petclinic", "1.0"},
		{"petclinic", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		app, ver := splitVersionID(tt.id)
		if app != tt.app || ver != tt.version {
			t.Errorf("splitVersionID(%q) = (%q, %q), want (%q, %q)", tt.id, app, ver, tt.app, tt.version)
		}
	}
}

// ---------------------------------------------------------------------------
// localArchive
// ---------------------------------------------------------------------------

func TestLocalArchive_File(t *testing.T) {
	dir := t.TempDir()
	dar := filepath.Join(dir, "petclinic-1.0.dar")
	if err := os.WriteFile(dar, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &PackageResource{providerData: &providerdata.ProviderData{}}
	got, etag, cleanup, err := r.localArchive(context.Background(), PackageResourceModel{
		File: types.StringValue(filepath.Join(dir, "*.dar")),
	})
	if err != nil {
		t.Fatalf("localArchive: %v", err)
	}
	defer cleanup()

	if got != dar {
		t.Errorf("path = %q, want %q", got, dar)
	}
	if etag != "" {
		t.Errorf("etag = %q, want empty for local files", etag)
	}
}

func TestLocalArchive_Target(t *testing.T) {
	ctx := context.Background()
	mem := target.NewMemoryTarget("artifacts")
	if err := target.PutBytes(ctx, mem, "releases/petclinic-1.0.dar", []byte("archive"), "application/zip"); err != nil {
		t.Fatal(err)
	}

	r := &PackageResource{providerData: &providerdata.ProviderData{
		Targets: map[string]target.Target{"artifacts": mem},
	}}
	got, etag, cleanup, err := r.localArchive(ctx, PackageResourceModel{
		File:         types.StringNull(),
		SourceTarget: types.StringValue("artifacts"),
		SourceKey:    types.StringValue("releases/petclinic-1.0.dar"),
	})
	if err != nil {
		t.Fatalf("localArchive: %v", err)
	}

	if filepath.Base(got) != "petclinic-1.0.dar" {
		t.Errorf("downloaded to %q, want base name petclinic-1.0.dar", got)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != "archive" {
		t.Errorf("content = %q", data)
	}
	if etag == "" {
		t.Error("expected the source ETag to be recorded")
	}

	cleanup()
	if _, err := os.Stat(got); !os.IsNotExist(err) {
		t.Errorf("expected download to be removed by cleanup, stat err = %v", err)
	}
}

func TestLocalArchive_UnknownTarget(t *testing.T) {
	r := &PackageResource{providerData: &providerdata.ProviderData{Targets: map[string]target.Target{}}}
	_, _, cleanup, err := r.localArchive(context.Background(), PackageResourceModel{
		File:         types.StringNull(),
		SourceTarget: types.StringValue("missing"),
		SourceKey:    types.StringValue("a.dar"),
	})
	cleanup()
	if err == nil {
		t.Fatal("expected error for undefined target")
	}
}

func TestLocalArchive_MissingObject(t *testing.T) {
	mem := target.NewMemoryTarget("artifacts")
	r := &PackageResource{providerData: &providerdata.ProviderData{
		Targets: map[string]target.Target{"artifacts": mem},
	}}
	_, _, cleanup, err := r.localArchive(context.Background(), PackageResourceModel{
		File:         types.StringNull(),
		SourceTarget: types.StringValue("artifacts"),
		SourceKey:    types.StringValue("nope.dar"),
	})
	cleanup()
	if err == nil {
		t.Fatal("expected error for missing object")
	}
}
