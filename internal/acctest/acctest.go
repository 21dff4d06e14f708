package acctest

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/darpackage"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/provider"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/target"
)

// TestProtoV6ProviderFactories is a map of provider factory functions
// suitable for use with the terraform-plugin-testing framework.
var TestProtoV6ProviderFactories = map[string]func() (tfprotov6.ProviderServer, error){
	"xldeploy": providerserver.NewProtocol6WithError(provider.New("test")()),
}

// SetupTest resets the global MemoryTarget registry so each test starts
// with a clean slate. Call this at the start of every acceptance test.
func SetupTest(t *testing.T) {
	t.Helper()
	target.ResetMemoryTargets()
	t.Cleanup(func() {
		target.ResetMemoryTargets()
	})
}

// WriteDar creates a deployment archive for application/version in dir and
// returns its absolute path. The archive is named <application>-<version>.dar
// and carries a manifest plus one artifact.
func WriteDar(t *testing.T, dir, application, version string) string {
	t.Helper()
	return WriteDarWithContent(t, dir, application, version, "war content of "+application+" "+version)
}

// WriteDarWithContent is WriteDar with explicit artifact content. Writing the
// same application and version twice overwrites the archive in place.
func WriteDarWithContent(t *testing.T, dir, application, version, content string) string {
	t.Helper()

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.dar", application, version))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create parent dir for %s: %s", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %s", path, err)
	}

	zw := zip.NewWriter(f)
	entries := [][2]string{
		{darpackage.ManifestName, manifestXML(application, version)},
		{application + "/" + application + ".war", content},
	}
	for _, e := range entries {
		w, err := zw.Create(e[0])
		if err != nil {
			t.Fatalf("failed to add %s: %s", e[0], err)
		}
		if _, err := w.Write([]byte(e[1])); err != nil {
			t.Fatalf("failed to write %s: %s", e[0], err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close archive %s: %s", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close %s: %s", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatalf("failed to resolve %s: %s", path, err)
	}
	return abs
}

// ReadFile returns the content of a file or fails the test.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %s", path, err)
	}
	return data
}

func manifestXML(application, version string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<udm.DeploymentPackage version=%q application=%q>
  <deployables>
    <jee.War name=%q file="%s/%s.war"/>
  </deployables>
</udm.DeploymentPackage>
`, version, application, application, application, application)
}

// ProviderConfig returns an HCL snippet that configures the xldeploy provider
// against the given mock server URL with a short poll interval.
func ProviderConfig(serverURL string) string {
	return fmt.Sprintf(`
provider "xldeploy" {
  server {
    url              = %q
    username         = "admin"
    password         = "admin"
    max_retries      = 0
    poll_interval_ms = 10
  }
}
`, serverURL)
}

// ProviderConfigWithTargets returns an HCL snippet that configures the
// xldeploy provider against serverURL with one memory target per name and
// the given report_targets.
func ProviderConfigWithTargets(serverURL string, names []string, reportTargets []string, reportFormat string) string {
	var targets string
	for _, n := range names {
		targets += fmt.Sprintf(`
  target {
    name = %q
    type = "memory"
  }
`, n)
	}

	var reportHCL string
	if len(reportTargets) > 0 {
		quoted := make([]string, len(reportTargets))
		for i, r := range reportTargets {
			quoted[i] = fmt.Sprintf("%q", r)
		}
		reportHCL = "  report_targets = [" + strings.Join(quoted, ", ") + "]\n"
	}
	if reportFormat != "" {
		reportHCL += fmt.Sprintf("  report_format  = %q\n", reportFormat)
	}

	return fmt.Sprintf(`
provider "xldeploy" {
%s
  server {
    url              = %q
    max_retries      = 0
    poll_interval_ms = 10
  }
%s}
`, reportHCL, serverURL, targets)
}
