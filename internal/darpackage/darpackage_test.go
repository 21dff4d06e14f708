package darpackage

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const petclinicManifest = `<?xml version="1.0" encoding="UTF-8"?>
<udm.DeploymentPackage version="1.0" application="petclinic">
  <deployables>
    <jee.War name="petclinic" file="petclinic/petclinic.war"/>
    <sql.SqlScripts name="schema" file="schema/schema.zip"/>
  </deployables>
</udm.DeploymentPackage>
`

// writeDar creates a zip archive at path with the given entries.
func writeDar(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	dar := filepath.Join(dir, "build", "distributions", "petclinic-1.0.dar")
	writeDar(t, dar, map[string]string{ManifestName: petclinicManifest})

	t.Run("literal path", func(t *testing.T) {
		got, err := Resolve(dar)
		if err != nil || got != dar {
			t.Errorf("Resolve = %q, %v; want %q", got, err, dar)
		}
	})

	t.Run("doublestar glob", func(t *testing.T) {
		got, err := Resolve(filepath.Join(dir, "build", "**", "*.dar"))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != dar {
			t.Errorf("Resolve = %q, want %q", got, dar)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Resolve(filepath.Join(dir, "nope.dar"))
		if !errors.Is(err, ErrNoMatch) {
			t.Errorf("err = %v, want ErrNoMatch", err)
		}
	})

	t.Run("glob without match", func(t *testing.T) {
		_, err := Resolve(filepath.Join(dir, "**", "*.ear"))
		if !errors.Is(err, ErrNoMatch) {
			t.Errorf("err = %v, want ErrNoMatch", err)
		}
	})

	t.Run("directory", func(t *testing.T) {
		if _, err := Resolve(filepath.Join(dir, "build")); err == nil {
			t.Error("expected error for a directory")
		}
	})

	t.Run("ambiguous glob", func(t *testing.T) {
		writeDar(t, filepath.Join(dir, "build", "distributions", "petclinic-1.1.dar"), map[string]string{ManifestName: petclinicManifest})
		_, err := Resolve(filepath.Join(dir, "build", "**", "*.dar"))
		if err == nil || !strings.Contains(err.Error(), "matches 2 files") {
			t.Errorf("err = %v, want ambiguity error", err)
		}
	})
}

func TestInspect(t *testing.T) {
	dar := filepath.Join(t.TempDir(), "petclinic-1.0.dar")
	writeDar(t, dar, map[string]string{
		ManifestName:              petclinicManifest,
		"petclinic/petclinic.war": "war-bytes",
		"schema/schema.zip":       "sql-bytes",
	})

	pkg, err := Inspect(dar)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if pkg.Application != "petclinic" || pkg.Version != "1.0" || pkg.PackageType != "udm.DeploymentPackage" {
		t.Errorf("package = %+v", pkg)
	}
	if got := pkg.VersionID(); got != "Applications/petclinic/1.0" {
		t.Errorf("VersionID = %q", got)
	}
	if pkg.Entries != 3 {
		t.Errorf("Entries = %d, want 3", pkg.Entries)
	}
	if len(pkg.Deployables) != 2 || pkg.Deployables[0] != (Deployable{Name: "petclinic", Type: "jee.War", File: "petclinic/petclinic.war"}) {
		t.Errorf("Deployables = %+v", pkg.Deployables)
	}
	if !strings.HasPrefix(pkg.Hash, "sha256:") || len(pkg.Hash) != len("sha256:")+64 {
		t.Errorf("Hash = %q", pkg.Hash)
	}
	fi, _ := os.Stat(dar)
	if pkg.Size != fi.Size() {
		t.Errorf("Size = %d, want %d", pkg.Size, fi.Size())
	}

	again, _ := Inspect(dar)
	if again.Hash != pkg.Hash {
		t.Error("hash is not stable across calls")
	}
}

func TestInspect_NoManifest(t *testing.T) {
	dar := filepath.Join(t.TempDir(), "bare.dar")
	writeDar(t, dar, map[string]string{"readme.txt": "hello"})

	pkg, err := Inspect(dar)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if pkg.Application != "" || pkg.VersionID() != "" {
		t.Errorf("package without manifest = %+v", pkg)
	}
}

func TestInspect_NotZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.dar")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Inspect(path); err == nil {
		t.Fatal("expected error for a non-zip file")
	}
}

func TestInspect_BadManifest(t *testing.T) {
	dar := filepath.Join(t.TempDir(), "bad.dar")
	writeDar(t, dar, map[string]string{ManifestName: "<udm.DeploymentPackage"})

	if _, err := Inspect(dar); err == nil || !strings.Contains(err.Error(), ManifestName) {
		t.Fatalf("err = %v, want manifest error", err)
	}
}

func TestContentType(t *testing.T) {
	dar := filepath.Join(t.TempDir(), "petclinic-1.0.dar")
	writeDar(t, dar, map[string]string{ManifestName: petclinicManifest})

	ct, err := ContentType(dar)
	if err != nil {
		t.Fatalf("ContentType: %v", err)
	}
	if ct != "application/zip" {
		t.Errorf("ContentType = %q, want application/zip", ct)
	}

	if _, err := ContentType(filepath.Join(t.TempDir(), "missing.dar")); err == nil {
		t.Error("expected error for a missing file")
	}
}
