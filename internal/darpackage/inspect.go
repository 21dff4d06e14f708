package darpackage

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ManifestName is the descriptor every deployment archive carries at its
// root.
const ManifestName = "deployit-manifest.xml"

const hashPrefix = "sha256:"

// Package describes a deployment archive on disk.
type Package struct {
	Path        string
	Application string
	Version     string
	// PackageType is the root element of the manifest, e.g.
	// "udm.DeploymentPackage".
	PackageType string
	Deployables []Deployable
	Hash        string
	Size        int64
	Entries     int
}

// Deployable is one artifact or resource declared in the manifest.
type Deployable struct {
	Name string
	Type string
	File string
}

// VersionID returns the repository ID the package is imported under, e.g.
// "Applications/petclinic/1.0".
func (p *Package) VersionID() string {
	if p.Application == "" || p.Version == "" {
		return ""
	}
	return "Applications/" + p.Application + "/" + p.Version
}

type manifest struct {
	XMLName     xml.Name
	Application string `xml:"application,attr"`
	Version     string `xml:"version,attr"`
	Deployables struct {
		Items []struct {
			XMLName xml.Name
			Name    string `xml:"name,attr"`
			File    string `xml:"file,attr"`
		} `xml:",any"`
	} `xml:"deployables"`
}

// Inspect verifies that path is a zip archive, reads its manifest when
// present, and hashes its content.
func Inspect(path string) (*Package, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("darpackage: open %q: %w", path, err)
	}
	defer zr.Close()

	pkg := &Package{Path: path, Entries: len(zr.File)}
	for _, f := range zr.File {
		if strings.EqualFold(strings.TrimPrefix(f.Name, "/"), ManifestName) {
			if err := readManifest(f, pkg); err != nil {
				return nil, fmt.Errorf("darpackage: %s in %q: %w", ManifestName, path, err)
			}
			break
		}
	}

	if pkg.Hash, pkg.Size, err = hashFile(path); err != nil {
		return nil, err
	}
	return pkg, nil
}

func readManifest(f *zip.File, pkg *Package) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	var m manifest
	if err := xml.NewDecoder(rc).Decode(&m); err != nil {
		return err
	}
	pkg.Application = m.Application
	pkg.Version = m.Version
	pkg.PackageType = m.XMLName.Local
	for _, d := range m.Deployables.Items {
		pkg.Deployables = append(pkg.Deployables, Deployable{Name: d.Name, Type: d.XMLName.Local, File: d.File})
	}
	return nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("darpackage: open for hash: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("darpackage: read for hash: %w", err)
	}
	return hashPrefix + hex.EncodeToString(h.Sum(nil)), n, nil
}

// ContentType sniffs the MIME type of the file at path. Archives with a .dar
// extension are reported as zip.
func ContentType(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("darpackage: detect content type of %q: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".dar") && mt.Is("application/octet-stream") {
		return "application/zip", nil
	}
	return mt.String(), nil
}
