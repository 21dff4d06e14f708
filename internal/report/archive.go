package report

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/target"
)

// LatestKey names the pointer object holding the most recent run ID.
const LatestKey = "LATEST"

// Prefix returns the key prefix under which the runs of an application in an
// environment are stored, e.g. "dev/petclinic/" for Environments/dev.
func Prefix(r *Report) string {
	return prefixFor(r.Environment, r.Application)
}

func prefixFor(environment, application string) string {
	return keyPath(environment, "Environments") + "/" + keyPath(application, "Applications") + "/"
}

// Key returns the object key of the report document.
func Key(r *Report, format string) string {
	return Prefix(r) + "runs/" + r.RunID + "/report." + normalizeFormat(format)
}

// Archive writes the report and then the LATEST pointer to every target and
// returns the report's key. Targets are written concurrently, bounded by sem.
func Archive(ctx context.Context, sem *semaphore.Weighted, targets []target.Target, r *Report, format string) (string, error) {
	if r.RunID == "" {
		return "", fmt.Errorf("report: run ID is required to archive")
	}
	data, err := Marshal(r, format)
	if err != nil {
		return "", err
	}
	key := Key(r, format)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			if err := target.PutBytes(gctx, t, key, data, ContentType(format)); err != nil {
				return fmt.Errorf("archive report to %q: %w", t.Name(), err)
			}
			if err := target.PutBytes(gctx, t, Prefix(r)+LatestKey, []byte(r.RunID+"\n"), "text/plain"); err != nil {
				return fmt.Errorf("update %s on %q: %w", LatestKey, t.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return key, nil
}

// Latest reads the most recent archived report for an application in an
// environment. It returns target.ErrNotFound when nothing was archived yet.
func Latest(ctx context.Context, t target.Target, environment, application, format string) (*Report, error) {
	prefix := prefixFor(environment, application)
	pointer, err := target.ReadAll(ctx, t, prefix+LatestKey)
	if err != nil {
		return nil, err
	}
	runID := strings.TrimSpace(string(pointer))
	data, err := target.ReadAll(ctx, t, prefix+"runs/"+runID+"/report."+normalizeFormat(format))
	if err != nil {
		return nil, err
	}
	return Unmarshal(data, format)
}

// keyPath turns a repository ID such as "Environments/eu/prod" into a key
// path below its root ("eu/prod"). Every folder is kept so that IDs sharing a
// leaf name do not share a prefix. Segments are path-escaped.
func keyPath(id, root string) string {
	id = strings.TrimPrefix(strings.Trim(id, "/"), root+"/")
	if id == "" || id == root {
		return "_"
	}
	segments := strings.Split(id, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
