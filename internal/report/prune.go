package report

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/runid"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/target"
)

// Prune removes archived runs of the application in the environment so that
// at most retain runs remain on t. The run named by keep is never removed and
// counts toward retain. Keys that are not valid run IDs are left alone.
// Returns the pruned run IDs, oldest first.
func Prune(ctx context.Context, sem *semaphore.Weighted, t target.Target, environment, application, keep string, retain int) ([]string, error) {
	if retain < 1 {
		return nil, fmt.Errorf("report: retain must be at least 1, got %d", retain)
	}
	runsPrefix := prefixFor(environment, application) + "runs/"

	objects, err := t.List(ctx, runsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list runs on %q: %w", t.Name(), err)
	}

	type run struct {
		id string
		ts int64
	}
	seen := make(map[string]bool)
	var runs []run
	for _, obj := range objects {
		id, _, ok := strings.Cut(strings.TrimPrefix(obj.Key, runsPrefix), "/")
		if !ok || seen[id] || id == keep {
			continue
		}
		seen[id] = true
		ts, err := runid.Parse(id)
		if err != nil {
			continue
		}
		runs = append(runs, run{id: id, ts: ts.UnixNano()})
	}

	allowed := retain
	if keep != "" {
		allowed--
	}
	excess := len(runs) - allowed
	if excess <= 0 {
		return nil, nil
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].ts != runs[j].ts {
			return runs[i].ts < runs[j].ts
		}
		return runs[i].id < runs[j].id
	})

	var pruned []string
	for _, r := range runs[:excess] {
		if err := deleteRun(ctx, sem, t, runsPrefix+r.id+"/"); err != nil {
			return pruned, fmt.Errorf("prune run %q on %q: %w", r.id, t.Name(), err)
		}
		pruned = append(pruned, r.id)
	}
	return pruned, nil
}

// deleteRun deletes every object under a run prefix.
func deleteRun(ctx context.Context, sem *semaphore.Weighted, t target.Target, prefix string) error {
	objects, err := t.List(ctx, prefix)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, obj := range objects {
		obj := obj
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			if err := t.Delete(gctx, obj.Key); err != nil {
				return fmt.Errorf("delete %q: %w", obj.Key, err)
			}
			return nil
		})
	}
	return g.Wait()
}
