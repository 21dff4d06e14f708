package report

import (
	"context"
	"reflect"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/runid"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/target"
)

// archiveRuns archives one report per minute starting at 09:00 and returns
// the run IDs in order.
func archiveRuns(t *testing.T, tgt target.Target, n int) []string {
	t.Helper()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	ids := make([]string, n)
	for i := range ids {
		r := sampleReport()
		r.RunID = runid.NewAt(base.Add(time.Duration(i) * time.Minute))
		if _, err := Archive(context.Background(), semaphore.NewWeighted(2), []target.Target{tgt}, r, FormatJSON); err != nil {
			t.Fatalf("Archive: %v", err)
		}
		ids[i] = r.RunID
	}
	return ids
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	tgt := target.NewMemoryTarget("reports")
	ids := archiveRuns(t, tgt, 5)

	pruned, err := Prune(ctx, semaphore.NewWeighted(2), tgt, "Environments/dev", "petclinic", ids[4], 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if want := ids[:3]; !reflect.DeepEqual(pruned, want) {
		t.Errorf("pruned = %v, want %v", pruned, want)
	}

	for _, id := range ids[:3] {
		if _, err := tgt.Head(ctx, "dev/petclinic/runs/"+id+"/report.json"); err == nil {
			t.Errorf("run %s still archived", id)
		}
	}
	for _, id := range ids[3:] {
		if _, err := tgt.Head(ctx, "dev/petclinic/runs/"+id+"/report.json"); err != nil {
			t.Errorf("run %s was pruned: %v", id, err)
		}
	}

	latest, err := Latest(ctx, tgt, "Environments/dev", "petclinic", FormatJSON)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.RunID != ids[4] {
		t.Errorf("latest = %s, want %s", latest.RunID, ids[4])
	}
}

func TestPrune_KeepsOlderActiveRun(t *testing.T) {
	tgt := target.NewMemoryTarget("reports")
	ids := archiveRuns(t, tgt, 3)

	pruned, err := Prune(context.Background(), semaphore.NewWeighted(1), tgt, "Environments/dev", "petclinic", ids[0], 1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if want := ids[1:]; !reflect.DeepEqual(pruned, want) {
		t.Errorf("pruned = %v, want %v", pruned, want)
	}
}

func TestPrune_WithinRetention(t *testing.T) {
	tgt := target.NewMemoryTarget("reports")
	ids := archiveRuns(t, tgt, 2)

	pruned, err := Prune(context.Background(), semaphore.NewWeighted(1), tgt, "Environments/dev", "petclinic", ids[1], 5)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("pruned = %v, want nothing", pruned)
	}
}

func TestPrune_IgnoresForeignKeys(t *testing.T) {
	ctx := context.Background()
	tgt := target.NewMemoryTarget("reports")
	ids := archiveRuns(t, tgt, 2)
	if err := target.PutBytes(ctx, tgt, "dev/petclinic/runs/manual-upload/report.json", []byte("{}"), "application/json"); err != nil {
		t.Fatal(err)
	}

	pruned, err := Prune(ctx, semaphore.NewWeighted(1), tgt, "Environments/dev", "petclinic", ids[1], 1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if !reflect.DeepEqual(pruned, ids[:1]) {
		t.Errorf("pruned = %v, want %v", pruned, ids[:1])
	}
	if _, err := tgt.Head(ctx, "dev/petclinic/runs/manual-upload/report.json"); err != nil {
		t.Errorf("foreign key was removed: %v", err)
	}
}

func TestPrune_EnvironmentsSharingLeafName(t *testing.T) {
	ctx := context.Background()
	tgt := target.NewMemoryTarget("reports")
	sem := semaphore.NewWeighted(2)
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	archive := func(environment string, at time.Time) string {
		t.Helper()
		r := sampleReport()
		r.Environment = environment
		r.RunID = runid.NewAt(at)
		if _, err := Archive(ctx, sem, []target.Target{tgt}, r, FormatJSON); err != nil {
			t.Fatalf("Archive %s: %v", environment, err)
		}
		return r.RunID
	}
	eu := archive("Environments/eu/prod", base)
	us := archive("Environments/us/prod", base.Add(time.Minute))

	latest, err := Latest(ctx, tgt, "Environments/eu/prod", "petclinic", FormatJSON)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.RunID != eu || latest.Environment != "Environments/eu/prod" {
		t.Errorf("latest for eu/prod = %s in %s", latest.RunID, latest.Environment)
	}

	pruned, err := Prune(ctx, sem, tgt, "Environments/us/prod", "petclinic", us, 1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("pruned = %v, want nothing", pruned)
	}
	if _, err := tgt.Head(ctx, "eu/prod/petclinic/runs/"+eu+"/report.json"); err != nil {
		t.Errorf("eu/prod run was removed: %v", err)
	}
	if _, err := tgt.Head(ctx, "us/prod/petclinic/runs/"+us+"/report.json"); err != nil {
		t.Errorf("us/prod run was removed: %v", err)
	}
}

func TestPrune_InvalidRetain(t *testing.T) {
	if _, err := Prune(context.Background(), semaphore.NewWeighted(1), target.NewMemoryTarget("x"), "e", "a", "", 0); err == nil {
		t.Error("retain 0 must be rejected")
	}
}
