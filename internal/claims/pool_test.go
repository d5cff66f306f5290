package claims_test

import (
	"context"
	"fmt"
	"testing"

	"shepherd/internal/changespec"
	"shepherd/internal/claims"
	"shepherd/internal/logging"
	"shepherd/internal/procs"
	"shepherd/internal/testsupport"
)

func specWithClaims(name string, claimLines ...string) string {
	content := fmt.Sprintf("NAME: %s\nDESCRIPTION:\n  claims fixture\nPARENT: \nCL: \nSTATUS: WIP\nCOMMITS:\n  1 initial\nHOOKS:\nCOMMENTS:\nMENTORS:\n", name)
	if len(claimLines) > 0 {
		content += "RUNNING:\n"
		for _, line := range claimLines {
			content += "  " + line + "\n"
		}
	}
	return content
}

func TestCurrentCountIgnoresDeadPIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustStore(t, cfg)
	fake := procs.NewFake(100, 200)
	pool := claims.NewPool(store, fake, 5, logging.NewNop())

	testsupport.WriteSpecFile(t, cfg, "demo", specWithClaims("rec-a",
		"1 | 100 | hooks",
		"2 | 200 | hooks",
		"3 | 300 | hooks",
	))

	count, err := pool.CurrentCount(context.Background())
	if err != nil {
		t.Fatalf("CurrentCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 live claims, got %d", count)
	}
}

func TestTryReserveHonorsBound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustStore(t, cfg)
	fake := procs.NewFake(100, 200)
	pool := claims.NewPool(store, fake, 3, logging.NewNop())

	testsupport.WriteSpecFile(t, cfg, "demo", specWithClaims("rec-a",
		"1 | 100 | hooks",
		"2 | 200 | hooks",
	))

	ctx := context.Background()
	pool.ResetTick()

	granted, err := pool.TryReserve(ctx, 5)
	if err != nil {
		t.Fatalf("TryReserve failed: %v", err)
	}
	if granted != 1 {
		t.Fatalf("expected 1 grant with 2 live claims and max 3, got %d", granted)
	}

	// The tick counter remembers the grant even though no claim hit disk.
	granted, err = pool.TryReserve(ctx, 1)
	if err != nil {
		t.Fatalf("TryReserve failed: %v", err)
	}
	if granted != 0 {
		t.Fatalf("expected exhaustion, got %d", granted)
	}

	pool.ResetTick()
	granted, err = pool.TryReserve(ctx, 1)
	if err != nil {
		t.Fatalf("TryReserve failed: %v", err)
	}
	if granted != 1 {
		t.Fatalf("expected a fresh tick to grant again, got %d", granted)
	}
}

func TestTryReserveFillsBoundAfterPersists(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustStore(t, cfg)
	fake := procs.NewFake()
	pool := claims.NewPool(store, fake, 5, logging.NewNop())

	testsupport.WriteSpecFile(t, cfg, "demo", specWithClaims("rec-a"))
	ctx := context.Background()
	pool.ResetTick()

	// Reserve-then-persist in a loop, the way one tick starts jobs. A
	// persisted claim must not shrink the remaining capacity a second
	// time on the next reservation.
	for i := 0; i < 5; i++ {
		pid := 1000 + i
		granted, err := pool.TryReserve(ctx, 1)
		if err != nil {
			t.Fatalf("TryReserve %d failed: %v", i, err)
		}
		if granted != 1 {
			t.Fatalf("expected grant %d of 5, got %d", i+1, granted)
		}
		fake.SetAlive(pid, true)
		if err := pool.PersistClaim(ctx, "demo", "rec-a", i+1, pid, "hooks"); err != nil {
			t.Fatalf("PersistClaim %d failed: %v", i, err)
		}
	}

	granted, err := pool.TryReserve(ctx, 1)
	if err != nil {
		t.Fatalf("TryReserve failed: %v", err)
	}
	if granted != 0 {
		t.Fatalf("expected exhaustion past the bound, got %d", granted)
	}

	// Next tick the five persisted jobs count as live runners.
	pool.ResetTick()
	granted, err = pool.TryReserve(ctx, 1)
	if err != nil {
		t.Fatalf("TryReserve failed: %v", err)
	}
	if granted != 0 {
		t.Fatalf("expected no capacity with 5 live claims, got %d", granted)
	}
}

func TestFindFirstAvailableSlot(t *testing.T) {
	pool := claims.NewPool(nil, procs.NewFake(), 5, logging.NewNop())
	rec := &changespec.Record{
		Claims: []changespec.Claim{
			{Slot: 1, PID: 100, Workflow: "hooks"},
			{Slot: 3, PID: 101, Workflow: "hooks"},
		},
	}
	if got := pool.FindFirstAvailableSlot(rec); got != 2 {
		t.Fatalf("expected slot 2, got %d", got)
	}
	if got := pool.FindFirstAvailableSlot(&changespec.Record{}); got != 1 {
		t.Fatalf("expected slot 1 for empty record, got %d", got)
	}
}

func TestPersistAndReleaseClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustStore(t, cfg)
	fake := procs.NewFake(4242)
	pool := claims.NewPool(store, fake, 5, logging.NewNop())

	testsupport.WriteSpecFile(t, cfg, "demo", specWithClaims("rec-a"))
	ctx := context.Background()

	if err := pool.PersistClaim(ctx, "demo", "rec-a", 1, 4242, "hooks"); err != nil {
		t.Fatalf("PersistClaim failed: %v", err)
	}
	if err := pool.PersistClaim(ctx, "demo", "rec-a", 1, 4242, "hooks"); err == nil {
		t.Fatal("duplicate claim for the same slot and workflow should fail")
	}

	records, _ := store.LoadProject("demo")
	if len(records[0].Claims) != 1 {
		t.Fatalf("claim not persisted: %+v", records[0].Claims)
	}

	if err := pool.Release(ctx, "demo", "rec-a", 1, "hooks"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := pool.Release(ctx, "demo", "rec-a", 1, "hooks"); err != nil {
		t.Fatalf("releasing an absent claim should not error: %v", err)
	}

	records, _ = store.LoadProject("demo")
	if len(records[0].Claims) != 0 {
		t.Fatalf("claim not released: %+v", records[0].Claims)
	}
}

func TestReleaseDeadDropsOrphans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustStore(t, cfg)
	fake := procs.NewFake(100)
	pool := claims.NewPool(store, fake, 5, logging.NewNop())

	testsupport.WriteSpecFile(t, cfg, "demo", specWithClaims("rec-a",
		"1 | 100 | hooks",
		"2 | 999 | hooks",
	))
	testsupport.WriteSpecFile(t, cfg, "other", specWithClaims("rec-b",
		"1 | 888 | mentors",
	))

	released, err := pool.ReleaseDead(context.Background())
	if err != nil {
		t.Fatalf("ReleaseDead failed: %v", err)
	}
	if released != 2 {
		t.Fatalf("expected 2 released claims, got %d", released)
	}

	records, _ := store.LoadProject("demo")
	if len(records[0].Claims) != 1 || records[0].Claims[0].PID != 100 {
		t.Fatalf("live claim should survive: %+v", records[0].Claims)
	}
	records, _ = store.LoadProject("other")
	if len(records[0].Claims) != 0 {
		t.Fatalf("orphaned claim should be gone: %+v", records[0].Claims)
	}
}
