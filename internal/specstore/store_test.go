package specstore_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"shepherd/internal/changespec"
	"shepherd/internal/specstore"
	"shepherd/internal/testsupport"
)

func specContent(names ...string) string {
	var blocks []string
	for _, name := range names {
		blocks = append(blocks, fmt.Sprintf("NAME: %s\nDESCRIPTION:\n  test record\nPARENT: \nCL: \nSTATUS: WIP\nCOMMITS:\n  1 initial\nHOOKS:\n  make test\nCOMMENTS:\nMENTORS:\n", name))
	}
	return strings.Join(blocks, "\n")
}

func TestProjectsSorted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustStore(t, cfg)

	testsupport.WriteSpecFile(t, cfg, "zeta", specContent("z-one"))
	testsupport.WriteSpecFile(t, cfg, "alpha", specContent("a-one"))

	projects, err := store.Projects()
	if err != nil {
		t.Fatalf("Projects failed: %v", err)
	}
	if len(projects) != 2 || projects[0] != "alpha" || projects[1] != "zeta" {
		t.Fatalf("unexpected projects: %v", projects)
	}
}

func TestLoadSkipsMalformedBlocks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustStore(t, cfg)

	content := specContent("good-one") + "\nNAME: broken\nSTATUS: Bogus\n\n" + specContent("good-two")
	testsupport.WriteSpecFile(t, cfg, "demo", content)

	records, errs := store.LoadProject("demo")
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 parse error, got %v", errs)
	}
	for _, rec := range records {
		if rec.Project != "demo" {
			t.Fatalf("record %q missing project annotation", rec.Name)
		}
	}
}

func TestFindAcrossProjects(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustStore(t, cfg)

	testsupport.WriteSpecFile(t, cfg, "one", specContent("rec-a"))
	testsupport.WriteSpecFile(t, cfg, "two", specContent("rec-b"))

	rec, err := store.Find(context.Background(), "rec-b")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if rec.Project != "two" {
		t.Fatalf("expected project two, got %q", rec.Project)
	}

	if _, err := store.Find(context.Background(), "rec-missing"); !errors.Is(err, specstore.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestWithLockPersistsChanges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustStore(t, cfg)
	testsupport.WriteSpecFile(t, cfg, "demo", specContent("rec-a"))

	err := store.UpdateRecord(context.Background(), "demo", "rec-a", func(rec *changespec.Record) (bool, error) {
		rec.Status = changespec.StatusMailed
		return true, nil
	})
	if err != nil {
		t.Fatalf("UpdateRecord failed: %v", err)
	}

	records, errs := store.LoadProject("demo")
	if len(errs) != 0 {
		t.Fatalf("reload errors: %v", errs)
	}
	if records[0].Status != changespec.StatusMailed {
		t.Fatalf("status change not persisted: %q", records[0].Status)
	}
}

func TestWithLockRefusesRewriteOnParseErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustStore(t, cfg)
	testsupport.WriteSpecFile(t, cfg, "demo", specContent("rec-a")+"\nNAME: broken\nSTATUS: Bogus\n")

	err := store.WithLock(context.Background(), "demo", func(records []*changespec.Record) (bool, error) {
		return true, nil
	})
	if err == nil {
		t.Fatal("expected refusal when the file has malformed blocks")
	}
}

func TestConcurrentUpdatesBothSurvive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustStore(t, cfg)
	testsupport.WriteSpecFile(t, cfg, "demo", specContent("rec-a"))

	at := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	addLine := func(entry changespec.EntryID, offset time.Duration) error {
		return store.UpdateRecord(context.Background(), "demo", "rec-a", func(rec *changespec.Record) (bool, error) {
			rec.Hooks[0].Lines = append(rec.Hooks[0].Lines, changespec.StatusLine{
				Entry: entry,
				At:    at.Add(offset),
				State: changespec.RunStatePassed,
			})
			return true, nil
		})
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errCh <- addLine(changespec.EntryID{Num: 1}, 0) }()
	go func() { defer wg.Done(); errCh <- addLine(changespec.EntryID{Num: 1}, time.Minute) }()
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent update failed: %v", err)
		}
	}

	records, errs := store.LoadProject("demo")
	if len(errs) != 0 {
		t.Fatalf("reload errors: %v", errs)
	}
	if got := len(records[0].Hooks[0].Lines); got != 2 {
		t.Fatalf("expected both status lines to survive, got %d", got)
	}
}
