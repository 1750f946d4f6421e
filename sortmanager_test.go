package strata

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"

	"github.com/strata-db/strata/storage"
)

func TestSortManagerEnsureCreatesAndReuses(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t)
	if _, err := c.insertOne(ctx, Record{"_id": "00000000-0000-0000-0000-000000000050", "score": 3}); err != nil {
		t.Fatal(err)
	}

	idx1, err := c.sorts.ensureSortIndex(ctx, "score", "asc", TypeNumber)
	if err != nil {
		t.Fatal(err)
	}
	idx2, err := c.sorts.ensureSortIndex(ctx, "score", "asc", TypeNumber)
	if err != nil {
		t.Fatal(err)
	}
	if idx1 != idx2 {
		t.Fatal("expected the same index instance to be reused")
	}
}

func TestSortManagerTypeMismatchRejected(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t)
	if _, err := c.sorts.ensureSortIndex(ctx, "score", "asc", TypeNumber); err != nil {
		t.Fatal(err)
	}
	if _, err := c.sorts.ensureSortIndex(ctx, "score", "asc", TypeString); err == nil {
		t.Fatal("expected ErrIndexTypeMismatch")
	}
}

func TestSortManagerFanOut(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t)
	if _, err := c.sorts.ensureSortIndex(ctx, "score", "asc", TypeNumber); err != nil {
		t.Fatal(err)
	}
	if _, err := c.sorts.ensureSortIndex(ctx, "score", "desc", TypeNumber); err != nil {
		t.Fatal(err)
	}

	rec, err := c.insertOne(ctx, Record{"_id": "00000000-0000-0000-0000-000000000051", "score": 7})
	if err != nil {
		t.Fatal(err)
	}

	ascPage, err := c.sorts.getSortedRecords(ctx, "score", "asc", "")
	if err != nil {
		t.Fatal(err)
	}
	descPage, err := c.sorts.getSortedRecords(ctx, "score", "desc", "")
	if err != nil {
		t.Fatal(err)
	}
	if ascPage.TotalRecords != 1 || descPage.TotalRecords != 1 {
		t.Fatalf("expected both indexes to see the insert: asc=%d desc=%d", ascPage.TotalRecords, descPage.TotalRecords)
	}
	_ = rec
}

func TestSortManagerListAndDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t)
	if _, err := c.sorts.ensureSortIndex(ctx, "score", "asc", TypeNumber); err != nil {
		t.Fatal(err)
	}

	names, err := c.sorts.listSortIndexes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "score_asc" {
		t.Fatalf("listSortIndexes = %v, want [score_asc]", names)
	}

	existed, err := c.sorts.deleteSortIndex(ctx, "score", "asc")
	if err != nil || !existed {
		t.Fatalf("existed=%v err=%v", existed, err)
	}

	names, err = c.sorts.listSortIndexes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no indexes left, got %v", names)
	}

	existed, err = c.sorts.deleteSortIndex(ctx, "score", "asc")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}
}

func TestSortManagerDeleteAll(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t)
	for _, dir := range []string{"asc", "desc"} {
		if _, err := c.sorts.ensureSortIndex(ctx, "score", dir, TypeNumber); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.sorts.deleteAllSortIndexes(ctx); err != nil {
		t.Fatal(err)
	}
	names, err := c.sorts.listSortIndexes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no indexes left, got %v", names)
	}
}

func TestSortManagerListFindsOnDiskOnlyIndex(t *testing.T) {
	ctx := context.Background()
	fs, err := storage.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	cfg := Config{ShardCount: 4, MaxCachedShards: 2}.withDefaults()

	c := openCollection(fs, "widgets", cfg, clock.New())
	if _, err := c.sorts.ensureSortIndex(ctx, "score", "asc", TypeNumber); err != nil {
		t.Fatal(err)
	}
	if err := c.shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	reopened := openCollection(fs, "widgets", cfg, clock.New())
	defer reopened.shutdown(ctx)
	names, err := reopened.sorts.listSortIndexes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "score_asc" {
		t.Fatalf("listSortIndexes on reopened collection = %v, want [score_asc]", names)
	}
}
