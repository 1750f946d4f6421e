package strata

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/strata-db/strata/storage"
)

func newTestSortIndex(t *testing.T, typ indexType, pageSize int) *sortIndex {
	t.Helper()
	fs, err := storage.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fs.Close() })
	idx, err := openSortIndex(context.Background(), fs, "sort_indexes/widgets/score_asc", "score", "asc", typ, pageSize, false)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func recWithScore(score int) Record {
	return Record{"_id": uuid.NewString(), "score": score}
}

func collectAllPages(t *testing.T, s *sortIndex) ([]Record, int64) {
	t.Helper()
	ctx := context.Background()
	var out []Record
	pageID := ""
	var totalPages int64
	for {
		page, err := s.getPage(ctx, pageID)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, page.Records...)
		totalPages = page.TotalPages
		if page.NextPageID == "" {
			break
		}
		pageID = page.NextPageID
	}
	return out, totalPages
}

// TestSortIndexSplit checks that with page_size=2, inserting scores
// 10,20,30,40,50 then 25,15 yields leaves in order
// [10,15,20,25,30,40,50] with 4 total pages, and a range query
// [15,30] inclusive returns exactly those 4 records.
func TestSortIndexSplit(t *testing.T) {
	ctx := context.Background()
	s := newTestSortIndex(t, TypeNumber, 2)

	for _, score := range []int{10, 20, 30, 40, 50, 25, 15} {
		if err := s.addRecord(ctx, recWithScore(score)); err != nil {
			t.Fatal(err)
		}
	}

	recs, totalPages := collectAllPages(t, s)
	if len(recs) != 7 {
		t.Fatalf("got %d records, want 7", len(recs))
	}
	var scores []int
	for _, r := range recs {
		scores = append(scores, int(r["score"].(int)))
	}
	want := []int{10, 15, 20, 25, 30, 40, 50}
	for i, w := range want {
		if scores[i] != w {
			t.Fatalf("scores = %v, want %v", scores, want)
		}
	}
	if totalPages != 4 {
		t.Fatalf("totalPages = %d, want 4", totalPages)
	}

	ranged, err := s.findByRange(ctx, rangeOptions{Min: 15, Max: 30, HasMin: true, HasMax: true, MinInclusive: true, MaxInclusive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 4 {
		t.Fatalf("range returned %d records, want 4", len(ranged))
	}
}

// TestSortIndexNumberVsStringType checks that the same numeral
// strings sort numerically under type=number and lexicographically
// under type=string.
func TestSortIndexNumberVsStringType(t *testing.T) {
	ctx := context.Background()
	values := []string{"10", "2", "100", "20"}

	numIdx := newTestSortIndex(t, TypeNumber, 10)
	for _, v := range values {
		rec := Record{"_id": uuid.NewString(), "score": v}
		if err := numIdx.addRecord(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	numRecs, _ := collectAllPages(t, numIdx)
	var numOrder []string
	for _, r := range numRecs {
		numOrder = append(numOrder, r["score"].(string))
	}
	wantNum := []string{"2", "10", "20", "100"}
	for i, w := range wantNum {
		if numOrder[i] != w {
			t.Fatalf("number order = %v, want %v", numOrder, wantNum)
		}
	}

	strIdx := newTestSortIndex(t, TypeString, 10)
	for _, v := range values {
		rec := Record{"_id": uuid.NewString(), "score": v}
		if err := strIdx.addRecord(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	strRecs, _ := collectAllPages(t, strIdx)
	var strOrder []string
	for _, r := range strRecs {
		strOrder = append(strOrder, r["score"].(string))
	}
	wantStr := []string{"10", "100", "2", "20"}
	for i, w := range wantStr {
		if strOrder[i] != w {
			t.Fatalf("string order = %v, want %v", strOrder, wantStr)
		}
	}
}

// TestSortIndexFindByValue checks that findByValue returns
// exactly the records whose indexed value equals v.
func TestSortIndexFindByValue(t *testing.T) {
	ctx := context.Background()
	s := newTestSortIndex(t, TypeNumber, 2)
	for _, score := range []int{5, 10, 10, 15, 10} {
		if err := s.addRecord(ctx, recWithScore(score)); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.findByValue(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("findByValue(10) returned %d records, want 3", len(got))
	}
}

// TestSortIndexDeleteRecord exercises deleteRecord and confirms that,
// after the delete, pagination returns every remaining record and not
// the deleted one.
func TestSortIndexDeleteRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestSortIndex(t, TypeNumber, 2)
	recs := make([]Record, 0, 5)
	for _, score := range []int{1, 2, 3, 4, 5} {
		r := recWithScore(score)
		recs = append(recs, r)
		if err := s.addRecord(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.deleteRecord(ctx, recs[2]); err != nil {
		t.Fatal(err)
	}

	remaining, _ := collectAllPages(t, s)
	if len(remaining) != 4 {
		t.Fatalf("got %d remaining, want 4", len(remaining))
	}
	for _, r := range remaining {
		if r.ID() == recs[2].ID() {
			t.Fatal("deleted record still present")
		}
	}
}

// TestSortIndexReadonlyRejectsMutation covers the Readonly error kind.
func TestSortIndexReadonlyRejectsMutation(t *testing.T) {
	fs, err := storage.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	ctx := context.Background()
	s, err := openSortIndex(ctx, fs, "sort_indexes/widgets/score_asc", "score", "asc", TypeNumber, 10, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.addRecord(ctx, recWithScore(1)); err != ErrReadonly {
		t.Fatalf("expected ErrReadonly, got %v", err)
	}
}

// TestSortIndexPaginationCompleteness checks that starting from
// getPage("") and following nextPageId returns each record exactly once.
func TestSortIndexPaginationCompleteness(t *testing.T) {
	ctx := context.Background()
	s := newTestSortIndex(t, TypeNumber, 3)
	ids := map[string]bool{}
	for i := 0; i < 23; i++ {
		r := recWithScore(i)
		ids[r.ID()] = false
		if err := s.addRecord(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	recs, _ := collectAllPages(t, s)
	if len(recs) != len(ids) {
		t.Fatalf("got %d records, want %d", len(recs), len(ids))
	}
	for _, r := range recs {
		if ids[r.ID()] {
			t.Fatalf("record %s seen twice", r.ID())
		}
		ids[r.ID()] = true
	}
	for id, seen := range ids {
		if !seen {
			t.Fatalf("record %s never paginated to", id)
		}
	}
}
