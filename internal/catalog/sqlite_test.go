package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeText maps known queries to fixed vectors.
type fakeText struct {
	vecs  map[string][]float32
	err   error
	calls int
}

func (f *fakeText) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vecs[t]
		if !ok {
			return nil, fmt.Errorf("fakeText: no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

// openTestIndex opens an in-memory SQLiteIndex seeded with three entries and
// five images.
func openTestIndex(t *testing.T, text *fakeText) *SQLiteIndex {
	t.Helper()
	s, err := OpenSQLite(":memory:", text)
	if err != nil {
		t.Fatalf("open in-memory index: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	entries := []Entry{
		{InvNo: "AL-001", Content: "Sandstone statue of a Lihyanite king", Images: []string{"img/al-001_front.jpg", "img/al-001_side.jpg"}},
		{InvNo: "AL-042", Content: "Bronze incense burner", Images: []string{"img/al-042.jpg"}},
		{InvNo: "AL-077", Content: "Nabataean inscription fragment"},
	}
	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if err := s.UpsertEntries(ctx, entries, vecs); err != nil {
		t.Fatalf("upsert entries: %v", err)
	}

	images := []ImageRecord{
		{InvNo: "AL-001", ImagePath: "img/al-001_front.jpg", Embedding: []float32{1, 0}},
		{InvNo: "AL-001", ImagePath: "img/al-001_side.jpg", Embedding: []float32{0.9, 0.1}},
		{InvNo: "AL-042", ImagePath: "img/al-042.jpg", Embedding: []float32{0, 1}},
		{InvNo: "AL-077", ImagePath: "img/al-077.jpg", Embedding: []float32{0.5, 0.5}},
		{InvNo: "AL-099", ImagePath: "img/al-099.jpg", Embedding: []float32{-1, 0}},
	}
	if err := s.UpsertImages(ctx, images); err != nil {
		t.Fatalf("upsert images: %v", err)
	}
	return s
}

func Test_SQLite_SearchRanksByCosine(t *testing.T) {
	t.Parallel()
	text := &fakeText{vecs: map[string][]float32{"incense": {0.1, 0.9, 0}}}
	s := openTestIndex(t, text)

	got, err := s.Search(context.Background(), "incense", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 results, got %d", len(got))
	}
	if got[0].InvNo != "AL-042" {
		t.Errorf("top result: want AL-042, got %s", got[0].InvNo)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("results not in descending order: %f < %f", got[0].Score, got[1].Score)
	}
	if len(got[0].Images) != 1 || got[0].Images[0] != "img/al-042.jpg" {
		t.Errorf("images not round-tripped: %v", got[0].Images)
	}
}

func Test_SQLite_SearchPropagatesEmbedError(t *testing.T) {
	t.Parallel()
	text := &fakeText{}
	s := openTestIndex(t, text)
	text.err = errors.New("embedding service down")

	if _, err := s.Search(context.Background(), "anything", 3); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func Test_SQLite_SearchByInventoryExact(t *testing.T) {
	t.Parallel()
	text := &fakeText{}
	s := openTestIndex(t, text)
	ctx := context.Background()

	got, err := s.SearchByInventory(ctx, "AL-042")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got) != 1 || got[0].InvNo != "AL-042" || got[0].Content != "Bronze incense burner" {
		t.Fatalf("unexpected result: %+v", got)
	}

	for _, miss := range []string{"AL-04", "al-042", "AL-0420", ""} {
		got, err := s.SearchByInventory(ctx, miss)
		if err != nil {
			t.Fatalf("lookup %q: %v", miss, err)
		}
		if len(got) != 0 {
			t.Errorf("lookup %q: want no match, got %+v", miss, got)
		}
	}
	if text.calls != 0 {
		t.Errorf("exact lookup must not embed, embedder called %d times", text.calls)
	}
}

func Test_SQLite_SearchByEmbeddingOrderAndLimit(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, &fakeText{})

	got, err := s.SearchByEmbedding(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("image search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 results from an index of 5, got %d", len(got))
	}
	want := []string{"img/al-001_front.jpg", "img/al-001_side.jpg", "img/al-077.jpg"}
	for i, w := range want {
		if got[i].ImagePath != w {
			t.Errorf("result[%d]: want %s, got %s", i, w, got[i].ImagePath)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Score < got[i].Score {
			t.Errorf("scores not descending at %d", i)
		}
	}
}

func Test_SQLite_SearchByEmbeddingTiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	s, err := OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	recs := []ImageRecord{
		{InvNo: "AL-010", ImagePath: "b.jpg", Embedding: []float32{1, 1}},
		{InvNo: "AL-011", ImagePath: "a.jpg", Embedding: []float32{2, 2}},
	}
	if err := s.UpsertImages(ctx, recs); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.SearchByEmbedding(ctx, []float32{1, 1}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got[0].ImagePath != "b.jpg" || got[1].ImagePath != "a.jpg" {
		t.Errorf("tie order: got %s, %s", got[0].ImagePath, got[1].ImagePath)
	}
}

func Test_SQLite_EmptyIndexIsNotAnError(t *testing.T) {
	t.Parallel()
	s, err := OpenSQLite(":memory:", &fakeText{vecs: map[string][]float32{"q": {1}}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	entries, err := s.Search(ctx, "q", 3)
	if err != nil || len(entries) != 0 {
		t.Errorf("Search on empty index: %v, %v", entries, err)
	}
	recs, err := s.SearchByEmbedding(ctx, []float32{1}, 3)
	if err != nil || len(recs) != 0 {
		t.Errorf("SearchByEmbedding on empty index: %v, %v", recs, err)
	}
}

func Test_SQLite_NonPositiveKReturnsNothing(t *testing.T) {
	t.Parallel()
	text := &fakeText{vecs: map[string][]float32{"incense": {0.1, 0.9, 0}}}
	s := openTestIndex(t, text)
	ctx := context.Background()

	for _, k := range []int{0, -1} {
		entries, err := s.Search(ctx, "incense", k)
		if err != nil || len(entries) != 0 {
			t.Errorf("Search(k=%d) = %v, %v; want empty", k, entries, err)
		}
		recs, err := s.SearchByEmbedding(ctx, []float32{1, 0}, k)
		if err != nil || len(recs) != 0 {
			t.Errorf("SearchByEmbedding(k=%d) = %v, %v; want empty", k, recs, err)
		}
	}
	if text.calls != 0 {
		t.Errorf("embedder called %d times for k <= 0", text.calls)
	}
}

func TestTopK(t *testing.T) {
	t.Parallel()
	items := []int{1, 2, 3}
	for k, want := range map[int]int{-2: 0, 0: 0, 2: 2, 3: 3, 9: 3} {
		if got := topK(items, k); len(got) != want {
			t.Errorf("topK(k=%d) has %d items, want %d", k, len(got), want)
		}
	}
}

func Test_SQLite_DimensionMismatchIsError(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, &fakeText{})
	if _, err := s.SearchByEmbedding(context.Background(), []float32{1, 0, 0, 0}, 1); err == nil {
		t.Fatal("expected dimension mismatch error, got nil")
	}
}

func Test_SQLite_UpsertIsIdempotent(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, &fakeText{})
	ctx := context.Background()

	updated := []Entry{{InvNo: "AL-042", Content: "Bronze incense burner, lion head", Images: []string{"img/al-042.jpg"}}}
	if err := s.UpsertEntries(ctx, updated, [][]float32{{0, 1, 0}}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, err := Lookup(ctx, s, "AL-042")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Content != "Bronze incense burner, lion head" {
		t.Errorf("content not replaced: %q", got.Content)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("want 3 rows after re-upsert, got %d", n)
	}
}

func Test_Lookup_NotFound(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t, &fakeText{})
	if _, err := Lookup(context.Background(), s, "AL-999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}
