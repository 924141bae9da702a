//go:build integration

package catalog

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"
)

// TestQdrantIndex_Integration seeds two throwaway collections in a running
// Qdrant and checks every read path against them.
//
// Run with:
//
//	docker run -p 6334:6334 qdrant/qdrant
//	go test -tags=integration -run TestQdrantIndex_Integration ./internal/catalog/
func TestQdrantIndex_Integration(t *testing.T) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p, err := strconv.Atoi(os.Getenv("QDRANT_PORT")); err == nil {
		port = p
	}

	suffix := strconv.FormatInt(time.Now().UnixNano(), 36)
	cfg := QdrantConfig{
		Host:            host,
		Port:            port,
		APIKey:          os.Getenv("QDRANT_API_KEY"),
		TextCollection:  "it_text_" + suffix,
		ImageCollection: "it_images_" + suffix,
		TextVectorSize:  2,
		ImageVectorSize: 2,
		CreateMissing:   true,
	}
	text := &fakeText{vecs: map[string][]float32{
		"bronze": {1, 0},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	q, err := NewQdrantIndex(ctx, cfg, text)
	if err != nil {
		t.Skipf("qdrant not reachable at %s:%d: %v", host, port, err)
	}
	t.Cleanup(func() {
		_ = q.Client().DeleteCollection(context.Background(), cfg.TextCollection)
		_ = q.Client().DeleteCollection(context.Background(), cfg.ImageCollection)
		_ = q.Close()
	})

	entries := []Entry{
		{InvNo: "AL-001", Content: "Bronze incense burner.", Images: []string{"img/al-001.jpg"}},
		{InvNo: "AL-002", Content: "Sandstone statue.", Images: []string{"img/al-002a.jpg", "img/al-002b.jpg"}},
	}
	if err := q.UpsertEntries(ctx, entries, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("UpsertEntries: %v", err)
	}
	if err := q.UpsertImages(ctx, []ImageRecord{
		{InvNo: "AL-001", ImagePath: "img/al-001.jpg", Embedding: []float32{0.6, 0.8}},
		{InvNo: "AL-002", ImagePath: "img/al-002a.jpg", Embedding: []float32{0, 1}},
	}); err != nil {
		t.Fatalf("UpsertImages: %v", err)
	}

	got, err := q.Search(ctx, "bronze", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].InvNo != "AL-001" {
		t.Errorf("Search = %+v, want AL-001 first", got)
	}

	byInv, err := q.SearchByInventory(ctx, "AL-002")
	if err != nil {
		t.Fatalf("SearchByInventory: %v", err)
	}
	if len(byInv) != 1 || len(byInv[0].Images) != 2 {
		t.Errorf("SearchByInventory = %+v", byInv)
	}
	if none, err := q.SearchByInventory(ctx, "AL-999"); err != nil || len(none) != 0 {
		t.Errorf("missing inventory: got %v, %v", none, err)
	}

	recs, err := q.SearchByEmbedding(ctx, []float32{0, 1}, 2)
	if err != nil {
		t.Fatalf("SearchByEmbedding: %v", err)
	}
	if len(recs) != 2 || recs[0].ImagePath != "img/al-002a.jpg" {
		t.Errorf("SearchByEmbedding = %s", fmt.Sprint(recs))
	}
}
