// Package catalog holds the two indexes the assistant retrieves from: the
// metadata index (catalog entries, searched by meaning or by exact inventory
// number) and the image index (image embeddings in the joint CLIP space).
// Backends are Qdrant for deployments and SQLite for local use and tests;
// both satisfy the same interfaces so the tools never depend on a backend.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotFound is returned by Lookup when no entry carries the inventory number.
var ErrNotFound = errors.New("catalog: not found")

// Entry is one object from the collection.
type Entry struct {
	// InvNo is the inventory number (e.g. "AL-042"). Exact-match key.
	InvNo string `json:"inv_no"`
	// Content is the descriptive text: title, period, material, description.
	Content string `json:"content"`
	// Images lists image paths associated with the object. May be empty.
	Images []string `json:"images"`
	// Score is the similarity assigned by the index. Zero when not computed.
	Score float32 `json:"score,omitempty"`
}

// ImageRecord is one image in the image index.
type ImageRecord struct {
	InvNo     string `json:"inv_no"`
	ImagePath string `json:"image_path"`
	// Embedding is the joint-space vector. Usually nil on read.
	Embedding []float32 `json:"-"`
	Score     float32   `json:"score,omitempty"`
}

// MetadataIndex searches catalog entries. Implementations must be safe for
// concurrent use. An empty result is (nil, nil), never an error.
type MetadataIndex interface {
	// Search returns up to k entries most similar to query, best first.
	Search(ctx context.Context, query string, k int) ([]Entry, error)
	// SearchByInventory returns the single entry whose InvNo equals invNo
	// exactly, or nothing.
	SearchByInventory(ctx context.Context, invNo string) ([]Entry, error)
}

// ImageIndex searches image embeddings. Implementations must be safe for
// concurrent use. An empty result is (nil, nil), never an error.
type ImageIndex interface {
	// SearchByEmbedding returns up to k records ordered by descending similarity.
	SearchByEmbedding(ctx context.Context, vec []float32, k int) ([]ImageRecord, error)
}

// Lookup is SearchByInventory returning the entry directly, or ErrNotFound.
func Lookup(ctx context.Context, idx MetadataIndex, invNo string) (Entry, error) {
	entries, err := idx.SearchByInventory(ctx, invNo)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNotFound
	}
	return entries[0], nil
}

// FormatImages renders an image list the way tool output carries it: a JSON
// array, so paths survive verbatim and can be parsed back.
func FormatImages(images []string) string {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// ParseImages is the inverse of FormatImages. It also accepts the
// comma-separated and Python-list forms older ingestions stored as a string.
func ParseImages(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" || s == "None" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	for _, p := range strings.Split(s, ",") {
		p = strings.Trim(strings.TrimSpace(p), `'"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
