package catalog

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/alula-collections/alula-go/internal/embedder"
)

// SQLiteIndex implements MetadataIndex and ImageIndex on a local SQLite file.
// Vectors are stored as little-endian float32 blobs and ranked by brute-force
// cosine similarity, which is plenty for a catalog of a few hundred objects.
type SQLiteIndex struct {
	db   *sql.DB
	text embedder.TextEmbedder
}

// OpenSQLite opens (or creates) the index at path and runs the schema
// migration. Use ":memory:" in tests. text embeds metadata queries and may be
// nil when only the image index is used.
func OpenSQLite(path string, text embedder.TextEmbedder) (*SQLiteIndex, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("catalog: sqlite: create dir for %s: %w", path, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: sqlite: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and avoids
	// SQLITE_BUSY on writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteIndex{db: db, text: text}
	if err := s.migrate(path); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteIndex) migrate(path string) error {
	if path != ":memory:" {
		if _, err := s.db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
			return fmt.Errorf("catalog: sqlite: enable WAL: %w", err)
		}
	}
	const ddl = `
CREATE TABLE IF NOT EXISTS entries (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    inv_no  TEXT    NOT NULL UNIQUE,
    content TEXT    NOT NULL,
    images  TEXT    NOT NULL DEFAULT '[]',  -- JSON array of paths
    vector  BLOB    NOT NULL
);
CREATE TABLE IF NOT EXISTS images (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    inv_no     TEXT    NOT NULL,
    image_path TEXT    NOT NULL,
    vector     BLOB    NOT NULL,
    UNIQUE (inv_no, image_path)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("catalog: sqlite: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database connection is usable.
func (s *SQLiteIndex) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("catalog: sqlite: ping: %w", err)
	}
	return nil
}

// UpsertEntries inserts or replaces entries with their text embeddings.
func (s *SQLiteIndex) UpsertEntries(ctx context.Context, entries []Entry, vecs [][]float32) error {
	if len(entries) != len(vecs) {
		return fmt.Errorf("catalog: sqlite: %d entries but %d vectors", len(entries), len(vecs))
	}
	const q = `
INSERT INTO entries (inv_no, content, images, vector) VALUES (?, ?, ?, ?)
ON CONFLICT(inv_no) DO UPDATE SET content = excluded.content, images = excluded.images, vector = excluded.vector`
	for i, e := range entries {
		if _, err := s.db.ExecContext(ctx, q, e.InvNo, e.Content, FormatImages(e.Images), encodeVector(vecs[i])); err != nil {
			return fmt.Errorf("catalog: sqlite: upsert entry %s: %w", e.InvNo, err)
		}
	}
	return nil
}

// UpsertImages inserts or replaces image records; each must carry its Embedding.
func (s *SQLiteIndex) UpsertImages(ctx context.Context, recs []ImageRecord) error {
	const q = `
INSERT INTO images (inv_no, image_path, vector) VALUES (?, ?, ?)
ON CONFLICT(inv_no, image_path) DO UPDATE SET vector = excluded.vector`
	for _, r := range recs {
		if len(r.Embedding) == 0 {
			return fmt.Errorf("catalog: sqlite: image %q has no embedding", r.ImagePath)
		}
		if _, err := s.db.ExecContext(ctx, q, r.InvNo, r.ImagePath, encodeVector(r.Embedding)); err != nil {
			return fmt.Errorf("catalog: sqlite: upsert image %s: %w", r.ImagePath, err)
		}
	}
	return nil
}

// Search embeds query and ranks every entry by cosine similarity.
func (s *SQLiteIndex) Search(ctx context.Context, query string, k int) ([]Entry, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.text == nil {
		return nil, fmt.Errorf("catalog: sqlite: no text embedder configured")
	}
	vecs, err := s.text.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("catalog: embedding query failed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("catalog: embedder returned empty result for query")
	}
	qv := vecs[0]

	rows, err := s.db.QueryContext(ctx, `SELECT inv_no, content, images, vector FROM entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: sqlite: search: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			images string
			blob   []byte
		)
		if err := rows.Scan(&e.InvNo, &e.Content, &images, &blob); err != nil {
			return nil, fmt.Errorf("catalog: sqlite: search scan: %w", err)
		}
		score, err := cosineSimilarity(qv, decodeVector(blob))
		if err != nil {
			return nil, fmt.Errorf("catalog: sqlite: entry %s: %w", e.InvNo, err)
		}
		e.Images = ParseImages(images)
		e.Score = score
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: sqlite: search rows: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	return topK(entries, k), nil
}

// SearchByInventory returns the entry with exactly this inventory number.
func (s *SQLiteIndex) SearchByInventory(ctx context.Context, invNo string) ([]Entry, error) {
	var (
		e      Entry
		images string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT inv_no, content, images FROM entries WHERE inv_no = ?`, invNo,
	).Scan(&e.InvNo, &e.Content, &images)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: sqlite: inventory lookup: %w", err)
	}
	e.Images = ParseImages(images)
	return []Entry{e}, nil
}

// SearchByEmbedding ranks every image by cosine similarity to vec. Ties keep
// insertion order.
func (s *SQLiteIndex) SearchByEmbedding(ctx context.Context, vec []float32, k int) ([]ImageRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT inv_no, image_path, vector FROM images ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: sqlite: image search: %w", err)
	}
	defer rows.Close()

	var recs []ImageRecord
	for rows.Next() {
		var (
			r    ImageRecord
			blob []byte
		)
		if err := rows.Scan(&r.InvNo, &r.ImagePath, &blob); err != nil {
			return nil, fmt.Errorf("catalog: sqlite: image search scan: %w", err)
		}
		score, err := cosineSimilarity(vec, decodeVector(blob))
		if err != nil {
			return nil, fmt.Errorf("catalog: sqlite: image %s: %w", r.ImagePath, err)
		}
		r.Score = score
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: sqlite: image search rows: %w", err)
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	return topK(recs, k), nil
}

// Close releases the database connection pool.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("catalog: sqlite: close: %w", err)
	}
	return nil
}

// topK returns at most k leading items; none when k <= 0.
func topK[T any](items []T, k int) []T {
	if k <= 0 {
		return nil
	}
	if k < len(items) {
		return items[:k]
	}
	return items
}

// encodeVector converts a float32 slice to little-endian bytes for storage.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// decodeVector converts stored bytes back to a float32 slice.
func decodeVector(data []byte) []float32 {
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}

// cosineSimilarity returns the cosine of the angle between a and b.
// Mismatched dimensions mean the query and the index were built in different
// spaces, which is a configuration error rather than a low score.
func cosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: query %d, stored %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb))), nil
}
