package catalog

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/alula-collections/alula-go/internal/embedder"
)

// Payload keys shared with the ingestion side.
const (
	payloadInvNo     = "inv_no"
	payloadContent   = "content"
	payloadImages    = "images"
	payloadImagePath = "image_path"
)

// QdrantConfig holds connection parameters for the Qdrant collections.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string
	// Port is the Qdrant gRPC port (default: 6334).
	Port int
	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string
	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// TextCollection holds catalog entries (default: heritage_text).
	TextCollection string
	// ImageCollection holds image embeddings (default: heritage_images).
	ImageCollection string

	// TextVectorSize and ImageVectorSize are only used when CreateMissing
	// creates a collection.
	TextVectorSize  uint64
	ImageVectorSize uint64
	// CreateMissing creates absent collections instead of failing.
	CreateMissing bool
}

// QdrantIndex implements MetadataIndex and ImageIndex on two Qdrant
// collections. It is safe for concurrent use.
type QdrantIndex struct {
	client *qdrant.Client
	cfg    QdrantConfig
	text   embedder.TextEmbedder
}

// NewQdrantIndex connects to Qdrant and checks that both collections exist.
// text embeds metadata queries; it must match the space the text collection
// was built with.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, text embedder.TextEmbedder) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.TextCollection == "" {
		cfg.TextCollection = "heritage_text"
	}
	if cfg.ImageCollection == "" {
		cfg.ImageCollection = "heritage_images"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg, text: text}
	for _, c := range []struct {
		name string
		size uint64
	}{
		{cfg.TextCollection, cfg.TextVectorSize},
		{cfg.ImageCollection, cfg.ImageVectorSize},
	} {
		if err := idx.ensureCollection(ctx, c.name, c.size); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return idx, nil
}

// ensureCollection fails when name is absent, unless CreateMissing is set.
func (q *QdrantIndex) ensureCollection(ctx context.Context, name string, size uint64) error {
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("catalog: qdrant: failed to check collection %q: %w", name, err)
	}
	if exists {
		return nil
	}
	if !q.cfg.CreateMissing {
		return fmt.Errorf("catalog: qdrant: collection %q does not exist", name)
	}
	if size == 0 {
		return fmt.Errorf("catalog: qdrant: cannot create %q without a vector size", name)
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("catalog: qdrant: failed to create collection %q: %w", name, err)
	}
	return nil
}

// Client exposes the underlying client for readiness checks.
func (q *QdrantIndex) Client() *qdrant.Client {
	return q.client
}

// Search embeds query and returns the k nearest catalog entries.
func (q *QdrantIndex) Search(ctx context.Context, query string, k int) ([]Entry, error) {
	if k <= 0 {
		return nil, nil
	}
	vecs, err := q.text.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("catalog: embedding query failed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("catalog: embedder returned empty result for query")
	}

	limit := uint64(k)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.TextCollection,
		Query:          qdrant.NewQuery(vecs[0]...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: qdrant: search failed: %w", err)
	}

	var entries []Entry
	for _, p := range points {
		e := entryFromPayload(p.GetPayload())
		e.Score = p.GetScore()
		entries = append(entries, e)
	}
	return entries, nil
}

// SearchByInventory scrolls the text collection with an exact keyword filter
// on inv_no. No vector similarity is involved.
func (q *QdrantIndex) SearchByInventory(ctx context.Context, invNo string) ([]Entry, error) {
	limit := uint32(1)
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.cfg.TextCollection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{fieldMatch(payloadInvNo, invNo)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: qdrant: inventory lookup failed: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return []Entry{entryFromPayload(points[0].GetPayload())}, nil
}

// SearchByEmbedding returns the k nearest images to vec.
func (q *QdrantIndex) SearchByEmbedding(ctx context.Context, vec []float32, k int) ([]ImageRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	limit := uint64(k)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.ImageCollection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: qdrant: image search failed: %w", err)
	}

	var recs []ImageRecord
	for _, p := range points {
		payload := p.GetPayload()
		recs = append(recs, ImageRecord{
			InvNo:     payload[payloadInvNo].GetStringValue(),
			ImagePath: payload[payloadImagePath].GetStringValue(),
			Score:     p.GetScore(),
		})
	}
	return recs, nil
}

// UpsertEntries writes entries with their precomputed text embeddings.
// Point IDs derive from inv_no so re-running is idempotent.
func (q *QdrantIndex) UpsertEntries(ctx context.Context, entries []Entry, vecs [][]float32) error {
	if len(entries) != len(vecs) {
		return fmt.Errorf("catalog: qdrant: %d entries but %d vectors", len(entries), len(vecs))
	}
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for i, e := range entries {
		images := make([]*qdrant.Value, 0, len(e.Images))
		for _, img := range e.Images {
			images = append(images, stringValue(img))
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(pointID(e.InvNo)),
			Vectors: qdrant.NewVectors(vecs[i]...),
			Payload: map[string]*qdrant.Value{
				payloadInvNo:   stringValue(e.InvNo),
				payloadContent: stringValue(e.Content),
				payloadImages: {
					Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: images}},
				},
			},
		})
	}
	return q.upsert(ctx, q.cfg.TextCollection, points)
}

// UpsertImages writes image records; each record must carry its Embedding.
func (q *QdrantIndex) UpsertImages(ctx context.Context, recs []ImageRecord) error {
	points := make([]*qdrant.PointStruct, 0, len(recs))
	for _, r := range recs {
		if len(r.Embedding) == 0 {
			return fmt.Errorf("catalog: qdrant: image %q has no embedding", r.ImagePath)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(pointID(r.InvNo + "\x00" + r.ImagePath)),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: map[string]*qdrant.Value{
				payloadInvNo:     stringValue(r.InvNo),
				payloadImagePath: stringValue(r.ImagePath),
			},
		})
	}
	return q.upsert(ctx, q.cfg.ImageCollection, points)
}

func (q *QdrantIndex) upsert(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	if len(points) == 0 {
		return nil
	}
	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("catalog: qdrant: upsert into %q failed: %w", collection, err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// entryFromPayload maps a point payload onto an Entry. images may be stored
// as a list or as a serialised string.
func entryFromPayload(p map[string]*qdrant.Value) Entry {
	e := Entry{
		InvNo:   p[payloadInvNo].GetStringValue(),
		Content: p[payloadContent].GetStringValue(),
	}
	if v, ok := p[payloadImages]; ok {
		if list := v.GetListValue(); list != nil {
			for _, item := range list.GetValues() {
				if s := item.GetStringValue(); s != "" {
					e.Images = append(e.Images, s)
				}
			}
		} else {
			e.Images = ParseImages(v.GetStringValue())
		}
	}
	return e
}

func fieldMatch(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

// pointID hashes key into a stable numeric point ID.
func pointID(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}
