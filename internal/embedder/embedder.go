// Package embedder turns queries and images into dense vectors. Two spaces
// are kept apart on purpose: TextEmbedder feeds the metadata index
// (multilingual e5 style), JointEmbedder feeds the image index (CLIP, where
// text and images share one space). Every vector returned by this package is
// L2-normalised, so inner product equals cosine similarity.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned when an image is missing, unreadable or cannot
// be decoded. No embedding request is made in that case.
var ErrInvalidInput = errors.New("embedder: invalid input")

// ErrZeroVector is returned when a backend produces a vector with zero norm.
var ErrZeroVector = errors.New("embedder: zero-norm vector cannot be normalised")

// TextEmbedder converts text into vectors in the metadata-index space.
// The returned slice is parallel to the input slice.
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// JointEmbedder converts text or an image into the joint text/image space
// used by the image index.
type JointEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, path string) ([]float32, error)
}

// Normalize returns a unit-length copy of v.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, ErrZeroVector
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// normalizeAll normalises every vector in place of the batch.
func normalizeAll(vecs [][]float32) ([][]float32, error) {
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("embedding %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

// Prefixed wraps a TextEmbedder and prepends a fixed prefix to every input.
// e5 models are trained with "query: " on the search side.
type Prefixed struct {
	inner  TextEmbedder
	prefix string
}

// WithQueryPrefix returns e unchanged when prefix is empty.
func WithQueryPrefix(e TextEmbedder, prefix string) TextEmbedder {
	if prefix == "" {
		return e
	}
	return &Prefixed{inner: e, prefix: prefix}
}

// Embed prefixes each text and delegates to the wrapped embedder.
func (p *Prefixed) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	in := make([]string, len(texts))
	for i, t := range texts {
		in[i] = p.prefix + t
	}
	return p.inner.Embed(ctx, in)
}
