package embedder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// ClipConfig holds the settings for constructing a ClipEmbedder.
type ClipConfig struct {
	// Endpoint is the inference service base URL (e.g. "http://localhost:51000").
	Endpoint string
	// Model is sent with every request (e.g. "ViT-B-32::laion2b_s34b_b79k").
	Model string
	// APIKey is an optional Bearer token.
	APIKey string
	// Client overrides the default HTTP client (tests).
	Client *http.Client
}

// ClipEmbedder implements JointEmbedder against a CLIP inference service that
// speaks the /v1/embeddings protocol with {"text": ...} and {"image": base64}
// inputs. It is safe for concurrent use.
type ClipEmbedder struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewClipEmbedder constructs a ClipEmbedder from the given config.
func NewClipEmbedder(cfg *ClipConfig) *ClipEmbedder {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ClipEmbedder{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   client,
	}
}

// clipInput is one element of the request's input array. Exactly one of the
// fields is set.
type clipInput struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type clipRequest struct {
	Model string      `json:"model,omitempty"`
	Input []clipInput `json:"input"`
}

type clipResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
}

// EmbedText embeds a free-text description into the joint space.
func (e *ClipEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, clipInput{Text: text})
}

// EmbedImage validates and embeds the image at path into the joint space.
// An invalid image returns ErrInvalidInput without contacting the service.
func (e *ClipEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	if _, err := ValidateImage(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidInput, path, err)
	}
	return e.embed(ctx, clipInput{Image: base64.StdEncoding.EncodeToString(data)})
}

func (e *ClipEmbedder) embed(ctx context.Context, in clipInput) ([]float32, error) {
	payload, err := json.Marshal(clipRequest{Model: e.model, Input: []clipInput{in}})
	if err != nil {
		return nil, fmt.Errorf("clip embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("clip embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clip embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failed clipResponse
		_ = json.NewDecoder(resp.Body).Decode(&failed)
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if failed.Detail != "" {
			msg += ": " + failed.Detail
		}
		return nil, fmt.Errorf("clip embedder: %s", msg)
	}

	var result clipResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("clip embedder: decode response: %w", err)
	}
	if len(result.Data) != 1 {
		return nil, fmt.Errorf("clip embedder: expected 1 embedding, got %d", len(result.Data))
	}

	vec, err := Normalize(result.Data[0].Embedding)
	if err != nil {
		return nil, fmt.Errorf("clip embedder: %w", err)
	}
	return vec, nil
}
