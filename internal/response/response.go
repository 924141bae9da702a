// Package response turns the agent's final message into the structured
// answer shown to users, and builds the image card that accompanies it.
package response

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/alula-collections/alula-go/internal/catalog"
)

// StructuredResponse is the user-facing answer.
type StructuredResponse struct {
	// Answer is the final explanation text.
	Answer string `json:"answer"`
	// ImagePaths lists image paths taken from retrieved metadata. Never nil.
	ImagePaths []string `json:"image_paths"`
	// InvNo is the matched inventory number, when there is one.
	InvNo *string `json:"inv_no,omitempty"`
	// Confidence is the similarity of the match, when known.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Extract parses the agent's final message. The agent is asked to reply with
// a JSON object; code fences and surrounding prose are tolerated. When no
// usable object is found the whole message becomes the answer.
func Extract(raw string) StructuredResponse {
	text := strings.TrimSpace(raw)
	fallback := StructuredResponse{Answer: text, ImagePaths: []string{}}

	body := stripFences(text)
	start := strings.IndexByte(body, '{')
	if start < 0 {
		return fallback
	}

	var in wireResponse
	dec := json.NewDecoder(bytes.NewReader([]byte(body[start:])))
	if err := dec.Decode(&in); err != nil {
		return fallback
	}
	out := StructuredResponse{
		Answer:     in.Answer,
		ImagePaths: in.ImagePaths,
		InvNo:      in.InvNo,
		Confidence: parseConfidence(in.Confidence),
	}
	out.Answer = strings.TrimSpace(out.Answer)
	if out.Answer == "" {
		return fallback
	}
	if out.ImagePaths == nil {
		out.ImagePaths = []string{}
	}
	if out.InvNo != nil && strings.TrimSpace(*out.InvNo) == "" {
		out.InvNo = nil
	}
	return out
}

// wireResponse is what models actually send. Confidence arrives as a number,
// a quoted number or null.
type wireResponse struct {
	Answer     string          `json:"answer"`
	ImagePaths []string        `json:"image_paths"`
	InvNo      *string         `json:"inv_no"`
	Confidence json.RawMessage `json:"confidence"`
}

// parseConfidence accepts 0.87, "0.87" and null. Anything else is dropped
// rather than failing the whole object.
func parseConfidence(raw json.RawMessage) *float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	rest := s[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// Merge reconciles resp with the artifacts the tools actually returned.
// Inventory numbers and image paths must come from retrieved metadata, so
// values the model produced that no artifact backs are dropped. When the
// model left them out and exactly one entry was grounded, they are filled
// from that entry.
func Merge(resp StructuredResponse, artifacts []any) StructuredResponse {
	var (
		entries   []catalog.Entry
		seen      = map[string]bool{}
		knownInv  = map[string]bool{}
		knownPath = map[string]bool{}
	)
	for _, a := range artifacts {
		switch v := a.(type) {
		case catalog.Entry:
			knownInv[v.InvNo] = true
			for _, p := range v.Images {
				knownPath[p] = true
			}
			if !seen[v.InvNo] {
				seen[v.InvNo] = true
				entries = append(entries, v)
			}
		case catalog.ImageRecord:
			knownInv[v.InvNo] = true
			knownPath[v.ImagePath] = true
		}
	}

	out := resp
	out.ImagePaths = make([]string, 0, len(resp.ImagePaths))
	for _, p := range resp.ImagePaths {
		if knownPath[p] {
			out.ImagePaths = append(out.ImagePaths, p)
		}
	}
	if out.InvNo != nil && !knownInv[*out.InvNo] {
		out.InvNo = nil
	}

	if len(entries) != 1 {
		return out
	}
	only := entries[0]
	if out.InvNo == nil {
		inv := only.InvNo
		out.InvNo = &inv
	}
	if len(out.ImagePaths) == 0 && *out.InvNo == only.InvNo {
		out.ImagePaths = append(out.ImagePaths, only.Images...)
	}
	if out.Confidence == nil && only.Score > 0 {
		c := float64(only.Score)
		out.Confidence = &c
	}
	return out
}
