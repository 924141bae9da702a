package response

import (
	"net/url"
	"strings"
)

// Card is an Adaptive Card document.
type Card struct {
	Schema  string        `json:"$schema"`
	Type    string        `json:"type"`
	Version string        `json:"version"`
	Body    []CardElement `json:"body"`
}

// CardElement is a TextBlock or Image element.
type CardElement struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Weight  string `json:"weight,omitempty"`
	Size    string `json:"size,omitempty"`
	Wrap    bool   `json:"wrap,omitempty"`
	URL     string `json:"url,omitempty"`
	AltText string `json:"altText,omitempty"`
}

// NewImageCard returns a card showing the first image of resp, or nil when
// resp has no images. Relative image paths are served under
// baseURL/api/images/.
func NewImageCard(resp StructuredResponse, baseURL string) *Card {
	if len(resp.ImagePaths) == 0 {
		return nil
	}
	title := "Artifact"
	if resp.InvNo != nil {
		title = "Inventory: " + *resp.InvNo
	}
	return &Card{
		Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
		Type:    "AdaptiveCard",
		Version: "1.5",
		Body: []CardElement{
			{Type: "TextBlock", Text: title, Weight: "Bolder", Size: "Medium", Wrap: true},
			{Type: "Image", URL: ImageURL(baseURL, resp.ImagePaths[0]), AltText: title},
		},
	}
}

// ImageURL maps a catalog image path to a URL the client can fetch.
func ImageURL(baseURL, imagePath string) string {
	if strings.HasPrefix(imagePath, "http://") || strings.HasPrefix(imagePath, "https://") {
		return imagePath
	}
	clean := strings.TrimLeft(strings.ReplaceAll(imagePath, "\\", "/"), "/")
	segments := strings.Split(clean, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(baseURL, "/") + "/api/images/" + strings.Join(segments, "/")
}
