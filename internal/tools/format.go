package tools

import (
	"fmt"
	"strings"

	"github.com/alula-collections/alula-go/internal/catalog"
)

// Fixed messages returned as Result.Text when nothing matched.
const (
	MsgNoMatchingObjects = "No matching objects found."
	MsgNoInventoryMatch  = "No object found with this inventory number."
	MsgNoSimilarImages   = "No similar images found."
	MsgImagePathNotFound = "Image path not found."
	MsgNoSimilarArtifact = "No similar artifact found."
	MsgMetadataNotFound  = "Metadata not found for matched artifact."
)

const inventoryLabel = "Inventory: "

// formatEntry renders an entry as a retrieve_text_context block.
func formatEntry(e catalog.Entry) string {
	return fmt.Sprintf("%s%s\nImages: %s\nContent:\n%s",
		inventoryLabel, e.InvNo, catalog.FormatImages(e.Images), e.Content)
}

// formatInventoryEntry renders the retrieve_by_inventory block.
func formatInventoryEntry(e catalog.Entry) string {
	return fmt.Sprintf("%s%s\nImages: %s\n\n%s",
		inventoryLabel, e.InvNo, catalog.FormatImages(e.Images), e.Content)
}

// formatImageRecord renders one search_image_by_text result.
func formatImageRecord(r catalog.ImageRecord) string {
	return fmt.Sprintf("%s%s\nImage Path: %s\n\n", inventoryLabel, r.InvNo, r.ImagePath)
}

// ParseInventory returns the first inventory number in tool output, or "".
func ParseInventory(text string) string {
	if all := ParseInventories(text); len(all) > 0 {
		return all[0]
	}
	return ""
}

// ParseInventories returns every inventory number in tool output, in order.
func ParseInventories(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if inv, ok := strings.CutPrefix(line, inventoryLabel); ok {
			out = append(out, inv)
		}
	}
	return out
}

// ParseImagePaths returns every "Image Path:" value in tool output, in order.
func ParseImagePaths(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if p, ok := strings.CutPrefix(line, "Image Path: "); ok {
			out = append(out, p)
		}
	}
	return out
}
