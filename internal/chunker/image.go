package chunker

import (
	"fmt"
	"strings"
)

// PageImageText builds the retrievable text for an image found on a page of a
// paginated document.
func PageImageText(filename string, page int, caption, ocr string) string {
	return fmt.Sprintf("Image from page %d of %s\nVision Description: %s\nOCR Text: %s",
		page, filename, strings.TrimSpace(caption), strings.TrimSpace(ocr))
}

// FlowedImageText builds the retrievable text for an image embedded in a
// flowed document. surrounding may be empty; when present it is appended so
// the image chunk stays retrievable by the prose around it.
func FlowedImageText(filename, caption, ocr, surrounding string) string {
	text := fmt.Sprintf("Image from %s\nVision Description: %s\nOCR Text: %s",
		filename, strings.TrimSpace(caption), strings.TrimSpace(ocr))
	if surrounding != "" {
		text += "\nSurrounding Context: " + surrounding
	}
	return text
}

// SurroundingContext joins the prose before and after an embedded image,
// each truncated to limit runes, marking the image position.
func SurroundingContext(before, after string, limit int) string {
	before = strings.TrimSpace(Tail(strings.TrimSpace(before), limit))
	after = strings.TrimSpace(Head(strings.TrimSpace(after), limit))
	if before == "" && after == "" {
		return ""
	}
	return before + "\n[IMAGE HERE]\n" + after
}
