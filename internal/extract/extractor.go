// Package extract turns uploaded document bytes into ordered streams of
// page/paragraph elements with embedded media. It is the boundary to the
// binary format parsers: downstream code only ever sees Elements.
package extract

// ElementKind tags the content of an Element.
type ElementKind string

const (
	ElementText  ElementKind = "text"
	ElementImage ElementKind = "image"
)

// Element is one item of a document's content stream, in source order.
type Element struct {
	Kind ElementKind
	// Text is set for text elements.
	Text string
	// Image holds the raw encoded image bytes for image elements; ImageExt is
	// the file extension without dot ("jpeg", "png").
	Image    []byte
	ImageExt string
}

// Page is one page of a paginated document, with its 1-based page number.
type Page struct {
	Number   int
	Elements []Element
}

// Extractor extracts element streams from supported binary document formats.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}
