package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// imageObjRe locates image XObject dictionaries in the raw PDF body. Only
// DCTDecode (baseline JPEG) streams are extracted; other encodings are left
// for the captioning step to miss rather than failing the whole file.
var imageObjRe = regexp.MustCompile(`/Subtype\s*/Image`)

// PDF extracts per-page text and embedded JPEG images from a PDF file.
// Pages with no text and no images are still emitted (empty element list) so
// page numbering stays aligned with the source document.
func (e *Extractor) PDF(content []byte) ([]Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]Page, numPages)
	for i := 0; i < numPages; i++ {
		pages[i] = Page{Number: i + 1}
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		if strings.TrimSpace(text) != "" {
			pages[i].Elements = append(pages[i].Elements, Element{Kind: ElementText, Text: text})
		}
	}
	if numPages == 0 {
		return pages, nil
	}
	images := scanJPEGObjects(content)
	claimed := make([]bool, len(images))
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		// The page's /Resources /XObject dictionary names the image streams
		// it draws. The reader resolves references but hides object numbers,
		// so each referenced stream is matched to a scanned object by its
		// declared /Length.
		xobjs := page.V.Key("Resources").Key("XObject")
		for _, name := range xobjs.Keys() {
			x := xobjs.Key(name)
			if x.Key("Subtype").Name() != "Image" {
				continue
			}
			length := x.Key("Length").Int64()
			for j := range images {
				if claimed[j] || !matchesLength(images[j], length) {
					continue
				}
				claimed[j] = true
				pages[i].Elements = append(pages[i].Elements, Element{
					Kind:     ElementImage,
					Image:    images[j].data,
					ImageExt: "jpeg",
				})
				break
			}
		}
	}
	for j, img := range images {
		if claimed[j] {
			continue
		}
		// Unreferenced or unresolvable image objects fall back to byte-offset
		// attribution: linearized PDFs keep objects near the page that uses
		// them.
		pageIdx := img.offset * numPages / len(content)
		if pageIdx >= numPages {
			pageIdx = numPages - 1
		}
		pages[pageIdx].Elements = append(pages[pageIdx].Elements, Element{
			Kind:     ElementImage,
			Image:    img.data,
			ImageExt: "jpeg",
		})
	}
	return pages, nil
}

type pdfImage struct {
	offset int
	rawLen int
	data   []byte
}

// matchesLength reports whether a scanned stream object carries the declared
// /Length. The raw span may include the end-of-line bytes before endstream,
// so the trimmed payload length is accepted too.
func matchesLength(img pdfImage, length int64) bool {
	return length > 0 && (length == int64(len(img.data)) || length == int64(img.rawLen))
}

// scanJPEGObjects walks the raw PDF bytes for /Subtype /Image stream objects
// whose filter is DCTDecode and returns their JPEG payloads in file order.
func scanJPEGObjects(content []byte) []pdfImage {
	var images []pdfImage
	for _, loc := range imageObjRe.FindAllIndex(content, -1) {
		streamStart := bytes.Index(content[loc[1]:], []byte("stream"))
		if streamStart < 0 {
			continue
		}
		dict := content[loc[1] : loc[1]+streamStart]
		if !bytes.Contains(dict, []byte("/DCTDecode")) {
			continue
		}
		dataStart := loc[1] + streamStart + len("stream")
		// "stream" is followed by CRLF or LF before the payload.
		if dataStart < len(content) && content[dataStart] == '\r' {
			dataStart++
		}
		if dataStart < len(content) && content[dataStart] == '\n' {
			dataStart++
		}
		end := bytes.Index(content[dataStart:], []byte("endstream"))
		if end < 0 {
			continue
		}
		data := bytes.TrimRight(content[dataStart:dataStart+end], "\r\n")
		// Baseline JPEG starts with the SOI marker.
		if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
			continue
		}
		images = append(images, pdfImage{offset: loc[0], rawLen: end, data: data})
	}
	return images
}
