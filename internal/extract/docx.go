package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
)

// docxDocumentXMLPath is the path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// docxRelsPath maps relationship IDs to media targets.
const docxRelsPath = "word/_rels/document.xml.rels"

// paragraphRe matches one <w:p> block including its content.
var paragraphRe = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)

// wtTag matches <w:t>text</w:t> or <w:t xml:space="preserve">text</w:t> (and any other attributes).
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// blipEmbedRe matches the relationship reference of an inline image.
var blipEmbedRe = regexp.MustCompile(`r:embed="(rId\d+)"`)

// relRe extracts Id/Target pairs from the relationships part.
var relRe = regexp.MustCompile(`Id="(rId\d+)"[^>]*Target="([^"]+)"`)

// DOCX extracts the ordered text/image element stream from a .docx file.
// Paragraph order is preserved; inline images appear after the paragraph's
// text, matching their flowed position.
func (e *Extractor) DOCX(content []byte) ([]Element, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}
	docXML, err := readZipFile(zr, docxDocumentXMLPath)
	if err != nil {
		return nil, fmt.Errorf("read document body: %w", err)
	}
	rels := readRelationships(zr)

	var elements []Element
	for _, para := range paragraphRe.FindAll(docXML, -1) {
		var sb strings.Builder
		for _, m := range wtTag.FindAllSubmatch(para, -1) {
			sb.Write(m[1])
		}
		if text := unescapeXML(sb.String()); strings.TrimSpace(text) != "" {
			elements = append(elements, Element{Kind: ElementText, Text: text})
		}
		for _, m := range blipEmbedRe.FindAllSubmatch(para, -1) {
			target, ok := rels[string(m[1])]
			if !ok {
				continue
			}
			img, err := readZipFile(zr, path.Join("word", target))
			if err != nil {
				continue
			}
			ext := strings.TrimPrefix(path.Ext(target), ".")
			if ext == "" {
				ext = "png"
			}
			elements = append(elements, Element{Kind: ElementImage, Image: img, ImageExt: ext})
		}
	}
	return elements, nil
}

// readRelationships maps rIds to their media targets (e.g. "media/image1.png").
func readRelationships(zr *zip.Reader) map[string]string {
	rels := make(map[string]string)
	data, err := readZipFile(zr, docxRelsPath)
	if err != nil {
		return rels
	}
	for _, m := range relRe.FindAllSubmatch(data, -1) {
		target := string(m[2])
		if strings.Contains(target, "media/") {
			rels[string(m[1])] = target
		}
	}
	return rels
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

var xmlReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&",
)

func unescapeXML(s string) string {
	return xmlReplacer.Replace(s)
}
