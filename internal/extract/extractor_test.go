package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func buildDocx(t *testing.T, documentXML string, media map[string][]byte, rels string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	write(docxDocumentXMLPath, []byte(documentXML))
	if rels != "" {
		write(docxRelsPath, []byte(rels))
	}
	for name, data := range media {
		write("word/"+name, data)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDOCX_TextParagraphsInOrder(t *testing.T) {
	doc := `<w:document><w:body>` +
		`<w:p ><w:r><w:t>First paragraph.</w:t></w:r></w:p>` +
		`<w:p ><w:r><w:t xml:space="preserve">Second </w:t><w:t>paragraph.</w:t></w:r></w:p>` +
		`<w:p ><w:r><w:t>   </w:t></w:r></w:p>` +
		`</w:body></w:document>`
	content := buildDocx(t, doc, nil, "")

	elements, err := NewExtractor().DOCX(content)
	if err != nil {
		t.Fatal(err)
	}
	if len(elements) != 2 {
		t.Fatalf("elements = %d, want 2 (blank paragraph dropped)", len(elements))
	}
	if elements[0].Text != "First paragraph." {
		t.Errorf("first = %q", elements[0].Text)
	}
	if elements[1].Text != "Second paragraph." {
		t.Errorf("second = %q", elements[1].Text)
	}
}

func TestDOCX_InlineImageAfterParagraphText(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	doc := `<w:document><w:body>` +
		`<w:p ><w:r><w:t>Before the figure.</w:t></w:r>` +
		`<w:r><w:drawing><a:blip r:embed="rId5"/></w:drawing></w:r></w:p>` +
		`<w:p ><w:r><w:t>After the figure.</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	rels := `<Relationships><Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/></Relationships>`
	content := buildDocx(t, doc, map[string][]byte{"media/image1.png": png}, rels)

	elements, err := NewExtractor().DOCX(content)
	if err != nil {
		t.Fatal(err)
	}
	if len(elements) != 3 {
		t.Fatalf("elements = %d, want 3", len(elements))
	}
	if elements[0].Kind != ElementText || elements[1].Kind != ElementImage || elements[2].Kind != ElementText {
		t.Fatalf("element kinds = %v %v %v", elements[0].Kind, elements[1].Kind, elements[2].Kind)
	}
	if !bytes.Equal(elements[1].Image, png) {
		t.Error("image bytes mismatch")
	}
	if elements[1].ImageExt != "png" {
		t.Errorf("image ext = %s", elements[1].ImageExt)
	}
}

func TestDOCX_MissingRelSkipsImage(t *testing.T) {
	doc := `<w:document><w:body>` +
		`<w:p ><w:drawing><a:blip r:embed="rId9"/></w:drawing></w:p>` +
		`</w:body></w:document>`
	content := buildDocx(t, doc, nil, "")
	elements, err := NewExtractor().DOCX(content)
	if err != nil {
		t.Fatal(err)
	}
	if len(elements) != 0 {
		t.Errorf("elements = %d, want 0", len(elements))
	}
}

func TestDOCX_UnescapesEntities(t *testing.T) {
	doc := `<w:document><w:body><w:p ><w:r><w:t>Profit &amp; loss &lt; 5%</w:t></w:r></w:p></w:body></w:document>`
	elements, err := NewExtractor().DOCX(buildDocx(t, doc, nil, ""))
	if err != nil {
		t.Fatal(err)
	}
	if elements[0].Text != "Profit & loss < 5%" {
		t.Errorf("text = %q", elements[0].Text)
	}
}

func TestDOCX_NotAZip(t *testing.T) {
	if _, err := NewExtractor().DOCX([]byte("plainly not a zip")); err == nil {
		t.Error("expected error for non-zip input")
	}
}

func TestScanJPEGObjects(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3, 0xFF, 0xD9}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n1 0 obj\n<< /Subtype /Image /Width 80 /Height 60 /Filter /DCTDecode >>\nstream\n")
	buf.Write(jpeg)
	buf.WriteString("\nendstream\nendobj\n")
	// A non-JPEG image object must be skipped.
	buf.WriteString("2 0 obj\n<< /Subtype /Image /Filter /FlateDecode >>\nstream\nxxxx\nendstream\nendobj\n")

	images := scanJPEGObjects(buf.Bytes())
	if len(images) != 1 {
		t.Fatalf("images = %d, want 1", len(images))
	}
	if !bytes.Equal(images[0].data, jpeg) {
		t.Errorf("payload mismatch: %v", images[0].data)
	}
}

func TestScanJPEGObjects_None(t *testing.T) {
	if got := scanJPEGObjects([]byte("%PDF-1.4 no images here")); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

// buildPDF assembles a two-page PDF with an uncompressed content stream per
// page. jpeg, when non-nil, becomes a DCTDecode image XObject referenced from
// page 1's resources but stored after both content streams, the common object
// layout in real files.
func buildPDF(t *testing.T, page1Text, page2Text string, jpeg []byte) []byte {
	t.Helper()
	content1 := "BT /F1 12 Tf 72 720 Td (" + page1Text + ") Tj ET"
	content2 := "BT /F1 12 Tf 72 720 Td (" + page2Text + ") Tj ET"
	page1Res := "<< /Font << /F1 5 0 R >> >>"
	if jpeg != nil {
		page1Res = "<< /Font << /F1 5 0 R >> /XObject << /Im0 8 0 R >> >>"
	}
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources " + page1Res + " /Contents 6 0 R >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 7 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content1), content1),
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content2), content2),
	}
	if jpeg != nil {
		objs = append(objs, fmt.Sprintf(
			"<< /Type /XObject /Subtype /Image /Width 4 /Height 4 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode /Length %d >>\nstream\n%s\nendstream",
			len(jpeg), jpeg))
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs)+1)
	for i, obj := range objs {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objs); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestPDF_ImageAttributedToReferencingPage(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0xFF, 0xD9}
	// Page 1's content stream is long so the image object's byte offset sits
	// deep in page 2's share of the file.
	long := strings.Repeat("Quarterly revenue grew steadily across all regions. ", 25)
	content := buildPDF(t, long, "Costs fell in the second quarter.", jpeg)

	pages, err := NewExtractor().PDF(content)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}
	if len(pages[0].Elements) != 2 {
		t.Fatalf("page 1 elements = %d, want text + image", len(pages[0].Elements))
	}
	if pages[0].Elements[0].Kind != ElementText || !strings.Contains(pages[0].Elements[0].Text, "Quarterly revenue") {
		t.Errorf("page 1 text element = %+v", pages[0].Elements[0].Kind)
	}
	if pages[0].Elements[1].Kind != ElementImage {
		t.Fatalf("page 1 second element kind = %v, want image", pages[0].Elements[1].Kind)
	}
	if !bytes.Equal(pages[0].Elements[1].Image, jpeg) {
		t.Errorf("image payload mismatch")
	}
	if len(pages[1].Elements) != 1 || pages[1].Elements[0].Kind != ElementText {
		t.Fatalf("page 2 elements = %+v, want one text element", pages[1].Elements)
	}
	if strings.Contains(pages[1].Elements[0].Text, "Quarterly revenue") {
		t.Errorf("page 1 text leaked onto page 2")
	}
}

func TestPDF_PageTextOrdering(t *testing.T) {
	content := buildPDF(t, "Alpha on page one.", "Beta on page two.", nil)

	pages, err := NewExtractor().PDF(content)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}
	if !strings.Contains(pages[0].Elements[0].Text, "Alpha") {
		t.Errorf("page 1 = %q", pages[0].Elements[0].Text)
	}
	if !strings.Contains(pages[1].Elements[0].Text, "Beta") {
		t.Errorf("page 2 = %q", pages[1].Elements[0].Text)
	}
}
