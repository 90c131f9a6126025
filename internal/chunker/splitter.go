// Package chunker turns extracted content into bounded, overlap-aware chunks.
package chunker

// SplitText splits text into chunks of at most size runes, carrying roughly
// overlap runes between consecutive chunks. Cuts prefer paragraph breaks,
// then sentence ends, then word boundaries inside the window; a hard cut is
// the last resort. No input rune is dropped: consecutive chunks overlap and
// their union covers the whole input.
func SplitText(text string, size, overlap int) []string {
	runes := []rune(text)
	spans := splitSpans(runes, size, overlap)
	chunks := make([]string, len(spans))
	for i, sp := range spans {
		chunks[i] = string(runes[sp[0]:sp[1]])
	}
	return chunks
}

// splitSpans computes [start, end) rune spans for SplitText. Spans are in
// source order, each at most size long, and each span starts at or before the
// previous span's end.
func splitSpans(runes []rune, size, overlap int) [][2]int {
	if len(runes) == 0 {
		return nil
	}
	if size <= 0 {
		size = 1
	}
	if overlap >= size {
		overlap = size / 2
	}
	var spans [][2]int
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			spans = append(spans, [2]int{start, len(runes)})
			return spans
		}
		cut := findCut(runes, start, end)
		spans = append(spans, [2]int{start, cut})
		next := cut - overlap
		if next <= start {
			// Guard forward progress when the overlap swallows the whole span.
			next = cut
		}
		start = next
	}
}

// findCut picks the cut position in (start, end], preferring the latest
// natural boundary in the second half of the window.
func findCut(runes []rune, start, end int) int {
	min := start + (end-start)/2

	// Paragraph break.
	for i := end - 1; i > min; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	// Sentence end followed by whitespace.
	for i := end - 1; i > min; i-- {
		if isSentenceEnd(runes[i-1]) && isSpace(runes[i]) {
			return i + 1
		}
	}
	// Line break.
	for i := end - 1; i > min; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	// Word boundary.
	for i := end - 1; i > min; i-- {
		if isSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// Tail returns the last n runes of s.
func Tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// Head returns the first n runes of s.
func Head(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
