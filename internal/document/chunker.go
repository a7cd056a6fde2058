package document

import "strings"

// Chunk creates overlapping chunks from text for embedding.
// Past the midpoint of a chunk it prefers to break at a paragraph boundary,
// then a sentence boundary, so retrieval units stay coherent.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = 512
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	// an empty or whitespace-only document yields no retrieval units
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0

	for start < len(text) {
		end := start + size
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			if para := lastIndexWithin(text, "\n\n", start, end); para > start+size/2 {
				end = para + 2
			} else if sentence := lastIndexWithin(text, ". ", start, end); sentence > start+size/2 {
				end = sentence + 1
			}
		}

		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
		start = end - overlap
	}

	return chunks
}

// lastIndexWithin returns the last index of sep in text[start:end], as an
// absolute offset, or -1.
func lastIndexWithin(text, sep string, start, end int) int {
	if start < 0 || end > len(text) || start >= end {
		return -1
	}
	idx := strings.LastIndex(text[start:end], sep)
	if idx < 0 {
		return -1
	}
	return start + idx
}
