package ingest

import "strings"

// ChunkText splits text into overlapping character windows. Windows are
// size characters wide and consecutive windows share overlap
// characters; breaks prefer whitespace so words stay intact. Whitespace
// runs are collapsed first, matching how the documents were normalized
// when the corpus was built.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}

	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(text); start += step {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		// Back off to the last space inside the window so we do not
		// split mid-word. Never back off past the window step or text
		// between chunks would be lost; in that case cut hard.
		cut := strings.LastIndexByte(text[start:end], ' ')
		if cut < step {
			cut = size
		}
		chunks = append(chunks, strings.TrimSpace(text[start:start+cut]))
	}

	// Drop empty tail chunks produced by trailing whitespace.
	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
