// =============================================================================
// TEXT CHUNKING - SPLITTING DOCUMENTS FOR INDEPENDENT EXTRACTION
// =============================================================================
//
// WHAT: Turns a document's text into the ordered chunk list the fan-out
// scheduler processes. Chunking quality shapes extraction quality, so the
// production system may plug in a smarter splitter (an ML paragraph
// segmenter runs as a sidecar in some deployments); the default here is a
// paragraph splitter on blank lines, which is deterministic and needs no
// model.
//
// =============================================================================

package pipeline

import (
	"strings"
)

// Chunker splits document text into ordered chunks for extraction.
type Chunker interface {
	Chunk(text string) []string
}

// Chunk with metadata, as handed to downstream consumers.
type ChunkInfo struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Length int    `json:"length"`
}

// ParagraphChunker splits on blank lines and normalizes whitespace.
type ParagraphChunker struct {
	// MaxChunkChars merges or splits nothing; it only guards against a
	// pathological single paragraph by hard-splitting above this size.
	// Zero means no limit.
	MaxChunkChars int
}

// Chunk implements Chunker.
func (p ParagraphChunker) Chunk(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	var chunks []string
	for _, para := range strings.Split(normalized, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if p.MaxChunkChars > 0 && len(para) > p.MaxChunkChars {
			chunks = append(chunks, hardSplit(para, p.MaxChunkChars)...)
		} else {
			chunks = append(chunks, para)
		}
	}
	return chunks
}

// hardSplit cuts an oversized paragraph at word boundaries.
func hardSplit(para string, limit int) []string {
	var parts []string
	var b strings.Builder
	for _, word := range strings.Fields(para) {
		if b.Len() > 0 && b.Len()+1+len(word) > limit {
			parts = append(parts, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}

// WithMetadata tags chunks with their index and length.
func WithMetadata(chunks []string) []ChunkInfo {
	out := make([]ChunkInfo, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkInfo{Index: i, Text: c, Length: len(c)}
	}
	return out
}
