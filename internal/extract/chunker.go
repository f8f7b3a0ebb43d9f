package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"paperbot/internal/model"
)

// pageSeparator joins consecutive page texts before blocking. Each page's
// character span includes its trailing separator so that a block starting in
// the gap between two pages still attributes to the earlier page.
const pageSeparator = "\n\n"

// Chunker slices a document's concatenated page text into fixed-size
// overlapping blocks and records, for every block, the pages whose character
// spans it intersects. Offsets are counted in runes so multi-byte text does
// not shift page attribution.
type Chunker struct {
	// BlockSize is the block length in characters.
	BlockSize int
	// Overlap is how many characters consecutive blocks share.
	Overlap int
	// MinChars discards a block whose trimmed text is shorter than this.
	MinChars int
}

type pageSpan struct {
	number int
	start  int
	end    int
}

// Chunk produces the blocks for one document. docName may be a path; chunk
// IDs and the Document field use its base name. The returned chunks carry no
// embeddings.
func (c Chunker) Chunk(docName string, pages []Page) []model.Chunk {
	if c.BlockSize <= 0 {
		return nil
	}
	step := c.BlockSize - c.Overlap
	if step <= 0 {
		step = c.BlockSize
	}

	var (
		text  []rune
		spans []pageSpan
	)
	for i, p := range pages {
		start := len(text)
		text = append(text, []rune(p.Text)...)
		if i < len(pages)-1 {
			text = append(text, []rune(pageSeparator)...)
		}
		spans = append(spans, pageSpan{number: p.Number, start: start, end: len(text)})
	}
	if len(text) == 0 {
		return nil
	}

	base := filepath.Base(docName)
	var chunks []model.Chunk
	for start := 0; start < len(text); start += step {
		end := start + c.BlockSize
		if end > len(text) {
			end = len(text)
		}

		// keep the raw block so Text always equals the [Start,End) span;
		// the minimum-length check applies to the trimmed form only
		block := string(text[start:end])
		trimmed := strings.TrimSpace(block)
		if len([]rune(trimmed)) >= c.MinChars && trimmed != "" {
			chunks = append(chunks, model.Chunk{
				ID:        fmt.Sprintf("%s#block-%d", base, len(chunks)),
				Document:  base,
				Text:      block,
				Pages:     pagesForBlock(spans, start, end),
				Start:     start,
				End:       end,
				WordCount: len(strings.Fields(block)),
			})
		}

		if end == len(text) {
			break
		}
	}
	return chunks
}

// pagesForBlock returns the 1-based page numbers whose span intersects the
// block [start,end). A page with an empty span (fully unextractable) never
// matches.
func pagesForBlock(spans []pageSpan, start, end int) []int {
	var out []int
	for _, s := range spans {
		if s.start == s.end {
			continue
		}
		if !(end < s.start || start > s.end) {
			out = append(out, s.number)
		}
	}
	return out
}
