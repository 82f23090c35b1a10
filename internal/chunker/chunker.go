package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 512
	// DefaultChunkOverlap is the trailing overlap carried into the next chunk.
	DefaultChunkOverlap = 50
	// DefaultMinChunkSize is the smallest chunk worth embedding.
	DefaultMinChunkSize = 100

	// splitLookback is how far back from the target offset the split-point
	// heuristic searches before giving up and cutting hard.
	splitLookback = 100
)

// Chunk is a contiguous slice of a document's extracted text sized for
// embedding, carrying citation provenance.
type Chunk struct {
	Text       string
	Index      int
	PageNumber *int    // set by paged chunking
	SectionID  *string // set by sectioned chunking, e.g. "## Methods"
	CharStart  int
	CharEnd    int
}

// Page is one page of extracted text with its cumulative character offset.
type Page struct {
	Number    int
	Text      string
	CharStart int
}

// Chunker splits extracted text into overlapping, provenance-tagged chunks.
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

// New creates a chunker. Zero values fall back to the defaults.
func New(chunkSize, chunkOverlap, minChunkSize int) *Chunker {
	c := &Chunker{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap, MinChunkSize: minChunkSize}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.MinChunkSize <= 0 {
		c.MinChunkSize = DefaultMinChunkSize
	}
	return c
}

// ChunkPages chunks page-extracted text (e.g. from a PDF), tracking the page
// each chunk started on. Pages accumulate into a buffer that is flushed
// before appending a page would exceed ChunkSize; a buffer that alone exceeds
// ChunkSize is split with the shared heuristic.
func (c *Chunker) ChunkPages(pages []Page) []Chunk {
	var chunks []Chunk
	nonEmpty := make([]Page, 0, len(pages))
	offset := 0
	for _, p := range pages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		nonEmpty = append(nonEmpty, Page{Number: p.Number, Text: text, CharStart: offset})
		offset += len(text) + 2 // page separator
	}
	if len(nonEmpty) == 0 {
		return nil
	}

	index := 0
	current := ""
	currentPage := nonEmpty[0].Number
	currentStart := 0

	emit := func(text string, page, start, end int) {
		p := page
		chunks = append(chunks, Chunk{
			Text:       strings.TrimSpace(text),
			Index:      index,
			PageNumber: &p,
			CharStart:  start,
			CharEnd:    end,
		})
		index++
	}

	for _, page := range nonEmpty {
		// Flush before this page would push the buffer past the target size.
		if current != "" && len(current)+len(page.Text) > c.ChunkSize {
			if len(current) >= c.MinChunkSize {
				emit(current, currentPage, currentStart, currentStart+len(current))
			}
			overlap := ""
			if len(current) > c.ChunkOverlap {
				overlap = current[len(current)-c.ChunkOverlap:]
			}
			current = overlap
			currentStart = page.CharStart - len(overlap)
			currentPage = page.Number
		}

		if current != "" {
			current += "\n\n" + page.Text
		} else {
			current = page.Text
			currentStart = page.CharStart
			currentPage = page.Number
		}

		// A single page can exceed the chunk size on its own.
		for len(current) > c.ChunkSize {
			split := c.findSplitPoint(current, c.ChunkSize)
			emit(current[:split], currentPage, currentStart, currentStart+split)

			overlapStart := split - c.ChunkOverlap
			if overlapStart < 0 {
				overlapStart = 0
			}
			current = current[overlapStart:]
			currentStart += overlapStart
		}
	}

	// The trailing fragment is always emitted so tail content is never lost.
	if strings.TrimSpace(current) != "" {
		emit(current, currentPage, currentStart, currentStart+len(current))
	}

	return chunks
}

// ChunkText chunks plain text with character-offset provenance only.
func (c *Chunker) ChunkText(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.splitRange(text, nil, 0, 0)
}

// splitRange runs the shared split loop over text, tagging chunks with
// sectionID when given. baseOffset shifts char offsets into document space;
// startIndex numbers the first emitted chunk. The document's final trailing
// fragment is emitted even when undersized.
func (c *Chunker) splitRange(text string, sectionID *string, baseOffset, startIndex int) []Chunk {
	var chunks []Chunk
	index := startIndex
	pos := 0

	for pos < len(text) {
		end := pos + c.ChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = pos + c.findSplitPoint(text[pos:end], c.ChunkSize)
		}

		piece := strings.TrimSpace(text[pos:end])
		atTail := end == len(text)
		if len(piece) >= c.MinChunkSize || (atTail && piece != "") {
			chunks = append(chunks, Chunk{
				Text:      piece,
				Index:     index,
				SectionID: sectionID,
				CharStart: baseOffset + pos,
				CharEnd:   baseOffset + end,
			})
			index++
		}

		if atTail {
			break
		}
		next := end - c.ChunkOverlap
		if next <= pos {
			next = end
		}
		pos = next
	}

	return chunks
}

// findSplitPoint finds a cut position near target, searching a fixed lookback
// window in priority order: paragraph break, sentence end, minor punctuation,
// whitespace. Falls back to a hard cut at target (on a rune boundary).
func (c *Chunker) findSplitPoint(text string, target int) int {
	if len(text) <= target {
		return len(text)
	}

	searchStart := target - splitLookback
	if searchStart < 0 {
		searchStart = 0
	}
	window := text[searchStart:target]

	if i := strings.LastIndex(window, "\n\n"); i != -1 {
		return searchStart + i + 2
	}
	for _, pattern := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if i := strings.LastIndex(window, pattern); i != -1 {
			return searchStart + i + len(pattern)
		}
	}
	for _, pattern := range []string{", ", "; ", ": ", ",\n", ";\n", ":\n"} {
		if i := strings.LastIndex(window, pattern); i != -1 {
			return searchStart + i + len(pattern)
		}
	}
	if i := strings.LastIndex(window, " "); i != -1 {
		return searchStart + i + 1
	}

	// Hard cut; back up to a rune boundary.
	cut := target
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}
