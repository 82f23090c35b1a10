package chunker

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// mdParser is shared across calls; goldmark parsers are safe for reuse.
var mdParser = goldmark.New(
	goldmark.WithExtensions(extension.Table),
)

type section struct {
	id    string // heading line, e.g. "## Methods"
	start int    // byte offset of the heading line in the source
}

// ChunkMarkdown chunks markdown by heading sections. Each heading opens a
// section tagged with its heading line as the section ID; sections larger
// than ChunkSize are split with the shared heuristic, every piece keeping the
// section ID. Text with no headings falls back to plain chunking.
func (c *Chunker) ChunkMarkdown(markdown string) []Chunk {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	sections := scanSections(markdown)
	if len(sections) == 0 {
		return c.ChunkText(markdown)
	}

	var chunks []Chunk
	index := 0

	// Preamble before the first heading carries no section ID.
	if pre := strings.TrimSpace(markdown[:sections[0].start]); len(pre) >= c.MinChunkSize {
		pieces := c.splitRange(markdown[:sections[0].start], nil, 0, index)
		chunks = append(chunks, pieces...)
		index += len(pieces)
	}

	for i, sec := range sections {
		end := len(markdown)
		if i+1 < len(sections) {
			end = sections[i+1].start
		}
		body := markdown[sec.start:end]
		trimmed := strings.TrimSpace(body)
		if trimmed == "" {
			continue
		}

		id := sec.id
		if len(trimmed) <= c.ChunkSize {
			if len(trimmed) < c.MinChunkSize && i+1 < len(sections) {
				continue
			}
			chunks = append(chunks, Chunk{
				Text:      trimmed,
				Index:     index,
				SectionID: &id,
				CharStart: sec.start,
				CharEnd:   end,
			})
			index++
			continue
		}

		pieces := c.splitRange(body, &id, sec.start, index)
		chunks = append(chunks, pieces...)
		index += len(pieces)
	}

	return chunks
}

// scanSections parses the markdown AST and returns one section per ATX
// heading, positioned at the start of the heading's source line.
func scanSections(markdown string) []section {
	source := []byte(markdown)
	doc := mdParser.Parser().Parse(text.NewReader(source))

	var sections []section
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}

		seg := heading.Lines().At(0)
		start := lineStart(source, seg.Start)
		title := headingText(heading, source)
		sections = append(sections, section{
			id:    strings.Repeat("#", heading.Level) + " " + title,
			start: start,
		})
		return ast.WalkSkipChildren, nil
	})
	return sections
}

// lineStart walks back from pos to the beginning of its source line.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

// headingText collects the plain text content of a heading node.
func headingText(heading *ast.Heading, source []byte) string {
	var sb strings.Builder
	for child := heading.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		} else {
			for gc := child.FirstChild(); gc != nil; gc = gc.NextSibling() {
				if t, ok := gc.(*ast.Text); ok {
					sb.Write(t.Segment.Value(source))
				}
			}
		}
	}
	return strings.TrimSpace(sb.String())
}
