package chunker

import (
	"strings"
	"testing"
)

func TestChunkMarkdownSections(t *testing.T) {
	c := New(0, 0, 0)
	md := "# Title\n\n" + sentences(150) + "\n\n## Methods\n\n" + sentences(200) + "\n\n## Results\n\n" + sentences(180)

	chunks := c.ChunkMarkdown(md)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	wantIDs := []string{"# Title", "## Methods", "## Results"}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d: Index = %d", i, ch.Index)
		}
		if ch.SectionID == nil {
			t.Fatalf("chunk %d: nil SectionID", i)
		}
		if *ch.SectionID != wantIDs[i] {
			t.Errorf("chunk %d: SectionID = %q, want %q", i, *ch.SectionID, wantIDs[i])
		}
		if !strings.HasPrefix(ch.Text, wantIDs[i]) {
			t.Errorf("chunk %d: text does not start with its heading line", i)
		}
	}
}

func TestChunkMarkdownOversizedSection(t *testing.T) {
	c := New(0, 0, 0)
	md := "## Discussion\n\n" + sentences(1500)

	chunks := c.ChunkMarkdown(md)
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks, want at least 3", len(chunks))
	}
	for i, ch := range chunks {
		if ch.SectionID == nil || *ch.SectionID != "## Discussion" {
			t.Errorf("chunk %d: SectionID = %v, want %q for every split piece", i, ch.SectionID, "## Discussion")
		}
		if len(ch.Text) > c.ChunkSize {
			t.Errorf("chunk %d: length %d exceeds chunk size", i, len(ch.Text))
		}
	}
}

func TestChunkMarkdownNoHeadings(t *testing.T) {
	c := New(0, 0, 0)
	text := sentences(300)

	chunks := c.ChunkMarkdown(text)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].SectionID != nil {
		t.Errorf("SectionID = %q, want nil without headings", *chunks[0].SectionID)
	}
}

func TestChunkMarkdownPreamble(t *testing.T) {
	c := New(0, 0, 0)
	md := sentences(150) + "\n\n# Later\n\n" + sentences(150)

	chunks := c.ChunkMarkdown(md)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].SectionID != nil {
		t.Errorf("preamble chunk should have nil SectionID, got %q", *chunks[0].SectionID)
	}
	if chunks[1].SectionID == nil || *chunks[1].SectionID != "# Later" {
		t.Errorf("section chunk SectionID = %v, want %q", chunks[1].SectionID, "# Later")
	}
}

func TestChunkMarkdownTinyMiddleSectionDropped(t *testing.T) {
	c := New(0, 0, 0)
	md := "# Intro\n\n" + sentences(150) + "\n\n## Stub\n\nTBD.\n\n## Tail\n\n" + sentences(150)

	chunks := c.ChunkMarkdown(md)
	for _, ch := range chunks {
		if ch.SectionID != nil && *ch.SectionID == "## Stub" {
			t.Errorf("undersized middle section should be dropped")
		}
	}
	if len(chunks) != 2 {
		t.Errorf("got %d chunks, want 2", len(chunks))
	}
}

func TestChunkMarkdownEmpty(t *testing.T) {
	c := New(0, 0, 0)
	if got := c.ChunkMarkdown("\n\n  "); got != nil {
		t.Errorf("got %d chunks for blank markdown, want none", len(got))
	}
}
