package chunker

import (
	"strings"
	"testing"
)

// sentences returns roughly n characters of sentence-structured text.
func sentences(n int) string {
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString("The quick brown fox jumps over the lazy dog near the river bank. ")
	}
	return strings.TrimSpace(sb.String()[:n])
}

func TestNewDefaults(t *testing.T) {
	c := New(0, -1, 0)
	if c.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want %d", c.ChunkSize, DefaultChunkSize)
	}
	if c.ChunkOverlap != DefaultChunkOverlap {
		t.Errorf("ChunkOverlap = %d, want %d", c.ChunkOverlap, DefaultChunkOverlap)
	}
	if c.MinChunkSize != DefaultMinChunkSize {
		t.Errorf("MinChunkSize = %d, want %d", c.MinChunkSize, DefaultMinChunkSize)
	}
}

func TestChunkTextShort(t *testing.T) {
	c := New(0, 0, 0)
	text := sentences(200)

	chunks := c.ChunkText(text)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("chunk text differs from input")
	}
	if chunks[0].Index != 0 {
		t.Errorf("Index = %d, want 0", chunks[0].Index)
	}
	if chunks[0].CharStart != 0 || chunks[0].CharEnd != len(text) {
		t.Errorf("offsets = [%d, %d), want [0, %d)", chunks[0].CharStart, chunks[0].CharEnd, len(text))
	}
	if chunks[0].PageNumber != nil || chunks[0].SectionID != nil {
		t.Errorf("plain text chunks should carry no page or section provenance")
	}
}

func TestChunkTextEmpty(t *testing.T) {
	c := New(0, 0, 0)
	if got := c.ChunkText("   \n\t "); got != nil {
		t.Errorf("got %d chunks for blank input, want none", len(got))
	}
}

func TestChunkTextSplitAndCoverage(t *testing.T) {
	c := New(0, 0, 0)
	text := sentences(2000)

	chunks := c.ChunkText(text)
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks, want at least 3", len(chunks))
	}

	covered := 0
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d: Index = %d", i, ch.Index)
		}
		if len(ch.Text) > c.ChunkSize {
			t.Errorf("chunk %d: length %d exceeds chunk size %d", i, len(ch.Text), c.ChunkSize)
		}
		if ch.CharStart > covered {
			t.Errorf("chunk %d: gap in coverage, starts at %d but covered through %d", i, ch.CharStart, covered)
		}
		if ch.CharEnd > covered {
			covered = ch.CharEnd
		}
		if i > 0 && ch.CharStart <= chunks[i-1].CharStart {
			t.Errorf("chunk %d: CharStart %d not after previous %d", i, ch.CharStart, chunks[i-1].CharStart)
		}
	}
	if covered != len(text) {
		t.Errorf("coverage ends at %d, want %d", covered, len(text))
	}
}

func TestChunkTextTrailingFragmentKept(t *testing.T) {
	c := New(0, 0, 0)
	// 512 + a tail well under min chunk size.
	text := sentences(512) + " End."

	chunks := c.ChunkText(text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(last.Text, "End.") {
		t.Errorf("trailing fragment lost: last chunk ends %q", last.Text)
	}
}

func TestChunkPagesPageTracking(t *testing.T) {
	c := New(0, 0, 0)
	pages := []Page{
		{Number: 1, Text: sentences(600)},
		{Number: 2, Text: sentences(400)},
		{Number: 3, Text: sentences(700)},
	}

	chunks := c.ChunkPages(pages)
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks, want at least 3", len(chunks))
	}

	seen := map[int]bool{}
	prevPage := 0
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("chunk %d: Index = %d", i, ch.Index)
		}
		if ch.PageNumber == nil {
			t.Fatalf("chunk %d: nil PageNumber", i)
		}
		if *ch.PageNumber < 1 || *ch.PageNumber > 3 {
			t.Errorf("chunk %d: page %d out of range", i, *ch.PageNumber)
		}
		if *ch.PageNumber < prevPage {
			t.Errorf("chunk %d: page %d before previous page %d", i, *ch.PageNumber, prevPage)
		}
		prevPage = *ch.PageNumber
		seen[*ch.PageNumber] = true
	}
	for _, p := range []int{1, 3} {
		if !seen[p] {
			t.Errorf("no chunk attributed to page %d", p)
		}
	}
}

func TestChunkPagesEmpty(t *testing.T) {
	c := New(0, 0, 0)
	if got := c.ChunkPages(nil); got != nil {
		t.Errorf("got %d chunks for no pages, want none", len(got))
	}
	if got := c.ChunkPages([]Page{{Number: 1, Text: "  "}}); got != nil {
		t.Errorf("got %d chunks for blank pages, want none", len(got))
	}
}

func TestChunkPagesSmallPagesMerge(t *testing.T) {
	c := New(0, 0, 0)
	pages := []Page{
		{Number: 1, Text: sentences(150)},
		{Number: 2, Text: sentences(150)},
	}

	chunks := c.ChunkPages(pages)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 merged chunk", len(chunks))
	}
	if *chunks[0].PageNumber != 1 {
		t.Errorf("merged chunk page = %d, want 1 (page the buffer started on)", *chunks[0].PageNumber)
	}
}

func TestFindSplitPoint(t *testing.T) {
	c := New(0, 0, 0)
	// Markers sit inside the lookback window just before the 512 target.
	pad := strings.Repeat("x", 440)

	tests := []struct {
		name string
		text string
		want string // suffix of the text before the split
	}{
		{
			name: "paragraph break wins",
			text: pad + "alpha. beta\n\ngamma" + strings.Repeat("y", 250),
			want: "beta\n\n",
		},
		{
			name: "sentence end over comma",
			text: pad + " alpha, beta. gamma" + strings.Repeat("y", 250),
			want: "beta. ",
		},
		{
			name: "comma over space",
			text: pad + " alpha, beta gamma" + strings.Repeat("y", 250),
			want: "alpha, ",
		},
		{
			name: "space as last resort",
			text: pad + " alphabeta" + strings.Repeat("y", 250),
			want: pad + " ",
		},
		{
			name: "hard cut with no breaks",
			text: strings.Repeat("z", 700),
			want: strings.Repeat("z", 512),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split := c.findSplitPoint(tt.text, c.ChunkSize)
			if split <= 0 || split > c.ChunkSize {
				t.Fatalf("split = %d, want in (0, %d]", split, c.ChunkSize)
			}
			if got := tt.text[:split]; !strings.HasSuffix(got, tt.want) {
				t.Errorf("text before split ends %q, want suffix %q", got[len(got)-20:], tt.want)
			}
		})
	}
}

func TestFindSplitPointShortText(t *testing.T) {
	c := New(0, 0, 0)
	if got := c.findSplitPoint("short", c.ChunkSize); got != 5 {
		t.Errorf("split = %d, want full length 5", got)
	}
}
