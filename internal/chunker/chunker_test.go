package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/compliance-rag/internal/filter"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%02d", i)
	}
	return strings.Join(parts, " ")
}

func TestNew_Defaults(t *testing.T) {
	c := New(0, -1)
	assert.Equal(t, DefaultSize, c.Size())
	assert.Equal(t, DefaultOverlap, c.Overlap())

	c = New(100, 100)
	assert.Equal(t, 50, c.Overlap(), "overlap must stay below size")
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	c := New(800, 100)
	got := c.Split("  A short paragraph about customer due diligence.  ")
	assert.Equal(t, []string{"A short paragraph about customer due diligence."}, got)
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, New(800, 100).Split(" \n\n "))
}

func TestSplit_RespectsSize(t *testing.T) {
	c := New(50, 10)
	text := words(200) + "\n\n" + strings.Repeat("x", 170)

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 50, "chunk %q too long", ch)
	}
}

func TestSplit_OverlapCarriesTail(t *testing.T) {
	c := New(50, 10)
	chunks := c.Split(words(40))
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1])
		last := prev[len(prev)-1]
		assert.True(t, strings.HasPrefix(chunks[i], last),
			"chunk %d %q should start with %q", i, chunks[i], last)
	}
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	p1 := strings.Repeat("a", 59) + "."
	p2 := strings.Repeat("b", 59) + "."
	c := New(100, 10)

	chunks := c.Split(p1 + "\n\n" + p2)
	assert.Equal(t, []string{p1, p2}, chunks)
}

func TestSplit_FallsBackToSentences(t *testing.T) {
	s1 := "Customers must be identified before an account is opened."
	s2 := "Records must be updated periodically based on risk."
	c := New(70, 0)

	chunks := c.Split(s1 + " " + s2)
	assert.Equal(t, []string{s1, s2}, chunks)
}

func TestSplit_Deterministic(t *testing.T) {
	c := New(64, 16)
	text := words(120) + "\n" + words(30)
	assert.Equal(t, c.Split(text), c.Split(text))
}

func TestChunk_DropsIndexLikeAndKeepsIDsUnique(t *testing.T) {
	c := New(800, 100)
	pages := []Page{
		{Number: 1, Text: "Banks shall undertake customer due diligence."},
		{Number: 2, Text: "1.1 Scope 3\n1.2 Terms 4\n2.1 KYC 7\n2.2 CDD 11\n3.1 PEP 15\n3.2 Risk 19"},
		{Number: 3, Text: "Periodic updation is required for high risk customers."},
	}

	res := c.Chunk(Meta{DocID: "doc-1", Filename: "kyc.pdf"}, pages)

	require.Len(t, res.Chunks, 2)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 0, res.Chunks[0].ChunkID)
	assert.Equal(t, 1, res.Chunks[0].Page)
	assert.Equal(t, 2, res.Chunks[1].ChunkID)
	assert.Equal(t, 3, res.Chunks[1].Page)
	for _, ch := range res.Chunks {
		assert.Equal(t, "doc-1", ch.DocID)
		assert.Equal(t, "kyc.pdf", ch.Filename)
	}
}

func TestChunk_NoSurvivingChunkExceedsDigitRatio(t *testing.T) {
	c := New(40, 5)
	var b strings.Builder
	for i := 0; i < 30; i++ {
		if i%3 == 0 {
			fmt.Fprintf(&b, "%d.%d %d %d\n", i, i+1, i*7, i*13)
		} else {
			b.WriteString("plain prose sentence here.\n")
		}
	}

	res := c.Chunk(Meta{DocID: "d"}, []Page{{Number: 1, Text: b.String()}})
	require.NotEmpty(t, res.Chunks)
	for _, ch := range res.Chunks {
		assert.LessOrEqual(t, filter.DigitRatio(ch.Text), filter.DefaultMaxDigitRatio)
	}

	seen := make(map[int]bool)
	for _, ch := range res.Chunks {
		assert.False(t, seen[ch.ChunkID], "duplicate chunk id %d", ch.ChunkID)
		seen[ch.ChunkID] = true
	}
}

func TestChunk_WithoutFilterKeepsEverything(t *testing.T) {
	c := New(800, 100).WithFilter(nil)
	res := c.Chunk(Meta{DocID: "d"}, []Page{{Number: 1, Text: "1 2 3 4 5 6 7 8 9"}})
	assert.Len(t, res.Chunks, 1)
	assert.Zero(t, res.Dropped)
}
