// Package chunker splits page text into overlapping, bounded chunks that are
// the unit of embedding and retrieval.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/ziadkadry99/compliance-rag/internal/filter"
)

const (
	DefaultSize    = 800
	DefaultOverlap = 100
)

// separators are tried in order: paragraph, line, sentence, word, rune.
var separators = []string{"\n\n", "\n", ". ", "? ", "! ", " ", ""}

// Meta identifies the document a chunk belongs to.
type Meta struct {
	DocID    string
	Filename string
}

// Page is the extracted text of one 1-based page.
type Page struct {
	Number int
	Text   string
}

// Chunk is a span of page text tagged with its origin.
type Chunk struct {
	DocID    string
	Filename string
	ChunkID  int
	Page     int
	Text     string
}

// Result holds the surviving chunks of a document and how many were
// discarded as index-like.
type Result struct {
	Chunks  []Chunk
	Dropped int
}

// Chunker splits text greedily up to Size runes, carrying up to Overlap
// runes from the end of one chunk into the next.
type Chunker struct {
	size    int
	overlap int
	filter  *filter.Filter
}

// New creates a Chunker. Non-positive values fall back to the defaults and
// overlap is kept strictly below size.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap, filter: filter.Default}
}

// WithFilter replaces the content filter applied to each chunk.
func (c *Chunker) WithFilter(f *filter.Filter) *Chunker {
	c.filter = f
	return c
}

// Size returns the maximum chunk length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the maximum number of runes shared by neighbouring chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits every page of a document. Chunk ids are assigned in split
// order across the whole document before filtering, so they are unique
// within the document and stable across re-ingestion of the same bytes.
func (c *Chunker) Chunk(meta Meta, pages []Page) Result {
	var res Result
	next := 0
	for _, p := range pages {
		for _, text := range c.Split(p.Text) {
			id := next
			next++
			if c.filter != nil && c.filter.IsIndexLike(text) {
				res.Dropped++
				continue
			}
			res.Chunks = append(res.Chunks, Chunk{
				DocID:    meta.DocID,
				Filename: meta.Filename,
				ChunkID:  id,
				Page:     p.Number,
				Text:     text,
			})
		}
	}
	return res
}

// Split breaks text into chunks of at most Size runes, preferring paragraph
// boundaries, then lines, sentences, words and finally raw runes.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.split(text, separators)
}

func (c *Chunker) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	var out, small []string
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) <= c.size {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			out = append(out, c.merge(small)...)
			small = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, c.split(piece, rest)...)
	}
	if len(small) > 0 {
		out = append(out, c.merge(small)...)
	}
	return out
}

// merge packs pieces into chunks, keeping a tail of at most overlap runes
// as the start of the following chunk.
func (c *Chunker) merge(pieces []string) []string {
	var chunks, window []string
	total := 0
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > c.size && len(window) > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > 0 && (total > c.overlap || total+n > c.size) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeep splits text after every occurrence of sep, leaving sep attached
// to the preceding piece so that joining the pieces restores the text. An
// empty sep splits into single runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	return strings.SplitAfter(text, sep)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
