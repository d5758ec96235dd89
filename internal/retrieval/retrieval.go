// Package retrieval answers a question from the indexed chunks: search,
// build a bounded context, ask the generator and cite what was used.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ziadkadry99/compliance-rag/internal/embeddings"
	"github.com/ziadkadry99/compliance-rag/internal/llm"
	"github.com/ziadkadry99/compliance-rag/internal/vectordb"
)

const (
	// NotFoundSentinel is the token the prompt asks the model to emit when
	// the context has no answer.
	NotFoundSentinel = "NOT_FOUND"
	// NotFoundMessage replaces the sentinel or an empty generation.
	NotFoundMessage = "The provided documents do not contain this information."

	DefaultTopK            = 3
	DefaultMaxContextChars = 1200
	DefaultExcerptChars    = 300
	DefaultQueryExpansion  = "Answer from sections related to KYC, Customer Due Diligence, Ongoing Due Diligence, or updation of records."
	DefaultFallbackQuery   = "updation of KYC records ongoing due diligence risk category"
)

// ErrGenerationFailed wraps generator failures. No answer is produced.
var ErrGenerationFailed = errors.New("answer generation failed")

const promptTemplate = `Answer the question using ONLY the context below.
If the answer is not in the context, say:
"%s"

Context:
%s

Question:
%s

Answer:`

// Searcher is the read side of the vector index.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int, docID string) ([]vectordb.Result, error)
}

// Config tunes retrieval. Zero values take the defaults above, except
// QueryExpansion and FallbackQuery where "-" disables them.
type Config struct {
	TopK            int
	MaxContextChars int
	ExcerptChars    int
	QueryExpansion  string
	FallbackQuery   string
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = DefaultMaxContextChars
	}
	if c.ExcerptChars <= 0 {
		c.ExcerptChars = DefaultExcerptChars
	}
	switch c.QueryExpansion {
	case "":
		c.QueryExpansion = DefaultQueryExpansion
	case "-":
		c.QueryExpansion = ""
	}
	switch c.FallbackQuery {
	case "":
		c.FallbackQuery = DefaultFallbackQuery
	case "-":
		c.FallbackQuery = ""
	}
	return c
}

// Citation identifies a chunk that was handed to the generator.
type Citation struct {
	DocID            string `json:"doc_id"`
	OriginalFilename string `json:"original_filename"`
	ChunkID          int    `json:"chunk_id"`
	Page             int    `json:"page"`
	Excerpt          string `json:"excerpt"`
}

// Answer is a generated answer plus the chunks it was grounded on.
type Answer struct {
	Answer  string     `json:"answer"`
	Sources []Citation `json:"sources"`
}

// Orchestrator runs the retrieval flow. It is safe for concurrent use as
// long as its collaborators are.
type Orchestrator struct {
	index     Searcher
	embedder  embeddings.Embedder
	generator llm.Generator
	cfg       Config
}

// New creates an Orchestrator.
func New(index Searcher, embedder embeddings.Embedder, generator llm.Generator, cfg Config) *Orchestrator {
	return &Orchestrator{
		index:     index,
		embedder:  embedder,
		generator: generator,
		cfg:       cfg.withDefaults(),
	}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Answer retrieves context for question, optionally restricted to docID,
// and generates a grounded answer.
func (o *Orchestrator) Answer(ctx context.Context, question, docID string) (*Answer, error) {
	hits, err := o.retrieve(ctx, o.PrimaryQuery(question), docID)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && o.cfg.FallbackQuery != "" {
		slog.Debug("primary query found nothing, using fallback", "doc_id", docID)
		hits, err = o.retrieve(ctx, "query: "+o.cfg.FallbackQuery, docID)
		if err != nil {
			return nil, err
		}
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	passage := truncate(strings.Join(texts, "\n\n"), o.cfg.MaxContextChars)

	out, err := o.generator.Generate(ctx, BuildPrompt(passage, question))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	ans := &Answer{
		Answer:  NormalizeOutput(out),
		Sources: make([]Citation, 0, len(hits)),
	}
	for _, h := range hits {
		ans.Sources = append(ans.Sources, Citation{
			DocID:            h.DocID,
			OriginalFilename: h.Filename,
			ChunkID:          h.ChunkID,
			Page:             h.Page,
			Excerpt:          truncate(h.Text, o.cfg.ExcerptChars),
		})
	}
	return ans, nil
}

// Search returns the passages Answer would retrieve for question, without
// the fallback query or generation. k <= 0 uses the configured TopK.
func (o *Orchestrator) Search(ctx context.Context, question, docID string, k int) ([]vectordb.Result, error) {
	if k <= 0 {
		k = o.cfg.TopK
	}
	vec, err := embeddings.EmbedOne(ctx, o.embedder, o.PrimaryQuery(question))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := o.index.Search(ctx, vec, k, docID)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

// PrimaryQuery is the text embedded for the first search.
func (o *Orchestrator) PrimaryQuery(question string) string {
	q := "query: " + strings.TrimSpace(question)
	if o.cfg.QueryExpansion == "" {
		return q
	}
	return q + ". " + o.cfg.QueryExpansion
}

func (o *Orchestrator) retrieve(ctx context.Context, query, docID string) ([]vectordb.Result, error) {
	vec, err := embeddings.EmbedOne(ctx, o.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := o.index.Search(ctx, vec, o.cfg.TopK, docID)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

// BuildPrompt renders the generation prompt.
func BuildPrompt(passage, question string) string {
	return fmt.Sprintf(promptTemplate, NotFoundSentinel, passage, question)
}

// NormalizeOutput cleans raw generator text. An empty result or the
// not-found sentinel becomes NotFoundMessage.
func NormalizeOutput(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		prev := s
		s = strings.TrimSpace(unquote(s))
		if len(s) >= 7 && strings.EqualFold(s[:7], "answer:") {
			s = strings.TrimSpace(s[7:])
		}
		if s == prev {
			break
		}
	}
	if s == "" || strings.EqualFold(strings.TrimRight(s, "."), NotFoundSentinel) {
		return NotFoundMessage
	}
	return s
}

// unquote removes one pair of matching quotes around s. A lone quote at
// either end is part of the text.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	q := s[0]
	if (q == '"' || q == '\'' || q == '`') && s[len(s)-1] == q {
		return s[1 : len(s)-1]
	}
	return s
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
