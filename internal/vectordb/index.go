package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/compliance-rag/internal/embeddings"
)

const (
	collectionName = "chunks"
	indexFile      = "index.gob.gz"
	manifestFile   = "manifest.json"
)

var (
	// ErrNoIndex is returned by Search when nothing has been indexed yet.
	ErrNoIndex = errors.New("vector index does not exist")
	// ErrDuplicateDoc is returned when a batch carries a document that is
	// already indexed.
	ErrDuplicateDoc = errors.New("document already indexed")
)

// Chunk is an embedded span of document text.
type Chunk struct {
	DocID    string
	Filename string
	ChunkID  int
	Page     int
	Text     string
	Vector   []float32
}

// Result is a search hit. Vector is not populated.
type Result struct {
	Chunk
	Similarity float32
	// Seq is the insertion sequence, used to order equal similarities.
	Seq int
}

// Manifest is persisted next to the chromem export and describes what it
// holds.
type Manifest struct {
	Docs      map[string]int `json:"docs"`
	NextSeq   int            `json:"next_seq"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (m Manifest) total() int {
	n := 0
	for _, c := range m.Docs {
		n += c
	}
	return n
}

func (m Manifest) clone() Manifest {
	docs := make(map[string]int, len(m.Docs))
	for k, v := range m.Docs {
		docs[k] = v
	}
	return Manifest{Docs: docs, NextSeq: m.NextSeq, UpdatedAt: m.UpdatedAt}
}

type version struct {
	db       *chromem.DB
	col      *chromem.Collection
	manifest Manifest
}

// Index is a persistent vector index over document chunks. A nil active
// version means the index is absent: no artifact exists on disk and
// searches fail with ErrNoIndex.
//
// Search holds the read lock for the duration of a query. Appends take the
// write lock only to add precomputed vectors; rebuilds are prepared and
// persisted outside the lock and swapped in at the end.
type Index struct {
	dir string
	ef  chromem.EmbeddingFunc

	writeMu sync.Mutex // serializes mutations

	mu    sync.RWMutex
	cur   *version
	stale bool
}

// Open loads the index persisted in dir, if any. A missing artifact is not
// an error; the index is simply absent until the first insert.
func Open(dir string, embedder embeddings.Embedder) (*Index, error) {
	idx := &Index{dir: dir, ef: embeddings.ToChromemFunc(embedder)}
	v, stale, err := idx.load()
	if err != nil {
		return nil, err
	}
	idx.cur, idx.stale = v, stale
	return idx, nil
}

// load reads the artifact and manifest from disk. A nil version means no
// artifact exists.
func (x *Index) load() (*version, bool, error) {
	path := filepath.Join(x.dir, indexFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("stat index: %w", err)
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(path, ""); err != nil {
		return nil, false, fmt.Errorf("import index: %w", err)
	}
	col := db.GetCollection(collectionName, x.ef)
	if col == nil {
		return nil, false, fmt.Errorf("collection %q not found in %s", collectionName, path)
	}

	stale := false
	m, err := readManifest(filepath.Join(x.dir, manifestFile))
	if err != nil {
		slog.Warn("index manifest unreadable, index will be rebuilt", "error", err)
		m = Manifest{Docs: map[string]int{}}
		stale = true
	} else if m.total() != col.Count() {
		slog.Warn("index manifest disagrees with index", "manifest", m.total(), "index", col.Count())
		stale = true
	}

	slog.Debug("vector index loaded", "chunks", col.Count(), "docs", len(m.Docs))
	return &version{db: db, col: col, manifest: m}, stale, nil
}

// Refresh reloads the index when another process has replaced the
// persisted artifact since this handle last loaded or wrote it. The
// caller must keep other writers of the directory out while it runs.
func (x *Index) Refresh() (bool, error) {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	x.mu.RLock()
	cur := x.cur
	x.mu.RUnlock()

	m, err := readManifest(filepath.Join(x.dir, manifestFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		if _, serr := os.Stat(filepath.Join(x.dir, indexFile)); serr == nil || cur == nil {
			return false, nil
		}
		// Cleared elsewhere.
		x.swap(nil)
		return true, nil
	case err != nil:
		return false, nil
	case cur != nil && cur.manifest.UpdatedAt.Equal(m.UpdatedAt):
		return false, nil
	}

	v, stale, err := x.load()
	if err != nil {
		return false, err
	}
	x.mu.Lock()
	x.cur, x.stale = v, stale
	x.mu.Unlock()
	slog.Debug("vector index reloaded from disk", "docs", len(m.Docs))
	return true, nil
}

// Exists reports whether an index is present.
func (x *Index) Exists() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.cur != nil
}

// Stale reports whether the loaded artifact and its manifest disagree, in
// which case the document set is unknown and a rebuild is needed.
func (x *Index) Stale() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.stale
}

// Count returns the number of indexed chunks.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.cur == nil {
		return 0
	}
	return x.cur.col.Count()
}

// DocIDs returns the sorted ids of indexed documents.
func (x *Index) DocIDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.cur == nil {
		return nil
	}
	ids := make([]string, 0, len(x.cur.manifest.Docs))
	for id := range x.cur.manifest.Docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ChunkCount returns the number of chunks indexed for docID.
func (x *Index) ChunkCount(docID string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.cur == nil {
		return 0
	}
	return x.cur.manifest.Docs[docID]
}

// InsertOrCreate adds chunks to the index, creating it on first use, and
// persists the result. An empty batch is a no-op.
func (x *Index) InsertOrCreate(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	x.mu.RLock()
	cur := x.cur
	x.mu.RUnlock()

	if cur == nil {
		v, err := x.build(ctx, chunks)
		if err != nil {
			return err
		}
		if err := x.persist(v); err != nil {
			return err
		}
		x.swap(v)
		return nil
	}

	batch := make(map[string]int)
	for _, c := range chunks {
		if _, ok := cur.manifest.Docs[c.DocID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateDoc, c.DocID)
		}
		batch[c.DocID]++
	}

	m := cur.manifest.clone()
	docs := toDocuments(chunks, m.NextSeq)
	for id, n := range batch {
		m.Docs[id] = n
	}
	m.NextSeq += len(chunks)
	m.UpdatedAt = time.Now().UTC()

	prev := cur.manifest
	x.mu.Lock()
	err := cur.col.AddDocuments(ctx, docs, runtime.NumCPU())
	if err == nil {
		cur.manifest = m
	}
	x.mu.Unlock()
	if err != nil {
		x.rollback(cur, prev, batch)
		return fmt.Errorf("add chunks: %w", err)
	}

	x.mu.RLock()
	err = x.persist(cur)
	x.mu.RUnlock()
	if err != nil {
		x.rollback(cur, prev, batch)
		return err
	}
	return nil
}

// rollback removes a partially applied batch so memory matches disk again.
func (x *Index) rollback(v *version, prev Manifest, batch map[string]int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id := range batch {
		if err := v.col.Delete(context.Background(), map[string]string{"doc_id": id}, nil); err != nil {
			slog.Error("index rollback failed", "doc_id", id, "error", err)
			x.stale = true
		}
	}
	v.manifest = prev
}

// Rebuild replaces the whole index with exactly chunks. The new version is
// persisted before it becomes visible to readers. Rebuilding with no chunks
// clears the index.
func (x *Index) Rebuild(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return x.Clear()
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	v, err := x.build(ctx, chunks)
	if err != nil {
		return err
	}
	if err := x.persist(v); err != nil {
		return err
	}
	x.swap(v)
	slog.Debug("vector index rebuilt", "chunks", len(chunks), "docs", len(v.manifest.Docs))
	return nil
}

// Drop removes every chunk of the given documents and persists the
// result. Dropping the last document clears the index. Unknown ids are
// ignored.
func (x *Index) Drop(ctx context.Context, docIDs ...string) error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	x.mu.RLock()
	cur, stale := x.cur, x.stale
	x.mu.RUnlock()
	if cur == nil {
		return nil
	}

	// A stale manifest may not list every indexed document, so the
	// chunks are deleted even when the ids look unknown.
	m := cur.manifest.clone()
	var gone []string
	for _, id := range docIDs {
		if _, ok := m.Docs[id]; ok {
			delete(m.Docs, id)
			gone = append(gone, id)
		}
	}
	if len(gone) == 0 && !stale {
		return nil
	}
	if len(m.Docs) == 0 && !stale {
		return x.clearLocked()
	}

	x.mu.Lock()
	for _, id := range docIDs {
		if err := cur.col.Delete(ctx, map[string]string{"doc_id": id}, nil); err != nil {
			x.stale = true
			x.mu.Unlock()
			return fmt.Errorf("delete chunks of %s: %w", id, err)
		}
	}
	m.UpdatedAt = time.Now().UTC()
	cur.manifest = m
	x.mu.Unlock()

	x.mu.RLock()
	err := x.persist(cur)
	x.mu.RUnlock()
	if err != nil {
		// Memory no longer matches disk.
		x.mu.Lock()
		x.stale = true
		x.mu.Unlock()
		return err
	}
	slog.Debug("documents dropped from index", "docs", gone)
	return nil
}

// Clear drops the index from memory and disk. Clearing an absent index is
// a no-op.
func (x *Index) Clear() error {
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	return x.clearLocked()
}

func (x *Index) clearLocked() error {
	x.swap(nil)
	for _, name := range []string{indexFile, manifestFile} {
		if err := os.Remove(filepath.Join(x.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// Search returns up to k chunks most similar to vector, optionally limited
// to one document. Equal similarities are ordered by insertion sequence.
func (x *Index) Search(ctx context.Context, vector []float32, k int, docID string) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.cur == nil {
		return nil, ErrNoIndex
	}

	var where map[string]string
	n := x.cur.col.Count()
	if docID != "" {
		where = map[string]string{"doc_id": docID}
		if c, ok := x.cur.manifest.Docs[docID]; ok && !x.stale {
			n = min(n, c)
		}
	}
	if n == 0 {
		return nil, nil
	}

	// Every candidate is scored so that ties at the k boundary resolve
	// deterministically.
	hits, err := x.cur.col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, fromHit(h))
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Seq < results[j].Seq
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (x *Index) build(ctx context.Context, chunks []Chunk) (*version, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(collectionName, nil, x.ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	if err := col.AddDocuments(ctx, toDocuments(chunks, 0), runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("add chunks: %w", err)
	}

	m := Manifest{Docs: make(map[string]int), NextSeq: len(chunks), UpdatedAt: time.Now().UTC()}
	for _, c := range chunks {
		m.Docs[c.DocID]++
	}
	return &version{db: db, col: col, manifest: m}, nil
}

// persist writes v to a temporary file and renames it over the artifact,
// then replaces the manifest the same way.
func (x *Index) persist(v *version) error {
	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(x.dir, ".index-*.gob.gz")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := v.db.ExportToFile(tmpPath, true, ""); err != nil {
		return fmt.Errorf("export index: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(x.dir, indexFile)); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}

	data, err := json.MarshalIndent(v.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(x.dir, manifestFile), data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (x *Index) swap(v *version) {
	x.mu.Lock()
	x.cur = v
	x.stale = false
	x.mu.Unlock()
}

func toDocuments(chunks []Chunk, seq int) []chromem.Document {
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      c.DocID + ":" + strconv.Itoa(c.ChunkID),
			Content: c.Text,
			Metadata: map[string]string{
				"doc_id":   c.DocID,
				"filename": c.Filename,
				"chunk_id": strconv.Itoa(c.ChunkID),
				"page":     strconv.Itoa(c.Page),
				"seq":      strconv.Itoa(seq + i),
			},
			Embedding: c.Vector,
		}
	}
	return docs
}

func fromHit(h chromem.Result) Result {
	chunkID, _ := strconv.Atoi(h.Metadata["chunk_id"])
	page, _ := strconv.Atoi(h.Metadata["page"])
	seq, _ := strconv.Atoi(h.Metadata["seq"])
	return Result{
		Chunk: Chunk{
			DocID:    h.Metadata["doc_id"],
			Filename: h.Metadata["filename"],
			ChunkID:  chunkID,
			Page:     page,
			Text:     h.Content,
		},
		Similarity: h.Similarity,
		Seq:        seq,
	}
}

func readManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	if m.Docs == nil {
		m.Docs = map[string]int{}
	}
	return m, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
