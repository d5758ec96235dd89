package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// IngestState remembers which file contents have already been ingested by
// bulk runs, so re-running over the same directory skips them.
type IngestState struct {
	// Hashes maps a SHA-256 content digest to the document id it produced.
	Hashes      map[string]string `json:"hashes"`
	LastUpdated time.Time         `json:"last_updated"`

	path string
}

// LoadState reads the state file at path. A missing file yields an empty
// state.
func LoadState(path string) (*IngestState, error) {
	s := &IngestState{Hashes: make(map[string]string), path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	if s.Hashes == nil {
		s.Hashes = make(map[string]string)
	}
	return s, nil
}

// Save writes the state back to the file it was loaded from.
func (s *IngestState) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	s.LastUpdated = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Lookup returns the document id previously ingested for hash.
func (s *IngestState) Lookup(hash string) (string, bool) {
	id, ok := s.Hashes[hash]
	return id, ok
}

// Record associates hash with docID.
func (s *IngestState) Record(hash, docID string) {
	s.Hashes[hash] = docID
}

// Forget drops every hash that maps to one of docIDs.
func (s *IngestState) Forget(docIDs ...string) {
	drop := make(map[string]bool, len(docIDs))
	for _, id := range docIDs {
		drop[id] = true
	}
	for h, id := range s.Hashes {
		if drop[id] {
			delete(s.Hashes, h)
		}
	}
}

// HashBytes returns the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
