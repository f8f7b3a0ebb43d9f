package store

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"paperbot/internal/model"
)

// Store holds the full chunk collection in memory and persists it as a single
// gob snapshot. The collection is append-only: chunks are only removed when a
// document is explicitly reprocessed. Saves replace the snapshot atomically,
// so a failed write leaves the previous file authoritative.
type Store struct {
	path   string
	mu     sync.RWMutex
	chunks []model.Chunk

	// Logger is optional; if non-nil its Printf method will be used for
	// informational messages. When nil the standard library's log package
	// is used.
	Logger *log.Logger
}

// snapshot is the on-disk shape. Kept separate from the in-memory layout so
// the file format can evolve without touching Store internals.
type snapshot struct {
	Chunks []model.Chunk
}

func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the snapshot from disk. A missing file is not an error; the
// store simply starts empty.
func (s *Store) Load() error {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = file.Close() }()

	var snap snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.chunks = snap.Chunks
	s.mu.Unlock()
	s.logf("loaded %d chunks from %s", len(snap.Chunks), s.path)
	return nil
}

// Save writes the whole collection to a temporary file, syncs it, and renames
// it over the snapshot path.
func (s *Store) Save() error {
	if s.path == "" {
		return fmt.Errorf("%w: path is required", model.ErrPersistence)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}

	tmpPath := s.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}

	s.mu.RLock()
	snap := snapshot{Chunks: s.chunks}
	err = gob.NewEncoder(file).Encode(snap)
	s.mu.RUnlock()
	if err != nil {
		closeErr := file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", model.ErrPersistence, errors.Join(err, closeErr))
	}
	if err := file.Sync(); err != nil {
		closeErr := file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", model.ErrPersistence, errors.Join(err, closeErr))
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}

// Chunks returns a copy of the collection. Embedding slices are shared with
// the store; callers must treat them as read-only.
func (s *Store) Chunks() []model.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// ChunkByID looks a chunk up by its identifier.
func (s *Store) ChunkByID(id string) (model.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chunks {
		if c.ID == id {
			return c, true
		}
	}
	return model.Chunk{}, false
}

// NearestChunk returns the embedded chunk whose vector is closest (Euclidean)
// to the given one, or false when no chunk carries an embedding. This is a
// linear scan kept only as an explicit fallback for callers that hold a bare
// vector instead of a chunk ID; it does not scale and normal retrieval never
// needs it.
func (s *Store) NearestChunk(vector []float32) (model.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := -1
	var bestDist float64
	for i := range s.chunks {
		emb := s.chunks[i].Embedding
		if len(emb) == 0 || len(emb) != len(vector) {
			continue
		}
		var sum float64
		for j := range emb {
			d := float64(emb[j] - vector[j])
			sum += d * d
		}
		if best == -1 || sum < bestDist {
			best = i
			bestDist = sum
		}
	}
	if best == -1 {
		return model.Chunk{}, false
	}
	return s.chunks[best], true
}

// KnownDocuments returns the set of document base names that already have
// chunks in the collection. This is the identity used for skip decisions at
// ingestion time.
func (s *Store) KnownDocuments() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	known := make(map[string]struct{})
	for _, c := range s.chunks {
		known[c.Document] = struct{}{}
	}
	return known
}

// Pending returns the chunks that still lack an embedding. These are retried
// on every ingestion run.
func (s *Store) Pending() []model.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Chunk
	for _, c := range s.chunks {
		if !c.Embedded() {
			out = append(out, c)
		}
	}
	return out
}

// Append adds new chunks to the collection. Duplicate IDs are rejected so a
// buggy caller cannot corrupt retrieval results.
func (s *Store) Append(chunks []model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[string]struct{}, len(s.chunks))
	for _, c := range s.chunks {
		existing[c.ID] = struct{}{}
	}
	for _, c := range chunks {
		if _, dup := existing[c.ID]; dup {
			return fmt.Errorf("duplicate chunk id %q", c.ID)
		}
		existing[c.ID] = struct{}{}
	}
	s.chunks = append(s.chunks, chunks...)
	return nil
}

// SetEmbedding attaches a vector to the chunk with the given ID. It reports
// whether the chunk was found.
func (s *Store) SetEmbedding(id string, vector []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.chunks {
		if s.chunks[i].ID == id {
			copied := make([]float32, len(vector))
			copy(copied, vector)
			s.chunks[i].Embedding = copied
			return true
		}
	}
	return false
}

// RemoveDocument deletes every chunk belonging to the named document (base
// name) and returns how many were removed. Used by the force-reprocess path;
// normal ingestion never removes chunks.
func (s *Store) RemoveDocument(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	removed := 0
	for _, c := range s.chunks {
		if c.Document == name {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	return removed
}

// Stats reports collection-level counters.
func (s *Store) Stats() (total, embedded, documents int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make(map[string]struct{})
	for _, c := range s.chunks {
		if c.Embedded() {
			embedded++
		}
		docs[c.Document] = struct{}{}
	}
	return len(s.chunks), embedded, len(docs)
}

func (s *Store) logf(format string, args ...interface{}) {
	if s != nil && s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
