package retrieval

import (
	"context"
	"fmt"
	"log"
	"sync"

	"paperbot/internal/config"
	"paperbot/internal/index"
	"paperbot/internal/model"
	"paperbot/internal/store"
)

// Result pairs a retrieved chunk with its similarity to the question,
// cosine-equivalent in [−1, 1].
type Result struct {
	Chunk      model.Chunk
	Similarity float64
}

// Service answers "which chunks are relevant to this question". It embeds
// the question, queries the current index with oversampling, filters by the
// similarity threshold, and resolves chunk IDs against the store. The index
// is swapped atomically after an ingestion run; in-flight queries finish
// against the instance they started with.
type Service struct {
	cfg      config.Retrieval
	embedder model.Embedder
	store    *store.Store

	mu  sync.RWMutex
	idx *index.VectorIndex

	// Logger is optional; if non-nil its Printf method will be used for
	// informational messages. When nil the standard library's log package
	// is used.
	Logger *log.Logger
}

func New(cfg config.Retrieval, embedder model.Embedder, st *store.Store) *Service {
	return &Service{cfg: cfg, embedder: embedder, store: st}
}

// SetIndex installs a freshly built index. Nil is ignored so callers can
// pass a pipeline result through unconditionally.
func (s *Service) SetIndex(idx *index.VectorIndex) {
	if idx == nil {
		return
	}
	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()
}

func (s *Service) currentIndex() *index.VectorIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

// Ready reports whether an index with at least one vector is installed.
func (s *Service) Ready() bool {
	idx := s.currentIndex()
	return idx != nil && idx.Len() > 0
}

// Retrieve returns up to k chunks relevant to the question, best first.
// k <= 0 means the configured top-K. An empty or missing index yields an
// empty result and no error; a failed question embedding is reported as
// ErrEmbeddingUnavailable so the caller can fall back to the non-grounded
// answer path.
func (s *Service) Retrieve(ctx context.Context, question string, k int) ([]Result, error) {
	if k <= 0 {
		k = s.cfg.TopK
	}

	idx := s.currentIndex()
	if idx == nil || idx.Len() == 0 {
		return nil, nil
	}

	qvec, err := s.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingUnavailable, err)
	}

	oversample := s.cfg.Oversample
	if oversample < 1 {
		oversample = 1
	}
	ids, dists, err := idx.Search(qvec, k*oversample)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(ids))
	for i, id := range ids {
		sim := similarityFromDistance(dists[i])
		if s.cfg.SimilarityThreshold > 0 && sim < s.cfg.SimilarityThreshold {
			continue
		}
		chunk, ok := s.store.ChunkByID(id)
		if !ok {
			// the index can briefly reference chunks removed by a reprocess
			s.logf("retrieve: indexed chunk %s not in store", id)
			continue
		}
		results = append(results, Result{Chunk: chunk, Similarity: sim})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// similarityFromDistance converts the Euclidean distance between two
// unit-length vectors to cosine similarity: for unit vectors,
// d² = 2 − 2·cos, so cos = 1 − d²/2.
func similarityFromDistance(d float32) float64 {
	return 1 - float64(d)*float64(d)/2
}

func (s *Service) logf(format string, args ...interface{}) {
	if s != nil && s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
