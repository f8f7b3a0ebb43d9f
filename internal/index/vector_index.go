package index

import (
	"encoding/gob"
	"errors"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
)

// VectorIndex is an exact nearest-neighbor structure over unit-length
// vectors keyed by chunk ID. Search is a linear scan with a full sort, which
// is fine at the collection sizes a local document library reaches; the type
// keeps the whole collection behind an RWMutex so ingestion can rebuild while
// queries read a previous instance.
type VectorIndex struct {
	path    string
	mu      sync.RWMutex
	vectors map[string][]float32

	// Logger is optional; if non-nil its Printf method will be used for
	// informational messages. When nil the standard library's log package
	// is used.
	Logger *log.Logger

	// Metrics collects optional counters that callers can inspect. If
	// Metrics is nil nothing is incremented.
	Metrics *Metrics
}

// Metrics holds counters gathered by an index instance.
type Metrics struct {
	// DimensionMismatch tracks how many times a stored vector's length
	// didn't match the query vector's.
	DimensionMismatch atomic.Int64
}

// New creates an empty index. The optional path is used by Save/Load; if
// non-empty those methods persist to the given file.
func New(path string) *VectorIndex {
	return &VectorIndex{
		path:    path,
		vectors: make(map[string][]float32),
	}
}

func (i *VectorIndex) Add(id string, vector []float32) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}
	if len(vector) == 0 {
		return errors.New("vector cannot be empty")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	copied := make([]float32, len(vector))
	copy(copied, vector)
	i.vectors[id] = copied
	return nil
}

// Len reports how many vectors the index holds.
func (i *VectorIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.vectors)
}

// Search returns up to k chunk IDs ordered by ascending Euclidean distance
// to the query. Ties break on ID so results are deterministic. An empty
// index yields empty slices, and k is clamped to the index size.
func (i *VectorIndex) Search(vector []float32, k int) ([]string, []float32, error) {
	if len(vector) == 0 {
		return nil, nil, errors.New("query vector cannot be empty")
	}
	if k <= 0 {
		return []string{}, []float32{}, nil
	}

	type scored struct {
		id   string
		dist float32
	}

	// copy candidates under the read lock, score outside it
	type candidate struct {
		id     string
		vector []float32
	}
	var (
		candidates []candidate
		mismatches []string
	)
	i.mu.RLock()
	for id, cand := range i.vectors {
		if len(cand) != len(vector) {
			mismatches = append(mismatches, id)
			if i.Metrics != nil {
				i.Metrics.DimensionMismatch.Add(1)
			}
			continue
		}
		copyVec := make([]float32, len(cand))
		copy(copyVec, cand)
		candidates = append(candidates, candidate{id, copyVec})
	}
	i.mu.RUnlock()

	for _, id := range mismatches {
		i.logf("dimension mismatch: id=%s query_len=%d", id, len(vector))
	}

	scoredItems := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		scoredItems = append(scoredItems, scored{id: c.id, dist: euclidean(vector, c.vector)})
	}

	sort.Slice(scoredItems, func(a, b int) bool {
		if scoredItems[a].dist == scoredItems[b].dist {
			return scoredItems[a].id < scoredItems[b].id
		}
		return scoredItems[a].dist < scoredItems[b].dist
	})

	if len(scoredItems) > k {
		scoredItems = scoredItems[:k]
	}

	ids := make([]string, len(scoredItems))
	dists := make([]float32, len(scoredItems))
	for idx, item := range scoredItems {
		ids[idx] = item.id
		dists[idx] = item.dist
	}
	return ids, dists, nil
}

func (i *VectorIndex) Save(path string) error {
	if path == "" {
		path = i.path
	}
	if path == "" {
		return errors.New("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	i.mu.RLock()
	err = gob.NewEncoder(file).Encode(i.vectors)
	i.mu.RUnlock()
	if err != nil {
		closeErr := file.Close()
		_ = os.Remove(tmpPath)
		return errors.Join(err, closeErr)
	}
	if err := file.Sync(); err != nil {
		closeErr := file.Close()
		_ = os.Remove(tmpPath)
		return errors.Join(err, closeErr)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Load replaces the index contents with the snapshot at path. A missing file
// is not an error.
func (i *VectorIndex) Load(path string) error {
	if path == "" {
		path = i.path
	}
	if path == "" {
		return errors.New("path is required")
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = file.Close() }()

	loaded := make(map[string][]float32)
	if err := gob.NewDecoder(file).Decode(&loaded); err != nil {
		return err
	}

	i.mu.Lock()
	i.vectors = loaded
	i.mu.Unlock()
	return nil
}

func (i *VectorIndex) logf(format string, args ...interface{}) {
	if i != nil && i.Logger != nil {
		i.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func euclidean(a, b []float32) float32 {
	var sum float32
	for idx := range a {
		d := a[idx] - b[idx]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}
