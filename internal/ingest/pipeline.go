package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"paperbot/internal/config"
	"paperbot/internal/extract"
	"paperbot/internal/index"
	"paperbot/internal/model"
	"paperbot/internal/store"
)

// Extractor turns a document on disk into per-page text. The default reads
// PDFs; tests substitute their own.
type Extractor interface {
	Extract(path string) ([]extract.Page, error)
}

type pdfExtractor struct{}

func (pdfExtractor) Extract(path string) ([]extract.Page, error) {
	return extract.ReadPDF(path)
}

// Progress is invoked as the pipeline advances through a stage. total may be
// zero when the stage has nothing to do.
type Progress func(stage string, done, total int)

// Pipeline runs ingestion: discover documents, chunk the new ones, embed
// whatever lacks a vector, rebuild the index, and persist both snapshots.
// A mutex makes it a single writer; concurrent Run calls serialize. Readers
// keep using the previous index until the caller swaps in the one Run
// returns.
type Pipeline struct {
	cfg      config.Config
	store    *store.Store
	embedder model.Embedder

	runMu sync.Mutex

	// Extractor is swappable for tests; nil means the PDF reader.
	Extractor Extractor

	// OnProgress is optional; the CLI uses it to drive a progress bar.
	OnProgress Progress

	// Logger is optional; if non-nil its Printf method will be used for
	// informational messages. When nil the standard library's log package
	// is used.
	Logger *log.Logger
}

func NewPipeline(cfg config.Config, st *store.Store, embedder model.Embedder) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, embedder: embedder}
}

// Run executes one full ingestion pass. The returned index is non-nil only
// when a rebuild happened; a nil index with a nil error means nothing
// changed and the caller's current index remains valid. Per-document and
// per-chunk failures are counted in the stats, not returned.
func (p *Pipeline) Run(ctx context.Context) (model.IngestStats, *index.VectorIndex, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	var stats model.IngestStats

	docs, unreadable, err := Discover(ctx, p.cfg.RootDir)
	if err != nil {
		return stats, nil, err
	}
	stats.Discovered = len(docs) + unreadable
	stats.FailedDocuments = unreadable

	known := p.store.KnownDocuments()
	var newDocs []model.Document
	for _, d := range docs {
		if _, seen := known[d.Name]; seen {
			continue
		}
		newDocs = append(newDocs, d)
	}

	// fast path: nothing new and nothing pending means the previous index
	// still describes the collection exactly
	if len(newDocs) == 0 && len(p.store.Pending()) == 0 {
		stats.ChunkCount, _, _ = p.store.Stats()
		stats.IndexReady = stats.ChunkCount > 0
		p.logf("ingest: no new documents, no pending embeddings; skipping")
		return stats, nil, nil
	}

	for i, d := range newDocs {
		if err := ctx.Err(); err != nil {
			return stats, nil, err
		}
		p.progress("chunk", i, len(newDocs))

		chunks, err := p.chunkDocument(d)
		if err != nil {
			stats.FailedDocuments++
			p.logf("ingest: skipping %s: %v", d.Name, err)
			continue
		}
		if len(chunks) == 0 {
			p.logf("ingest: %s produced no chunks", d.Name)
			continue
		}
		if err := p.store.Append(chunks); err != nil {
			stats.FailedDocuments++
			p.logf("ingest: append %s: %v", d.Name, err)
			continue
		}
		stats.NewDocuments++
		stats.NewChunks += len(chunks)
	}
	p.progress("chunk", len(newDocs), len(newDocs))

	embedded, failed := p.embedPending(ctx)
	stats.EmbeddedChunks = embedded
	stats.FailedEmbeddings = failed

	idx, err := p.rebuild(ctx)
	if err != nil {
		stats.ChunkCount, _, _ = p.store.Stats()
		if saveErr := p.store.Save(); saveErr != nil {
			p.logf("ingest: %v", saveErr)
			return stats, nil, saveErr
		}
		p.logf("ingest: %v; keeping previous index", err)
		return stats, nil, nil
	}
	stats.IndexReady = true

	stats.ChunkCount, _, _ = p.store.Stats()
	if err := p.store.Save(); err != nil {
		return stats, idx, err
	}
	if err := idx.Save(p.cfg.IndexPath()); err != nil {
		return stats, idx, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return stats, idx, nil
}

// Reprocess force-reingests a single document: every chunk it owns is
// removed and the file is chunked, embedded, and indexed from scratch. This
// is the only path that removes chunks from the store.
func (p *Pipeline) Reprocess(ctx context.Context, name string) (model.IngestStats, *index.VectorIndex, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	var stats model.IngestStats

	docs, _, err := Discover(ctx, p.cfg.RootDir)
	if err != nil {
		return stats, nil, err
	}
	var target *model.Document
	for i := range docs {
		if docs[i].Name == name {
			target = &docs[i]
			break
		}
	}
	if target == nil {
		return stats, nil, fmt.Errorf("%w: document %q under %s", model.ErrNotFound, name, p.cfg.RootDir)
	}

	removed := p.store.RemoveDocument(name)
	p.logf("reprocess %s: removed %d existing chunks", name, removed)

	chunks, err := p.chunkDocument(*target)
	if err != nil {
		return stats, nil, err
	}
	if err := p.store.Append(chunks); err != nil {
		return stats, nil, err
	}
	stats.Discovered = len(docs)
	stats.NewDocuments = 1
	stats.NewChunks = len(chunks)

	embedded, failed := p.embedPending(ctx)
	stats.EmbeddedChunks = embedded
	stats.FailedEmbeddings = failed

	idx, err := p.rebuild(ctx)
	if err != nil {
		stats.ChunkCount, _, _ = p.store.Stats()
		if saveErr := p.store.Save(); saveErr != nil {
			return stats, nil, saveErr
		}
		p.logf("reprocess: %v; keeping previous index", err)
		return stats, nil, nil
	}
	stats.IndexReady = true

	stats.ChunkCount, _, _ = p.store.Stats()
	if err := p.store.Save(); err != nil {
		return stats, idx, err
	}
	if err := idx.Save(p.cfg.IndexPath()); err != nil {
		return stats, idx, fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return stats, idx, nil
}

func (p *Pipeline) chunkDocument(d model.Document) ([]model.Chunk, error) {
	extractor := p.Extractor
	if extractor == nil {
		extractor = pdfExtractor{}
	}
	pages, err := extractor.Extract(d.AbsPath)
	if err != nil {
		var xe *model.ExtractionError
		if errors.As(err, &xe) {
			return nil, err
		}
		return nil, &model.ExtractionError{Document: d.Name, Err: err}
	}

	chunker := extract.Chunker{
		BlockSize: p.cfg.Chunking.BlockSize,
		Overlap:   p.cfg.Chunking.Overlap,
		MinChars:  p.cfg.Chunking.MinChars,
	}
	return chunker.Chunk(d.Name, pages), nil
}

// embedPending sends every chunk without a vector to the provider, one call
// per chunk so a single bad input cannot sink its neighbors. Chunks that
// fail stay pending and are retried on the next run; chunks that already
// carry an embedding are never re-sent.
func (p *Pipeline) embedPending(ctx context.Context) (embedded, failed int) {
	pending := p.store.Pending()
	if len(pending) == 0 {
		return 0, 0
	}

	p.progress("embed", 0, len(pending))
	for i, c := range pending {
		if cerr := ctx.Err(); cerr != nil {
			failed += len(pending) - i
			break
		}
		vec, err := p.embedder.EmbedText(ctx, c.Text)
		if err != nil {
			p.logf("embed: chunk %s: %v", c.ID, err)
			failed++
			continue
		}
		if !p.store.SetEmbedding(c.ID, vec) {
			p.logf("embed: chunk %s vanished before merge", c.ID)
			failed++
			continue
		}
		embedded++
		p.progress("embed", i+1, len(pending))
	}
	return embedded, failed
}

// rebuild constructs a fresh index over exactly the embedded subset of the
// collection.
func (p *Pipeline) rebuild(ctx context.Context) (*index.VectorIndex, error) {
	idx := index.New(p.cfg.IndexPath())
	added := 0
	for _, c := range p.store.Chunks() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !c.Embedded() {
			continue
		}
		if err := idx.Add(c.ID, c.Embedding); err != nil {
			return nil, fmt.Errorf("%w: add %s: %v", model.ErrIndexBuild, c.ID, err)
		}
		added++
	}
	if added == 0 {
		return nil, fmt.Errorf("%w: no embedded chunks", model.ErrIndexBuild)
	}
	return idx, nil
}

func (p *Pipeline) progress(stage string, done, total int) {
	if p.OnProgress != nil {
		p.OnProgress(stage, done, total)
	}
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p != nil && p.Logger != nil {
		p.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
