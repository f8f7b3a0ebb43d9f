package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"paperbot/internal/answer"
	"paperbot/internal/config"
	"paperbot/internal/index"
	"paperbot/internal/ingest"
	"paperbot/internal/model"
	"paperbot/internal/retrieval"
	"paperbot/internal/scihub"
	"paperbot/internal/store"
)

// Status summarizes the current collection for the status command.
type Status struct {
	Documents      int
	Chunks         int
	EmbeddedChunks int
	IndexReady     bool
}

// Service wires the whole system together and is the boundary every
// transport (CLI, TUI) talks to. Question answering goes through a per-user
// lease so one user cannot queue up concurrent requests; ingestion is
// single-writer by way of the pipeline's own run lock.
type Service struct {
	cfg       config.Config
	store     *store.Store
	pipeline  *ingest.Pipeline
	retriever *retrieval.Service
	assembler *answer.Assembler
	scihub    *scihub.Client
	leases    *leaseTable

	// Logger is optional; if non-nil its Printf method will be used for
	// informational messages. When nil the standard library's log package
	// is used.
	Logger *log.Logger
}

// New builds a Service around the given provider. The embedder and
// generator are usually the same Fireworks client; tests pass fakes. State
// is loaded from disk: a missing snapshot just means an empty library.
func New(cfg config.Config, embedder model.Embedder, generator model.Generator) (*Service, error) {
	st := store.New(cfg.SnapshotPath())
	if err := st.Load(); err != nil {
		return nil, fmt.Errorf("load chunk snapshot: %w", err)
	}

	retriever := retrieval.New(cfg.Retrieval, embedder, st)
	idx := index.New(cfg.IndexPath())
	if err := idx.Load(""); err != nil {
		return nil, fmt.Errorf("load vector index: %w", err)
	}
	if idx.Len() > 0 {
		retriever.SetIndex(idx)
	}

	return &Service{
		cfg:       cfg,
		store:     st,
		pipeline:  ingest.NewPipeline(cfg, st, embedder),
		retriever: retriever,
		assembler: answer.New(cfg.Generation, generator),
		scihub:    scihub.New(cfg.SciHub),
		leases:    newLeaseTable(),
	}, nil
}

// IngestAll runs one ingestion pass and, if a new index was built and
// persisted, swaps it in for subsequent queries. A run that failed partway
// leaves the previous index serving.
func (s *Service) IngestAll(ctx context.Context, progress ingest.Progress) (model.IngestStats, error) {
	s.pipeline.OnProgress = progress
	stats, idx, err := s.pipeline.Run(ctx)
	if err != nil {
		return stats, err
	}
	s.retriever.SetIndex(idx)
	return stats, nil
}

// Reprocess force-reingests one document by base name.
func (s *Service) Reprocess(ctx context.Context, name string) (model.IngestStats, error) {
	stats, idx, err := s.pipeline.Reprocess(ctx, name)
	if err != nil {
		return stats, err
	}
	s.retriever.SetIndex(idx)
	return stats, nil
}

// Answer handles the grounded question path for one user. The result is
// always renderable; provider failures surface as fallback messages, never
// as errors. The only error conditions are the user lease (ErrUserBusy) and
// context cancellation.
func (s *Service) Answer(ctx context.Context, user, question string) (model.AskResult, error) {
	release, ok := s.leases.acquire(user)
	if !ok {
		return model.AskResult{}, fmt.Errorf("%w: %s", model.ErrUserBusy, user)
	}
	defer release()

	result := model.AskResult{Question: question}

	if total, _, _ := s.store.Stats(); total == 0 {
		result.Answer = answer.MsgEmptyCorpus
		return result, nil
	}

	hits, err := s.retriever.Retrieve(ctx, question, 0)
	if err != nil {
		if errors.Is(err, model.ErrEmbeddingUnavailable) {
			// cannot embed the question, fall back to general knowledge
			s.logf("answer: %v; falling back to general path", err)
			result.Answer = s.assembler.General(ctx, question)
			return result, nil
		}
		return model.AskResult{}, err
	}

	chunks := make([]model.Chunk, len(hits))
	for i, h := range hits {
		chunks[i] = h.Chunk
	}
	result.Answer, result.References = s.assembler.Grounded(ctx, question, chunks)
	result.Grounded = len(result.References) > 0
	return result, nil
}

// Ask handles the non-grounded general question path for one user.
func (s *Service) Ask(ctx context.Context, user, question string) (model.AskResult, error) {
	release, ok := s.leases.acquire(user)
	if !ok {
		return model.AskResult{}, fmt.Errorf("%w: %s", model.ErrUserBusy, user)
	}
	defer release()

	return model.AskResult{
		Question: question,
		Answer:   s.assembler.General(ctx, question),
	}, nil
}

// ResolveDOI resolves a DOI (or text containing one) to a direct PDF link.
func (s *Service) ResolveDOI(ctx context.Context, user, query string) (string, error) {
	release, ok := s.leases.acquire(user)
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrUserBusy, user)
	}
	defer release()

	return s.scihub.ResolvePDF(ctx, query)
}

// Status reports collection counters for the status command.
func (s *Service) Status() Status {
	total, embedded, docs := s.store.Stats()
	return Status{
		Documents:      docs,
		Chunks:         total,
		EmbeddedChunks: embedded,
		IndexReady:     s.retriever.Ready(),
	}
}

func (s *Service) logf(format string, args ...interface{}) {
	if s != nil && s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
