package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"paperbot/internal/answer"
	"paperbot/internal/config"
	"paperbot/internal/extract"
	"paperbot/internal/model"
)

type fakeProvider struct {
	mu       sync.Mutex
	embedErr error
	genErr   error
	genText  string
	genCalls int
	genHook  func() // invoked inside Generate when non-nil
}

func (f *fakeProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	err := f.embedErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []float32{1, 0}, nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.EmbedText(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeProvider) Generate(ctx context.Context, req model.GenerationRequest) (string, error) {
	f.mu.Lock()
	f.genCalls++
	hook := f.genHook
	err := f.genErr
	text := f.genText
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (f *fakeProvider) setEmbedErr(err error) {
	f.mu.Lock()
	f.embedErr = err
	f.mu.Unlock()
}

type fixtureExtractor struct{}

func (fixtureExtractor) Extract(path string) ([]extract.Page, error) {
	base := filepath.Base(path)
	return []extract.Page{{Number: 1, Text: strings.Repeat("body of "+base+" ", 10)}}, nil
}

func testService(t *testing.T, names ...string) (*Service, *fakeProvider) {
	t.Helper()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	cfg.StateDir = t.TempDir()
	cfg.Chunking = config.Chunking{BlockSize: 60, Overlap: 10, MinChars: 1}

	for _, name := range names {
		if err := os.WriteFile(filepath.Join(cfg.RootDir, name), []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	provider := &fakeProvider{genText: "generated answer"}
	svc, err := New(cfg, provider, provider)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.pipeline.Extractor = fixtureExtractor{}
	return svc, provider
}

func TestAnswerOnEmptyCorpus(t *testing.T) {
	svc, _ := testService(t)

	result, err := svc.Answer(context.Background(), "user-1", "anything?")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if result.Answer != answer.MsgEmptyCorpus {
		t.Fatalf("answer = %q, want empty-corpus message", result.Answer)
	}
	if result.Grounded {
		t.Fatal("empty corpus answer must not be grounded")
	}
}

func TestIngestThenGroundedAnswer(t *testing.T) {
	svc, _ := testService(t, "paper_one.pdf")

	stats, err := svc.IngestAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !stats.IndexReady || stats.NewDocuments != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	result, err := svc.Answer(context.Background(), "user-1", "what does paper one say?")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !result.Grounded {
		t.Fatalf("expected a grounded answer, got %q", result.Answer)
	}
	if !strings.Contains(result.Answer, "generated answer") {
		t.Fatalf("answer = %q", result.Answer)
	}
	if len(result.References) == 0 || result.References[0].Document != "paper one" {
		t.Fatalf("references = %+v", result.References)
	}
}

func TestIngestPersistFailureDoesNotSwapIndex(t *testing.T) {
	svc, _ := testService(t, "paper_one.pdf")

	// a directory squatting on the index path makes the final rename fail
	if err := os.MkdirAll(svc.cfg.IndexPath(), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := svc.IngestAll(context.Background(), nil)
	if !errors.Is(err, model.ErrPersistence) {
		t.Fatalf("ingest error = %v, want ErrPersistence", err)
	}
	if svc.Status().IndexReady {
		t.Fatal("failed run must leave the previous index serving")
	}
}

func TestAnswerFallsBackWhenQuestionEmbedFails(t *testing.T) {
	svc, provider := testService(t, "paper_one.pdf")
	if _, err := svc.IngestAll(context.Background(), nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	provider.setEmbedErr(&model.ProviderError{Message: "embeddings down", Retryable: true})
	result, err := svc.Answer(context.Background(), "user-1", "question")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if result.Grounded || len(result.References) != 0 {
		t.Fatalf("fallback answer must not be grounded: %+v", result)
	}
	if result.Answer != "generated answer" {
		t.Fatalf("answer = %q, want the general path output", result.Answer)
	}
}

func TestAnswerRejectsConcurrentRequestsPerUser(t *testing.T) {
	svc, provider := testService(t, "paper_one.pdf")
	if _, err := svc.IngestAll(context.Background(), nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	entered := make(chan struct{})
	block := make(chan struct{})
	var once sync.Once
	provider.mu.Lock()
	provider.genHook = func() {
		once.Do(func() { close(entered) })
		<-block
	}
	provider.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Answer(context.Background(), "user-1", "slow question")
		done <- err
	}()
	<-entered // the first request now holds the lease

	_, busyErr := svc.Answer(context.Background(), "user-1", "second question")
	if !errors.Is(busyErr, model.ErrUserBusy) {
		close(block)
		t.Fatalf("second request error = %v, want ErrUserBusy", busyErr)
	}

	// a different user is unaffected
	provider.mu.Lock()
	provider.genHook = nil
	provider.mu.Unlock()
	if _, err := svc.Answer(context.Background(), "user-2", "other question"); err != nil {
		close(block)
		t.Fatalf("other user blocked: %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first request: %v", err)
	}

	// the lease is released once the first request finishes
	if _, err := svc.Answer(context.Background(), "user-1", "third question"); err != nil {
		t.Fatalf("lease not released: %v", err)
	}
}

func TestAskGeneralPath(t *testing.T) {
	svc, provider := testService(t)

	result, err := svc.Ask(context.Background(), "user-1", "what is a genome?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if result.Answer != "generated answer" || result.Grounded {
		t.Fatalf("result = %+v", result)
	}
	if provider.genCalls != 1 {
		t.Fatalf("generator calls = %d, want 1", provider.genCalls)
	}
}

func TestResolveDOI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><iframe src="/paper.pdf"></iframe></html>`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	cfg.StateDir = t.TempDir()
	cfg.SciHub = config.SciHub{Mirrors: []string{srv.URL}, TimeoutSeconds: 5}

	provider := &fakeProvider{genText: "x"}
	svc, err := New(cfg, provider, provider)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	got, err := svc.ResolveDOI(context.Background(), "user-1", "10.1038/s41586-020-2649-2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != srv.URL+"/paper.pdf" {
		t.Fatalf("pdf url = %q", got)
	}
}

func TestStatusCounters(t *testing.T) {
	svc, _ := testService(t, "a.pdf", "b.pdf")

	before := svc.Status()
	if before.Documents != 0 || before.IndexReady {
		t.Fatalf("status before ingest = %+v", before)
	}

	if _, err := svc.IngestAll(context.Background(), nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	after := svc.Status()
	if after.Documents != 2 || after.Chunks == 0 || after.Chunks != after.EmbeddedChunks || !after.IndexReady {
		t.Fatalf("status after ingest = %+v", after)
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	cfg.StateDir = t.TempDir()
	cfg.Chunking = config.Chunking{BlockSize: 60, Overlap: 10, MinChars: 1}
	if err := os.WriteFile(filepath.Join(cfg.RootDir, "a.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	provider := &fakeProvider{genText: "answer"}
	svc, err := New(cfg, provider, provider)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.pipeline.Extractor = fixtureExtractor{}
	if _, err := svc.IngestAll(context.Background(), nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// a fresh service over the same state dir sees the persisted snapshots
	restarted, err := New(cfg, provider, provider)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	restarted.pipeline.Extractor = fixtureExtractor{}
	status := restarted.Status()
	if status.Documents != 1 || !status.IndexReady {
		t.Fatalf("status after restart = %+v", status)
	}

	result, err := restarted.Answer(context.Background(), "user-1", "question")
	if err != nil {
		t.Fatalf("answer after restart: %v", err)
	}
	if !result.Grounded {
		t.Fatalf("expected grounded answer after restart, got %q", result.Answer)
	}
}
