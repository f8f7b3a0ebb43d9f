package store

import (
	"errors"
	"path/filepath"
	"testing"

	"paperbot/internal/model"
)

func testChunk(id, doc string, embedded bool) model.Chunk {
	c := model.Chunk{ID: id, Document: doc, Text: "text of " + id, Pages: []int{1}}
	if embedded {
		c.Embedding = []float32{0.1, 0.2}
	}
	return c
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.gob")

	s := New(path)
	if err := s.Append([]model.Chunk{
		testChunk("a.pdf#block-0", "a.pdf", true),
		testChunk("a.pdf#block-1", "a.pdf", false),
		testChunk("b.pdf#block-0", "b.pdf", true),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	total, embedded, docs := reloaded.Stats()
	if total != 3 || embedded != 2 || docs != 2 {
		t.Fatalf("stats after reload = (%d, %d, %d), want (3, 2, 2)", total, embedded, docs)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent.gob"))
	if err := s.Load(); err != nil {
		t.Fatalf("load of missing file: %v", err)
	}
	if total, _, _ := s.Stats(); total != 0 {
		t.Fatalf("expected empty store, got %d chunks", total)
	}
}

func TestAppendRejectsDuplicateIDs(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "chunks.gob"))
	if err := s.Append([]model.Chunk{testChunk("a.pdf#block-0", "a.pdf", false)}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := s.Append([]model.Chunk{testChunk("a.pdf#block-0", "a.pdf", false)}); err == nil {
		t.Fatal("expected duplicate ID to be rejected")
	}
}

func TestPendingAndSetEmbedding(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "chunks.gob"))
	if err := s.Append([]model.Chunk{
		testChunk("a.pdf#block-0", "a.pdf", true),
		testChunk("a.pdf#block-1", "a.pdf", false),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	pending := s.Pending()
	if len(pending) != 1 || pending[0].ID != "a.pdf#block-1" {
		t.Fatalf("pending = %+v, want only a.pdf#block-1", pending)
	}

	if !s.SetEmbedding("a.pdf#block-1", []float32{1, 0}) {
		t.Fatal("SetEmbedding did not find the chunk")
	}
	if got := s.Pending(); len(got) != 0 {
		t.Fatalf("expected no pending chunks, got %d", len(got))
	}
	if s.SetEmbedding("nope#block-0", []float32{1}) {
		t.Fatal("SetEmbedding reported success for an unknown chunk")
	}
}

func TestRemoveDocument(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "chunks.gob"))
	if err := s.Append([]model.Chunk{
		testChunk("a.pdf#block-0", "a.pdf", true),
		testChunk("a.pdf#block-1", "a.pdf", true),
		testChunk("b.pdf#block-0", "b.pdf", true),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if removed := s.RemoveDocument("a.pdf"); removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	known := s.KnownDocuments()
	if _, stillThere := known["a.pdf"]; stillThere {
		t.Fatal("a.pdf still present after removal")
	}
	if _, kept := known["b.pdf"]; !kept {
		t.Fatal("b.pdf lost during removal")
	}
}

func TestNearestChunk(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "chunks.gob"))
	a := testChunk("a.pdf#block-0", "a.pdf", false)
	a.Embedding = []float32{1, 0}
	b := testChunk("b.pdf#block-0", "b.pdf", false)
	b.Embedding = []float32{0, 1}
	pending := testChunk("c.pdf#block-0", "c.pdf", false)
	if err := s.Append([]model.Chunk{a, b, pending}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, ok := s.NearestChunk([]float32{0.9, 0.1})
	if !ok || got.ID != "a.pdf#block-0" {
		t.Fatalf("nearest = %+v (ok=%v), want a.pdf#block-0", got, ok)
	}

	empty := New(filepath.Join(t.TempDir(), "chunks.gob"))
	if _, ok := empty.NearestChunk([]float32{1, 0}); ok {
		t.Fatal("empty store reported a nearest chunk")
	}
}

func TestSaveWithoutPathFailsWithPersistenceError(t *testing.T) {
	s := New("")
	err := s.Save()
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, model.ErrPersistence) {
		t.Fatalf("error = %v, want ErrPersistence", err)
	}
}
