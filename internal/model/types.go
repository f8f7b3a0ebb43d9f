package model

import "context"

// Document describes one source file discovered under the library root. The
// content hash is recomputed on every ingestion pass; identity for skip
// decisions is the base name (see ingest).
type Document struct {
	Name        string
	AbsPath     string
	SizeBytes   int64
	ContentHash string
}

// Chunk is the atomic retrieval unit: a fixed-size overlapping slice of a
// document's extracted text. Start/End are the half-open character span in
// the concatenated page text; Pages lists every page whose character range
// intersects that span.
type Chunk struct {
	ID        string
	Document  string
	Text      string
	Pages     []int
	Start     int
	End       int
	WordCount int
	Embedding []float32
}

// Embedded reports whether the chunk carries an embedding vector. Chunks
// without one are excluded from the vector index and retried on the next
// ingestion run.
func (c Chunk) Embedded() bool {
	return len(c.Embedding) > 0
}

// Reference is one deduplicated citation line: a document display name and
// the union of pages contributed by its retrieved chunks, sorted ascending.
type Reference struct {
	Document string
	Pages    []int
}

// AskResult is what the transport layer renders back to the user.
type AskResult struct {
	Question   string
	Answer     string
	References []Reference
	Grounded   bool
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Discovered       int
	NewDocuments     int
	FailedDocuments  int
	NewChunks        int
	EmbeddedChunks   int
	FailedEmbeddings int
	ChunkCount       int
	IndexReady       bool
}

// GenerationRequest carries the fixed prompt/sampling parameters for one
// call to the generation provider. Temperature and token limits are
// configuration, never user input.
type GenerationRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// Embedder converts text into fixed-dimension vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer from a prompt pair.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
