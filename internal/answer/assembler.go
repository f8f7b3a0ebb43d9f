package answer

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"paperbot/internal/config"
	"paperbot/internal/model"
)

// User-facing fallback messages. The assembler never lets a provider error
// escape; callers always get a renderable string.
const (
	MsgNoRelevantDocuments = "No relevant documents were found to answer your question."
	MsgEmptyCorpus         = "The library is empty. Run an ingestion pass before asking questions."
	MsgProviderUnavailable = "The answer service could not be reached. Please try again shortly."
	MsgGeneralUnavailable  = "Your question could not be answered right now. Please try again shortly."
	MsgUserBusy            = "A previous request of yours is still being processed. Please wait for it to finish."
)

// verificationNote is appended to every grounded answer.
const verificationNote = "Note: always verify the information directly in the source documents."

const (
	groundedSystemPrompt = "You are a research assistant specialized in interpreting scientific documents. Answer precisely and professionally."
	generalSystemPrompt  = "You are an assistant specialized in bioinformatics. Answer precisely and professionally."

	chunkDivider = "----------------------"
)

// Assembler turns retrieved chunks and a question into a final answer with
// references, or produces a non-grounded answer when no context applies.
type Assembler struct {
	cfg config.Generation
	gen model.Generator

	// Logger is optional; if non-nil its Printf method will be used for
	// informational messages. When nil the standard library's log package
	// is used.
	Logger *log.Logger
}

func New(cfg config.Generation, gen model.Generator) *Assembler {
	return &Assembler{cfg: cfg, gen: gen}
}

// Grounded produces an answer from the retrieved chunks. Provider failures
// never propagate: the returned string is always renderable, with empty
// references on failure.
func (a *Assembler) Grounded(ctx context.Context, question string, chunks []model.Chunk) (string, []model.Reference) {
	if len(chunks) == 0 {
		return MsgNoRelevantDocuments, nil
	}

	req := model.GenerationRequest{
		System:      groundedSystemPrompt,
		User:        groundedPrompt(question, chunks),
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
		TopP:        a.cfg.TopP,
	}
	text, err := a.gen.Generate(ctx, req)
	if err != nil {
		a.logf("grounded answer: %v", err)
		return MsgProviderUnavailable, nil
	}

	return text + "\n\n" + verificationNote, BuildReferences(chunks)
}

// General produces a non-grounded answer. Used both as a user command and as
// the fallback when the question cannot be embedded.
func (a *Assembler) General(ctx context.Context, question string) string {
	req := model.GenerationRequest{
		System:      generalSystemPrompt,
		User:        generalPrompt(question),
		Temperature: a.cfg.GeneralTemperature,
		MaxTokens:   a.cfg.MaxTokens,
		TopP:        a.cfg.TopP,
	}
	text, err := a.gen.Generate(ctx, req)
	if err != nil {
		a.logf("general answer: %v", err)
		return MsgGeneralUnavailable
	}
	return text
}

func groundedPrompt(question string, chunks []model.Chunk) string {
	var b strings.Builder
	b.WriteString("You are an expert in bioinformatics and programming. ")
	fmt.Fprintf(&b, "QUESTION: %s\n\n", question)
	b.WriteString("RELEVANT INFORMATION:\n")
	for _, c := range chunks {
		fmt.Fprintf(&b, "\n\nDocument: %s\n", DisplayName(c.Document))
		fmt.Fprintf(&b, "Pages: %s\n", pageList(c.Pages))
		fmt.Fprintf(&b, "Content:\n%s\n", c.Text)
		b.WriteString(chunkDivider)
	}
	b.WriteString("\n\n")
	b.WriteString("Based on the information above and your own knowledge, provide a complete academic answer. ")
	b.WriteString("Do not repeat exact phrases from the context. ")
	b.WriteString("Do not mention the sources or that you are using provided information. ")
	b.WriteString("Structure your answer with Markdown headings where appropriate.\n\n")
	b.WriteString("ANSWER:")
	return b.String()
}

func generalPrompt(question string) string {
	var b strings.Builder
	b.WriteString("As an expert in bioinformatics and programming, answer in a detailed but concise way:\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Where relevant, include:\n")
	b.WriteString("- Conceptual explanations\n")
	b.WriteString("- Historical context\n")
	b.WriteString("- Practical applications\n")
	b.WriteString("Answer (markdown format):")
	return b.String()
}

// DisplayName renders a document name for prompts and references: base name,
// extension stripped, underscores replaced with spaces.
func DisplayName(doc string) string {
	base := filepath.Base(doc)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, "_", " ")
}

// BuildReferences deduplicates chunks into one reference per document
// display name, with the union of their pages sorted ascending. Output order
// follows the first appearance of each document.
func BuildReferences(chunks []model.Chunk) []model.Reference {
	var order []string
	pagesByDoc := make(map[string]map[int]struct{})
	for _, c := range chunks {
		name := DisplayName(c.Document)
		if _, seen := pagesByDoc[name]; !seen {
			pagesByDoc[name] = make(map[int]struct{})
			order = append(order, name)
		}
		for _, p := range c.Pages {
			pagesByDoc[name][p] = struct{}{}
		}
	}

	refs := make([]model.Reference, 0, len(order))
	for _, name := range order {
		pages := make([]int, 0, len(pagesByDoc[name]))
		for p := range pagesByDoc[name] {
			pages = append(pages, p)
		}
		sort.Ints(pages)
		refs = append(refs, model.Reference{Document: name, Pages: pages})
	}
	return refs
}

func pageList(pages []int) string {
	if len(pages) == 0 {
		return "N/A"
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ", ")
}

func (a *Assembler) logf(format string, args ...interface{}) {
	if a != nil && a.Logger != nil {
		a.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
