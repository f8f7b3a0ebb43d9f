package tui

import (
	"strings"
	"testing"

	"paperbot/internal/model"
)

func TestRenderAskResultWithReferences(t *testing.T) {
	got := renderAskResult(model.AskResult{
		Answer: "Proteins fold into structures.",
		References: []model.Reference{
			{Document: "protein folding", Pages: []int{1, 2, 3}},
			{Document: "alignment", Pages: []int{5}},
		},
		Grounded: true,
	})

	if !strings.Contains(got, "Proteins fold into structures.") {
		t.Fatalf("answer text missing: %q", got)
	}
	if !strings.Contains(got, "protein folding (p. 1, 2, 3)") {
		t.Fatalf("first reference missing: %q", got)
	}
	if !strings.Contains(got, "alignment (p. 5)") {
		t.Fatalf("second reference missing: %q", got)
	}
}

func TestRenderAskResultWithoutReferences(t *testing.T) {
	got := renderAskResult(model.AskResult{Answer: "plain answer"})
	if got != "plain answer" {
		t.Fatalf("got %q", got)
	}
}
