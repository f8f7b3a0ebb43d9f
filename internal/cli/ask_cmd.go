package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"paperbot/internal/model"
)

var searchCmd = &cobra.Command{
	Use:   "search [question]",
	Short: "Answer a question grounded in the document library",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _ := mustService()
		question := strings.Join(args, " ")

		result, err := svc.Answer(cmd.Context(), localUser(), question)
		if err != nil {
			if errors.Is(err, model.ErrUserBusy) {
				exitWith(ExitGenericError, "a previous request is still running")
			}
			return err
		}
		renderResult(result)
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a general question without searching the library",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _ := mustService()
		question := strings.Join(args, " ")

		result, err := svc.Ask(cmd.Context(), localUser(), question)
		if err != nil {
			return err
		}
		renderResult(result)
		return nil
	},
}

var doiCmd = &cobra.Command{
	Use:   "doi [doi-or-url]",
	Short: "Resolve a DOI to a direct PDF link",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _ := mustService()
		query := strings.Join(args, " ")

		pdfURL, err := svc.ResolveDOI(cmd.Context(), localUser(), query)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				exitWith(ExitGenericError, "no PDF found for that DOI on any mirror")
			}
			return err
		}
		fmt.Println(pdfURL)
		return nil
	},
}

// localUser is the lease key for CLI invocations. One terminal, one user.
func localUser() string {
	return "cli"
}

func renderResult(result model.AskResult) {
	fmt.Println(answerStyle.Render(result.Answer))
	if len(result.References) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(headingStyle.Render("References"))
	for _, ref := range result.References {
		fmt.Println(referenceStyle.Render(formatReference(ref)))
	}
}

func formatReference(ref model.Reference) string {
	if len(ref.Pages) == 0 {
		return ref.Document
	}
	pages := make([]string, len(ref.Pages))
	for i, p := range ref.Pages {
		pages[i] = fmt.Sprintf("%d", p)
	}
	return fmt.Sprintf("%s (p. %s)", ref.Document, strings.Join(pages, ", "))
}
