package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"paperbot/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat over the document library",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _ := mustService()

		program := tea.NewProgram(tui.New(svc, localUser()), tea.WithAltScreen())
		_, err := program.Run()
		return err
	},
}
