package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cfg := mustService()
		status := svc.Status()

		fmt.Printf("library:         %s\n", cfg.RootDir)
		fmt.Printf("state:           %s\n", cfg.StateDir)
		fmt.Printf("documents:       %d\n", status.Documents)
		fmt.Printf("chunks:          %d\n", status.Chunks)
		fmt.Printf("embedded chunks: %d\n", status.EmbeddedChunks)
		fmt.Printf("index ready:     %v\n", status.IndexReady)
		return nil
	},
}
