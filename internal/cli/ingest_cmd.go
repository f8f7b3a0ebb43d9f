package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"paperbot/internal/model"
)

var forceDocument string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Discover and index new PDF documents in the library",
	Long: "Scans the library directory, chunks documents that have not been seen " +
		"before, embeds the new chunks, and rebuilds the search index. Documents " +
		"already in the collection are skipped by name; use --force to reprocess one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cfg := mustService()
		ctx := cmd.Context()

		if forceDocument != "" {
			stats, err := svc.Reprocess(ctx, forceDocument)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					exitWith(ExitRootInaccessible, err.Error())
				}
				return err
			}
			printStats(stats)
			return nil
		}

		var bar *progressbar.ProgressBar
		var barStage string
		progress := func(stage string, done, total int) {
			if globalFlags.Quiet || total == 0 {
				return
			}
			if bar == nil || stage != barStage {
				barStage = stage
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription(stage),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set(done)
		}

		stats, err := svc.IngestAll(ctx, progress)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				exitWith(ExitRootInaccessible, fmt.Sprintf("library directory %s: %v", cfg.RootDir, err))
			}
			return err
		}
		printStats(stats)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&forceDocument, "force", "", "reprocess the named document from scratch")
}

func printStats(stats model.IngestStats) {
	if globalFlags.Quiet {
		return
	}
	fmt.Printf("discovered:         %d\n", stats.Discovered)
	fmt.Printf("new documents:      %d\n", stats.NewDocuments)
	fmt.Printf("failed documents:   %d\n", stats.FailedDocuments)
	fmt.Printf("new chunks:         %d\n", stats.NewChunks)
	fmt.Printf("embedded chunks:    %d\n", stats.EmbeddedChunks)
	fmt.Printf("failed embeddings:  %d\n", stats.FailedEmbeddings)
	fmt.Printf("total chunks:       %d\n", stats.ChunkCount)
	if stats.IndexReady {
		fmt.Println("index: rebuilt")
	} else {
		fmt.Println("index: unchanged")
	}
}
