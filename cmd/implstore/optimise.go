package main

import (
	"time"

	"github.com/jamesainslie/implstore/pkg/implstore/output"
	"github.com/spf13/cobra"
)

var optimiseCmd = &cobra.Command{
	Use:     "optimise",
	Aliases: []string{"optimize"},
	Short:   "Hard-link identical files across entries",
	Long: `Find files that are identical in content, size, modification time and
executable bit across all entries and replace the duplicates with hard links
to a single copy.`,
	Args: cobra.NoArgs,
	RunE: runOptimise,
}

func init() {
	rootCmd.AddCommand(optimiseCmd)
}

// runOptimise deduplicates the store.
func runOptimise(cmd *cobra.Command, _ []string) error {
	_, s, err := withStore()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	onProgress, done := newProgress()
	start := time.Now()
	stats, err := s.OptimiseWithStats(ctx, onProgress)
	done()
	if err != nil {
		return err
	}

	return render(cmd, &output.Report{
		Command: "optimise",
		Root:    s.Root(),
		Optimise: &output.OptimiseStats{
			BytesSaved: stats.BytesSaved,
			Linked:     stats.Linked,
			Skipped:    stats.Skipped,
		},
		Duration: time.Since(start),
	})
}
