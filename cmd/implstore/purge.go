package main

import (
	"fmt"
	"time"

	"github.com/jamesainslie/implstore/pkg/implstore/filter"
	"github.com/jamesainslie/implstore/pkg/implstore/output"
	"github.com/spf13/cobra"
)

var purgeTempCmd = &cobra.Command{
	Use:   "purge-temp",
	Short: "Delete abandoned staging directories",
	Long: `Delete non-entry directories under the store root that are older than
--older-than (default: store.temp_max_age). Younger directories may belong to
an add that is still running and are kept.`,
	Args: cobra.NoArgs,
	RunE: runPurgeTemp,
}

func init() {
	purgeTempCmd.Flags().String("older-than", "", "minimum age to delete, e.g. 12h or 7d (default: store.temp_max_age)")
	rootCmd.AddCommand(purgeTempCmd)
}

// runPurgeTemp removes stale staging directories.
func runPurgeTemp(cmd *cobra.Command, _ []string) error {
	cfg, s, err := withStore()
	if err != nil {
		return err
	}

	olderThan := cfg.Store.TempMaxAge
	if v, _ := cmd.Flags().GetString("older-than"); v != "" {
		if olderThan, err = filter.ParseDuration(v); err != nil {
			return fmt.Errorf("--older-than: %w", err)
		}
	}
	printVerbose(cmd, "Purging temporary directories older than %s", olderThan)

	start := time.Now()
	before, err := s.ListAllTemp()
	if err != nil {
		return err
	}
	known := describeTemps(before, start)

	removed, purgeErr := s.PurgeTemp(olderThan)
	gone := make(map[string]bool, len(removed))
	for _, p := range removed {
		gone[p] = true
	}

	report := &output.Report{Command: "purge-temp", Root: s.Root()}
	for _, t := range known {
		if gone[t.Path] {
			report.Temps = append(report.Temps, t)
		}
	}
	if purgeErr != nil {
		report.Warnings = append(report.Warnings, purgeErr.Error())
	}
	report.Duration = time.Since(start)
	return render(cmd, report)
}
