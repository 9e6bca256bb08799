package main

import (
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:     "remove DIGEST...",
	Aliases: []string{"rm"},
	Short:   "Remove implementations from the store",
	Long: `Remove the entries named by each DIGEST. A digest matches an entry when
any of its algorithm=hex IDs names that entry.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

// runRemove removes each named entry, stopping at the first failure.
func runRemove(cmd *cobra.Command, args []string) error {
	_, s, err := withStore()
	if err != nil {
		return err
	}

	for _, arg := range args {
		d, err := parseDigestArg(arg)
		if err != nil {
			return err
		}
		if err := s.Remove(d); err != nil {
			return err
		}
		logger.Info("implementation removed", "id", d.BestID())
		printInfo(cmd, "Removed %s", d.BestID())
	}
	return nil
}
