package main

import (
	"fmt"

	"github.com/jamesainslie/implstore/pkg/implstore/store"
	"github.com/spf13/cobra"
)

var findCmd = &cobra.Command{
	Use:   "find DIGEST",
	Short: "Print the path of an implementation",
	Long: `Print the directory of the entry named by DIGEST. Exits non-zero when
the store has no such entry.`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	rootCmd.AddCommand(findCmd)
}

// runFind prints the entry path for scripting.
func runFind(cmd *cobra.Command, args []string) error {
	d, err := parseDigestArg(args[0])
	if err != nil {
		return err
	}
	_, s, err := withStore()
	if err != nil {
		return err
	}

	path, ok := s.GetPath(d)
	if !ok {
		return &store.NotFoundError{Digest: d}
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
