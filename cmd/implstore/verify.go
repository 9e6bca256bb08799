package main

import (
	"time"

	"github.com/jamesainslie/implstore/pkg/implstore/output"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify DIGEST...",
	Short: "Check that entries still match their digests",
	Long: `Re-hash the entries named by each DIGEST and report any whose contents
no longer match their name. Exits non-zero if one is damaged.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check every entry in the store",
	Long: `Re-hash every committed entry in parallel and report the damaged ones.
Exits non-zero if any entry is damaged.`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(auditCmd)
}

// runVerify checks the named entries one at a time.
func runVerify(cmd *cobra.Command, args []string) error {
	_, s, err := withStore()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	onProgress, done := newProgress()
	start := time.Now()
	report := &output.Report{Command: "verify", Root: s.Root()}
	for _, arg := range args {
		d, err := parseDigestArg(arg)
		if err != nil {
			done()
			return err
		}
		err = s.Verify(ctx, d, onProgress)
		if err := collectMismatch(report, err); err != nil {
			done()
			return err
		}
		if err == nil {
			entry, err := describeEntry(s, d)
			if err != nil {
				report.Warnings = append(report.Warnings, err.Error())
				continue
			}
			report.Entries = append(report.Entries, entry)
		}
	}
	done()
	report.Duration = time.Since(start)

	if err := render(cmd, report); err != nil {
		return err
	}
	if len(report.Mismatches) > 0 {
		return errDamaged
	}
	return nil
}

// runAudit checks the whole store.
func runAudit(cmd *cobra.Command, _ []string) error {
	_, s, err := withStore()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	onProgress, done := newProgress()
	start := time.Now()
	mismatches, err := s.Audit(ctx, onProgress)
	done()
	if err != nil {
		return err
	}

	report := &output.Report{
		Command:  "audit",
		Root:     s.Root(),
		Duration: time.Since(start),
	}
	for _, m := range mismatches {
		report.Mismatches = append(report.Mismatches, output.NewMismatch(m))
	}
	logger.Info("audit finished", "damaged", len(mismatches), "duration", report.Duration)

	if err := render(cmd, report); err != nil {
		return err
	}
	if len(report.Mismatches) > 0 {
		return errDamaged
	}
	return nil
}
