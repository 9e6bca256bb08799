package main

import (
	"fmt"
	"io"

	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/tuner"
	"github.com/spf13/cobra"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest DIR",
	Short: "Print the manifest and digest of a directory",
	Long: `Generate the manifest of DIR and print it followed by its digest as an
algorithm=hex ID. Use --digest to print only the ID.

Examples:
  implstore manifest ./build
  implstore manifest ./build --format sha1new --digest`,
	Args: cobra.ExactArgs(1),
	RunE: runManifest,
}

func init() {
	manifestCmd.Flags().String("format", "", "manifest algorithm: sha1, sha1new, sha256, sha256new (default: store.default_format)")
	manifestCmd.Flags().Bool("digest", false, "print only the digest")
	rootCmd.AddCommand(manifestCmd)
}

// runManifest prints the manifest of a directory.
func runManifest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	format := cfg.Format()
	if name, _ := cmd.Flags().GetString("format"); name != "" {
		format, err = manifest.ParseFormat(name)
		if err != nil {
			return err
		}
	}
	digestOnly, _ := cmd.Flags().GetBool("digest")

	ctx, stop := signalContext(cmd)
	defer stop()

	onProgress, done := newProgress()
	tuned := tuner.Auto(cfg.Workers.Hash, cfg.Workers.Audit)
	m, err := manifest.Generate(ctx, args[0], manifest.Options{
		Format:     format,
		Workers:    tuned.HashWorkers,
		OnProgress: onProgress,
	})
	done()
	if err != nil {
		return err
	}

	return writeManifest(cmd.OutOrStdout(), m, digestOnly)
}

func writeManifest(w io.Writer, m *manifest.Manifest, digestOnly bool) error {
	if !digestOnly {
		if _, err := m.WriteTo(w); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, m.Digest().BestID())
	return err
}
