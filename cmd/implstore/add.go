package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jamesainslie/implstore/pkg/implstore/archive"
	"github.com/jamesainslie/implstore/pkg/implstore/output"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add DIGEST SOURCE [ARCHIVE...]",
	Short: "Add a directory or archives to the store",
	Long: `Copy a directory, or unpack one or more archives, into the store under
DIGEST. The tree is hashed before it is committed and the add fails if the
result does not match.

DIGEST is one or more comma-separated algorithm=hex IDs for the same tree.
When SOURCE is a directory it is copied as-is. Otherwise every SOURCE is
treated as an archive and unpacked, in order, into the same tree; the
archive flags apply to each of them.

Examples:
  implstore add sha256new=ab12... ./build
  implstore add sha1new=0f3c...,sha256new=ab12... app-1.0.tar.gz --extract app-1.0
  implstore add sha256new=ab12... base.zip overlay.tar.zst --dest opt`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().String("mime", "", "archive MIME type (default: guessed from the file name)")
	addCmd.Flags().String("extract", "", "only unpack this directory from each archive")
	addCmd.Flags().String("dest", "", "unpack into this subdirectory of the tree")
	addCmd.Flags().Int64("offset", 0, "skip this many bytes at the start of each archive")
	rootCmd.AddCommand(addCmd)
}

// runAdd adds a directory or a set of archives.
func runAdd(cmd *cobra.Command, args []string) error {
	expected, err := parseDigestArg(args[0])
	if err != nil {
		return err
	}
	cfg, s, err := withStore()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	onProgress, done := newProgress()
	start := time.Now()

	sources := args[1:]
	if len(sources) == 1 && isDir(sources[0]) {
		printVerbose(cmd, "Copying directory %s", sources[0])
		err = s.AddDirectory(ctx, sources[0], expected, onProgress)
	} else {
		var archives []archive.Source
		archives, err = archiveSources(cmd, sources)
		if err == nil {
			printVerbose(cmd, "Unpacking %d archive(s)", len(archives))
			err = s.AddArchives(ctx, archives, expected, onProgress)
		}
	}
	done()
	if err != nil {
		return err
	}

	entry, err := describeEntry(s, expected)
	if err != nil {
		return err
	}
	logger.Info("implementation added", "id", entry.ID, "store", cfg.Store.Path)
	return render(cmd, &output.Report{
		Command:  "add",
		Root:     s.Root(),
		Entries:  []output.Entry{entry},
		Duration: time.Since(start),
	})
}

// archiveSources applies the archive flags to every path.
func archiveSources(cmd *cobra.Command, paths []string) ([]archive.Source, error) {
	mime, _ := cmd.Flags().GetString("mime")
	extract, _ := cmd.Flags().GetString("extract")
	dest, _ := cmd.Flags().GetString("dest")
	offset, _ := cmd.Flags().GetInt64("offset")
	if offset < 0 {
		return nil, fmt.Errorf("--offset cannot be negative: %d", offset)
	}

	sources := make([]archive.Source, 0, len(paths))
	for _, p := range paths {
		if isDir(p) {
			return nil, fmt.Errorf("%s is a directory; only a single directory can be added", p)
		}
		sources = append(sources, archive.Source{
			Path:        p,
			MimeType:    mime,
			StartOffset: offset,
			Extract:     extract,
			Destination: dest,
		})
	}
	return sources, nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
