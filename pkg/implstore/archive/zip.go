package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/klauspost/compress/zip"
)

func extractZip(ctx context.Context, r io.ReaderAt, size int64, w *writer) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}

	var total int64
	for _, f := range zr.File {
		total += int64(f.UncompressedSize64)
	}
	w.tracker.AddTotal(total)

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := extractZipMember(f, w); err != nil {
			return err
		}
		w.tracker.Add(int64(f.UncompressedSize64), f.Name)
	}
	return nil
}

func extractZipMember(f *zip.File, w *writer) error {
	rel, ok, err := w.relPath(f.Name)
	if err != nil || !ok {
		return err
	}

	mode := f.Mode()
	switch {
	case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
		return w.dir(rel)

	case mode&fs.ModeSymlink != 0:
		rc, err := f.Open()
		if err != nil {
			return err
		}
		target, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("reading symlink %s: %w", f.Name, err)
		}
		return w.symlink(rel, string(target))

	case mode.IsRegular():
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		_, err = w.file(rel, rc, mode, f.Modified)
		return err

	default:
		logger.Warn("skipping unsupported zip member", "name", f.Name, "mode", mode.String())
		return nil
	}
}
