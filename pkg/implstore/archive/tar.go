package archive

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// countingReader counts bytes consumed from the archive file.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func decompress(r io.Reader, mime string) (io.Reader, func(), error) {
	switch mime {
	case MimeTar:
		return r, func() {}, nil
	case MimeTarGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case MimeTarBzip2:
		return bzip2.NewReader(r), func() {}, nil
	case MimeTarZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedType, mime)
	}
}

func extractTar(ctx context.Context, r io.Reader, mime string, w *writer) error {
	counter := &countingReader{r: r}
	stream, closeStream, err := decompress(counter, mime)
	if err != nil {
		return err
	}
	defer closeStream()

	tr := tar.NewReader(stream)
	var reported int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		// relPath applies its own, stricter, check to insecure names.
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("reading tar header: %w", err)
		}

		if err := extractTarMember(tr, hdr, w); err != nil {
			return err
		}

		w.tracker.Add(counter.n-reported, hdr.Name)
		reported = counter.n
	}
	return nil
}

func extractTarMember(tr *tar.Reader, hdr *tar.Header, w *writer) error {
	switch hdr.Typeflag {
	case tar.TypeXGlobalHeader, tar.TypeXHeader, tar.TypeGNULongName, tar.TypeGNULongLink:
		return nil
	}

	rel, ok, err := w.relPath(hdr.Name)
	if err != nil || !ok {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return w.dir(rel)
	case tar.TypeReg:
		_, err := w.file(rel, tr, hdr.FileInfo().Mode(), hdr.ModTime)
		return err
	case tar.TypeSymlink:
		return w.symlink(rel, hdr.Linkname)
	case tar.TypeLink:
		return w.hardlink(rel, hdr.Linkname)
	default:
		logger.Warn("skipping unsupported tar member", "name", hdr.Name, "type", string(hdr.Typeflag))
		return nil
	}
}
