package store

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/jamesainslie/implstore/pkg/implstore/types"
	"github.com/sourcegraph/conc/pool"
)

type copyJob struct {
	src, dst string
	info     fs.FileInfo
}

// copyTree copies the contents of src into the existing directory dst.
// Modification times, executable bits and symlinks are preserved; symlinks
// are never followed. Cancellation is checked between files.
func (s *Store) copyTree(ctx context.Context, src, dst string, onProgress types.ProgressFunc) error {
	var (
		mu   sync.Mutex
		jobs []copyJob
	)

	conf := fastwalk.Config{Follow: false, NumWorkers: s.opts.WalkWorkers}
	err := fastwalk.Walk(&conf, src, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.Mkdir(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			mu.Lock()
			jobs = append(jobs, copyJob{src: p, dst: target, info: info})
			mu.Unlock()
			return nil
		default:
			return fmt.Errorf("%s: %w: cannot store file of type %s", p, ErrUnsupported, d.Type())
		}
	})
	if err != nil {
		return err
	}

	tracker := types.NewTracker(types.OpCopy, onProgress)
	for _, job := range jobs {
		tracker.AddTotal(job.info.Size())
	}

	buffers := sync.Pool{New: func() any {
		buf := make([]byte, s.opts.CopyBufferSize)
		return &buf
	}}

	p := pool.New().WithMaxGoroutines(s.opts.HashWorkers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, job := range jobs {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			buf := buffers.Get().(*[]byte)
			defer buffers.Put(buf)

			if err := copyFile(job, *buf); err != nil {
				return err
			}
			tracker.Add(job.info.Size(), job.src)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	tracker.Flush()
	return ctx.Err()
}

func copyFile(job copyJob, buf []byte) error {
	in, err := os.Open(job.src)
	if err != nil {
		return err
	}
	defer in.Close()

	perm := fs.FileMode(0o644)
	if job.info.Mode().Perm()&0o111 != 0 {
		perm = 0o755
	}
	out, err := os.OpenFile(job.dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying %s: %w", job.src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chmod(job.dst, perm); err != nil {
		return err
	}
	mtime := job.info.ModTime()
	return os.Chtimes(job.dst, mtime, mtime)
}
