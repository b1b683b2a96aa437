package ipf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ExtractOption configures Extract and ExtractFile.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	overwrite bool
	workers   int
}

// ExtractWithOverwrite allows overwriting existing files.
// By default, Extract skips existing files and ExtractFile fails with
// fs.ErrExist.
func ExtractWithOverwrite(overwrite bool) ExtractOption {
	return func(c *extractConfig) {
		c.overwrite = overwrite
	}
}

// ExtractWithWorkers sets the number of records decompressed in parallel.
// Values <= 0 use GOMAXPROCS.
func ExtractWithWorkers(n int) ExtractOption {
	return func(c *extractConfig) {
		c.workers = n
	}
}

func newExtractConfig(opts []ExtractOption) *extractConfig {
	cfg := &extractConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.workers <= 0 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}
	return cfg
}

// ExtractFile decompresses the record at p into destPath.
//
// The file is written to a temporary file beside destPath and renamed into
// place, so a partial file is never visible. The parent of destPath must
// exist.
func (a *Archive) ExtractFile(p Path, destPath string, opts ...ExtractOption) error {
	cfg := newExtractConfig(opts)

	e, err := a.Lookup(p)
	if err != nil {
		return err
	}
	if !cfg.overwrite {
		if _, err := os.Lstat(destPath); err == nil {
			return &fs.PathError{Op: "extract", Path: destPath, Err: fs.ErrExist}
		}
	}
	return a.extractEntry(&e, destPath, cfg.overwrite)
}

// Extract decompresses every record under dir into destDir, keeping each
// record's full path below destDir. When a path occurs more than once the
// first record in list order is extracted.
//
// Records are decompressed by a pool of workers. The first failure cancels
// the remaining work and is returned.
func (a *Archive) Extract(ctx context.Context, destDir string, dir Path, opts ...ExtractOption) error {
	cfg := newExtractConfig(opts)

	entries, err := a.collectUnder(dir)
	if err != nil {
		return fmt.Errorf("extract %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return nil
	}

	var written, skipped atomic.Int64
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.workers)
	for i := range entries {
		e := &entries[i]
		target := filepath.Join(destDir, filepath.FromSlash(e.Path))
		if !cfg.overwrite {
			if _, err := os.Lstat(target); err == nil {
				skipped.Add(1)
				continue
			}
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("extract %s: %w", e.AbsPath(), err)
			}
			if err := a.extractEntry(e, target, cfg.overwrite); err != nil {
				return err
			}
			written.Add(1)
			return nil
		})
	}
	err = eg.Wait()

	a.log().Debug("extract finished",
		"dir", dir.String(),
		"dest", destDir,
		"written", written.Load(),
		"skipped", skipped.Load(),
		"workers", cfg.workers)
	return err
}

// collectUnder returns the records below dir, first occurrence of each
// path only.
func (a *Archive) collectUnder(dir Path) ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]struct{})
	for e, err := range a.Entries(dir) {
		if err != nil {
			return nil, err
		}
		if _, dup := seen[e.Path]; dup {
			continue
		}
		seen[e.Path] = struct{}{}
		entries = append(entries, e)
	}
	return entries, nil
}

// extractEntry writes the content of e to destPath atomically.
func (a *Archive) extractEntry(e *Entry, destPath string, overwrite bool) (err error) {
	if err := a.checkOpen(); err != nil {
		return fmt.Errorf("extract %s: %w", e.AbsPath(), err)
	}
	if err := a.inflater.Validate(e); err != nil {
		return fmt.Errorf("extract %s: %w", e.AbsPath(), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".ipf-")
	if err != nil {
		return fmt.Errorf("extract %s: creating temp file: %w", e.AbsPath(), err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			err = errors.Join(err, ignoreNotExist(tmp.Close()), ignoreNotExist(os.Remove(tmpPath)))
		}
	}()

	if err := a.materialize(e, tmp); err != nil {
		return fmt.Errorf("extract %s: %w", e.AbsPath(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("extract %s: closing temp file: %w", e.AbsPath(), err)
	}

	if overwrite {
		if info, err := os.Stat(destPath); err == nil && info.IsDir() {
			return &fs.PathError{Op: "extract", Path: destPath, Err: errIsDir}
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("extract %s: renaming to destination: %w", e.AbsPath(), err)
	}
	success = true
	a.log().Debug("extracted", "path", e.AbsPath(), "dest", destPath, "size", e.Size)
	return nil
}

func ignoreNotExist(err error) error {
	if err == nil || errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
