package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"talk_rag/internal/document"
)

const defaultConcurrency = 4

// Ingest indexes a file, or every supported file under a directory.
// Files are processed concurrently; results keep the walk order.
func (a *App) Ingest(ctx context.Context, path string, force bool) ([]IngestResult, error) {
	paths, err := collectDocuments(path)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no supported documents found in %s", path)
	}
	a.logger.Info("ingesting documents", zap.String("path", path), zap.Int("files", len(paths)))

	sem := make(chan struct{}, a.concurrency())
	results := make([]IngestResult, len(paths))
	errs := make([]error, len(paths))

	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Add(1)
		go func(idx int, p string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			res, err := a.indexer.IndexFile(ctx, p, force)
			if err != nil {
				a.logger.Error("❌ ingestion failed", zap.String("path", p), zap.Error(err))
				errs[idx] = fmt.Errorf("%s: %w", p, err)
				return
			}
			results[idx] = res
		}(i, p)
	}
	wg.Wait()

	return results, errors.Join(errs...)
}

func (a *App) concurrency() int {
	if a.cfg != nil && a.cfg.MaxConcurrency > 0 {
		return a.cfg.MaxConcurrency
	}
	return defaultConcurrency
}

// collectDocuments returns path itself for a file, or the supported files
// under a directory in lexical order.
func collectDocuments(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		if !document.Supported(path) {
			return nil, fmt.Errorf("%w: %s", document.ErrUnsupportedFormat, filepath.Ext(path))
		}
		return []string{path}, nil
	}

	var paths []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !document.Supported(p) {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	sort.Strings(paths)
	return paths, nil
}
