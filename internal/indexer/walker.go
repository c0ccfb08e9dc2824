package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"streamvio/internal/mediatypes"
)

// candidate is a media file found by the walk.
type candidate struct {
	path    string
	relPath string
	info    os.FileInfo
}

// walkResult is the per-file outcome reported by a worker.
type walkResult int

const (
	resultRegistered walkResult = iota
	resultUnchanged
	resultFailed
)

// walker feeds media files under root to a fixed pool of workers.
type walker struct {
	root       string
	workers    int
	skipHidden bool

	seen atomic.Int64
}

// walk calls process for every media file below root, from w.workers
// goroutines. It returns after every candidate has been processed or ctx is
// done.
func (w *walker) walk(ctx context.Context, process func(context.Context, candidate) walkResult) (counts [3]int64, err error) {
	queue := make(chan candidate, w.workers*4)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range queue {
				if ctx.Err() != nil {
					continue
				}
				r := process(ctx, c)
				mu.Lock()
				counts[r]++
				mu.Unlock()
			}
		}()
	}

	err = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if walkErr != nil {
			log.Warn("Error accessing path %s: %v", path, walkErr)
			return nil
		}
		if path == w.root {
			return nil
		}
		if w.skipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if mediatypes.DetectFileType(path) == mediatypes.FileTypeOther {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Warn("Error getting info for %s: %v", path, err)
			return nil
		}
		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			//nolint:nilerr // skip this file but keep walking
			return nil
		}

		w.seen.Add(1)
		select {
		case queue <- candidate{path: path, relPath: relPath, info: info}:
		case <-ctx.Done():
			return fs.SkipAll
		}
		return nil
	})

	close(queue)
	wg.Wait()

	if err == nil {
		err = ctx.Err()
	}
	return counts, err
}
