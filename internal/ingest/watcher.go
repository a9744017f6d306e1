package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/claims-processor/constants"
)

type WatchConfig struct {
	Root       string        // claims inbox; each subdirectory is a claim
	SkipHidden bool          // ignore dot files and dot directories
	Debounce   time.Duration // quiet period before a claim directory is reported
}

// Watch reports claim directories under cfg.Root that received PDFs. A directory is reported
// once its files stop changing for cfg.Debounce, so a claim copied in file by file is emitted
// once. The channels close when ctx is done.
func Watch(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if cfg.Root == "" {
		return nil, nil, errors.New("no root provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("ingest.watch.create_failed", "error", err)
		return nil, nil, err
	}
	addTree := func(dir string) error {
		return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !d.IsDir() {
				return nil
			}
			if cfg.SkipHidden && path != root && IsHidden(path) {
				return filepath.SkipDir
			}
			return w.Add(path)
		})
	}
	if err := addTree(root); err != nil {
		logger.Error("ingest.watch.add_root_failed", "root", root, "error", err)
		_ = w.Close()
		return nil, nil, err
	}

	evCh := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(evCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("ingest.watch.close_failed", "error", err)
			}
		}()

		var mu sync.Mutex
		timers := map[string]*time.Timer{}
		ready := make(chan string)
		done := make(chan struct{})
		defer func() {
			close(done)
			mu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			mu.Unlock()
		}()

		schedule := func(dir string) {
			mu.Lock()
			defer mu.Unlock()
			if t, ok := timers[dir]; ok {
				t.Reset(cfg.Debounce)
				return
			}
			timers[dir] = time.AfterFunc(cfg.Debounce, func() {
				mu.Lock()
				delete(timers, dir)
				mu.Unlock()
				select {
				case ready <- dir:
				case <-done:
				}
			})
		}

		for {
			select {
			case <-ctx.Done():
				return
			case dir := <-ready:
				select {
				case evCh <- dir:
				case <-ctx.Done():
					return
				}
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if cfg.SkipHidden && IsHidden(e.Name) {
					continue
				}
				if e.Op.Has(fsnotify.Create) {
					// new claim folders get watched too; errors mean it was a file
					_ = addTree(e.Name)
				}
				if !e.Op.Has(fsnotify.Create) && !e.Op.Has(fsnotify.Write) && !e.Op.Has(fsnotify.Rename) {
					continue
				}
				if constants.IsPDFExt(filepath.Ext(e.Name)) {
					schedule(claimDirFor(root, e.Name))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("ingest.watch.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}
