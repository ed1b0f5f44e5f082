package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"docqa/types"

	"github.com/fsnotify/fsnotify"
)

const shutdownTimeout = 5 * time.Second

// Ingester is the part of loader.Ingestor the watcher needs.
type Ingester interface {
	Ingest(ctx context.Context, name string, data []byte) (*types.Document, error)
}

type Config struct {
	SourceDir  string
	ArchiveDir string
	BadDir     string
	// SettleTime is how long a file must go without write events before it
	// is picked up.
	SettleTime time.Duration
}

// Watcher ingests files dropped into SourceDir and moves them to the archive
// or, when ingestion fails, to the bad folder.
type Watcher struct {
	cfg      Config
	ingester Ingester
	logger   *slog.Logger

	mu         sync.Mutex
	lastEvent  map[string]time.Time
	processing map[string]bool
	now        func() time.Time
}

func New(cfg Config, ingester Ingester, logger *slog.Logger) *Watcher {
	return &Watcher{
		cfg:        cfg,
		ingester:   ingester,
		logger:     logger,
		lastEvent:  make(map[string]time.Time),
		processing: make(map[string]bool),
		now:        time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	for _, dir := range []string{w.cfg.SourceDir, w.cfg.ArchiveDir, w.cfg.BadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(w.cfg.SourceDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.SourceDir, err)
	}

	// files dropped while the loader was down
	entries, err := os.ReadDir(w.cfg.SourceDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.touch(filepath.Join(w.cfg.SourceDir, e.Name()))
		}
	}

	w.logger.Info("watching folder", "dir", w.cfg.SourceDir, "settle", w.cfg.SettleTime)

	fileChan := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		w.watch(ctx, fsw, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.process(ctx, fileChan)
	}()

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("watcher stopped")
	case <-time.After(shutdownTimeout):
		w.logger.Warn("timeout waiting for watcher goroutines, forcing shutdown")
	}
	return nil
}

func (w *Watcher) touch(path string) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.processing[path] {
		w.lastEvent[path] = w.now()
	}
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.lastEvent, path)
	delete(w.processing, path)
}

// settled returns files that have been quiet for SettleTime and marks them
// as being processed.
func (w *Watcher) settled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, seen := range w.lastEvent {
		if w.processing[path] || w.now().Sub(seen) < w.cfg.SettleTime {
			continue
		}
		w.processing[path] = true
		ready = append(ready, path)
	}
	return ready
}

func (w *Watcher) watch(ctx context.Context, fsw *fsnotify.Watcher, fileChan chan<- string) {
	interval := min(max(w.cfg.SettleTime/4, 10*time.Millisecond), time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				if info, err := os.Stat(ev.Name); err == nil && !info.IsDir() {
					w.touch(ev.Name)
				}
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				w.mu.Lock()
				if !w.processing[ev.Name] {
					delete(w.lastEvent, ev.Name)
				}
				w.mu.Unlock()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "err", err)
		case <-ticker.C:
			for _, path := range w.settled() {
				select {
				case fileChan <- path:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (w *Watcher) process(ctx context.Context, fileChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-fileChan:
			if !ok {
				return
			}
			w.ProcessFile(ctx, path)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// ProcessFile ingests one file and archives it. Files interrupted by
// cancellation are left in place for the next run.
func (w *Watcher) ProcessFile(ctx context.Context, path string) {
	defer w.forget(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Error("read dropped file", "path", path, "err", err)
		}
		return
	}

	doc, err := w.ingester.Ingest(ctx, filepath.Base(path), data)
	if ctx.Err() != nil {
		w.logger.Warn("processing interrupted", "path", path)
		return
	}

	dest := w.cfg.ArchiveDir
	if err != nil {
		w.logger.Error("ingest failed", "path", path, "err", err)
		dest = w.cfg.BadDir
	} else {
		w.logger.Info("ingested dropped file", "path", path, "doc_id", doc.ID, "chunks", len(doc.Chunks))
	}

	moved, err := MoveToArchive(path, dest, w.now())
	if err != nil {
		w.logger.Error("archive failed", "path", path, "err", err)
		return
	}
	w.logger.Debug("file archived", "dest", moved)
}

// MoveToArchive moves path into a dated subfolder of root, appending _N to the
// name when the target already exists. It returns the new path.
func MoveToArchive(path, root string, now time.Time) (string, error) {
	destDir := filepath.Join(root, now.Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	name := filepath.Base(path)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	destPath := filepath.Join(destDir, name)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); errors.Is(err, os.ErrNotExist) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", base, counter, ext))
	}

	if err := os.Rename(path, destPath); err == nil {
		return destPath, nil
	}

	// rename fails across filesystems
	if err := copyFile(path, destPath); err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", err
	}
	return destPath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
