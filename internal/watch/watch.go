// Package watch turns new image files in a directory into optimize tasks.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dunamismax/optimg/internal/domain"
	"github.com/dunamismax/optimg/internal/pipeline"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const DefaultDebounce = 500 * time.Millisecond

var sourceExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsSupported reports whether path has an extension the decoder handles.
func IsSupported(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}

// Handler receives one task per settled file. Calls are serialized.
type Handler func(ctx context.Context, task domain.Task)

type Config struct {
	Dir string
	// Template is copied into every task; SourcePath is overwritten.
	Template domain.Task
	// TargetExt is the extension the pipeline writes. Files carrying it are
	// ignored so outputs do not loop back in.
	TargetExt string
	Debounce  time.Duration
	Logger    zerolog.Logger
}

type Watcher struct {
	cfg     Config
	handler Handler
	log     zerolog.Logger
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
}

func New(cfg Config, handler Handler) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir: %s is not a directory", cfg.Dir)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", cfg.Dir, err)
	}

	return &Watcher{
		cfg:     cfg,
		handler: handler,
		log:     cfg.Logger.With().Str("component", "watch").Str("dir", cfg.Dir).Logger(),
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
		ready:   make(chan string, 64),
	}, nil
}

// Run blocks until ctx is done or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	defer w.stopPending()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case path := <-w.ready:
				task := w.cfg.Template
				task.SourcePath = path
				w.handler(ctx, task)
			}
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	w.log.Info().Msg("watching for new images")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !w.shouldHandle(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) shouldHandle(path string) bool {
	if pipeline.IsTempFile(path) || strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	if !IsSupported(path) {
		return false
	}
	if w.cfg.TargetExt != "" && strings.EqualFold(filepath.Ext(path), w.cfg.TargetExt) {
		return false
	}
	return true
}

// schedule restarts the quiet period for path; the file is handed off once
// no Create or Write has been seen for cfg.Debounce.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			return
		}
		select {
		case w.ready <- path:
			w.log.Debug().Str("src", path).Msg("queued")
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
