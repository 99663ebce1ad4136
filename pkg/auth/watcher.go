package auth

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches a token file for changes and reloads the allow-list
// into a TokenValidator when the file is rewritten. Reloads are debounced so
// editors that write in multiple events trigger a single reload.
//
// The static tokens passed at construction are always retained; the watcher
// only swaps the file-sourced portion of the allow-list.
type FileWatcher struct {
	path         string
	staticTokens []string
	validator    *TokenValidator
	watcher      *fsnotify.Watcher
	logger       *slog.Logger
	debounce     time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFileWatcher creates a watcher that reloads tokens from path into the
// validator, merging them with the given static tokens.
func NewFileWatcher(path string, staticTokens []string, validator *TokenValidator, logger *slog.Logger) (*FileWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("token file path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &FileWatcher{
		path:         path,
		staticTokens: staticTokens,
		validator:    validator,
		watcher:      w,
		logger:       logger.With("component", "auth.watcher"),
		debounce:     100 * time.Millisecond,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start begins watching the token file. The parent directory is watched
// rather than the file itself so atomic rename-into-place updates are seen.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(fw.path)
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	fw.running = true
	go fw.loop()

	fw.logger.Info("token file watcher started", "path", fw.path)
	return nil
}

// Stop stops the watcher and releases its resources.
func (fw *FileWatcher) Stop() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.running {
		return
	}
	fw.running = false

	close(fw.stopCh)
	<-fw.doneCh
	fw.watcher.Close()

	fw.logger.Info("token file watcher stopped")
}

func (fw *FileWatcher) loop() {
	defer close(fw.doneCh)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-fw.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(fw.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce: restart the timer on each event.
			if timer == nil {
				timer = time.NewTimer(fw.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(fw.debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			fw.reload()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("token file watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) reload() {
	fileTokens, err := LoadTokenFile(fw.path)
	if err != nil {
		// Keep the current allow-list on read failure.
		fw.logger.Error("failed to reload token file", "path", fw.path, "error", err)
		return
	}

	merged := make([]string, 0, len(fw.staticTokens)+len(fileTokens))
	merged = append(merged, fw.staticTokens...)
	merged = append(merged, fileTokens...)
	fw.validator.Replace(merged)

	fw.logger.Info("token allow-list reloaded",
		"path", fw.path,
		"token_count", fw.validator.Len(),
	)
}
