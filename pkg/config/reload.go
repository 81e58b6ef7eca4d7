package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zakazane/modrules/pkg/logger"
	"github.com/zakazane/modrules/pkg/types"
)

// ReloadCallback is called with the reloaded set, or with the error that
// prevented the reload
type ReloadCallback func(*types.DescriptorSet, error)

// ReloadManager watches a descriptor file and reloads it on change
type ReloadManager struct {
	configPath     string
	manager        *Manager
	logger         logger.Logger
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	debouncePeriod time.Duration
	debounceTimer  *time.Timer
	lastContent    []byte
	mu             sync.Mutex
	cancel         context.CancelFunc
	done           chan struct{}
}

// NewReloadManager creates a new descriptor reload manager
func NewReloadManager(configPath string, log logger.Logger) *ReloadManager {
	return &ReloadManager{
		configPath:     configPath,
		manager:        NewManager(),
		logger:         log,
		debouncePeriod: 300 * time.Millisecond,
	}
}

// SetDebouncePeriod sets how long to wait for events to settle
func (rm *ReloadManager) SetDebouncePeriod(period time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debouncePeriod = period
}

// AddCallback adds a reload callback
func (rm *ReloadManager) AddCallback(callback ReloadCallback) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = append(rm.callbacks, callback)
}

// StartWatching begins watching the descriptor file until ctx is done or
// StopWatching is called
func (rm *ReloadManager) StartWatching(ctx context.Context) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.watcher != nil {
		return fmt.Errorf("already watching %s", rm.configPath)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory
	if err := watcher.Add(filepath.Dir(rm.configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	if data, err := os.ReadFile(rm.configPath); err == nil {
		rm.lastContent = data
	}

	ctx, cancel := context.WithCancel(ctx)
	rm.watcher = watcher
	rm.cancel = cancel
	rm.done = make(chan struct{})

	go rm.watchLoop(ctx, watcher, rm.done)

	rm.logger.Debug("Started watching descriptor file", logger.WithField("path", rm.configPath))
	return nil
}

// StopWatching stops the watcher and waits for the loop to exit
func (rm *ReloadManager) StopWatching() error {
	rm.mu.Lock()
	if rm.watcher == nil {
		rm.mu.Unlock()
		return nil
	}
	rm.cancel()
	if rm.debounceTimer != nil {
		rm.debounceTimer.Stop()
		rm.debounceTimer = nil
	}
	watcher, done := rm.watcher, rm.done
	rm.watcher = nil
	rm.mu.Unlock()

	err := watcher.Close()
	<-done
	return err
}

// TriggerReload reloads the file immediately
func (rm *ReloadManager) TriggerReload() {
	rm.reload(true)
}

func (rm *ReloadManager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			rm.logger.Error("Descriptor watcher panic recovered", logger.WithField("panic", r))
		}
	}()

	target := filepath.Clean(rm.configPath)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			rm.logger.Debug("Descriptor file event", logger.WithField("event", event.String()))
			rm.debounceReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			rm.logger.Error("Descriptor watcher error", logger.WithField("error", err))
			rm.notify(nil, err)
		}
	}
}

func (rm *ReloadManager) debounceReload() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.debounceTimer != nil {
		rm.debounceTimer.Stop()
	}
	rm.debounceTimer = time.AfterFunc(rm.debouncePeriod, func() {
		rm.reload(false)
	})
}

func (rm *ReloadManager) reload(force bool) {
	data, err := os.ReadFile(rm.configPath)
	if err != nil {
		rm.logger.Error("Failed to read descriptor file", logger.WithField("error", err))
		rm.notify(nil, fmt.Errorf("failed to read config file: %w", err))
		return
	}

	rm.mu.Lock()
	unchanged := bytes.Equal(data, rm.lastContent)
	rm.lastContent = data
	rm.mu.Unlock()

	if unchanged && !force {
		rm.logger.Debug("Descriptor file content unchanged, skipping reload")
		return
	}

	set, err := rm.manager.ParseConfig(data)
	if err != nil {
		rm.logger.Error("Failed to reload descriptor file", logger.WithField("error", err))
		rm.notify(nil, err)
		return
	}

	rm.logger.Info("Descriptor file reloaded", logger.WithField("modules", len(set.Modules)))
	rm.notify(set, nil)
}

func (rm *ReloadManager) notify(set *types.DescriptorSet, err error) {
	rm.mu.Lock()
	callbacks := append([]ReloadCallback(nil), rm.callbacks...)
	rm.mu.Unlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					rm.logger.Error("Reload callback panic recovered", logger.WithField("panic", r))
				}
			}()
			cb(set, err)
		}()
	}
}
