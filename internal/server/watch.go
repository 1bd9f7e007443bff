package server

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/craftdeck/craftdeck/internal/app/services"
)

// ConfigWatcher watches the cleanup configuration file and pokes the
// scheduler when it changes on disk, so out-of-band edits take effect
// before the next poll.
type ConfigWatcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	scheduler  *services.SchedulerService
	stopChan   chan bool
}

// NewConfigWatcher creates a watcher for the given configuration file.
func NewConfigWatcher(configPath string, scheduler *services.SchedulerService) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		watcher:    watcher,
		configPath: configPath,
		scheduler:  scheduler,
		stopChan:   make(chan bool),
	}, nil
}

// Start begins watching the configuration directory. The directory is
// watched rather than the file because atomic rename-replace writes drop
// file-level watches.
func (w *ConfigWatcher) Start() error {
	dir := filepath.Dir(w.configPath)
	if err := ensureDirExists(dir); err != nil {
		return err
	}

	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	log.Printf("Started config watch for: %s", w.configPath)

	go w.processEvents()
	return nil
}

// ensureDirExists creates the directory if it doesn't exist
func ensureDirExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0755)
	}
	return nil
}

// Stop stops the config watcher.
func (w *ConfigWatcher) Stop() {
	close(w.stopChan)
	w.watcher.Close()
	log.Println("Stopped config watch")
}

// processEvents handles file system events
func (w *ConfigWatcher) processEvents() {
	// Debounce rapid successive writes into one poke.
	var debounceTimer *time.Timer
	debounceDuration := 200 * time.Millisecond

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDuration, func() {
				log.Printf("Config file changed, re-checking schedules")
				w.scheduler.Poke()
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Config watch error: %v", err)

		case <-w.stopChan:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}
