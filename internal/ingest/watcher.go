package ingest

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher uses fsnotify to watch the history directory and
// triggers a callback with debouncing when export files change.
type Watcher struct {
	onChange func()
	watcher  *fsnotify.Watcher
	debounce time.Duration
	pending  time.Time
	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewWatcher creates a file watcher that calls onChange when a
// history JSON file is modified, after the debounce period elapses.
func NewWatcher(
	debounce time.Duration, onChange func(),
) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is nil: %w", os.ErrInvalid)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		onChange: onChange,
		watcher:  fsw,
		debounce: debounce,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	return w, nil
}

// Watch adds the history directory to the watch list.
func (w *Watcher) Watch(dir string) error {
	return w.watcher.Add(dir)
}

// Start begins processing file events in a goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop stops the watcher and waits for it to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		w.watcher.Close()
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)

		case <-ticker.C:
			w.flush()
		}
	}
}

// handleEvent records a pending change when a JSON export file
// is written or created. Other files in the directory are
// ignored.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if filepath.Ext(event.Name) != ".json" {
		return
	}

	w.mu.Lock()
	w.pending = w.now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	ready := !w.pending.IsZero() &&
		w.now().Sub(w.pending) >= w.debounce
	if ready {
		w.pending = time.Time{}
	}
	w.mu.Unlock()

	if ready {
		log.Printf("watcher: history changed, re-running analysis")
		w.onChange()
	}
}
