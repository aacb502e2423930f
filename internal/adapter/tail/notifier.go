// Package tail provides the file-level helpers the ingestor needs to follow
// an append-only access log: change notification and file identity.
package tail

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Notifier signals on C whenever the watched file is written, created,
// renamed or removed. Signals are coalesced: at most one is pending.
type Notifier struct {
	C <-chan struct{}

	c        chan struct{}
	watcher  *fsnotify.Watcher
	name     string
	logger   *slog.Logger
	done     chan struct{}
	wg       sync.WaitGroup
	closeErr error
	once     sync.Once
}

// NewNotifier watches the parent directory of path so that the file can be
// deleted and recreated without losing the watch.
func NewNotifier(path string, logger *slog.Logger) (*Notifier, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	c := make(chan struct{}, 1)
	n := &Notifier{
		C:       c,
		c:       c,
		watcher: watcher,
		name:    filepath.Clean(path),
		logger:  logger.With("component", "tail_notifier"),
		done:    make(chan struct{}),
	}

	n.wg.Add(1)
	go n.loop()
	return n, nil
}

func (n *Notifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != n.name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				n.signal()
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Warn("fs watcher error", "error", err)
			n.signal()
		}
	}
}

func (n *Notifier) signal() {
	select {
	case n.c <- struct{}{}:
	default:
	}
}

// Close stops the watcher. It is safe to call more than once.
func (n *Notifier) Close() error {
	n.once.Do(func() {
		close(n.done)
		n.closeErr = n.watcher.Close()
		n.wg.Wait()
	})
	return n.closeErr
}
