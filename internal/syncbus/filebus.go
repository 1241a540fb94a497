// Package syncbus broadcasts store snapshots between open contexts of
// the application. Contexts share a watched sync file: publishing
// atomically replaces the file, and every other context picks the
// change up through fsnotify.
package syncbus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"civicsos/internal/ports"
)

// FileBus implements ports.SyncBus over a single shared file.
type FileBus struct {
	path    string
	watcher *fsnotify.Watcher
	log     *zap.Logger

	writeMu sync.Mutex

	out  chan ports.SyncMessage
	done chan struct{}

	closeOnce sync.Once
}

// NewFileBus starts watching the sync file's directory. The file
// itself may not exist yet.
func NewFileBus(path string, logger *zap.Logger) (*FileBus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sync directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create sync watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch sync directory: %w", err)
	}

	bus := &FileBus{
		path:    filepath.Clean(path),
		watcher: watcher,
		log:     logger,
		out:     make(chan ports.SyncMessage, 16),
		done:    make(chan struct{}),
	}
	go bus.watch()
	return bus, nil
}

// Publish atomically replaces the sync file with the encoded message.
// The write-then-rename keeps partially written messages invisible to
// other contexts.
func (b *FileBus) Publish(msg ports.SyncMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode sync message: %w", err)
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	tmp := filepath.Join(filepath.Dir(b.path), "."+filepath.Base(b.path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to stage sync message: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("failed to publish sync message: %w", err)
	}
	return nil
}

// Messages delivers broadcast messages, including this context's own;
// receivers filter by origin. The channel closes when the bus closes.
func (b *FileBus) Messages() <-chan ports.SyncMessage {
	return b.out
}

// Close stops the watcher. Idempotent.
func (b *FileBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.watcher.Close()
	})
	return err
}

func (b *FileBus) watch() {
	defer close(b.out)

	var lastID string
	for {
		select {
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != b.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			msg, err := b.read()
			if err != nil {
				b.log.Warn("skipping unreadable sync message", zap.Error(err))
				continue
			}
			if msg.ID == "" || msg.ID == lastID {
				continue
			}
			lastID = msg.ID
			select {
			case b.out <- msg:
			case <-b.done:
				return
			default:
				b.log.Warn("sync receiver is slow; dropping message", zap.String("id", msg.ID))
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.log.Warn("sync watcher error", zap.Error(err))
		}
	}
}

func (b *FileBus) read() (ports.SyncMessage, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return ports.SyncMessage{}, err
	}
	var msg ports.SyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ports.SyncMessage{}, err
	}
	return msg, nil
}
