package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/dvloznov/expense-sync/internal/logger"
)

const (
	// MessageExt is the extension of message files picked up by the watcher.
	MessageExt = ".sms"
	// DoneExt is appended to a message file once it has been delivered.
	DoneExt = ".done"
)

// DirWatcher delivers every *.sms file in a directory as one message. Files
// must be dropped atomically, by rename. Files already present when the
// watcher starts are delivered first.
type DirWatcher struct {
	dir       string
	publisher Publisher
}

// NewDirWatcher creates a DirWatcher on dir.
func NewDirWatcher(dir string, publisher Publisher) *DirWatcher {
	return &DirWatcher{dir: dir, publisher: publisher}
}

// Run watches until ctx ends.
func (w *DirWatcher) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).With().Str("dir", w.dir).Logger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("Run: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("Run: watch %s: %w", w.dir, err)
	}

	if err := w.Scan(ctx); err != nil {
		return fmt.Errorf("Run: %w", err)
	}
	log.Info().Msg("Watching inbox directory")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) || !isMessageFile(event.Name) {
				continue
			}
			if err := w.deliver(ctx, event.Name); err != nil {
				log.Warn().Err(err).Str("file", event.Name).Msg("Failed to deliver message file")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// Scan delivers the message files currently in the directory, in name order.
func (w *DirWatcher) Scan(ctx context.Context) error {
	log := logger.FromContext(ctx)

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("Scan: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isMessageFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(w.dir, name)
		if err := w.deliver(ctx, path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Failed to deliver message file")
		}
	}
	return nil
}

// deliver publishes one file and marks it done. A file that vanished in the
// meantime was already handled by an earlier event.
func (w *DirWatcher) deliver(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	body := strings.TrimSpace(string(data))
	msg := &Message{
		ID:     MessageID(filepath.Base(path), body),
		Source: SourceDirectory,
		Body:   body,
	}

	err = w.publisher.Publish(ctx, msg)
	if err != nil && !errors.Is(err, ErrDuplicate) {
		return fmt.Errorf("publish: %w", err)
	}

	if err := os.Rename(path, path+DoneExt); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

func isMessageFile(name string) bool {
	return filepath.Ext(name) == MessageExt
}
