package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
)

// settleDelay coalesces the burst of filesystem events a single sqlite
// commit produces (db, -wal and -shm are all touched).
const settleDelay = 50 * time.Millisecond

// Watch observes the database file for writes made by other processes and
// publishes them on kv's subscribers with External set. It blocks until ctx
// is cancelled.
func Watch(ctx context.Context, kv *KV, dbPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(dbPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	base := filepath.Base(dbPath)
	applog.Info("storage.watch.start", "path", dbPath)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settleDelay)
			} else {
				timer.Reset(settleDelay)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			applog.Error("storage.watch", err)
		case <-fire:
			fire = nil
			if err := kv.detectExternal(ctx); err != nil {
				applog.Error("storage.watch.detect", err)
			}
		}
	}
}
