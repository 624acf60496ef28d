package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// pauseSentinel is the file whose appearance in the work directory
// pauses the active run.
func pauseSentinel(workDir string) string {
	return filepath.Join(workDir, "pause")
}

// clearPauseSentinel removes a stale sentinel so a new or resumed run
// does not pause immediately.
func clearPauseSentinel(workDir string) {
	path := pauseSentinel(workDir)
	if err := os.Remove(path); err == nil {
		logger.Info("Removed stale pause sentinel", zap.String("path", path))
	}
}

// watchPause cancels the run context when the pause sentinel appears.
// Signals pause too; the sentinel allows pausing without access to the
// process. The returned function stops the watcher.
func watchPause(ctx context.Context, cancel context.CancelFunc, workDir string) (func() error, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(workDir); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) == "pause" && ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					logger.Info("Pause sentinel detected", zap.String("path", ev.Name))
					cancel()
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Pause watcher error", zap.Error(werr))
			}
		}
	}()
	return watcher.Close, nil
}
