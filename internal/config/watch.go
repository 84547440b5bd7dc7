package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/rgsync/rgsync/internal/rlog"
)

// Watcher hot-reloads config.yaml (or a .toml alternate) on write, the
// teacher's pattern of watching a directory rather than the file itself so
// an editor's save-by-rename still fires an event fsnotify can see.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// WatchConfig starts watching configPath and calls onChange with the
// freshly reloaded Config every time it changes on disk. onChange is
// called with a non-nil error instead when the reload fails; the prior
// Config stays in effect until a reload succeeds. The caller must Close
// the returned Watcher; watching stops when ctx is done.
func WatchConfig(ctx context.Context, configPath string, onChange func(*Config, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(configPath)); err != nil {
		fsw.Close()
		return nil, err
	}

	target := filepath.Clean(configPath)
	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(configPath)
				onChange(cfg, err)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				rlog.Warnf("config watch error", rlog.Fields{"err": err.Error()})
			}
		}
	}()
	return &Watcher{fsw: fsw}, nil
}

// Close stops watching and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
