package scheduler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/model"
)

// DefaultDebounce is the quiet period Watch waits for before triggering.
const DefaultDebounce = 2 * time.Second

// Watch triggers a cycle when files under root change. Events are debounced:
// a burst of writes yields one cycle once root has been quiet for debounce.
// If a cycle is already active the trigger is retried after another quiet
// period. Watch blocks until ctx is done.
func (s *Scheduler) Watch(ctx context.Context, root string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := watchTree(w, root); err != nil {
		return err
	}
	s.logger.Info("watching corpus", "root", root, "debounce", debounce)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watchTree(w, ev.Name); err != nil {
						s.logger.Warn("watch new directory", "path", ev.Name, "err", err)
					}
				}
			}
			s.logger.Debug("corpus changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", "err", err)

		case <-timer.C:
			_, err := s.Trigger(ctx, engine.RunOpts{Trigger: model.TriggerWatch})
			switch {
			case engine.IsSchedulingConflict(err):
				s.logger.Info("watch trigger deferred, cycle active")
				timer.Reset(debounce)
			case err != nil:
				s.logger.Error("watch-triggered cycle failed", "err", err)
			}
		}
	}
}

// watchTree adds dir and every non-hidden directory below it. fsnotify
// watches are not recursive.
func watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func relevant(ev fsnotify.Event) bool {
	if hidden(filepath.Base(ev.Name)) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
