// Copyright 2022 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Editors often write a file several times in a row when saving it.
const defaultDebounce = 300 * time.Millisecond

// A manifestWatcher calls a function whenever one of the inputs of the compilation database
// changes: a manifest file is written, or a file is added to or removed from a directory that was
// searched by a glob.  The directories containing the files are watched rather than the files, so
// that files replaced by a rename are still seen.
type manifestWatcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	dirs     map[string]bool
	watched  map[string]bool
	debounce time.Duration
	logger   *zap.Logger
}

func newManifestWatcher(deps []string, debounce time.Duration, logger *zap.Logger) (*manifestWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &manifestWatcher{
		watcher:  watcher,
		watched:  make(map[string]bool),
		debounce: debounce,
		logger:   logger,
	}
	if err := w.watch(deps); err != nil {
		watcher.Close()
		return nil, err
	}
	return w, nil
}

// watch replaces the set of watched inputs with deps.  Directories that are no longer needed are
// removed from the watcher.
func (w *manifestWatcher) watch(deps []string) error {
	files := make(map[string]bool)
	dirs := make(map[string]bool)
	watched := make(map[string]bool)
	for _, dep := range deps {
		abs, err := filepath.Abs(dep)
		if err != nil {
			return err
		}

		dir := filepath.Dir(abs)
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			dirs[abs] = true
			dir = abs
		} else {
			files[abs] = true
		}

		if watched[dir] {
			continue
		}
		watched[dir] = true
		if w.watched[dir] {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.logger.Debug("watching directory", zap.String("dir", dir))
	}

	for dir := range w.watched {
		if !watched[dir] {
			// The directory may already be gone, in which case the watch was dropped with it.
			_ = w.watcher.Remove(dir)
			w.logger.Debug("no longer watching directory", zap.String("dir", dir))
		}
	}

	w.files, w.dirs, w.watched = files, dirs, watched
	return nil
}

func (w *manifestWatcher) Close() error {
	return w.watcher.Close()
}

// run waits for changes until ctx is done.  Once no change has been seen for the debounce
// duration, regenerate is called.  Errors from regenerate are logged and do not stop the watch.
func (w *manifestWatcher) run(ctx context.Context, regenerate func() error) error {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("manifest changed",
				zap.String("file", event.Name), zap.String("op", event.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			if err := regenerate(); err != nil {
				w.logger.Error("regenerating compilation database", zap.Error(err))
			}
		}
	}
}

func (w *manifestWatcher) relevant(event fsnotify.Event) bool {
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}

	added := event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
	if w.files[abs] {
		return added || event.Has(fsnotify.Write)
	}
	return added && w.dirs[filepath.Dir(abs)]
}

// runWatch generates the compilation database and then regenerates it on every change of the
// manifests until the command is interrupted.  After each run the watched inputs are updated, so
// directories searched by new glob patterns are picked up.
func (o *options) runWatch(cmd *cobra.Command, manifestFiles []string) error {
	deps, err := o.generate(cmd.Flags(), manifestFiles)
	if err != nil {
		o.logger.Error("generating compilation database", zap.Error(err))
	}
	if len(deps) == 0 {
		deps = manifestFiles
	}

	w, err := newManifestWatcher(deps, defaultDebounce, o.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	return w.run(cmd.Context(), func() error {
		deps, err := o.generate(cmd.Flags(), manifestFiles)
		if len(deps) > 0 {
			if err := w.watch(deps); err != nil {
				o.logger.Warn("updating watched files", zap.Error(err))
			}
		}
		if err != nil {
			return err
		}
		o.logger.Info("regenerated compilation database")
		return nil
	})
}
