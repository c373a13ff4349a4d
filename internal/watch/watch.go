// Package watch keeps a library under observation and hands each new media
// file to a handler once the file has stopped growing.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Logger is the subset of the application logger the watcher uses.
type Logger interface {
	Info(string, ...interface{})
	Warn(string, ...interface{})
	Debug(string, ...interface{})
}

// Options configures Run.
type Options struct {
	// Settle is how long a file must go without events and without a size
	// change before it is handed over.
	Settle time.Duration
	// Accept filters candidate files. Nil accepts everything.
	Accept func(path string) bool
	// Handle processes a settled file. Calls are sequential.
	Handle func(ctx context.Context, path string)
	Log    Logger

	tick time.Duration
}

type pendingFile struct {
	seen time.Time
	size int64
}

// Run watches root and its subdirectories until ctx is done.
func Run(ctx context.Context, root string, opts Options) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	pending := make(map[string]*pendingFile)
	if err := addRecursive(w, root, opts, pending, false); err != nil {
		return err
	}
	opts.Log.Info("Watching %s (settle %s)", root, opts.Settle)

	ticker := time.NewTicker(tickInterval(opts))
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			handleEvent(w, ev, opts, pending)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			opts.Log.Warn("watch: %v", err)

		case now := <-ticker.C:
			for _, path := range settled(now, opts.Settle, pending) {
				if ctx.Err() != nil {
					return nil
				}
				opts.Log.Debug("watch: %s settled", path)
				opts.Handle(ctx, path)
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func handleEvent(w *fsnotify.Watcher, ev fsnotify.Event, opts Options, pending map[string]*pendingFile) {
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		delete(pending, ev.Name)
		return
	case !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write):
		return
	}

	fi, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if fi.IsDir() {
		if ev.Has(fsnotify.Create) && !hidden(fi.Name()) {
			// Files may land in a new directory before its watch exists.
			if err := addRecursive(w, ev.Name, opts, pending, true); err != nil {
				opts.Log.Warn("watch: %s: %v", ev.Name, err)
			}
		}
		return
	}
	track(ev.Name, fi, opts, pending)
}

// addRecursive watches dir and every non-hidden directory below it. When
// enqueue is set, accepted files already present are tracked as new.
func addRecursive(w *fsnotify.Watcher, dir string, opts Options, pending map[string]*pendingFile, enqueue bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && hidden(d.Name()) {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				opts.Log.Debug("watch: cannot watch %s: %v", path, err)
			}
			return nil
		}
		if enqueue {
			if fi, err := d.Info(); err == nil {
				track(path, fi, opts, pending)
			}
		}
		return nil
	})
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }

func track(path string, fi fs.FileInfo, opts Options, pending map[string]*pendingFile) {
	if opts.Accept != nil && !opts.Accept(path) {
		return
	}
	pending[path] = &pendingFile{seen: time.Now(), size: fi.Size()}
}

// settled removes and returns, sorted, every pending file that has been
// quiet for the settle period with an unchanged size.
func settled(now time.Time, settle time.Duration, pending map[string]*pendingFile) []string {
	var ready []string
	for path, p := range pending {
		if now.Sub(p.seen) < settle {
			continue
		}
		fi, err := os.Stat(path)
		if err != nil {
			delete(pending, path)
			continue
		}
		if fi.Size() != p.size {
			p.size = fi.Size()
			p.seen = now
			continue
		}
		delete(pending, path)
		ready = append(ready, path)
	}
	sort.Strings(ready)
	return ready
}

func tickInterval(opts Options) time.Duration {
	if opts.tick > 0 {
		return opts.tick
	}
	iv := opts.Settle / 4
	switch {
	case iv < 100*time.Millisecond:
		return 100 * time.Millisecond
	case iv > 10*time.Second:
		return 10 * time.Second
	}
	return iv
}
