package daemon

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reports writes to trigger files in one directory. Each value on
// Triggers is the base name of a file that was created or written. Signals
// coalesce: while one is pending, further writes are folded into it.
type Watcher struct {
	fs       *fsnotify.Watcher
	names    map[string]struct{}
	triggers chan string
	logger   logrus.FieldLogger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher starts watching dir for the given base names. The directory is
// watched rather than the files so that a file replaced by rename, as the
// session file is on save, is still seen.
func NewWatcher(dir string, logger logrus.FieldLogger, names ...string) (*Watcher, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no trigger files to watch")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fs.Add(abs); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", abs, err)
	}

	w := &Watcher{
		fs:       fs,
		names:    make(map[string]struct{}, len(names)),
		triggers: make(chan string, 1),
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, n := range names {
		w.names[n] = struct{}{}
	}
	go w.run()
	return w, nil
}

// Triggers returns the channel of trigger file names. It is closed by Close.
func (w *Watcher) Triggers() <-chan string { return w.triggers }

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.fs.Close()
		<-w.done
		close(w.triggers)
	})
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			name := filepath.Base(ev.Name)
			if _, watched := w.names[name]; !watched {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			select {
			case w.triggers <- name:
			default:
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("watcher error")
		}
	}
}
