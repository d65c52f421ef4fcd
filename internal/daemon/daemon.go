package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joostmulder/AuditPro/internal/session"
	auditsync "github.com/joostmulder/AuditPro/internal/sync"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// RequestFile is touched in the data directory to ask for a pass.
	RequestFile = "sync.request"

	// LockFile guards a data directory against a second daemon.
	LockFile = "daemon.lock"
)

// Pass runs one sync pass.
type Pass func(ctx context.Context) auditsync.Result

// Config holds configuration for the daemon.
type Config struct {
	// Interval between scheduled passes. Zero disables the schedule.
	Interval time.Duration

	// Debounce is how long trigger files must stay quiet before a pass runs.
	Debounce time.Duration

	// Triggers are the base names in the data directory that request a pass.
	Triggers []string

	Logger logrus.FieldLogger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 15 * time.Minute,
		Debounce: 2 * time.Second,
		Triggers: []string{session.FileName, RequestFile},
		Logger:   logrus.StandardLogger().WithField("component", "daemon"),
	}
}

// Stats summarizes the passes a daemon has run.
type Stats struct {
	Passes    int
	Failures  int
	Uploaded  int
	LastRun   time.Time
	LastState auditsync.State
	LastError string
}

// Daemon schedules sync passes for one data directory.
type Daemon struct {
	dir    string
	pass   Pass
	config *Config
	logger logrus.FieldLogger

	watcher *Watcher
	group   singleflight.Group

	mu        sync.Mutex
	changedAt time.Time
	stats     Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	lock   *Lock
}

// New creates a daemon with default configuration.
func New(dir string, pass Pass) (*Daemon, error) {
	return NewWithConfig(dir, pass, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(dir string, pass Pass, config *Config) (*Daemon, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir cannot be empty")
	}
	if pass == nil {
		return nil, fmt.Errorf("pass cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.Debounce <= 0 {
		config.Debounce = def.Debounce
	}
	if len(config.Triggers) == 0 {
		config.Triggers = def.Triggers
	}
	logger := config.Logger
	if logger == nil {
		logger = def.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		dir:    dir,
		pass:   pass,
		config: config,
		logger: logger.WithField("dir", dir),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start locks the data directory, runs an initial pass and then serves
// scheduled and triggered passes. It blocks until ctx is done or Stop is
// called.
func (d *Daemon) Start(ctx context.Context) error {
	lock, err := AcquireLock(filepath.Join(d.dir, LockFile))
	if err != nil {
		return err
	}
	d.lock = lock
	d.logger.Info("starting daemon")

	watcher, err := NewWatcher(d.dir, d.logger, d.config.Triggers...)
	if err != nil {
		d.lock.Release()
		return err
	}
	d.watcher = watcher

	// Writes during the initial pass stay queued on the watcher.
	d.Trigger(ctx)

	d.wg.Add(2)
	go d.watchTriggers()
	go d.processChanges()
	if d.config.Interval > 0 {
		d.wg.Add(1)
		go d.runSchedule()
	}

	select {
	case <-ctx.Done():
		d.logger.Info("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for a running pass to return.
func (d *Daemon) Stop() error {
	d.logger.Info("stopping daemon")
	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.logger.WithError(err).Warn("error closing watcher")
		}
	}
	d.wg.Wait()

	if err := d.lock.Release(); err != nil {
		d.logger.WithError(err).Warn("error releasing lock")
	}
	d.logger.Info("daemon stopped")
	return nil
}

// Trigger runs a pass now, or waits for the one already running and
// returns its result.
func (d *Daemon) Trigger(ctx context.Context) auditsync.Result {
	v, _, shared := d.group.Do("sync", func() (any, error) {
		res := d.pass(ctx)
		d.record(res)
		return res, nil
	})
	if shared {
		d.logger.Debug("joined running pass")
	}
	return v.(auditsync.Result)
}

// Stats returns a snapshot of the pass counters.
func (d *Daemon) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Daemon) record(res auditsync.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Passes++
	d.stats.Uploaded += res.Uploaded
	d.stats.LastRun = res.Finished
	d.stats.LastState = res.State
	d.stats.LastError = ""
	if res.State == auditsync.StateFailed {
		d.stats.Failures++
		d.stats.LastError = res.Message
	}
}

func (d *Daemon) watchTriggers() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case name, ok := <-d.watcher.Triggers():
			if !ok {
				return
			}
			d.logger.WithField("file", name).Debug("trigger file written")
			d.mu.Lock()
			d.changedAt = time.Now()
			d.mu.Unlock()
		}
	}
}

// processChanges runs a pass once trigger files have been quiet for the
// debounce interval.
func (d *Daemon) processChanges() {
	defer d.wg.Done()

	ticker := time.NewTicker(max(d.config.Debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.mu.Lock()
			due := !d.changedAt.IsZero() && time.Since(d.changedAt) >= d.config.Debounce
			if due {
				d.changedAt = time.Time{}
			}
			d.mu.Unlock()

			if due {
				d.logger.Info("trigger file changed, syncing")
				d.Trigger(d.ctx)
			}
		}
	}
}

func (d *Daemon) runSchedule() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.Trigger(d.ctx)
		}
	}
}

// RequestSync asks a daemon serving dir for a pass.
func RequestSync(dir string) error {
	path := filepath.Join(dir, RequestFile)
	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano) + "\n")
	if err := os.WriteFile(path, stamp, 0o600); err != nil {
		return fmt.Errorf("failed to request sync: %w", err)
	}
	return nil
}
