package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/session"
	auditsync "github.com/joostmulder/AuditPro/internal/sync"
	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Interval = 0
	cfg.Debounce = 20 * time.Millisecond
	cfg.Logger = quietLogger()
	return cfg
}

// countingPass reports each pass on a channel.
func countingPass(state auditsync.State) (Pass, <-chan struct{}) {
	ran := make(chan struct{}, 100)
	return func(ctx context.Context) auditsync.Result {
		ran <- struct{}{}
		return auditsync.Result{State: state, Message: state.String(), Finished: time.Now()}
	}, ran
}

func waitPass(t *testing.T, ran <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// startDaemon runs d.Start in the background and stops it at cleanup.
func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			if err != nil {
				t.Errorf("Start() returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
}

func TestNewWithConfig_Validation(t *testing.T) {
	pass, _ := countingPass(auditsync.StateDone)
	if _, err := NewWithConfig("", pass, testConfig()); err == nil {
		t.Error("NewWithConfig() accepted an empty dir")
	}
	if _, err := NewWithConfig(t.TempDir(), nil, testConfig()); err == nil {
		t.Error("NewWithConfig() accepted a nil pass")
	}
}

func TestStart_RunsInitialPassThenRequested(t *testing.T) {
	dir := t.TempDir()
	pass, ran := countingPass(auditsync.StateDone)
	d, err := NewWithConfig(dir, pass, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	startDaemon(t, d)
	waitPass(t, ran, "initial pass")

	// The watcher is registered before the initial pass runs.
	if err := RequestSync(dir); err != nil {
		t.Fatalf("RequestSync() failed: %v", err)
	}
	waitPass(t, ran, "requested pass")

	if got := d.Stats(); got.Passes < 2 || got.LastState != auditsync.StateDone {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestStart_CatalogBookkeepingDoesNotRetrigger(t *testing.T) {
	dir := t.TempDir()
	user := model.User{
		ID: 7, FirstName: "Dana", LastName: "Reyes", Email: "dana@example.com",
		RoleID: 2, RoleName: "Auditor", ClientID: 3, ClientName: "Fizz Co",
	}
	if _, err := session.Begin(dir, "tok", user); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}

	var passes atomic.Int32
	pass := func(ctx context.Context) auditsync.Result {
		passes.Add(1)
		sess, err := session.Load(dir)
		if err != nil {
			return auditsync.Result{State: auditsync.StateFailed, Message: err.Error()}
		}
		if err := sess.MarkCatalogSynced(3, time.Now()); err != nil {
			return auditsync.Result{State: auditsync.StateFailed, Message: err.Error()}
		}
		return auditsync.Result{State: auditsync.StateDone, Finished: time.Now()}
	}
	d, err := NewWithConfig(dir, pass, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	startDaemon(t, d)

	time.Sleep(500 * time.Millisecond)
	if n := passes.Load(); n != 1 {
		t.Errorf("ran %d passes, want only the initial one", n)
	}
	if got := d.Stats(); got.Failures != 0 {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestStart_RunsOnInterval(t *testing.T) {
	pass, ran := countingPass(auditsync.StateDone)
	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond
	d, err := NewWithConfig(t.TempDir(), pass, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	startDaemon(t, d)

	for i := 0; i < 3; i++ {
		waitPass(t, ran, "scheduled pass")
	}
}

func TestTrigger_CoalescesConcurrentPasses(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	pass := func(ctx context.Context) auditsync.Result {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return auditsync.Result{State: auditsync.StateDone, Uploaded: 2}
	}
	d, err := NewWithConfig(t.TempDir(), pass, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]auditsync.Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = d.Trigger(context.Background())
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = d.Trigger(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("pass ran %d times, want 1", n)
	}
	for i, r := range results {
		if r.Uploaded != 2 {
			t.Errorf("result %d = %+v, want shared result", i, r)
		}
	}
	if got := d.Stats(); got.Passes != 1 || got.Uploaded != 2 {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestStats_RecordsFailures(t *testing.T) {
	pass, _ := countingPass(auditsync.StateFailed)
	d, err := NewWithConfig(t.TempDir(), pass, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	d.Trigger(context.Background())
	d.Trigger(context.Background())

	got := d.Stats()
	if got.Passes != 2 || got.Failures != 2 || got.LastError != "failed" {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestWatcher_FiltersNames(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, quietLogger(), RequestFile)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "audit.db"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, RequestFile), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case name := <-w.Triggers():
		if name != RequestFile {
			t.Errorf("trigger for %s, want only %s", name, RequestFile)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no trigger for the request file")
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	for range w.Triggers() {
	}
}

func TestNewWatcher_NoNames(t *testing.T) {
	if _, err := NewWatcher(t.TempDir(), nil); err == nil {
		t.Error("expected error without trigger names")
	}
}
