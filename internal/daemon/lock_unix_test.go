//go:build unix

package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	auditsync "github.com/joostmulder/AuditPro/internal/sync"
)

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFile)

	l, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock() failed: %v", err)
	}
	if _, err := AcquireLock(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second AcquireLock() = %v, want ErrLocked", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	again, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock() after release failed: %v", err)
	}
	again.Release()
}

func TestStart_SecondDaemonIsLockedOut(t *testing.T) {
	dir := t.TempDir()
	pass, ran := countingPass(auditsync.StateDone)
	first, err := NewWithConfig(dir, pass, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	startDaemon(t, first)
	waitPass(t, ran, "initial pass")

	second, err := NewWithConfig(dir, pass, testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	if err := second.Start(context.Background()); !errors.Is(err, ErrLocked) {
		t.Errorf("second Start() = %v, want ErrLocked", err)
	}
}
