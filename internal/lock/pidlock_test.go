package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := PathFor(filepath.Join(t.TempDir(), "wxgate.db"))
	l, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	pid, ok := ReadPID(lockPath)
	if !ok {
		t.Fatalf("expected PID in lock file")
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestAcquirePIDLockContention(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "state", "wxgate.db.lock")
	first, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("first AcquirePIDLock: %v", err)
	}

	_, err = AcquirePIDLock(lockPath)
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("second AcquirePIDLock error = %v, want ErrHeld", err)
	}
	if want := strconv.Itoa(os.Getpid()); !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not name holder pid %s", err, want)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	again, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock after release: %v", err)
	}
	_ = again.Release()
}

func TestAcquirePIDLockEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := AcquirePIDLock(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestReadPIDGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.lock")
	if err := os.WriteFile(path, []byte("not a pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := ReadPID(path); ok {
		t.Fatalf("expected ReadPID to reject garbage")
	}
	if _, ok := ReadPID(filepath.Join(t.TempDir(), "missing")); ok {
		t.Fatalf("expected ReadPID to fail for missing file")
	}
}
