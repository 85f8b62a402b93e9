package jobstore

import (
	"errors"
	"testing"
)

func TestAcquireSubmitLock_BlocksConcurrentAcquire(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := AcquireSubmitLock(stateDir)
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	_, err = AcquireSubmitLock(stateDir)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := AcquireSubmitLock(stateDir)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}

func TestSubmitLock_ZeroValueReleaseIsNoop(t *testing.T) {
	if err := (SubmitLock{}).Release(); err != nil {
		t.Fatalf("release zero lock: %v", err)
	}
	if _, err := AcquireSubmitLock("  "); err == nil {
		t.Fatalf("expected error for empty state dir")
	}
}
