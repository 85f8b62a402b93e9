package jobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	submitLockDirName   = ".submit.lock"
	submitLockOwnerFile = "owner.json"
)

// ErrLocked is returned when another process holds the submit lock.
var ErrLocked = errors.New("another submission is in progress")

type SubmitLock struct {
	lockDir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireSubmitLock takes a directory lock under stateDir. Mkdir is atomic,
// so only one process can hold it at a time.
func AcquireSubmitLock(stateDir string) (SubmitLock, error) {
	target := strings.TrimSpace(stateDir)
	if target == "" {
		return SubmitLock{}, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return SubmitLock{}, fmt.Errorf("create state directory %s: %w", target, err)
	}

	lockDir := filepath.Join(target, submitLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			var owner lockOwner
			if readErr := ReadJSON(filepath.Join(lockDir, submitLockOwnerFile), &owner); readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
				return SubmitLock{}, fmt.Errorf("%w (pid=%d created_at=%s host=%s)", ErrLocked, owner.PID, owner.CreatedAt, owner.Hostname)
			}
			return SubmitLock{}, fmt.Errorf("%w (lock %s)", ErrLocked, lockDir)
		}
		return SubmitLock{}, fmt.Errorf("acquire submit lock in %s: %w", target, err)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(lockDir, submitLockOwnerFile), owner); err != nil {
		_ = os.Remove(lockDir)
		return SubmitLock{}, fmt.Errorf("write submit lock owner: %w", err)
	}
	return SubmitLock{lockDir: lockDir}, nil
}

func (l SubmitLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, submitLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release submit lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
