// Package lock implements the best-effort single-writer lock that guards
// one project's HashCache and ProjectMetadata during an indexing run.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileName is the lock sidecar, relative to the project root.
const FileName = ".context/index.lock"

// StaleAfter is the age after which a held lock is considered abandoned and
// reclaimable.
const StaleAfter = 1 * time.Hour

// info is the JSON sidecar written alongside the OS-level flock, recording
// who holds the lock so a stale lock can be diagnosed and reclaimed.
type info struct {
	PID       int       `json:"pid"`
	Acquired  time.Time `json:"acquired"`
	Hostname  string    `json:"hostname"`
}

// ProjectLock is an OS file lock guarding a project's index state, backed by
// a pid+timestamp JSON sidecar for stale-lock detection.
type ProjectLock struct {
	path  string
	fl    *flock.Flock
	held  bool
}

// New creates a lock bound to projectPath. The lock is not yet acquired.
func New(projectPath string) *ProjectLock {
	path := filepath.Join(projectPath, FileName)
	return &ProjectLock{path: path, fl: flock.New(path)}
}

// TryAcquire attempts to acquire the lock without blocking. If the existing
// lock sidecar is older than StaleAfter, it is reclaimed first.
func (l *ProjectLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	if stale, _ := l.isStale(); stale {
		_ = os.Remove(l.path)
	}

	acquired, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire project lock: %w", err)
	}
	if !acquired {
		return false, nil
	}

	hostname, _ := os.Hostname()
	data, err := json.Marshal(info{PID: os.Getpid(), Acquired: time.Now(), Hostname: hostname})
	if err != nil {
		_ = l.fl.Unlock()
		return false, err
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		_ = l.fl.Unlock()
		return false, err
	}

	l.held = true
	return true, nil
}

// Release releases the lock and removes the sidecar.
func (l *ProjectLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	return os.Remove(l.path)
}

func (l *ProjectLock) isStale() (bool, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return false, err
	}
	var i info
	if err := json.Unmarshal(data, &i); err != nil {
		// Unreadable sidecar is treated as stale so a run is never
		// permanently blocked by a corrupt lock file.
		return true, nil
	}
	return time.Since(i.Acquired) > StaleAfter, nil
}
