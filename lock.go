package genstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// Files kept next to the store data.
const (
	LockFile       = "lock"
	RecoveryMarker = "need_recover"
)

func lockOwner() string {
	name := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return name + "@" + host
}

func writeLock(dir string) error {
	return os.WriteFile(filepath.Join(dir, LockFile), []byte(lockOwner()), 0o644)
}

func removeLock(dir string) error {
	err := os.Remove(filepath.Join(dir, LockFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// LockOwner returns the user@host recorded in the lock file of the store in
// dir, or "" when the store is not locked.
func LockOwner(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, LockFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("genstore: reading lock: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// BreakLock removes a stale lock file.
func BreakLock(dir string) error {
	if err := removeLock(dir); err != nil {
		return fmt.Errorf("genstore: breaking lock: %w", err)
	}
	return nil
}

func hasRecoveryMarker(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, RecoveryMarker))
	return err == nil
}

func writeRecoveryMarker(dir string) error {
	if dir == "" {
		return nil
	}
	return os.WriteFile(filepath.Join(dir, RecoveryMarker), nil, 0o644)
}

func removeRecoveryMarker(dir string) error {
	err := os.Remove(filepath.Join(dir, RecoveryMarker))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
