//go:build unix

// Package instance keeps two daemons from driving the same state file.
package instance

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
)

// Guard is a held instance lock.
type Guard struct {
	f    *os.File
	path string
}

// LockPath returns the lock file for statePath. The name is scoped by a
// hash of the absolute state path so separate state files run side by side.
func LockPath(statePath string) (string, error) {
	abs, err := filepath.Abs(statePath)
	if err != nil {
		return "", fmt.Errorf("resolving state path: %w", err)
	}
	sum := sha1.Sum([]byte(abs))
	return abs + ".lock-" + hex.EncodeToString(sum[:])[:12], nil
}

// Acquire takes an exclusive, non-blocking lock for statePath. It returns
// ErrInstanceLocked when another process holds it.
func Acquire(statePath string) (*Guard, error) {
	path, err := LockPath(statePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", serrors.ErrInstanceLocked, path)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	// The pid is informational only.
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	return &Guard{f: f, path: path}, nil
}

// Path returns the lock file location.
func (g *Guard) Path() string { return g.path }

// Release drops the lock. The file is left in place.
func (g *Guard) Release() error {
	if g == nil || g.f == nil {
		return nil
	}
	err := unix.Flock(int(g.f.Fd()), unix.LOCK_UN)
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}
	g.f = nil
	return err
}

// Held reports whether some process currently holds the lock for
// statePath.
func Held(statePath string) (bool, error) {
	g, err := Acquire(statePath)
	if errors.Is(err, serrors.ErrInstanceLocked) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, g.Release()
}
