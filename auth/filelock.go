package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
)

const (
	lockRetryDelay = 100 * time.Millisecond
	lockWaitLimit  = 5 * time.Second
	lockStaleAfter = 30 * time.Second
)

// fileLock is an advisory lock implemented as an exclusively created sidecar
// file, so that two dub processes never interleave writes of the same record.
type fileLock struct {
	f    *os.File
	path string
}

// lockFile acquires the sidecar lock for target, waiting up to lockWaitLimit.
// Locks older than lockStaleAfter are assumed abandoned and removed.
func lockFile(ctx context.Context, target string) (*fileLock, error) {
	path := target + ".lock"
	deadline := time.Now().Add(lockWaitLimit)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			return &fileLock{f: f, path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock file %s: %w", path, err)
		}

		if info, statErr := os.Stat(path); statErr == nil &&
			time.Since(info.ModTime()) > lockStaleAfter {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				return nil, fmt.Errorf("remove stale lock file %s: %w", path, rmErr)
			}
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for lock %s after %v", path, lockWaitLimit)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

// release closes and removes the lock file.
func (l *fileLock) release() error {
	if l.f != nil {
		_ = l.f.Close()
	}
	return os.Remove(l.path)
}
