package tabfile

import (
	"context"
	"os"
	"time"

	taberrors "github.com/maruel/tabdb/internal/errors"
)

// lockSuffix is appended to a table's path to name its lock directory.
const lockSuffix = ".lock"

// Lock acquisition cadence. Vars rather than consts so tests can shorten
// the wait.
var (
	lockRetryInterval = 50 * time.Millisecond
	lockMaxWait       = 5 * time.Second
)

// Lock is held inter-process mutual exclusion over one table. The lock
// directory's existence is the ownership signal: mkdir either succeeds
// exclusively or fails because another holder created it first.
type Lock struct {
	dir      string
	released bool
}

// Acquire takes the lock for the table at path, retrying on a short
// interval until the bounded wait elapses. It fails with LockTimeout when
// the wait is exceeded and with the context's error when ctx is cancelled
// while waiting.
//
// The caller must arrange for Release to run on every exit path, normally
// via defer, so the lock directory never outlives the operation.
func Acquire(ctx context.Context, path string) (*Lock, error) {
	dir := path + lockSuffix
	deadline := time.Now().Add(lockMaxWait)
	for {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return &Lock{dir: dir}, nil
		}
		if !os.IsExist(err) {
			return nil, taberrors.IO("create lock directory", err)
		}
		if time.Now().After(deadline) {
			return nil, taberrors.LockTimeout(path)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// Release removes the lock directory. It is idempotent; calling it after a
// successful release is a no-op.
func (l *Lock) Release() error {
	if l.released {
		return nil
	}
	l.released = true
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return taberrors.IO("remove lock directory", err)
	}
	return nil
}
