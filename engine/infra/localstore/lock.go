package localstore

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/aethra/keybot/engine/key"
)

const defaultLockRetry = 50 * time.Millisecond

// FileLock excludes other processes sharing the data directory while a
// mutation runs. It always uses the OS filesystem.
type FileLock struct {
	path  string
	retry time.Duration
}

var _ key.Locker = (*FileLock)(nil)

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, retry: defaultLockRetry}
}

// Lock blocks until the lock is held or ctx is done.
func (l *FileLock) Lock(ctx context.Context) (func(), error) {
	fl := flock.New(l.path)
	locked, err := fl.TryLockContext(ctx, l.retry)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", l.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: not acquired", l.path)
	}
	return func() { _ = fl.Unlock() }, nil
}
