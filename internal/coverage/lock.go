package coverage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
)

// LockName is the lock file serialising merges in one directory.
const LockName = ".coverage.lock"

const lockRetryInterval = 50 * time.Millisecond

// acquireLock takes an exclusive lock on path, retrying until ctx is done.
func acquireLock(ctx context.Context, path string) (*flock.Flock, error) {
	fl := flock.New(path)

	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquiring coverage lock %s: %w", path, err)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquiring coverage lock %s: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("acquiring coverage lock %s: lock not acquired", path)
	}
	return fl, nil
}

// releaseLock unlocks and closes fl. The lock file stays on disk so a
// concurrent holder's lock is never invalidated.
func releaseLock(logger *slog.Logger, fl *flock.Flock) {
	if err := fl.Close(); err != nil {
		logger.Debug("coverage_lock_release_failed", "path", fl.Path(), "error", err)
	}
}
