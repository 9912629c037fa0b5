package osa

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sgx-labs/gitmemory/internal/memerr"
	"github.com/sgx-labs/gitmemory/internal/memtypes"
)

// lockBackoffBase and lockBackoffMax bound the exponential backoff between
// flock attempts.
const (
	lockBackoffBase = 10 * time.Millisecond
	lockBackoffMax  = 500 * time.Millisecond
)

// fileLock is a per-(namespace, domain) advisory lock backed by
// syscall.Flock, scoped to a single acquisition so its file descriptor is
// always closed on every exit path — the "scoped acquisition wrapper" the
// spec's key algorithm calls for.
type fileLock struct {
	f *os.File
}

// acquireLock opens (creating if necessary) the lock file for (namespace,
// domain) under lockDir and attempts an exclusive, non-blocking flock in a
// retry loop with exponential backoff, bounded by timeout. It returns
// memerr.KindLockTimeout if the lock is not acquired in time.
func acquireLock(ctx context.Context, lockDir string, domain memtypes.Domain, ns memtypes.Namespace, timeout time.Duration) (*fileLock, error) {
	dir := filepath.Join(lockDir, string(domain))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, memerr.Wrap(memerr.KindStoreUnavailable, "osa.lock", fmt.Errorf("create lock dir: %w", err))
	}
	path := filepath.Join(dir, string(ns)+".lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStoreUnavailable, "osa.lock", fmt.Errorf("open lock file: %w", err))
	}

	deadline := time.Now().Add(timeout)
	backoff := lockBackoffBase
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if err != syscall.EWOULDBLOCK {
			f.Close()
			return nil, memerr.Wrap(memerr.KindStoreUnavailable, "osa.lock", err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, memerr.New(memerr.KindLockTimeout, "osa.lock",
				fmt.Sprintf("timed out acquiring lock for namespace %q domain %q after %s", ns, domain, timeout))
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, memerr.Wrap(memerr.KindLockTimeout, "osa.lock", ctx.Err())
		case <-time.After(jitter(backoff)):
		}
		backoff *= 2
		if backoff > lockBackoffMax {
			backoff = lockBackoffMax
		}
	}
}

// jitter spreads retry attempts by +/-20% so multiple waiters on the same
// lock don't thunder-herd the same backoff schedule.
func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	return d + time.Duration(delta*(rand.Float64()*2-1))
}

// release drops the flock and closes the file descriptor. A release failure
// is logged at warning level and never returned, so a release-time error
// cannot mask the write outcome.
func (l *fileLock) release() {
	if err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN); err != nil {
		fmt.Fprintf(os.Stderr, "gitmem: warning: failed to release lock: %v\n", err)
	}
	if err := l.f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "gitmem: warning: failed to close lock file: %v\n", err)
	}
}
