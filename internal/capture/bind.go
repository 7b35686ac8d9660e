package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"

	"github.com/ringtap/ringtap/internal/ring"
)

// bindRetryBudget bounds how long Bind retries a transient mlock
// failure (e.g. a momentary locked-memory rlimit contention) before giving
// up with ErrNoMemory.
const bindRetryBudget = 2 * time.Second

// Bind allocates the ring area for name (spec.md §6 "Bind"): an mmap'd,
// page-locked region sized by cfg, bound to the device resolved through
// resolver, and wraps it in a dispatchable Socket. The backing pages are
// marked non-swappable with mlock, retried with backoff since mlock can
// transiently fail under memory pressure before the kernel reclaims.
func Bind(ctx context.Context, cfg Config, name, deviceName string, resolver DeviceResolver) (*Socket, error) {
	dev, err := resolver.Resolve(deviceName)
	if err != nil {
		return nil, err
	}

	pageSize := os.Getpagesize()
	if err := cfg.Validate(pageSize); err != nil {
		return nil, err
	}

	size := ring.RegionSize(cfg.BucketLen, cfg.NumSlots, pageSize)

	region, err := mmapAnonymous(int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: mmap ring region: %v", ErrNoMemory, err)
	}

	mlockOp := func() (struct{}, error) {
		if err := unix.Mlock(region); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}
	if _, err := backoff.Retry(ctx, mlockOp, backoff.WithMaxElapsedTime(bindRetryBudget)); err != nil {
		_ = unix.Munmap(region)
		return nil, fmt.Errorf("%w: mlock ring region: %v", ErrNoMemory, err)
	}

	r, err := ring.New(region, cfg.BucketLen, cfg.NumSlots, cfg.SampleRate)
	if err != nil {
		_ = unix.Munlock(region)
		_ = unix.Munmap(region)
		return nil, fmt.Errorf("%w: %v", ErrNoMemory, err)
	}

	return NewSocket(name, r, dev), nil
}

// Release tears down a bound socket's ring area: unlocks and unmaps the
// backing region. Callers must have already removed sock from every
// runtime list (cluster membership, unclustered rings) under the
// management write-lock (spec.md §5 "Cancellation"). Both teardown steps
// are attempted even if the first fails, so a stuck munlock never leaks
// the mapping; failures are combined instead of only reporting the first.
func Release(sock *Socket, region []byte) error {
	var result *multierror.Error
	if err := unix.Munlock(region); err != nil {
		result = multierror.Append(result, fmt.Errorf("munlock: %w", err))
	}
	if err := unix.Munmap(region); err != nil {
		result = multierror.Append(result, fmt.Errorf("munmap: %w", err))
	}
	return result.ErrorOrNil()
}

// ReleaseAll tears down every (socket, region) pair, collecting every
// failure instead of stopping at the first so a caller tearing down a
// whole runtime on shutdown can still free the remaining sockets.
func ReleaseAll(socks []*Socket, regions [][]byte) error {
	var result *multierror.Error
	for i, sock := range socks {
		if err := Release(sock, regions[i]); err != nil {
			result = multierror.Append(result, fmt.Errorf("release %q: %w", sock.Name, err))
		}
	}
	return result.ErrorOrNil()
}

func mmapAnonymous(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
}
