// Package lock serializes work per key. Different keys never wait on each
// other.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when ctx ends before the lock is obtained.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker hands out exclusive access to a key until release is called.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
