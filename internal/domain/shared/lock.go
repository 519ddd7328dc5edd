package shared

import "context"

// Locker serializes work on a set of keys across concurrent callers.
// Implementations acquire keys in a stable order and return a release func.
// A lock that cannot be acquired before ctx ends yields a TransientError.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}
