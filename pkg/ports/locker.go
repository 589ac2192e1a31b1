package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker coordinates session ownership across engine replicas,
// so two instances never run workflows for the same session concurrently.
type DistributedLocker interface {
	// Lock acquires a lock for the key (session ID), blocking until it is
	// held, the context is canceled, or the TTL expires (implementation
	// specific). The returned UnlockFunc MUST be called to release it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
