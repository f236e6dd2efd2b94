package availability

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oakmed/clinic-scheduler/internal/clinic"
)

// Leaser takes short-lived exclusive leases on subjects via Redis SET NX.
// Deployments running several API replicas against the shared store use it
// to serialize cross-instance reservation commits; a single replica works
// purely off the in-process index locks.
type Leaser struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaser(client *redis.Client, ttl time.Duration) *Leaser {
	if client == nil {
		panic("availability: redis client required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Leaser{client: client, ttl: ttl}
}

// Acquire leases every subject in canonical order, failing fast with a
// write-conflict error when any lease is held elsewhere. There is no queued
// waiting; callers surface the conflict and let the client retry. The
// returned release func is idempotent.
func (l *Leaser) Acquire(ctx context.Context, subjects []Subject) (func(), error) {
	token := uuid.NewString()
	keys := make([]string, 0, len(subjects))
	for _, s := range subjects {
		keys = append(keys, "lease:"+s.String())
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	var held []string
	for _, key := range keys {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			l.releaseKeys(context.WithoutCancel(ctx), held, token)
			return nil, fmt.Errorf("availability: lease %s: %v: %w", key, err, clinic.ErrUnavailable)
		}
		if !ok {
			l.releaseKeys(context.WithoutCancel(ctx), held, token)
			return nil, fmt.Errorf("availability: lease %s held elsewhere: %w", key, clinic.ErrConflict)
		}
		held = append(held, key)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.releaseKeys(context.WithoutCancel(ctx), held, token)
		})
	}
	return release, nil
}

// releaseKeys deletes only leases still holding our token; an expired lease
// reacquired by another instance is left alone.
func (l *Leaser) releaseKeys(ctx context.Context, keys []string, token string) {
	for _, key := range keys {
		val, err := l.client.Get(ctx, key).Result()
		if err == nil && val == token {
			l.client.Del(ctx, key)
		}
	}
}
