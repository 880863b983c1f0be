package tokenstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_SaveLookupRevoke(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemory()

	req.NoError(store.Save(ctx, "jti-1", "alice", time.Hour))

	subject, err := store.Lookup(ctx, "jti-1")
	req.NoError(err)
	req.Equal("alice", subject)

	req.NoError(store.Revoke(ctx, "jti-1"))
	_, err = store.Lookup(ctx, "jti-1")
	req.ErrorIs(err, ErrNotFound)
}

func TestMemory_Expiry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemory()
	now := time.Now()
	store.now = func() time.Time { return now }

	req.NoError(store.Save(ctx, "jti-1", "alice", time.Minute))

	now = now.Add(2 * time.Minute)
	_, err := store.Lookup(ctx, "jti-1")
	req.ErrorIs(err, ErrNotFound)
}

func TestMemory_RevokeUnknownIsNoop(t *testing.T) {
	require.NoError(t, NewMemory().Revoke(context.Background(), "missing"))
}

func TestMemory_ConsumeSucceedsOnce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemory()
	req.NoError(store.Save(ctx, "jti-1", "alice", time.Hour))

	const callers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if subject, err := store.Consume(ctx, "jti-1"); err == nil && subject == "alice" {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	req.Equal(int32(1), successes.Load())
	_, err := store.Lookup(ctx, "jti-1")
	req.ErrorIs(err, ErrNotFound)
}

func TestMemory_ConsumeExpired(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemory()
	now := time.Now()
	store.now = func() time.Time { return now }

	req.NoError(store.Save(ctx, "jti-1", "alice", time.Minute))
	now = now.Add(time.Minute)

	_, err := store.Consume(ctx, "jti-1")
	req.ErrorIs(err, ErrNotFound)
}
