package kvstore_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/goliatone/go-gate"
	"github.com/goliatone/go-gate/kvstore"
)

func newBunStore(t *testing.T) (*kvstore.Bun, *clock) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqldb.Close() })

	db := bun.NewDB(sqldb, sqlitedialect.New())
	tick := newClock()
	store := kvstore.NewBun(db).WithNow(tick.Now)
	require.NoError(t, store.Init(context.Background()))
	return store, tick
}

func TestBunContract(t *testing.T) {
	store, tick := newBunStore(t)
	kvContract(t, store, tick)
}

func TestBunInitIsIdempotent(t *testing.T) {
	store, _ := newBunStore(t)
	require.NoError(t, store.Init(context.Background()))
}

func TestBunValuesSurviveReconnect(t *testing.T) {
	store, _ := newBunStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "persisted", "value"))

	value, ok, err := store.Get(ctx, "persisted")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value", value)
}

func TestBunBatch(t *testing.T) {
	store, _ := newBunStore(t)
	ctx := context.Background()

	err := store.Batch(ctx, func(kv gate.KV) error {
		if err := kv.Set(ctx, "batched-1", "a"); err != nil {
			return err
		}
		if err := kv.SAdd(ctx, "batched-set", "m"); err != nil {
			return err
		}
		_, err := kv.Incr(ctx, "batched-counter")
		return err
	})
	require.NoError(t, err)

	value, ok, err := store.Get(ctx, "batched-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", value)

	members, err := store.SMembers(ctx, "batched-set")
	require.NoError(t, err)
	assert.Equal(t, []string{"m"}, members)

	n, err := store.Incr(ctx, "batched-counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBunBatchRollsBackOnError(t *testing.T) {
	store, _ := newBunStore(t)
	ctx := context.Background()

	err := store.Batch(ctx, func(kv gate.KV) error {
		if err := kv.Set(ctx, "doomed", "x"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, ok, err := store.Get(ctx, "doomed")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBunLazyExpiryDropsRow(t *testing.T) {
	store, tick := newBunStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetTTL(ctx, "ephemeral", "v", time.Minute))
	tick.Advance(2 * time.Minute)

	_, ok, err := store.Get(ctx, "ephemeral")
	require.NoError(t, err)
	require.False(t, ok)

	// the expired row no longer blocks a fresh conditional write
	ok, err = store.SetNX(ctx, "ephemeral", "v2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
