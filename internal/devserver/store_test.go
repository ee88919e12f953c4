package devserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]Store{
		"memory":       NewMemoryStore(),
		"redis":        redisStore,
		"instrumented": Instrument(NewMemoryStore()),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "g:entities:T", "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put(ctx, "g:entities:T", "a", Document{"level": 3, "name": "Donald"}))
			require.NoError(t, store.Put(ctx, "g:entities:T", "b", Document{"level": 5}))
			require.NoError(t, store.Put(ctx, "g:entities:U", "c", Document{}))

			doc, err := store.Get(ctx, "g:entities:T", "a")
			require.NoError(t, err)
			assert.Equal(t, Document{"level": json.Number("3"), "name": "Donald"}, doc)

			// returned documents are copies
			doc["level"] = 99.0
			again, err := store.Get(ctx, "g:entities:T", "a")
			require.NoError(t, err)
			assert.Equal(t, json.Number("3"), again["level"])

			require.NoError(t, store.Put(ctx, "g:entities:T", "big", Document{"coins": json.Number("9007199254740993")}))
			big, err := store.Get(ctx, "g:entities:T", "big")
			require.NoError(t, err)
			assert.Equal(t, json.Number("9007199254740993"), big["coins"])
			require.NoError(t, store.Delete(ctx, "g:entities:T", "big"))

			docs, err := store.List(ctx, "g:entities:T")
			require.NoError(t, err)
			assert.Len(t, docs, 2)
			assert.Contains(t, docs, "b")

			require.NoError(t, store.Delete(ctx, "g:entities:T", "a"))
			assert.ErrorIs(t, store.Delete(ctx, "g:entities:T", "a"), ErrNotFound)

			empty, err := store.List(ctx, "g:entities:none")
			require.NoError(t, err)
			assert.Empty(t, empty)

			assert.NoError(t, store.Ping(ctx))
		})
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	ctx := context.Background()
	_, err := store.Get(ctx, "c", "id")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Put(ctx, "c", "id", Document{}), ErrStoreClosed)
	assert.ErrorIs(t, store.Ping(ctx), ErrStoreClosed)
}

func TestRedisStoreUsesOneHashPerCollection(t *testing.T) {
	store, mr := newRedisStore(t)

	require.NoError(t, store.Put(context.Background(), "g1:logs", "l1", Document{"severity": "error"}))

	assert.True(t, mr.Exists("flox:g1:logs"))
	assert.Equal(t, `{"severity":"error"}`, mr.HGet("flox:g1:logs", "l1"))
	assert.NotNil(t, store.Stats())
}

func TestRedisStoreErrors(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{})
	assert.Error(t, err)

	store, mr := newRedisStore(t)
	mr.Close()

	_, err = store.Get(context.Background(), "c", "id")
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.True(t, storeErr.Retryable)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStoreErrorWithErrorDoesNotMutateSentinel(t *testing.T) {
	wrapped := ErrNotFound.WithError(assert.AnError)
	assert.Nil(t, ErrNotFound.Underlying)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Equal(t, "document not found: "+assert.AnError.Error(), wrapped.Error())
}
