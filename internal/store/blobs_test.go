package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobStore is the contract shared by Store and Memory.
type blobStore interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, key string, value []byte, source string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	History(ctx context.Context, key string, limit int) ([]Write, error)
	Watch(ctx context.Context) <-chan struct{}
}

var testTime = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func eachStore(t *testing.T, fn func(t *testing.T, s blobStore)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, createTestStore(t, WithNow(fixedNow(testTime))))
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory(fixedNow(testTime)))
	})
}

func TestGet_MissingKey(t *testing.T) {
	eachStore(t, func(t *testing.T, s blobStore) {
		_, err := s.Get(context.Background(), "admin-state")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestPut_VersionsAndRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s blobStore) {
		ctx := context.Background()

		rec, err := s.Put(ctx, "admin-state", []byte(`{"a":1}`), "instance-a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Version)

		rec, err = s.Put(ctx, "admin-state", []byte(`{"a":2}`), "instance-b")
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Version)

		got, err := s.Get(ctx, "admin-state")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":2}`), got.Value)
		assert.Equal(t, int64(2), got.Version)
		assert.Equal(t, "instance-b", got.Source)
		assert.True(t, got.UpdatedAt.Equal(testTime))

		// Versions are per key.
		rec, err = s.Put(ctx, "cart", []byte(`[]`), "instance-a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Version)
	})
}

func TestPut_EmptyKeyRejected(t *testing.T) {
	eachStore(t, func(t *testing.T, s blobStore) {
		_, err := s.Put(context.Background(), "", []byte("x"), "a")
		assert.Error(t, err)
	})
}

func TestPut_NilValueStoredEmpty(t *testing.T) {
	eachStore(t, func(t *testing.T, s blobStore) {
		ctx := context.Background()
		_, err := s.Put(ctx, "k", nil, "a")
		require.NoError(t, err)

		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Empty(t, got.Value)
	})
}

func TestList_OrderedByKey(t *testing.T) {
	eachStore(t, func(t *testing.T, s blobStore) {
		ctx := context.Background()

		records, err := s.List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)

		for _, key := range []string{"cart", "admin-state"} {
			_, err := s.Put(ctx, key, []byte(key), "a")
			require.NoError(t, err)
		}
		records, err = s.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "admin-state", records[0].Key)
		assert.Equal(t, "cart", records[1].Key)
	})
}

func TestHistory_NewestFirst(t *testing.T) {
	eachStore(t, func(t *testing.T, s blobStore) {
		ctx := context.Background()
		for _, src := range []string{"a", "b", "a"} {
			_, err := s.Put(ctx, "admin-state", []byte("xyz"), src)
			require.NoError(t, err)
		}

		writes, err := s.History(ctx, "admin-state", 0)
		require.NoError(t, err)
		require.Len(t, writes, 3)
		assert.Equal(t, int64(3), writes[0].Version)
		assert.Equal(t, "a", writes[0].Source)
		assert.Equal(t, "b", writes[1].Source)
		assert.Equal(t, 3, writes[0].Size)

		writes, err = s.History(ctx, "admin-state", 1)
		require.NoError(t, err)
		assert.Len(t, writes, 1)

		writes, err = s.History(ctx, "missing", 0)
		require.NoError(t, err)
		assert.Empty(t, writes)
	})
}

func TestPut_VisibleAcrossConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a := openTestStore(t, path)
	b := openTestStore(t, path)
	ctx := context.Background()

	_, err := a.Put(ctx, "admin-state", []byte("from-a"), "a")
	require.NoError(t, err)
	rec, err := b.Put(ctx, "admin-state", []byte("from-b"), "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)

	// Last write wins for both readers.
	for _, s := range []*Store{a, b} {
		got, err := s.Get(ctx, "admin-state")
		require.NoError(t, err)
		assert.Equal(t, []byte("from-b"), got.Value)
	}
}
