package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "tasks/t1", []byte("payload")))
	data, err := s.Load(ctx, "tasks/t1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestLoadMissingKeyReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectsOversizedData(t *testing.T) {
	s, err := New(Config{Backend: NewMemoryBackend(), KeyPrefix: "x:", MaxSize: 4})
	require.NoError(t, err)

	err = s.Save(context.Background(), "k", []byte("too-large"))
	require.Error(t, err)
}

func TestSaveIfAbsentOnlySetsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.SaveIfAbsent(ctx, "lock", []byte("node-a"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SaveIfAbsent(ctx, "lock", []byte("node-b"))
	require.NoError(t, err)
	assert.False(t, ok, "a second claim on an already-held key must fail")

	data, _ := s.Load(ctx, "lock")
	assert.Equal(t, []byte("node-a"), data, "the original claim must not be overwritten")
}

func TestCompareAndSwapOnlySucceedsOnMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "k", []byte("v1")))

	ok, err := s.CompareAndSwap(ctx, "k", []byte("wrong"), []byte("v2"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, "k", []byte("v1"), []byte("v2"))
	require.NoError(t, err)
	assert.True(t, ok)

	data, _ := s.Load(ctx, "k")
	assert.Equal(t, []byte("v2"), data)
}

func TestKeysStripsPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "tasks/a", []byte("1")))
	require.NoError(t, s.Save(ctx, "tasks/b", []byte("2")))

	keys, err := s.Keys(ctx, "tasks/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tasks/a", "tasks/b"}, keys)
}

func TestDeleteRemovesKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
