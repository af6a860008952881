package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStoreBasics(t *testing.T) {
	store := NewMockStore(RecordColumnFamilies()...)
	defer store.Close()

	require.NoError(t, store.Put(CFDocuments, []byte("a"), []byte("1")))

	val, err := store.Get(CFDocuments, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), val)

	_, err = store.Get(CFDocuments, []byte("b"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = store.Get("nope", []byte("a"))
	assert.ErrorIs(t, err, ErrColumnFamilyNotFound)

	ok, err := store.Has(CFDocuments, []byte("a"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(CFDocuments, []byte("a")))
	require.NoError(t, store.Delete(CFDocuments, []byte("a")), "delete is idempotent")
	assert.Zero(t, store.Len(CFDocuments))
}

func TestMockStoreColumnFamilyIsolation(t *testing.T) {
	store := NewMockStore(RecordColumnFamilies()...)
	defer store.Close()

	require.NoError(t, store.Put(CFDocuments, []byte("k"), []byte("doc")))
	require.NoError(t, store.Put(CFScratch, []byte("k"), []byte("scratch")))

	val, err := store.Get(CFDocuments, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), val)

	val, err = store.Get(CFScratch, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("scratch"), val)
}

func TestMockIteratorOrderAndSeek(t *testing.T) {
	store := NewMockStore(RecordColumnFamilies()...)
	defer store.Close()

	for _, k := range []string{"c", "a", "b", "e", "d"} {
		require.NoError(t, store.Put(CFIndex, []byte(k), []byte(k)))
	}

	it, err := store.NewIterator(CFIndex)
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, keys)

	it.Seek([]byte("c"))
	require.True(t, it.Valid())
	assert.Equal(t, []byte("c"), it.Key())

	it.Seek([]byte("cc"))
	require.True(t, it.Valid())
	assert.Equal(t, []byte("d"), it.Key(), "seek lands on the first key >= target")
}

func TestMockBatchAppliesInOrder(t *testing.T) {
	store := NewMockStore(RecordColumnFamilies()...)
	defer store.Close()

	require.NoError(t, store.Put(CFIndex, []byte("k"), []byte("old")))

	batch := store.NewBatch()
	defer batch.Close()

	// Delete then re-put of the same key within one batch: the put wins,
	// which the docstore's index maintenance relies on.
	require.NoError(t, batch.Delete(CFIndex, []byte("k")))
	require.NoError(t, batch.Put(CFIndex, []byte("k"), []byte("new")))
	require.NoError(t, batch.Put(CFDocuments, []byte("d"), []byte("doc")))
	assert.Equal(t, 3, batch.Count())

	require.NoError(t, batch.Commit())

	val, err := store.Get(CFIndex, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), val)

	val, err = store.Get(CFDocuments, []byte("d"))
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), val)
}

func TestMockStoreFailWith(t *testing.T) {
	store := NewMockStore(RecordColumnFamilies()...)
	defer store.Close()

	boom := errors.New("disk gone")
	store.FailWith(boom)

	assert.ErrorIs(t, store.Put(CFDocuments, []byte("a"), nil), boom)
	_, err := store.Get(CFDocuments, []byte("a"))
	assert.ErrorIs(t, err, boom)

	batch := store.NewBatch()
	require.NoError(t, batch.Put(CFDocuments, []byte("a"), []byte("1")))
	assert.ErrorIs(t, batch.Commit(), boom)
	batch.Close()

	store.FailWith(nil)
	assert.NoError(t, store.Put(CFDocuments, []byte("a"), []byte("1")))
}

func TestMockStoreClosed(t *testing.T) {
	store := NewMockStore()
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Put(DefaultColumnFamily, []byte("a"), nil), ErrClosed)
	_, err := store.Get(DefaultColumnFamily, []byte("a"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.Close(), ErrClosed)
}
