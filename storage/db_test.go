package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	level, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	bolt, err := NewBoltDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		level.Close()
		bolt.Close()
	})
	return map[string]Database{
		"memory":  NewMemDB(),
		"leveldb": level,
		"bbolt":   bolt,
	}
}

func TestDatabaseGetMissingKey(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)
			ok, err := db.Has([]byte("missing"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDatabasePutGetDelete(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("k"), []byte("v1")))
			got, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v1"), got)

			require.NoError(t, db.Delete([]byte("k")))
			_, err = db.Get([]byte("k"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBatchWritesAtomically(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("stale"), []byte("x")))

			batch := db.NewBatch()
			batch.Put([]byte("a"), []byte("1"))
			batch.Put([]byte("b"), []byte("2"))
			batch.Delete([]byte("stale"))
			require.Equal(t, 3, batch.Len())

			// Nothing is visible before Write.
			ok, err := db.Has([]byte("a"))
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, batch.Write())
			require.Equal(t, 0, batch.Len())

			a, err := db.Get([]byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("1"), a)
			ok, err = db.Has([]byte("stale"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestLevelDBReopenPersistsData(t *testing.T) {
	dir := t.TempDir()
	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("key"), []byte("value")))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()
	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("rocksdb", t.TempDir())
	require.Error(t, err)

	db, err := Open("memory", "")
	require.NoError(t, err)
	require.IsType(t, &MemDB{}, db)
}
