package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelDBBatchPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)

	batch := db1.NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("b"))
	require.Equal(t, 3, batch.Len())
	require.NoError(t, batch.Write())
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	_, err = db2.Get([]byte("b"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDBBatchAndCopies(t *testing.T) {
	db := NewMemDB()
	value := []byte("value")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'X'

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)

	batch := db.NewBatch()
	batch.Delete([]byte("k"))
	batch.Put([]byte("n"), []byte("new"))
	require.NoError(t, batch.Write())

	_, err = db.Get([]byte("k"))
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, db.Len())
}
