package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"questchain/storage"
)

func TestEnsureStateVersion(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)

	_, ok, err := m.StateVersion()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.EnsureStateVersion(false))
	require.Zero(t, m.Pending())

	reopened := NewManager(db)
	version, ok, err := reopened.StateVersion()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateVersion, version)
	require.NoError(t, reopened.EnsureStateVersion(false))

	require.NoError(t, reopened.SetStateVersion(StateVersion+1))
	require.NoError(t, reopened.Commit())
	require.ErrorIs(t, NewManager(db).EnsureStateVersion(false), ErrStateVersionMismatch)
	require.NoError(t, NewManager(db).EnsureStateVersion(true))
}
