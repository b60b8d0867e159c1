package settlementd

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExportAuthorizations(t *testing.T) {
	store, err := NewStore(setupTestDB(t), 8)
	require.NoError(t, err)
	ctx := context.Background()
	account := newAccount(t)
	for _, id := range []uint64{3, 8} {
		_, _, err := store.RecordCompletion(ctx, account, id, "verifier")
		require.NoError(t, err)
	}
	sign := func([]uint64) ([]byte, [32]byte, error) { return []byte{0x01, 0x02}, [32]byte{0xAB}, nil }
	issued, replayed, err := store.IssueAuthorization(ctx, account, 0, sign)
	require.NoError(t, err)
	require.False(t, replayed)

	report, err := ExportAuthorizations(ctx, store, time.Now().Add(-time.Hour), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 1, report.Count)

	raw, err := os.ReadFile(report.CSVPath)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, auditHeader, records[0])
	require.Equal(t, issued.ID.String(), records[1][0])
	require.Equal(t, "3;8", records[1][3])
	require.Equal(t, "0x0102", records[1][6])

	parquetBytes, err := os.ReadFile(report.ParquetPath)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(parquetBytes, []byte("PAR1")))

	later, err := ExportAuthorizations(ctx, store, time.Now().Add(time.Hour), t.TempDir())
	require.NoError(t, err)
	require.Zero(t, later.Count)
}
