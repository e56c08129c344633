package navstore

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRecordAndHistory(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "nav.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i, assets := range []int64{100_000_000, 100_100_000, 101_000_000} {
		_, err := store.Record(ctx, Snapshot{
			Vault:       "senior",
			TakenAt:     int64(1_700_000_000 + i*86_400),
			TotalAssets: big.NewInt(assets),
			TotalSupply: big.NewInt(100_000_000),
			Liquidity:   big.NewInt(90_000_000),
		})
		require.NoError(t, err)
	}
	_, err = store.Record(ctx, Snapshot{Vault: "junior", TakenAt: 1_700_000_000})
	require.NoError(t, err)

	history, err := store.History(ctx, "senior", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, int64(1_700_172_800), history[0].TakenAt)
	require.Equal(t, 0, history[0].TotalAssets.Cmp(big.NewInt(101_000_000)))
	require.Equal(t, 0, history[0].SharePrice.Sign())
	require.NotEqual(t, uuid.Nil, history[0].ID)

	all, err := store.History(ctx, "senior", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRecordKeepsExplicitID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "nav.db"))
	require.NoError(t, err)
	defer store.Close()

	id := uuid.New()
	got, err := store.Record(context.Background(), Snapshot{ID: id, Vault: "senior"})
	require.NoError(t, err)
	require.Equal(t, id, got)
	_, err = store.Record(context.Background(), Snapshot{ID: id, Vault: "senior"})
	require.Error(t, err)
}
