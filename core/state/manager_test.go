package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"creditvault/crypto"
	"creditvault/storage"
)

type record struct {
	Name   string
	Amount *big.Int
	Flag   bool
}

func TestManagerSnapshotRevert(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)

	require.NoError(t, m.KVPut([]byte("a"), &record{Name: "first", Amount: big.NewInt(1)}))
	snap := m.Snapshot()
	require.NoError(t, m.KVPut([]byte("a"), &record{Name: "second", Amount: big.NewInt(2)}))
	require.NoError(t, m.KVPut([]byte("b"), &record{Name: "other", Amount: big.NewInt(3)}))

	m.RevertToSnapshot(snap)

	var got record
	ok, err := m.KVGet([]byte("a"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "first", got.Name)
	require.Equal(t, int64(1), got.Amount.Int64())

	ok, err = m.KVGet([]byte("b"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManagerCommitPersists(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	require.NoError(t, m.KVPut([]byte("a"), &record{Name: "x", Amount: big.NewInt(5), Flag: true}))
	require.Equal(t, 0, db.Len())
	require.NoError(t, m.Commit())
	require.Equal(t, 0, m.Dirty())
	require.Equal(t, 1, db.Len())

	reopened := NewManager(db)
	var got record
	ok, err := reopened.KVGet([]byte("a"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Flag)

	require.NoError(t, reopened.KVDelete([]byte("a")))
	ok, err = reopened.KVGet([]byte("a"), nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, reopened.Commit())
	require.Equal(t, 0, db.Len())
}

func TestManagerDiscard(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.KVPut([]byte("a"), uint64(7)))
	m.Discard()
	ok, err := m.KVGet([]byte("a"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVAppendAndList(t *testing.T) {
	m := NewManager(nil)
	var list [][]byte
	require.NoError(t, m.KVGetList([]byte("idx"), &list))
	require.Empty(t, list)
	require.NoError(t, m.KVAppend([]byte("idx"), []byte{1}))
	require.NoError(t, m.KVAppend([]byte("idx"), []byte{1}))
	require.NoError(t, m.KVAppend([]byte("idx"), []byte{2}))
	require.NoError(t, m.KVGetList([]byte("idx"), &list))
	require.Len(t, list, 2)
}

func TestLedgerTransfer(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.RegisterToken("usdc", "USD Coin", 6))
	require.Error(t, m.RegisterToken("USDC", "dup", 6))
	require.True(t, m.TokenExists("USDC"))

	ledger := NewLedger(m)
	alice := crypto.LabelAddress(crypto.AccountPrefix, "alice")
	bob := crypto.LabelAddress(crypto.AccountPrefix, "bob")

	require.NoError(t, ledger.Mint("USDC", alice, big.NewInt(100)))
	require.NoError(t, ledger.Transfer("USDC", alice, bob, big.NewInt(40)))

	bal, err := ledger.Balance("USDC", alice)
	require.NoError(t, err)
	require.Equal(t, int64(60), bal.Int64())
	bal, err = ledger.Balance("usdc", bob)
	require.NoError(t, err)
	require.Equal(t, int64(40), bal.Int64())

	err = ledger.Transfer("USDC", bob, alice, big.NewInt(41))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	require.Error(t, ledger.Mint("DAI", alice, big.NewInt(1)))
}

func TestPauses(t *testing.T) {
	m := NewManager(nil)
	require.False(t, m.IsPaused("portfolio"))
	require.NoError(t, m.SetPaused("Portfolio", true))
	require.True(t, m.IsPaused("portfolio"))
	require.NoError(t, m.SetPaused("portfolio", false))
	require.False(t, m.IsPaused("portfolio"))
}
