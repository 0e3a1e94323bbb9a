package wallet

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/peerledger/internal/apperr"
	"github.com/sudo-init-do/peerledger/internal/storage"
	"github.com/sudo-init-do/peerledger/internal/testkit"
)

func seedWallets(t *testing.T, store storage.Store, ledger *Ledger, balances map[string]int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.WithinTx(ctx, func(tx storage.Tx) error {
		for owner, balance := range balances {
			if err := ledger.Open(ctx, tx, owner); err != nil {
				return err
			}
			if balance > 0 {
				if _, err := ledger.Credit(ctx, tx, owner, balance, "seed"); err != nil {
					return err
				}
			}
		}
		return nil
	}))
}

func balanceOf(t *testing.T, store storage.Store, owner string) int64 {
	t.Helper()
	ctx := context.Background()
	var w storage.Wallet
	require.NoError(t, store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		w, err = tx.GetWallet(ctx, owner)
		return err
	}))
	return w.Balance
}

func TestTransferMovesBalanceAndJournalsBothLegs(t *testing.T) {
	store := testkit.OpenStore(t)
	ledger := NewLedger()
	fixed := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	ledger.SetNowFunc(func() time.Time { return fixed })
	seedWallets(t, store, ledger, map[string]int64{"alice": 1_000, "bob": 0})

	ctx := context.Background()
	require.NoError(t, store.WithinTx(ctx, func(tx storage.Tx) error {
		return ledger.Transfer(ctx, tx, "alice", "bob", 400, "purchase-1")
	}))

	assert.Equal(t, int64(600), balanceOf(t, store, "alice"))
	assert.Equal(t, int64(400), balanceOf(t, store, "bob"))

	require.NoError(t, store.WithinTx(ctx, func(tx storage.Tx) error {
		bobEntries, err := tx.ListLedgerEntries(ctx, "bob", 10)
		require.NoError(t, err)
		require.Len(t, bobEntries, 1)
		assert.Equal(t, storage.DirectionCredit, bobEntries[0].Direction)
		assert.Equal(t, "alice", bobEntries[0].Counterparty)
		assert.Equal(t, "purchase-1", bobEntries[0].Reference)
		assert.True(t, fixed.Equal(bobEntries[0].CreatedAt))

		aliceEntries, err := tx.ListLedgerEntries(ctx, "alice", 10)
		require.NoError(t, err)
		require.Len(t, aliceEntries, 2, "seed credit plus the debit leg")
		assert.Equal(t, storage.DirectionDebit, aliceEntries[0].Direction)
		return nil
	}))
}

func TestTransferZeroAmountIsNoop(t *testing.T) {
	store := testkit.OpenStore(t)
	ledger := NewLedger()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		return ledger.Transfer(ctx, tx, "nobody", "nowhere", 0, "noop")
	})
	assert.NoError(t, err)
}

func TestTransferInsufficientFunds(t *testing.T) {
	store := testkit.OpenStore(t)
	ledger := NewLedger()
	seedWallets(t, store, ledger, map[string]int64{"alice": 10, "bob": 0})

	ctx := context.Background()
	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		return ledger.Transfer(ctx, tx, "alice", "bob", 11, "too-much")
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, apperr.KindTransfer, apperr.KindOf(err))
	assert.Equal(t, int64(10), balanceOf(t, store, "alice"))
}

func TestTransferMissingWalletIsTransferError(t *testing.T) {
	store := testkit.OpenStore(t)
	ledger := NewLedger()
	seedWallets(t, store, ledger, map[string]int64{"alice": 10})

	ctx := context.Background()
	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		return ledger.Transfer(ctx, tx, "alice", "ghost", 5, "ref")
	})
	require.ErrorIs(t, err, apperr.ErrTransferFailed)
	assert.Equal(t, int64(10), balanceOf(t, store, "alice"))
}

func TestTransferRejectsNegativeAndSelf(t *testing.T) {
	store := testkit.OpenStore(t)
	ledger := NewLedger()
	seedWallets(t, store, ledger, map[string]int64{"alice": 10})
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		return ledger.Transfer(ctx, tx, "alice", "bob", -1, "ref")
	})
	assert.Equal(t, apperr.KindTransfer, apperr.KindOf(err))

	err = store.WithinTx(ctx, func(tx storage.Tx) error {
		return ledger.Transfer(ctx, tx, "alice", "alice", 1, "ref")
	})
	assert.ErrorIs(t, err, apperr.ErrTransferFailed)
}

func TestCreditOverflow(t *testing.T) {
	store := testkit.OpenStore(t)
	ledger := NewLedger()
	seedWallets(t, store, ledger, map[string]int64{"whale": math.MaxInt64 - 1})

	ctx := context.Background()
	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := ledger.Credit(ctx, tx, "whale", 2, "seed")
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrArithmeticOverflow)
}

func TestOpenIsIdempotent(t *testing.T) {
	store := testkit.OpenStore(t)
	ledger := NewLedger()
	seedWallets(t, store, ledger, map[string]int64{"alice": 7})

	ctx := context.Background()
	require.NoError(t, store.WithinTx(ctx, func(tx storage.Tx) error {
		return ledger.Open(ctx, tx, "alice")
	}))
	assert.Equal(t, int64(7), balanceOf(t, store, "alice"))
}

// unreachableTx fails every wallet read the way a dropped connection would.
type unreachableTx struct {
	storage.Tx
}

var errConnLost = errors.New("conn closed")

func (unreachableTx) GetWallet(context.Context, string) (storage.Wallet, error) {
	return storage.Wallet{}, errConnLost
}

func TestTransferStorageFailureIsNotTransferError(t *testing.T) {
	store := testkit.OpenStore(t)
	ledger := NewLedger()
	seedWallets(t, store, ledger, map[string]int64{"alice": 10, "bob": 0})

	ctx := context.Background()
	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		return ledger.Transfer(ctx, unreachableTx{tx}, "alice", "bob", 5, "ref")
	})
	require.ErrorIs(t, err, errConnLost)
	assert.NotErrorIs(t, err, apperr.ErrTransferFailed)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, 500, apperr.HTTPStatus(err))
	assert.Equal(t, int64(10), balanceOf(t, store, "alice"))
}
