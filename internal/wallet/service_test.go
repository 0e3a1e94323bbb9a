package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/peerledger/internal/apperr"
	"github.com/sudo-init-do/peerledger/internal/metrics"
	"github.com/sudo-init-do/peerledger/internal/testkit"
)

func TestServiceDepositBalanceAndEntries(t *testing.T) {
	store := testkit.OpenStore(t)
	ledger := NewLedger()
	seedWallets(t, store, ledger, map[string]int64{"alice": 0})
	svc := NewService(store, ledger, nil, metrics.New())
	ctx := context.Background()

	w, err := svc.Deposit(ctx, "alice", 2_500)
	require.NoError(t, err)
	assert.Equal(t, int64(2_500), w.Balance)

	got, err := svc.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2_500), got.Balance)

	entries, err := svc.Entries(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "operator", entries[0].Counterparty)
}

func TestServiceDepositValidation(t *testing.T) {
	store := testkit.OpenStore(t)
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "", 10)
	assert.ErrorIs(t, err, apperr.ErrFieldRequired)

	_, err = svc.Deposit(ctx, "alice", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidAmount)

	_, err = svc.Deposit(ctx, "ghost", 10)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestServiceBalanceMissingWallet(t *testing.T) {
	svc := NewService(testkit.OpenStore(t), nil, nil, nil)

	_, err := svc.Balance(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	entries, err := svc.Entries(context.Background(), "ghost", 500)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
