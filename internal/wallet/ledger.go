package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/peerledger/internal/apperr"
	"github.com/sudo-init-do/peerledger/internal/storage"
)

// FeeAccount owns the wallet that collects marketplace fees.
const FeeAccount = "marketplace:fees"

// ErrInsufficientFunds is returned when the source wallet cannot cover a transfer.
var ErrInsufficientFunds = apperr.ErrInsufficientFunds

// Ledger moves balances between wallets inside a caller-owned transaction. Every movement
// is journaled as a debit and a credit leg.
type Ledger struct {
	now func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// SetNowFunc overrides the clock used for journal timestamps.
func (l *Ledger) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	l.now = now
}

// Open creates an empty wallet for owner unless one already exists.
func (l *Ledger) Open(ctx context.Context, tx storage.Tx, owner string) error {
	_, err := tx.GetWallet(ctx, owner)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	ts := l.now().UTC()
	return tx.InsertWallet(ctx, storage.Wallet{Owner: owner, CreatedAt: ts, UpdatedAt: ts})
}

// Transfer moves amount from one wallet to another. A zero amount is a no-op. Missing
// wallets and short balances are transfer errors; storage failures are returned as is.
func (l *Ledger) Transfer(ctx context.Context, tx storage.Tx, from, to string, amount int64, reference string) error {
	if amount < 0 {
		return apperr.Transfer(apperr.ErrInvalidAmount)
	}
	if amount == 0 {
		return nil
	}
	if from == to {
		return apperr.Transfer(fmt.Errorf("source and destination wallet are the same"))
	}

	src, err := l.load(ctx, tx, from)
	if err != nil {
		return err
	}
	dst, err := l.load(ctx, tx, to)
	if err != nil {
		return err
	}
	if src.Balance < amount {
		return ErrInsufficientFunds
	}
	if dst.Balance > math.MaxInt64-amount {
		return apperr.ErrArithmeticOverflow
	}

	ts := l.now().UTC()
	src.Balance -= amount
	src.UpdatedAt = ts
	dst.Balance += amount
	dst.UpdatedAt = ts
	if err := tx.UpdateWallet(ctx, src); err != nil {
		return fmt.Errorf("debit wallet %s: %w", from, err)
	}
	if err := tx.UpdateWallet(ctx, dst); err != nil {
		return fmt.Errorf("credit wallet %s: %w", to, err)
	}

	if err := l.journal(ctx, tx, from, to, amount, storage.DirectionDebit, reference, ts); err != nil {
		return err
	}
	return l.journal(ctx, tx, to, from, amount, storage.DirectionCredit, reference, ts)
}

// Credit adds amount to owner's wallet from outside the ledger.
func (l *Ledger) Credit(ctx context.Context, tx storage.Tx, owner string, amount int64, source string) (storage.Wallet, error) {
	if amount <= 0 {
		return storage.Wallet{}, apperr.ErrInvalidAmount
	}
	w, err := tx.GetWallet(ctx, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Wallet{}, apperr.NotFound("wallet")
	}
	if err != nil {
		return storage.Wallet{}, err
	}
	if w.Balance > math.MaxInt64-amount {
		return storage.Wallet{}, apperr.ErrArithmeticOverflow
	}
	ts := l.now().UTC()
	w.Balance += amount
	w.UpdatedAt = ts
	if err := tx.UpdateWallet(ctx, w); err != nil {
		return storage.Wallet{}, err
	}
	if err := l.journal(ctx, tx, owner, source, amount, storage.DirectionCredit, "deposit", ts); err != nil {
		return storage.Wallet{}, err
	}
	return w, nil
}

func (l *Ledger) load(ctx context.Context, tx storage.Tx, owner string) (storage.Wallet, error) {
	w, err := tx.GetWallet(ctx, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Wallet{}, apperr.Transfer(fmt.Errorf("wallet %s not found", owner))
	}
	if err != nil {
		return storage.Wallet{}, fmt.Errorf("load wallet %s: %w", owner, err)
	}
	return w, nil
}

func (l *Ledger) journal(ctx context.Context, tx storage.Tx, owner, counterparty string, amount int64,
	dir storage.Direction, reference string, ts time.Time) error {
	err := tx.InsertLedgerEntry(ctx, storage.LedgerEntry{
		ID:           uuid.NewString(),
		Owner:        owner,
		Amount:       amount,
		Direction:    dir,
		Counterparty: counterparty,
		Reference:    reference,
		CreatedAt:    ts,
	})
	if err != nil {
		return fmt.Errorf("journal %s leg: %w", dir, err)
	}
	return nil
}
