package wallet

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sudo-init-do/peerledger/internal/apperr"
	"github.com/sudo-init-do/peerledger/internal/metrics"
	"github.com/sudo-init-do/peerledger/internal/storage"
)

const (
	defaultEntriesLimit = 50
	maxEntriesLimit     = 200
)

// Service exposes wallet reads and operator deposits.
type Service struct {
	store   storage.Store
	ledger  *Ledger
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewService(store storage.Store, ledger *Ledger, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ledger == nil {
		ledger = NewLedger()
	}
	return &Service{store: store, ledger: ledger, logger: logger, metrics: m}
}

// Deposit credits owner's wallet. Only operators reach this through the admin routes.
func (s *Service) Deposit(ctx context.Context, owner string, amount int64) (storage.Wallet, error) {
	if owner == "" {
		return storage.Wallet{}, apperr.Required("owner")
	}
	var w storage.Wallet
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		w, err = s.ledger.Credit(ctx, tx, owner, amount, "operator")
		return err
	})
	if err != nil {
		return storage.Wallet{}, err
	}
	s.metrics.ObserveDeposit(amount)
	s.logger.Info("wallet deposit", zap.String("owner", owner), zap.Int64("amount", amount))
	return w, nil
}

// Balance returns owner's wallet.
func (s *Service) Balance(ctx context.Context, owner string) (storage.Wallet, error) {
	var w storage.Wallet
	err := s.store.WithinReadTx(ctx, func(tx storage.Tx) error {
		var err error
		w, err = tx.GetWallet(ctx, owner)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("wallet")
		}
		return err
	})
	return w, err
}

// Entries returns owner's journal, newest first.
func (s *Service) Entries(ctx context.Context, owner string, limit int) ([]storage.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultEntriesLimit
	}
	if limit > maxEntriesLimit {
		limit = maxEntriesLimit
	}
	var entries []storage.LedgerEntry
	err := s.store.WithinReadTx(ctx, func(tx storage.Tx) error {
		var err error
		entries, err = tx.ListLedgerEntries(ctx, owner, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []storage.LedgerEntry{}
	}
	return entries, nil
}
