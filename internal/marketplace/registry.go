// Package marketplace holds the singleton marketplace configuration and its aggregate
// counters.
package marketplace

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sudo-init-do/peerledger/internal/apperr"
	"github.com/sudo-init-do/peerledger/internal/storage"
	"github.com/sudo-init-do/peerledger/internal/validation"
	"github.com/sudo-init-do/peerledger/internal/wallet"
)

// MaxFeeRate is 100% expressed in basis points.
const MaxFeeRate = 10_000

type initInput struct {
	Authority string `json:"authority" validate:"required"`
	FeeRate   int    `json:"fee_rate" validate:"min=0,max=10000"`
}

// Registry owns the marketplace record.
type Registry struct {
	store  storage.Store
	ledger *wallet.Ledger
	logger *zap.Logger
	now    func() time.Time
}

func NewRegistry(store storage.Store, ledger *wallet.Ledger, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ledger == nil {
		ledger = wallet.NewLedger()
	}
	return &Registry{store: store, ledger: ledger, logger: logger, now: time.Now}
}

// SetNowFunc overrides the clock used for creation timestamps.
func (r *Registry) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.now = now
}

// Initialize creates the marketplace with zero counters and opens the fee account wallet.
func (r *Registry) Initialize(ctx context.Context, authority string, feeRate int) (storage.Marketplace, error) {
	if err := validation.Struct(initInput{Authority: authority, FeeRate: feeRate}); err != nil {
		return storage.Marketplace{}, err
	}

	m := storage.Marketplace{
		Authority: authority,
		FeeRate:   feeRate,
		CreatedAt: r.now().UTC(),
	}
	err := r.store.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.GetMarketplace(ctx)
		if err == nil {
			return apperr.ErrAlreadyInitialized
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := tx.InsertMarketplace(ctx, m); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return apperr.ErrAlreadyInitialized
			}
			return err
		}
		return r.ledger.Open(ctx, tx, wallet.FeeAccount)
	})
	if err != nil {
		return storage.Marketplace{}, err
	}
	r.logger.Info("marketplace initialized", zap.String("authority", authority), zap.Int("fee_rate_bps", feeRate))
	return m, nil
}

// Get returns the marketplace record.
func (r *Registry) Get(ctx context.Context) (storage.Marketplace, error) {
	var m storage.Marketplace
	err := r.store.WithinReadTx(ctx, func(tx storage.Tx) error {
		var err error
		m, err = Load(ctx, tx)
		return err
	})
	return m, err
}

// Load reads and locks the marketplace inside tx.
func Load(ctx context.Context, tx storage.Tx) (storage.Marketplace, error) {
	m, err := tx.GetMarketplace(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Marketplace{}, apperr.NotFound("marketplace")
	}
	return m, err
}

// RecordNewUser increments total_users.
func (r *Registry) RecordNewUser(ctx context.Context, tx storage.Tx) error {
	return update(ctx, tx, func(m *storage.Marketplace) error {
		n, err := CheckedAdd(m.TotalUsers, 1)
		m.TotalUsers = n
		return err
	})
}

// RecordNewListing increments total_listings.
func (r *Registry) RecordNewListing(ctx context.Context, tx storage.Tx) error {
	return update(ctx, tx, func(m *storage.Marketplace) error {
		n, err := CheckedAdd(m.TotalListings, 1)
		m.TotalListings = n
		return err
	})
}

// RecordVolume adds amount to total_volume.
func (r *Registry) RecordVolume(ctx context.Context, tx storage.Tx, amount int64) error {
	if amount < 0 {
		return apperr.ErrInvalidAmount
	}
	return update(ctx, tx, func(m *storage.Marketplace) error {
		n, err := CheckedAdd(m.TotalVolume, amount)
		m.TotalVolume = n
		return err
	})
}

func update(ctx context.Context, tx storage.Tx, fn func(m *storage.Marketplace) error) error {
	m, err := Load(ctx, tx)
	if err != nil {
		return err
	}
	if err := fn(&m); err != nil {
		return err
	}
	return tx.UpdateMarketplace(ctx, m)
}

// CheckedAdd adds two non-negative counters, failing instead of wrapping.
func CheckedAdd(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return a, apperr.ErrArithmeticOverflow
	}
	return a + b, nil
}
