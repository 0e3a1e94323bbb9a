// Package user tracks user profiles, verification and reputation.
package user

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sudo-init-do/peerledger/internal/apperr"
	"github.com/sudo-init-do/peerledger/internal/marketplace"
	"github.com/sudo-init-do/peerledger/internal/metrics"
	"github.com/sudo-init-do/peerledger/internal/storage"
	"github.com/sudo-init-do/peerledger/internal/validation"
	"github.com/sudo-init-do/peerledger/internal/wallet"
)

// Profile field bounds, enforced through the validate tags below.
const (
	MaxDisplayName = 50
	MaxBio         = 500
	MaxLocation    = 100
	MaxAttestation = 200

	defaultReviewLimit = 10
	maxReviewLimit     = 50
)

// ProfileInput is the caller-supplied part of a profile.
type ProfileInput struct {
	DisplayName string `json:"display_name" validate:"required,max=50"`
	Bio         string `json:"bio" validate:"max=500"`
	Location    string `json:"location" validate:"max=100"`
}

type verificationInput struct {
	Attestation string `json:"attestation" validate:"required,max=200"`
}

// Tracker owns user profiles and their reputation counters.
type Tracker struct {
	store    storage.Store
	registry *marketplace.Registry
	ledger   *wallet.Ledger
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewTracker(store storage.Store, registry *marketplace.Registry, ledger *wallet.Ledger, logger *zap.Logger, m *metrics.Metrics) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ledger == nil {
		ledger = wallet.NewLedger()
	}
	return &Tracker{store: store, registry: registry, ledger: ledger, logger: logger, metrics: m, now: time.Now}
}

// SetNowFunc overrides the clock used for creation timestamps.
func (t *Tracker) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	t.now = now
}

// CreateProfile registers identity with zero reputation and opens its wallet.
func (t *Tracker) CreateProfile(ctx context.Context, identity string, in ProfileInput) (storage.Profile, error) {
	if identity == "" {
		return storage.Profile{}, apperr.Required("identity")
	}
	if err := validation.Struct(in); err != nil {
		return storage.Profile{}, err
	}

	p := storage.Profile{
		Identity:    identity,
		DisplayName: in.DisplayName,
		Bio:         in.Bio,
		Location:    in.Location,
		CreatedAt:   t.now().UTC(),
	}
	err := t.store.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := marketplace.Load(ctx, tx); err != nil {
			return err
		}
		_, err := tx.GetProfile(ctx, identity)
		if err == nil {
			return apperr.ErrProfileExists
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := tx.InsertProfile(ctx, p); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return apperr.ErrProfileExists
			}
			return err
		}
		if err := t.ledger.Open(ctx, tx, identity); err != nil {
			return err
		}
		return t.registry.RecordNewUser(ctx, tx)
	})
	if err != nil {
		return storage.Profile{}, err
	}
	t.metrics.ObserveProfile()
	t.logger.Info("profile created", zap.String("identity", identity))
	return p, nil
}

// UpdateProfile replaces the non-empty fields of in on the actor's own profile. The merged
// profile must satisfy the same bounds as a new one.
func (t *Tracker) UpdateProfile(ctx context.Context, actor string, in ProfileInput) (storage.Profile, error) {
	var p storage.Profile
	err := t.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		p, err = Load(ctx, tx, actor)
		if err != nil {
			return err
		}
		if in.DisplayName != "" {
			p.DisplayName = in.DisplayName
		}
		if in.Bio != "" {
			p.Bio = in.Bio
		}
		if in.Location != "" {
			p.Location = in.Location
		}
		merged := ProfileInput{DisplayName: p.DisplayName, Bio: p.Bio, Location: p.Location}
		if err := validation.Struct(merged); err != nil {
			return err
		}
		return tx.UpdateProfile(ctx, p)
	})
	if err != nil {
		return storage.Profile{}, err
	}
	return p, nil
}

// ApplyVerification marks identity verified with the given attestation. Only the
// identity itself may do so; repeating the call replaces the attestation.
func (t *Tracker) ApplyVerification(ctx context.Context, actor, identity, attestation string) (storage.Profile, error) {
	if actor != identity {
		return storage.Profile{}, apperr.Forbidden("only the profile owner can update verification")
	}
	if err := validation.Struct(verificationInput{Attestation: attestation}); err != nil {
		return storage.Profile{}, err
	}

	var p storage.Profile
	err := t.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		p, err = Load(ctx, tx, identity)
		if err != nil {
			return err
		}
		p.IsVerified = true
		p.VerificationAttestation = &attestation
		return tx.UpdateProfile(ctx, p)
	})
	if err != nil {
		return storage.Profile{}, err
	}
	t.logger.Info("profile verified", zap.String("identity", identity))
	return p, nil
}

// Get returns the profile of identity.
func (t *Tracker) Get(ctx context.Context, identity string) (storage.Profile, error) {
	var p storage.Profile
	err := t.store.WithinReadTx(ctx, func(tx storage.Tx) error {
		var err error
		p, err = Load(ctx, tx, identity)
		return err
	})
	return p, err
}

// ListReviews pages through the reviews received by identity, newest first. Pages start at 1.
func (t *Tracker) ListReviews(ctx context.Context, identity string, page, limit int) ([]storage.Review, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultReviewLimit
	}
	if limit > maxReviewLimit {
		limit = maxReviewLimit
	}
	offset := (page - 1) * limit

	var reviews []storage.Review
	err := t.store.WithinReadTx(ctx, func(tx storage.Tx) error {
		if _, err := Load(ctx, tx, identity); err != nil {
			return err
		}
		var err error
		reviews, err = tx.ListReviews(ctx, identity, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []storage.Review{}
	}
	return reviews, nil
}

// Load reads and locks the profile of identity inside tx.
func Load(ctx context.Context, tx storage.Tx, identity string) (storage.Profile, error) {
	p, err := tx.GetProfile(ctx, identity)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Profile{}, apperr.NotFound("profile")
	}
	return p, err
}

// RecordSale increments the seller's total_sales.
func (t *Tracker) RecordSale(ctx context.Context, tx storage.Tx, seller string) error {
	return t.update(ctx, tx, seller, func(p *storage.Profile) error {
		n, err := marketplace.CheckedAdd(p.TotalSales, 1)
		p.TotalSales = n
		return err
	})
}

// RecordPurchase increments the buyer's total_purchases.
func (t *Tracker) RecordPurchase(ctx context.Context, tx storage.Tx, buyer string) error {
	return t.update(ctx, tx, buyer, func(p *storage.Profile) error {
		n, err := marketplace.CheckedAdd(p.TotalPurchases, 1)
		p.TotalPurchases = n
		return err
	})
}

// ApplyReview folds rating into the reviewee's running mean. The row lock taken by Load
// serializes concurrent reviews of the same profile.
func (t *Tracker) ApplyReview(ctx context.Context, tx storage.Tx, reviewee string, rating int) error {
	if rating < 1 || rating > 5 {
		return apperr.ErrInvalidRating
	}
	return t.update(ctx, tx, reviewee, func(p *storage.Profile) error {
		n, err := marketplace.CheckedAdd(p.TotalReviews, 1)
		if err != nil {
			return err
		}
		sum, err := marketplace.CheckedAdd(p.RatingSum, int64(rating))
		if err != nil {
			return err
		}
		p.ReputationScore = NextScore(p.ReputationScore, p.TotalReviews, rating)
		p.TotalReviews = n
		p.RatingSum = sum
		return nil
	})
}

func (t *Tracker) update(ctx context.Context, tx storage.Tx, identity string, fn func(p *storage.Profile) error) error {
	p, err := Load(ctx, tx, identity)
	if err != nil {
		return err
	}
	if err := fn(&p); err != nil {
		return err
	}
	return tx.UpdateProfile(ctx, p)
}
