// Package trade runs the purchase lifecycle: purchase, completion, dispute and review.
//
// Every operation executes inside one store transaction. Operations that touch more than
// one entity lock the marketplace row first, then the listing or purchase, then profiles,
// then wallets, so concurrent operations always acquire locks in the same order.
package trade

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sudo-init-do/peerledger/internal/alerts"
	"github.com/sudo-init-do/peerledger/internal/apperr"
	"github.com/sudo-init-do/peerledger/internal/listing"
	"github.com/sudo-init-do/peerledger/internal/marketplace"
	"github.com/sudo-init-do/peerledger/internal/metrics"
	"github.com/sudo-init-do/peerledger/internal/storage"
	"github.com/sudo-init-do/peerledger/internal/user"
	"github.com/sudo-init-do/peerledger/internal/validation"
	"github.com/sudo-init-do/peerledger/internal/wallet"
)

// Text bounds, enforced through the validate tags below.
const (
	MaxComment       = 500
	MaxDisputeReason = 500
)

// Transferer moves funds between wallets inside the caller's transaction. A zero amount
// must be a no-op; failures must leave the transaction safe to roll back. Refused
// movements are reported as apperr transfer errors, storage failures as plain errors.
type Transferer interface {
	Transfer(ctx context.Context, tx storage.Tx, from, to string, amount int64, reference string) error
}

// ReviewInput is the caller-supplied part of a review.
type ReviewInput struct {
	Rating         int    `json:"rating" validate:"min=1,max=5"`
	Comment        string `json:"comment" validate:"max=500"`
	IsSellerReview bool   `json:"is_seller_review"`
}

type disputeInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Engine coordinates listings, profiles, the registry and fund movement.
type Engine struct {
	store    storage.Store
	registry *marketplace.Registry
	tracker  *user.Tracker
	funds    Transferer
	notifier alerts.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(store storage.Store, registry *marketplace.Registry, tracker *user.Tracker, funds Transferer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		registry: registry,
		tracker:  tracker,
		funds:    funds,
		notifier: alerts.Nop{},
		logger:   logger,
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock used for purchase, completion and review timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.now = now
}

// SetNotifier configures where lifecycle events are published after commit.
func (e *Engine) SetNotifier(n alerts.Notifier) {
	if n == nil {
		n = alerts.Nop{}
	}
	e.notifier = n
}

func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Purchase sells the listing to buyer. The fund split, purchase record, sale marking and
// counters commit together or not at all.
func (e *Engine) Purchase(ctx context.Context, buyer, listingID string) (storage.Purchase, error) {
	var p storage.Purchase
	err := e.store.WithinTx(ctx, func(tx storage.Tx) error {
		m, err := marketplace.Load(ctx, tx)
		if err != nil {
			return err
		}
		l, err := listing.Load(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if !l.IsActive {
			return apperr.ErrListingNotActive
		}
		if l.IsSold {
			return apperr.ErrAlreadySold
		}
		if l.Seller == buyer {
			return apperr.Forbidden("you cannot purchase your own listing")
		}

		fee, sellerAmount, err := SplitPrice(l.Price, m.FeeRate)
		if err != nil {
			return err
		}
		if _, err := user.Load(ctx, tx, l.Seller); err != nil {
			return err
		}
		if _, err := user.Load(ctx, tx, buyer); err != nil {
			return err
		}

		p = storage.Purchase{
			ID:          uuid.NewString(),
			ListingID:   l.ID,
			Buyer:       buyer,
			Seller:      l.Seller,
			Price:       l.Price,
			Fee:         fee,
			PurchasedAt: e.now().UTC(),
		}
		if err := e.funds.Transfer(ctx, tx, buyer, l.Seller, sellerAmount, p.ID); err != nil {
			return err
		}
		if err := e.funds.Transfer(ctx, tx, buyer, wallet.FeeAccount, fee, p.ID); err != nil {
			return err
		}

		if err := tx.InsertPurchase(ctx, p); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return apperr.ErrDuplicatePurchase
			}
			return err
		}
		l.IsSold = true
		l.Buyer = &buyer
		if err := tx.UpdateListing(ctx, l); err != nil {
			return err
		}
		if err := e.tracker.RecordSale(ctx, tx, l.Seller); err != nil {
			return err
		}
		if err := e.tracker.RecordPurchase(ctx, tx, buyer); err != nil {
			return err
		}
		return e.registry.RecordVolume(ctx, tx, l.Price)
	})
	if err != nil {
		e.fail("purchase", err)
		return storage.Purchase{}, err
	}

	e.metrics.ObservePurchase(p.Price, p.Fee)
	e.logger.Info("purchase committed",
		zap.String("purchase_id", p.ID),
		zap.String("listing_id", p.ListingID),
		zap.String("buyer", p.Buyer),
		zap.String("seller", p.Seller),
		zap.Int64("price", p.Price),
		zap.Int64("fee", p.Fee),
	)
	e.notify(ctx, alerts.Event{
		Type:       alerts.TaskPurchaseCreated,
		PurchaseID: p.ID,
		ListingID:  p.ListingID,
		Buyer:      p.Buyer,
		Seller:     p.Seller,
		Actor:      p.Buyer,
		Price:      p.Price,
		Fee:        p.Fee,
		OccurredAt: p.PurchasedAt,
	})
	return p, nil
}

// Complete marks the purchase completed, unlocking reviews. The buyer or the marketplace
// authority may complete it.
func (e *Engine) Complete(ctx context.Context, actor, purchaseID string) (storage.Purchase, error) {
	var p storage.Purchase
	err := e.store.WithinTx(ctx, func(tx storage.Tx) error {
		m, err := marketplace.Load(ctx, tx)
		if err != nil {
			return err
		}
		p, err = loadPurchase(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		if actor != p.Buyer && actor != m.Authority {
			return apperr.Forbidden("only the buyer or the marketplace authority can complete a purchase")
		}
		if p.IsCompleted {
			return apperr.ErrAlreadyCompleted
		}
		if p.IsDisputed {
			return apperr.ErrDisputed
		}
		completedAt := e.now().UTC()
		p.IsCompleted = true
		p.CompletedAt = &completedAt
		return tx.UpdatePurchase(ctx, p)
	})
	if err != nil {
		e.fail("complete", err)
		return storage.Purchase{}, err
	}

	e.metrics.ObserveCompletion()
	e.logger.Info("purchase completed", zap.String("purchase_id", p.ID), zap.String("actor", actor))
	e.notify(ctx, alerts.Event{
		Type:       alerts.TaskPurchaseCompleted,
		PurchaseID: p.ID,
		ListingID:  p.ListingID,
		Buyer:      p.Buyer,
		Seller:     p.Seller,
		Actor:      actor,
		Price:      p.Price,
		OccurredAt: *p.CompletedAt,
	})
	return p, nil
}

// OpenDispute moves an open purchase to the disputed terminal state. Either participant
// may open it; there is no resolution path.
func (e *Engine) OpenDispute(ctx context.Context, actor, purchaseID, reason string) (storage.Purchase, error) {
	if err := validation.Struct(disputeInput{Reason: reason}); err != nil {
		return storage.Purchase{}, err
	}

	var p storage.Purchase
	err := e.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		p, err = loadPurchase(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		if actor != p.Buyer && actor != p.Seller {
			return apperr.Forbidden("only a participant can dispute a purchase")
		}
		if p.IsCompleted {
			return apperr.ErrAlreadyCompleted
		}
		if p.IsDisputed {
			return apperr.ErrDisputed
		}
		disputedAt := e.now().UTC()
		p.IsDisputed = true
		p.DisputedAt = &disputedAt
		p.DisputeReason = reason
		return tx.UpdatePurchase(ctx, p)
	})
	if err != nil {
		e.fail("dispute", err)
		return storage.Purchase{}, err
	}

	e.metrics.ObserveDispute()
	e.logger.Warn("purchase disputed", zap.String("purchase_id", p.ID), zap.String("actor", actor))
	e.notify(ctx, alerts.Event{
		Type:       alerts.TaskPurchaseDisputed,
		PurchaseID: p.ID,
		ListingID:  p.ListingID,
		Buyer:      p.Buyer,
		Seller:     p.Seller,
		Actor:      actor,
		Reason:     reason,
		OccurredAt: *p.DisputedAt,
	})
	return p, nil
}

// LeaveReview records reviewer's rating of the other participant and folds it into the
// reviewee's reputation. The buyer writes the seller review and the seller writes the
// buyer review; each may do so once per purchase.
func (e *Engine) LeaveReview(ctx context.Context, reviewer, purchaseID string, in ReviewInput) (storage.Review, error) {
	if err := validation.Struct(in); err != nil {
		return storage.Review{}, err
	}

	var r storage.Review
	err := e.store.WithinTx(ctx, func(tx storage.Tx) error {
		p, err := loadPurchase(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		reviewee := p.Buyer
		author := p.Seller
		if in.IsSellerReview {
			reviewee = p.Seller
			author = p.Buyer
		}
		if !p.IsCompleted {
			return apperr.ErrPurchaseNotCompleted
		}
		if reviewer != author {
			return apperr.Forbidden("only the other participant can leave this review")
		}

		r = storage.Review{
			ID:             uuid.NewString(),
			PurchaseID:     p.ID,
			Reviewer:       reviewer,
			Reviewee:       reviewee,
			Rating:         in.Rating,
			Comment:        in.Comment,
			IsSellerReview: in.IsSellerReview,
			CreatedAt:      e.now().UTC(),
		}
		if err := tx.InsertReview(ctx, r); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return apperr.ErrDuplicateReview
			}
			return err
		}
		return e.tracker.ApplyReview(ctx, tx, reviewee, in.Rating)
	})
	if err != nil {
		e.fail("review", err)
		return storage.Review{}, err
	}

	e.metrics.ObserveReview(r.IsSellerReview)
	e.logger.Info("review left",
		zap.String("purchase_id", r.PurchaseID),
		zap.String("reviewer", r.Reviewer),
		zap.String("reviewee", r.Reviewee),
		zap.Int("rating", r.Rating),
	)
	e.notify(ctx, alerts.Event{
		Type:       alerts.TaskReviewLeft,
		PurchaseID: r.PurchaseID,
		Actor:      r.Reviewer,
		Rating:     r.Rating,
		OccurredAt: r.CreatedAt,
	})
	return r, nil
}

// GetPurchase returns the purchase with id.
func (e *Engine) GetPurchase(ctx context.Context, id string) (storage.Purchase, error) {
	var p storage.Purchase
	err := e.store.WithinReadTx(ctx, func(tx storage.Tx) error {
		var err error
		p, err = loadPurchase(ctx, tx, id)
		return err
	})
	return p, err
}

func loadPurchase(ctx context.Context, tx storage.Tx, id string) (storage.Purchase, error) {
	p, err := tx.GetPurchase(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Purchase{}, apperr.NotFound("purchase")
	}
	return p, err
}

func (e *Engine) fail(op string, err error) {
	e.metrics.ObserveFailure(op, string(apperr.CodeOf(err)))
	if apperr.KindOf(err) == apperr.KindInternal {
		e.logger.Error(op+" failed", zap.Error(err))
	}
}

func (e *Engine) notify(ctx context.Context, ev alerts.Event) {
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.logger.Warn("notification not enqueued", zap.String("type", ev.Type), zap.Error(err))
	}
}
