// Package listing manages seller listings.
package listing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sudo-init-do/peerledger/internal/apperr"
	"github.com/sudo-init-do/peerledger/internal/marketplace"
	"github.com/sudo-init-do/peerledger/internal/metrics"
	"github.com/sudo-init-do/peerledger/internal/storage"
	"github.com/sudo-init-do/peerledger/internal/user"
	"github.com/sudo-init-do/peerledger/internal/validation"
)

// Listing field bounds, enforced through the validate tags on Input.
const (
	MaxTitle       = 100
	MaxDescription = 2000
	MaxURI         = 200
)

// Input is the caller-supplied part of a listing.
type Input struct {
	Title       string            `json:"title" validate:"required,max=100"`
	Description string            `json:"description" validate:"max=2000"`
	Category    storage.Category  `json:"category" validate:"enum"`
	Price       int64             `json:"price" validate:"gt=0"`
	Condition   storage.Condition `json:"condition" validate:"enum"`
	ImagesURI   string            `json:"images_uri" validate:"max=200"`
	MetadataURI string            `json:"metadata_uri" validate:"max=200"`
}

// Manager creates listings and toggles their availability.
type Manager struct {
	store    storage.Store
	registry *marketplace.Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewManager(store storage.Store, registry *marketplace.Registry, logger *zap.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, registry: registry, logger: logger, metrics: m, now: time.Now}
}

// SetNowFunc overrides the clock used for creation timestamps.
func (m *Manager) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	m.now = now
}

// Create lists a new active item for seller. Titles are unique per seller.
func (m *Manager) Create(ctx context.Context, seller string, in Input) (storage.Listing, error) {
	if err := validation.Struct(in); err != nil {
		return storage.Listing{}, err
	}

	l := storage.Listing{
		ID:          uuid.NewString(),
		Seller:      seller,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Price:       in.Price,
		Condition:   in.Condition,
		ImagesURI:   in.ImagesURI,
		MetadataURI: in.MetadataURI,
		IsActive:    true,
		CreatedAt:   m.now().UTC(),
	}
	err := m.store.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := marketplace.Load(ctx, tx); err != nil {
			return err
		}
		if _, err := user.Load(ctx, tx, seller); err != nil {
			return err
		}
		if err := tx.InsertListing(ctx, l); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return apperr.ErrListingExists
			}
			return err
		}
		return m.registry.RecordNewListing(ctx, tx)
	})
	if err != nil {
		return storage.Listing{}, err
	}
	m.metrics.ObserveListing()
	m.logger.Info("listing created",
		zap.String("listing_id", l.ID),
		zap.String("seller", seller),
		zap.Int64("price", l.Price),
	)
	return l, nil
}

// SetActive toggles whether the listing can be purchased. Only the seller may do so, and
// sold listings are frozen.
func (m *Manager) SetActive(ctx context.Context, actor, listingID string, active bool) (storage.Listing, error) {
	var l storage.Listing
	err := m.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		l, err = Load(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if l.Seller != actor {
			return apperr.Forbidden("only the seller can update this listing")
		}
		if l.IsSold {
			return apperr.ErrAlreadySold
		}
		l.IsActive = active
		return tx.UpdateListing(ctx, l)
	})
	if err != nil {
		return storage.Listing{}, err
	}
	m.logger.Info("listing status updated", zap.String("listing_id", listingID), zap.Bool("active", active))
	return l, nil
}

// Get returns the listing with id.
func (m *Manager) Get(ctx context.Context, id string) (storage.Listing, error) {
	var l storage.Listing
	err := m.store.WithinReadTx(ctx, func(tx storage.Tx) error {
		var err error
		l, err = Load(ctx, tx, id)
		return err
	})
	return l, err
}

// Load reads and locks a listing inside tx.
func Load(ctx context.Context, tx storage.Tx, id string) (storage.Listing, error) {
	l, err := tx.GetListing(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Listing{}, apperr.NotFound("listing")
	}
	return l, err
}
