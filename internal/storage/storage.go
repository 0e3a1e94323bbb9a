// Package storage defines the ledger account store contract and the records it persists.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// Store opens transactions against the ledger. Every mutation of a public operation runs
// inside a single WithinTx call: either all of it commits or none of it does. Read-only
// lookups use WithinReadTx, whose Get methods do not lock rows.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	WithinReadTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the per-transaction view of the store. Inside WithinTx, Get methods lock the
// returned row until the transaction ends, so a read followed by an update is a single
// atomic read-modify-write.
type Tx interface {
	InsertMarketplace(ctx context.Context, m Marketplace) error
	GetMarketplace(ctx context.Context) (Marketplace, error)
	UpdateMarketplace(ctx context.Context, m Marketplace) error

	InsertProfile(ctx context.Context, p Profile) error
	GetProfile(ctx context.Context, identity string) (Profile, error)
	UpdateProfile(ctx context.Context, p Profile) error

	InsertListing(ctx context.Context, l Listing) error
	GetListing(ctx context.Context, id string) (Listing, error)
	UpdateListing(ctx context.Context, l Listing) error

	InsertPurchase(ctx context.Context, p Purchase) error
	GetPurchase(ctx context.Context, id string) (Purchase, error)
	UpdatePurchase(ctx context.Context, p Purchase) error

	InsertReview(ctx context.Context, r Review) error
	ListReviews(ctx context.Context, reviewee string, limit, offset int) ([]Review, error)

	InsertWallet(ctx context.Context, w Wallet) error
	GetWallet(ctx context.Context, owner string) (Wallet, error)
	UpdateWallet(ctx context.Context, w Wallet) error
	InsertLedgerEntry(ctx context.Context, e LedgerEntry) error
	ListLedgerEntries(ctx context.Context, owner string, limit int) ([]LedgerEntry, error)
}

// Marketplace is the singleton configuration and aggregate counters.
type Marketplace struct {
	Authority     string    `json:"authority"`
	FeeRate       int       `json:"fee_rate"`
	TotalListings int64     `json:"total_listings"`
	TotalUsers    int64     `json:"total_users"`
	TotalVolume   int64     `json:"total_volume"`
	CreatedAt     time.Time `json:"created_at"`
}

// Profile is one identity's public profile and reputation.
type Profile struct {
	Identity                string    `json:"identity"`
	DisplayName             string    `json:"display_name"`
	Bio                     string    `json:"bio"`
	Location                string    `json:"location"`
	ReputationScore         int       `json:"reputation_score"`
	RatingSum               int64     `json:"rating_sum"`
	TotalReviews            int64     `json:"total_reviews"`
	TotalSales              int64     `json:"total_sales"`
	TotalPurchases          int64     `json:"total_purchases"`
	IsVerified              bool      `json:"is_verified"`
	VerificationAttestation *string   `json:"verification_attestation,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
}

// Category is the closed set of listing categories.
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryHome        Category = "home"
	CategorySports      Category = "sports"
	CategoryBooks       Category = "books"
	CategoryAutomotive  Category = "automotive"
	CategoryArt         Category = "art"
	CategoryMusic       Category = "music"
	CategoryGaming      Category = "gaming"
	CategoryOther       Category = "other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryElectronics, CategoryClothing, CategoryHome, CategorySports, CategoryBooks,
		CategoryAutomotive, CategoryArt, CategoryMusic, CategoryGaming, CategoryOther:
		return true
	}
	return false
}

// Condition is the closed set of item conditions.
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

// Valid reports whether c is one of the known conditions.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// Listing is a seller's offer. Once IsSold is set the record is frozen.
type Listing struct {
	ID          string    `json:"id"`
	Seller      string    `json:"seller"`
	Buyer       *string   `json:"buyer,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Price       int64     `json:"price"`
	Condition   Condition `json:"condition"`
	ImagesURI   string    `json:"images_uri"`
	MetadataURI string    `json:"metadata_uri"`
	IsActive    bool      `json:"is_active"`
	IsSold      bool      `json:"is_sold"`
	CreatedAt   time.Time `json:"created_at"`
}

// Purchase records one sale of a listing. IsCompleted and IsDisputed are exclusive.
type Purchase struct {
	ID            string     `json:"id"`
	ListingID     string     `json:"listing_id"`
	Buyer         string     `json:"buyer"`
	Seller        string     `json:"seller"`
	Price         int64      `json:"price"`
	Fee           int64      `json:"fee"`
	PurchasedAt   time.Time  `json:"purchased_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	IsCompleted   bool       `json:"is_completed"`
	IsDisputed    bool       `json:"is_disputed"`
	DisputedAt    *time.Time `json:"disputed_at,omitempty"`
	DisputeReason string     `json:"dispute_reason,omitempty"`
}

// Review is an immutable rating attached to a completed purchase.
type Review struct {
	ID             string    `json:"id"`
	PurchaseID     string    `json:"purchase_id"`
	Reviewer       string    `json:"reviewer"`
	Reviewee       string    `json:"reviewee"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment"`
	IsSellerReview bool      `json:"is_seller_review"`
	CreatedAt      time.Time `json:"created_at"`
}

// Wallet holds the spendable balance of one owner.
type Wallet struct {
	Owner     string    `json:"owner"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Direction is the side of a journal entry.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// LedgerEntry journals one leg of a balance movement.
type LedgerEntry struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	Amount       int64     `json:"amount"`
	Direction    Direction `json:"direction"`
	Counterparty string    `json:"counterparty"`
	Reference    string    `json:"reference"`
	CreatedAt    time.Time `json:"created_at"`
}
