// Package postgres provides the Postgres-backed ledger store.
//
// Rows read inside WithinTx are taken with SELECT ... FOR UPDATE, so concurrent operations
// touching the same listing, purchase, profile or wallet queue behind each other. WithinReadTx
// runs a read-only transaction that takes no row locks.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sudo-init-do/peerledger/internal/storage"
)

const uniqueViolation = "23505"

// Store persists ledger state in Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// Open connects to Postgres, pings it and ensures the ledger schema.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{pool: pool, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to postgres")
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.pool.Ping(ctx)
}

// WithinTx runs fn in one transaction, committing only when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{}, true, fn)
}

// WithinReadTx runs fn in a read-only transaction without row locks.
func (s *Store) WithinReadTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, false, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, lock bool, fn func(tx storage.Tx) error) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}
	pgTx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(&txn{tx: pgTx, lock: lock}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txn struct {
	tx   pgx.Tx
	lock bool
}

// forUpdate is the locking clause appended to single-row reads.
func (t *txn) forUpdate() string {
	if t.lock {
		return " FOR UPDATE"
	}
	return ""
}

// rowID normalizes a uuid key so lookups compare against the indexed column directly.
// Malformed ids cannot match any row.
func rowID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", storage.ErrNotFound
	}
	return u.String(), nil
}

func insertErr(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrAlreadyExists
	}
	return fmt.Errorf("insert %s: %w", what, err)
}

func getErr(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func updateErr(what string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Marketplace

func (t *txn) InsertMarketplace(ctx context.Context, m storage.Marketplace) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO marketplace (id, authority, fee_rate, total_listings, total_users, total_volume, created_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6)`,
		m.Authority, m.FeeRate, m.TotalListings, m.TotalUsers, m.TotalVolume, m.CreatedAt,
	)
	if err != nil {
		return insertErr("marketplace", err)
	}
	return nil
}

func (t *txn) GetMarketplace(ctx context.Context) (storage.Marketplace, error) {
	var m storage.Marketplace
	err := t.tx.QueryRow(ctx,
		`SELECT authority, fee_rate, total_listings, total_users, total_volume, created_at
		 FROM marketplace WHERE id = 1`+t.forUpdate(),
	).Scan(&m.Authority, &m.FeeRate, &m.TotalListings, &m.TotalUsers, &m.TotalVolume, &m.CreatedAt)
	if err != nil {
		return storage.Marketplace{}, getErr("marketplace", err)
	}
	return m, nil
}

func (t *txn) UpdateMarketplace(ctx context.Context, m storage.Marketplace) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE marketplace SET fee_rate = $1, total_listings = $2, total_users = $3, total_volume = $4
		 WHERE id = 1`,
		m.FeeRate, m.TotalListings, m.TotalUsers, m.TotalVolume,
	)
	return updateErr("marketplace", tag, err)
}

// Profiles

func (t *txn) InsertProfile(ctx context.Context, p storage.Profile) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO profiles (identity, display_name, bio, location, reputation_score, rating_sum,
		   total_reviews, total_sales, total_purchases, is_verified, verification_attestation, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.Identity, p.DisplayName, p.Bio, p.Location, p.ReputationScore, p.RatingSum,
		p.TotalReviews, p.TotalSales, p.TotalPurchases, p.IsVerified, p.VerificationAttestation, p.CreatedAt,
	)
	if err != nil {
		return insertErr("profile", err)
	}
	return nil
}

func (t *txn) GetProfile(ctx context.Context, identity string) (storage.Profile, error) {
	var p storage.Profile
	err := t.tx.QueryRow(ctx,
		`SELECT identity, display_name, bio, location, reputation_score, rating_sum, total_reviews,
		   total_sales, total_purchases, is_verified, verification_attestation, created_at
		 FROM profiles WHERE identity = $1`+t.forUpdate(),
		identity,
	).Scan(&p.Identity, &p.DisplayName, &p.Bio, &p.Location, &p.ReputationScore, &p.RatingSum,
		&p.TotalReviews, &p.TotalSales, &p.TotalPurchases, &p.IsVerified, &p.VerificationAttestation, &p.CreatedAt)
	if err != nil {
		return storage.Profile{}, getErr("profile", err)
	}
	return p, nil
}

func (t *txn) UpdateProfile(ctx context.Context, p storage.Profile) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE profiles SET display_name = $1, bio = $2, location = $3, reputation_score = $4, rating_sum = $5,
		   total_reviews = $6, total_sales = $7, total_purchases = $8, is_verified = $9, verification_attestation = $10
		 WHERE identity = $11`,
		p.DisplayName, p.Bio, p.Location, p.ReputationScore, p.RatingSum,
		p.TotalReviews, p.TotalSales, p.TotalPurchases, p.IsVerified, p.VerificationAttestation,
		p.Identity,
	)
	return updateErr("profile", tag, err)
}

// Listings

func (t *txn) InsertListing(ctx context.Context, l storage.Listing) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO listings (id, seller, buyer, title, description, category, price, condition,
		   images_uri, metadata_uri, is_active, is_sold, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		l.ID, l.Seller, l.Buyer, l.Title, l.Description, string(l.Category), l.Price, string(l.Condition),
		l.ImagesURI, l.MetadataURI, l.IsActive, l.IsSold, l.CreatedAt,
	)
	if err != nil {
		return insertErr("listing", err)
	}
	return nil
}

func (t *txn) GetListing(ctx context.Context, id string) (storage.Listing, error) {
	key, err := rowID(id)
	if err != nil {
		return storage.Listing{}, err
	}
	var l storage.Listing
	var category, condition string
	err = t.tx.QueryRow(ctx,
		`SELECT id::text, seller, buyer, title, description, category, price, condition,
		   images_uri, metadata_uri, is_active, is_sold, created_at
		 FROM listings WHERE id = $1`+t.forUpdate(),
		key,
	).Scan(&l.ID, &l.Seller, &l.Buyer, &l.Title, &l.Description, &category, &l.Price, &condition,
		&l.ImagesURI, &l.MetadataURI, &l.IsActive, &l.IsSold, &l.CreatedAt)
	if err != nil {
		return storage.Listing{}, getErr("listing", err)
	}
	l.Category = storage.Category(category)
	l.Condition = storage.Condition(condition)
	return l, nil
}

func (t *txn) UpdateListing(ctx context.Context, l storage.Listing) error {
	key, err := rowID(l.ID)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE listings SET buyer = $1, is_active = $2, is_sold = $3 WHERE id = $4`,
		l.Buyer, l.IsActive, l.IsSold, key,
	)
	return updateErr("listing", tag, err)
}

// Purchases

func (t *txn) InsertPurchase(ctx context.Context, p storage.Purchase) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO purchases (id, listing_id, buyer, seller, price, fee, purchased_at, completed_at,
		   is_completed, is_disputed, disputed_at, dispute_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.ListingID, p.Buyer, p.Seller, p.Price, p.Fee, p.PurchasedAt, p.CompletedAt,
		p.IsCompleted, p.IsDisputed, p.DisputedAt, p.DisputeReason,
	)
	if err != nil {
		return insertErr("purchase", err)
	}
	return nil
}

func (t *txn) GetPurchase(ctx context.Context, id string) (storage.Purchase, error) {
	key, err := rowID(id)
	if err != nil {
		return storage.Purchase{}, err
	}
	var p storage.Purchase
	err = t.tx.QueryRow(ctx,
		`SELECT id::text, listing_id::text, buyer, seller, price, fee, purchased_at, completed_at,
		   is_completed, is_disputed, disputed_at, dispute_reason
		 FROM purchases WHERE id = $1`+t.forUpdate(),
		key,
	).Scan(&p.ID, &p.ListingID, &p.Buyer, &p.Seller, &p.Price, &p.Fee, &p.PurchasedAt, &p.CompletedAt,
		&p.IsCompleted, &p.IsDisputed, &p.DisputedAt, &p.DisputeReason)
	if err != nil {
		return storage.Purchase{}, getErr("purchase", err)
	}
	return p, nil
}

func (t *txn) UpdatePurchase(ctx context.Context, p storage.Purchase) error {
	key, err := rowID(p.ID)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE purchases SET completed_at = $1, is_completed = $2, is_disputed = $3, disputed_at = $4, dispute_reason = $5
		 WHERE id = $6`,
		p.CompletedAt, p.IsCompleted, p.IsDisputed, p.DisputedAt, p.DisputeReason, key,
	)
	return updateErr("purchase", tag, err)
}

// Reviews

func (t *txn) InsertReview(ctx context.Context, r storage.Review) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO reviews (id, purchase_id, reviewer, reviewee, rating, comment, is_seller_review, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.PurchaseID, r.Reviewer, r.Reviewee, r.Rating, r.Comment, r.IsSellerReview, r.CreatedAt,
	)
	if err != nil {
		return insertErr("review", err)
	}
	return nil
}

func (t *txn) ListReviews(ctx context.Context, reviewee string, limit, offset int) ([]storage.Review, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id::text, purchase_id::text, reviewer, reviewee, rating, comment, is_seller_review, created_at
		 FROM reviews WHERE reviewee = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		reviewee, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []storage.Review
	for rows.Next() {
		var r storage.Review
		if err := rows.Scan(&r.ID, &r.PurchaseID, &r.Reviewer, &r.Reviewee, &r.Rating, &r.Comment,
			&r.IsSellerReview, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, nil
}

// Wallets

func (t *txn) InsertWallet(ctx context.Context, w storage.Wallet) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO wallets (owner, balance, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		w.Owner, w.Balance, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return insertErr("wallet", err)
	}
	return nil
}

func (t *txn) GetWallet(ctx context.Context, owner string) (storage.Wallet, error) {
	var w storage.Wallet
	err := t.tx.QueryRow(ctx,
		`SELECT owner, balance, created_at, updated_at FROM wallets WHERE owner = $1`+t.forUpdate(),
		owner,
	).Scan(&w.Owner, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return storage.Wallet{}, getErr("wallet", err)
	}
	return w, nil
}

func (t *txn) UpdateWallet(ctx context.Context, w storage.Wallet) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE wallets SET balance = $1, updated_at = $2 WHERE owner = $3`,
		w.Balance, w.UpdatedAt, w.Owner,
	)
	return updateErr("wallet", tag, err)
}

func (t *txn) InsertLedgerEntry(ctx context.Context, e storage.LedgerEntry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, owner, amount, direction, counterparty, reference, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Owner, e.Amount, string(e.Direction), e.Counterparty, e.Reference, e.CreatedAt,
	)
	if err != nil {
		return insertErr("ledger entry", err)
	}
	return nil
}

func (t *txn) ListLedgerEntries(ctx context.Context, owner string, limit int) ([]storage.LedgerEntry, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id::text, owner, amount, direction, counterparty, reference, created_at
		 FROM ledger_entries WHERE owner = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []storage.LedgerEntry
	for rows.Next() {
		var e storage.LedgerEntry
		var direction string
		if err := rows.Scan(&e.ID, &e.Owner, &e.Amount, &direction, &e.Counterparty, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Direction = storage.Direction(direction)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
