// Package sqlite provides a SQLite-backed ledger store.
//
// The store keeps a single open connection and begins every transaction immediately, so
// writers are serialized. That is the whole concurrency discipline for this backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/sudo-init-do/peerledger/internal/storage"
	"github.com/sudo-init-do/peerledger/internal/storage/sqlite/migrations"
)

// Store persists ledger state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func fromNullString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// WithinReadTx runs fn like WithinTx. The single connection already serializes readers.
func (s *Store) WithinReadTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.WithinTx(ctx, fn)
}

// WithinTx runs fn in one transaction, committing only when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&txn{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txn struct {
	tx *sql.Tx
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func insertErr(what string, err error) error {
	if isUniqueViolation(err) {
		return storage.ErrAlreadyExists
	}
	return fmt.Errorf("insert %s: %w", what, err)
}

func getErr(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func updateErr(what string, res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Marketplace

func (t *txn) InsertMarketplace(ctx context.Context, m storage.Marketplace) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO marketplace (id, authority, fee_rate, total_listings, total_users, total_volume, created_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)`,
		m.Authority, m.FeeRate, m.TotalListings, m.TotalUsers, m.TotalVolume, toMillis(m.CreatedAt),
	)
	if err != nil {
		return insertErr("marketplace", err)
	}
	return nil
}

func (t *txn) GetMarketplace(ctx context.Context) (storage.Marketplace, error) {
	var m storage.Marketplace
	var createdAt int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT authority, fee_rate, total_listings, total_users, total_volume, created_at
		 FROM marketplace WHERE id = 1`,
	).Scan(&m.Authority, &m.FeeRate, &m.TotalListings, &m.TotalUsers, &m.TotalVolume, &createdAt)
	if err != nil {
		return storage.Marketplace{}, getErr("marketplace", err)
	}
	m.CreatedAt = fromMillis(createdAt)
	return m, nil
}

func (t *txn) UpdateMarketplace(ctx context.Context, m storage.Marketplace) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE marketplace SET fee_rate = ?, total_listings = ?, total_users = ?, total_volume = ?
		 WHERE id = 1`,
		m.FeeRate, m.TotalListings, m.TotalUsers, m.TotalVolume,
	)
	return updateErr("marketplace", res, err)
}

// Profiles

func (t *txn) InsertProfile(ctx context.Context, p storage.Profile) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO profiles (identity, display_name, bio, location, reputation_score, rating_sum,
		   total_reviews, total_sales, total_purchases, is_verified, verification_attestation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Identity, p.DisplayName, p.Bio, p.Location, p.ReputationScore, p.RatingSum,
		p.TotalReviews, p.TotalSales, p.TotalPurchases, p.IsVerified,
		nullString(p.VerificationAttestation), toMillis(p.CreatedAt),
	)
	if err != nil {
		return insertErr("profile", err)
	}
	return nil
}

func (t *txn) GetProfile(ctx context.Context, identity string) (storage.Profile, error) {
	var p storage.Profile
	var attestation sql.NullString
	var createdAt int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT identity, display_name, bio, location, reputation_score, rating_sum, total_reviews,
		   total_sales, total_purchases, is_verified, verification_attestation, created_at
		 FROM profiles WHERE identity = ?`,
		identity,
	).Scan(&p.Identity, &p.DisplayName, &p.Bio, &p.Location, &p.ReputationScore, &p.RatingSum,
		&p.TotalReviews, &p.TotalSales, &p.TotalPurchases, &p.IsVerified, &attestation, &createdAt)
	if err != nil {
		return storage.Profile{}, getErr("profile", err)
	}
	p.VerificationAttestation = fromNullString(attestation)
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

func (t *txn) UpdateProfile(ctx context.Context, p storage.Profile) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE profiles SET display_name = ?, bio = ?, location = ?, reputation_score = ?, rating_sum = ?,
		   total_reviews = ?, total_sales = ?, total_purchases = ?, is_verified = ?, verification_attestation = ?
		 WHERE identity = ?`,
		p.DisplayName, p.Bio, p.Location, p.ReputationScore, p.RatingSum,
		p.TotalReviews, p.TotalSales, p.TotalPurchases, p.IsVerified, nullString(p.VerificationAttestation),
		p.Identity,
	)
	return updateErr("profile", res, err)
}

// Listings

func (t *txn) InsertListing(ctx context.Context, l storage.Listing) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO listings (id, seller, buyer, title, description, category, price, condition,
		   images_uri, metadata_uri, is_active, is_sold, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Seller, nullString(l.Buyer), l.Title, l.Description, string(l.Category), l.Price,
		string(l.Condition), l.ImagesURI, l.MetadataURI, l.IsActive, l.IsSold, toMillis(l.CreatedAt),
	)
	if err != nil {
		return insertErr("listing", err)
	}
	return nil
}

func (t *txn) GetListing(ctx context.Context, id string) (storage.Listing, error) {
	var l storage.Listing
	var buyer sql.NullString
	var category, condition string
	var createdAt int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, seller, buyer, title, description, category, price, condition,
		   images_uri, metadata_uri, is_active, is_sold, created_at
		 FROM listings WHERE id = ?`,
		id,
	).Scan(&l.ID, &l.Seller, &buyer, &l.Title, &l.Description, &category, &l.Price, &condition,
		&l.ImagesURI, &l.MetadataURI, &l.IsActive, &l.IsSold, &createdAt)
	if err != nil {
		return storage.Listing{}, getErr("listing", err)
	}
	l.Buyer = fromNullString(buyer)
	l.Category = storage.Category(category)
	l.Condition = storage.Condition(condition)
	l.CreatedAt = fromMillis(createdAt)
	return l, nil
}

func (t *txn) UpdateListing(ctx context.Context, l storage.Listing) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE listings SET buyer = ?, is_active = ?, is_sold = ? WHERE id = ?`,
		nullString(l.Buyer), l.IsActive, l.IsSold, l.ID,
	)
	return updateErr("listing", res, err)
}

// Purchases

func (t *txn) InsertPurchase(ctx context.Context, p storage.Purchase) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO purchases (id, listing_id, buyer, seller, price, fee, purchased_at, completed_at,
		   is_completed, is_disputed, disputed_at, dispute_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ListingID, p.Buyer, p.Seller, p.Price, p.Fee, toMillis(p.PurchasedAt),
		nullMillis(p.CompletedAt), p.IsCompleted, p.IsDisputed, nullMillis(p.DisputedAt), p.DisputeReason,
	)
	if err != nil {
		return insertErr("purchase", err)
	}
	return nil
}

func (t *txn) GetPurchase(ctx context.Context, id string) (storage.Purchase, error) {
	var p storage.Purchase
	var purchasedAt int64
	var completedAt, disputedAt sql.NullInt64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, listing_id, buyer, seller, price, fee, purchased_at, completed_at,
		   is_completed, is_disputed, disputed_at, dispute_reason
		 FROM purchases WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.ListingID, &p.Buyer, &p.Seller, &p.Price, &p.Fee, &purchasedAt, &completedAt,
		&p.IsCompleted, &p.IsDisputed, &disputedAt, &p.DisputeReason)
	if err != nil {
		return storage.Purchase{}, getErr("purchase", err)
	}
	p.PurchasedAt = fromMillis(purchasedAt)
	p.CompletedAt = fromNullMillis(completedAt)
	p.DisputedAt = fromNullMillis(disputedAt)
	return p, nil
}

func (t *txn) UpdatePurchase(ctx context.Context, p storage.Purchase) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE purchases SET completed_at = ?, is_completed = ?, is_disputed = ?, disputed_at = ?, dispute_reason = ?
		 WHERE id = ?`,
		nullMillis(p.CompletedAt), p.IsCompleted, p.IsDisputed, nullMillis(p.DisputedAt), p.DisputeReason, p.ID,
	)
	return updateErr("purchase", res, err)
}

// Reviews

func (t *txn) InsertReview(ctx context.Context, r storage.Review) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO reviews (id, purchase_id, reviewer, reviewee, rating, comment, is_seller_review, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PurchaseID, r.Reviewer, r.Reviewee, r.Rating, r.Comment, r.IsSellerReview, toMillis(r.CreatedAt),
	)
	if err != nil {
		return insertErr("review", err)
	}
	return nil
}

func (t *txn) ListReviews(ctx context.Context, reviewee string, limit, offset int) ([]storage.Review, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, purchase_id, reviewer, reviewee, rating, comment, is_seller_review, created_at
		 FROM reviews WHERE reviewee = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ? OFFSET ?`,
		reviewee, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []storage.Review
	for rows.Next() {
		var r storage.Review
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.PurchaseID, &r.Reviewer, &r.Reviewee, &r.Rating, &r.Comment,
			&r.IsSellerReview, &createdAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		r.CreatedAt = fromMillis(createdAt)
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, nil
}

// Wallets

func (t *txn) InsertWallet(ctx context.Context, w storage.Wallet) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO wallets (owner, balance, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		w.Owner, w.Balance, toMillis(w.CreatedAt), toMillis(w.UpdatedAt),
	)
	if err != nil {
		return insertErr("wallet", err)
	}
	return nil
}

func (t *txn) GetWallet(ctx context.Context, owner string) (storage.Wallet, error) {
	var w storage.Wallet
	var createdAt, updatedAt int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT owner, balance, created_at, updated_at FROM wallets WHERE owner = ?`,
		owner,
	).Scan(&w.Owner, &w.Balance, &createdAt, &updatedAt)
	if err != nil {
		return storage.Wallet{}, getErr("wallet", err)
	}
	w.CreatedAt = fromMillis(createdAt)
	w.UpdatedAt = fromMillis(updatedAt)
	return w, nil
}

func (t *txn) UpdateWallet(ctx context.Context, w storage.Wallet) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE wallets SET balance = ?, updated_at = ? WHERE owner = ?`,
		w.Balance, toMillis(w.UpdatedAt), w.Owner,
	)
	return updateErr("wallet", res, err)
}

func (t *txn) InsertLedgerEntry(ctx context.Context, e storage.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, owner, amount, direction, counterparty, reference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Owner, e.Amount, string(e.Direction), e.Counterparty, e.Reference, toMillis(e.CreatedAt),
	)
	if err != nil {
		return insertErr("ledger entry", err)
	}
	return nil
}

func (t *txn) ListLedgerEntries(ctx context.Context, owner string, limit int) ([]storage.LedgerEntry, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, owner, amount, direction, counterparty, reference, created_at
		 FROM ledger_entries WHERE owner = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
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
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Owner, &e.Amount, &direction, &e.Counterparty, &e.Reference, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Direction = storage.Direction(direction)
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
