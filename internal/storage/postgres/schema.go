package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ensureSchema creates the ledger tables when they are missing. Every statement is
// idempotent so the server can call it on each start.
func (s *Store) ensureSchema(ctx context.Context) error {
	steps := []struct {
		name string
		sql  string
	}{
		{"marketplace", `
			CREATE TABLE IF NOT EXISTS marketplace (
				id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
				authority TEXT NOT NULL,
				fee_rate INTEGER NOT NULL CHECK (fee_rate BETWEEN 0 AND 10000),
				total_listings BIGINT NOT NULL DEFAULT 0 CHECK (total_listings >= 0),
				total_users BIGINT NOT NULL DEFAULT 0 CHECK (total_users >= 0),
				total_volume BIGINT NOT NULL DEFAULT 0 CHECK (total_volume >= 0),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`},
		{"profiles", `
			CREATE TABLE IF NOT EXISTS profiles (
				identity TEXT PRIMARY KEY,
				display_name TEXT NOT NULL,
				bio TEXT NOT NULL DEFAULT '',
				location TEXT NOT NULL DEFAULT '',
				reputation_score INTEGER NOT NULL DEFAULT 0,
				rating_sum BIGINT NOT NULL DEFAULT 0,
				total_reviews BIGINT NOT NULL DEFAULT 0,
				total_sales BIGINT NOT NULL DEFAULT 0,
				total_purchases BIGINT NOT NULL DEFAULT 0,
				is_verified BOOLEAN NOT NULL DEFAULT FALSE,
				verification_attestation TEXT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`},
		{"listings", `
			CREATE TABLE IF NOT EXISTS listings (
				id UUID PRIMARY KEY,
				seller TEXT NOT NULL REFERENCES profiles(identity),
				buyer TEXT NULL REFERENCES profiles(identity),
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL,
				price BIGINT NOT NULL CHECK (price > 0),
				condition TEXT NOT NULL,
				images_uri TEXT NOT NULL DEFAULT '',
				metadata_uri TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				is_sold BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (seller, title)
			)`},
		{"purchases", `
			CREATE TABLE IF NOT EXISTS purchases (
				id UUID PRIMARY KEY,
				listing_id UUID NOT NULL REFERENCES listings(id),
				buyer TEXT NOT NULL REFERENCES profiles(identity),
				seller TEXT NOT NULL REFERENCES profiles(identity),
				price BIGINT NOT NULL,
				fee BIGINT NOT NULL,
				purchased_at TIMESTAMPTZ NOT NULL,
				completed_at TIMESTAMPTZ NULL,
				is_completed BOOLEAN NOT NULL DEFAULT FALSE,
				is_disputed BOOLEAN NOT NULL DEFAULT FALSE,
				disputed_at TIMESTAMPTZ NULL,
				dispute_reason TEXT NOT NULL DEFAULT '',
				UNIQUE (listing_id, buyer),
				CHECK (NOT (is_completed AND is_disputed))
			)`},
		{"reviews", `
			CREATE TABLE IF NOT EXISTS reviews (
				id UUID PRIMARY KEY,
				purchase_id UUID NOT NULL REFERENCES purchases(id),
				reviewer TEXT NOT NULL,
				reviewee TEXT NOT NULL REFERENCES profiles(identity),
				rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
				comment TEXT NOT NULL DEFAULT '',
				is_seller_review BOOLEAN NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (purchase_id, reviewer)
			);
			CREATE INDEX IF NOT EXISTS idx_reviews_reviewee_created ON reviews(reviewee, created_at)`},
		{"wallets", `
			CREATE TABLE IF NOT EXISTS wallets (
				owner TEXT PRIMARY KEY,
				balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`},
		{"ledger_entries", `
			CREATE TABLE IF NOT EXISTS ledger_entries (
				id UUID PRIMARY KEY,
				owner TEXT NOT NULL,
				amount BIGINT NOT NULL,
				direction TEXT NOT NULL CHECK (direction IN ('debit', 'credit')),
				counterparty TEXT NOT NULL DEFAULT '',
				reference TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_ledger_entries_owner_created ON ledger_entries(owner, created_at)`},
	}

	for _, step := range steps {
		if _, err := s.pool.Exec(ctx, step.sql); err != nil {
			return fmt.Errorf("ensure %s table: %w", step.name, err)
		}
		s.logger.Debug("table ensured", zap.String("table", step.name))
	}
	return nil
}
