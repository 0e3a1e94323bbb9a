package user

import (
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/peerledger/internal/storage"
)

// NextScore returns floor((score*n + rating) / (n+1)), the truncating running mean used for
// the public reputation score. Truncation compounds, so the result can drift below the
// true mean; RatingSum keeps the exact total.
func NextScore(score int, n int64, rating int) int {
	return int((int64(score)*n + int64(rating)) / (n + 1))
}

// AverageRating returns the exact mean rating rounded to two places, or zero without reviews.
func AverageRating(p storage.Profile) decimal.Decimal {
	if p.TotalReviews == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(p.RatingSum).
		DivRound(decimal.NewFromInt(p.TotalReviews), 2)
}
