package trade

import (
	"math"

	"github.com/holiman/uint256"

	"github.com/sudo-init-do/peerledger/internal/apperr"
	"github.com/sudo-init-do/peerledger/internal/marketplace"
)

const bpsDenominator = 10_000

// SplitPrice returns the marketplace fee, floor(price*feeRate/10000), and the remainder owed
// to the seller. The product is taken in 256-bit arithmetic so no int64 price can overflow.
func SplitPrice(price int64, feeRate int) (fee, sellerAmount int64, err error) {
	if price <= 0 {
		return 0, 0, apperr.ErrInvalidPrice
	}
	if feeRate < 0 || feeRate > marketplace.MaxFeeRate {
		return 0, 0, apperr.ErrInvalidFeeRate
	}

	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(uint64(price)), uint256.NewInt(uint64(feeRate)))
	if overflow {
		return 0, 0, apperr.ErrArithmeticOverflow
	}
	quotient := new(uint256.Int).Div(product, uint256.NewInt(bpsDenominator))
	if !quotient.IsUint64() || quotient.Uint64() > math.MaxInt64 || quotient.Uint64() > uint64(price) {
		return 0, 0, apperr.ErrArithmeticOverflow
	}

	fee = int64(quotient.Uint64())
	return fee, price - fee, nil
}
