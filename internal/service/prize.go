package service

import (
	"github.com/shopspring/decimal"

	"lottofun/internal/config"
)

const (
	minWinningTier = 2
	maxWinningTier = 5
)

var hundred = decimal.NewFromInt(100)

// PrizeAllocator splits a draw's prize pool across match tiers by configured
// percentages. Per-ticket payouts are floor-rounded to 2 decimals so the sum
// of distributed prizes never exceeds the tier pool; the operator absorbs the
// rounding remainder. Unclaimed remainder does not roll over.
type PrizeAllocator struct {
	percentages map[int]decimal.Decimal
}

func NewPrizeAllocator(cfg config.PrizesConfig) *PrizeAllocator {
	return &PrizeAllocator{percentages: cfg.TierPercentages()}
}

func (a *PrizeAllocator) TierPercentage(tier int) decimal.Decimal {
	p, ok := a.percentages[tier]
	if !ok {
		return decimal.Zero
	}
	return p
}

func (a *PrizeAllocator) TierPool(pool decimal.Decimal, tier int) decimal.Decimal {
	return pool.Mul(a.TierPercentage(tier)).Div(hundred)
}

// UnitPrizes computes the per-ticket payout for every winning tier given the
// tier histogram from pass 1. Tiers with no tickets or no configured
// percentage pay zero.
func (a *PrizeAllocator) UnitPrizes(pool decimal.Decimal, counts map[int]int64) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, maxWinningTier-minWinningTier+1)
	for tier := minWinningTier; tier <= maxWinningTier; tier++ {
		n := counts[tier]
		if n <= 0 {
			out[tier] = decimal.Zero
			continue
		}
		out[tier] = a.TierPool(pool, tier).
			Div(decimal.NewFromInt(n)).
			RoundFloor(2)
	}
	return out
}
