package commission

import (
	"time"

	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/model"
)

// CalcInput carries everything the calculator needs; it reads nothing else.
type CalcInput struct {
	Plan                *model.CommissionPlan
	ProductRate         *model.ProductRate
	Tiers               []*model.CommissionTier
	Promotions          []*model.Promotion
	LifetimeConversions int
	OrderAmountCents    int64
	At                  time.Time
}

// Breakdown is the immutable component split persisted on every event.
type Breakdown struct {
	BaseCents       int64
	TierBonusCents  int64
	PromoBonusCents int64
	AdjustmentCents int64
	TotalCents      int64
	AppliedPromoIDs []uuid.UUID
}

// Calculate computes total = base + tierBonus + promoBonus + adjustment.
// A product rate replaces the plan's base rate and contributes the
// adjustment; tiers apply only when the plan enables them, highest
// qualifying threshold wins; every active promotion stacks.
func Calculate(in CalcInput) Breakdown {
	var b Breakdown

	planType := in.Plan.PlanType
	flat := in.Plan.FlatAmountCents
	bps := in.Plan.PercentBps
	if in.ProductRate != nil {
		planType = in.ProductRate.PlanType
		flat = in.ProductRate.FlatAmountCents
		bps = in.ProductRate.PercentBps
		b.AdjustmentCents = in.ProductRate.AdjustmentCents
	}

	switch planType {
	case model.PlanTypePercent:
		b.BaseCents = in.OrderAmountCents * bps / 10000
	default:
		b.BaseCents = flat
	}

	if in.Plan.TierEnabled {
		bestMin := -1
		for _, tier := range in.Tiers {
			if in.LifetimeConversions >= tier.MinConversions && tier.MinConversions > bestMin {
				bestMin = tier.MinConversions
				b.TierBonusCents = tier.BonusCents
			}
		}
	}

	for _, promo := range in.Promotions {
		if promo.Active(in.At) {
			b.PromoBonusCents += promo.BonusCents
			b.AppliedPromoIDs = append(b.AppliedPromoIDs, promo.ID)
		}
	}

	b.TotalCents = b.BaseCents + b.TierBonusCents + b.PromoBonusCents + b.AdjustmentCents
	return b
}

// RecurringAmount returns the commission for recurring month m with
// compounding decay: base × (1 − decayPct/100)^(m−1). Month 1 is the base
// itself. Integer arithmetic truncates toward zero each month.
func RecurringAmount(baseCents int64, decayPct, month int) int64 {
	if month <= 1 {
		return baseCents
	}
	amount := baseCents
	for i := 1; i < month; i++ {
		amount = amount * int64(100-decayPct) / 100
	}
	return amount
}
