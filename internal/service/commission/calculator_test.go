package commission

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/eonpro/ops-api/internal/model"
)

func flatPlan(cents int64) *model.CommissionPlan {
	return &model.CommissionPlan{PlanType: model.PlanTypeFlat, FlatAmountCents: cents}
}

func TestCalculateFlatBase(t *testing.T) {
	b := Calculate(CalcInput{
		Plan:             flatPlan(2500),
		OrderAmountCents: 29900,
		At:               time.Now(),
	})
	assert.Equal(t, int64(2500), b.BaseCents)
	assert.Equal(t, int64(2500), b.TotalCents)
}

func TestCalculatePercentBase(t *testing.T) {
	b := Calculate(CalcInput{
		Plan:             &model.CommissionPlan{PlanType: model.PlanTypePercent, PercentBps: 750},
		OrderAmountCents: 20000,
		At:               time.Now(),
	})
	// 7.5% of $200.00
	assert.Equal(t, int64(1500), b.BaseCents)
}

func TestCalculateHighestQualifyingTierWins(t *testing.T) {
	plan := flatPlan(1000)
	plan.TierEnabled = true
	tiers := []*model.CommissionTier{
		{MinConversions: 10, BonusCents: 500},
		{MinConversions: 50, BonusCents: 1500},
		{MinConversions: 100, BonusCents: 4000},
	}

	b := Calculate(CalcInput{Plan: plan, Tiers: tiers, LifetimeConversions: 60, At: time.Now()})
	assert.Equal(t, int64(1500), b.TierBonusCents)
	assert.Equal(t, int64(2500), b.TotalCents)

	b = Calculate(CalcInput{Plan: plan, Tiers: tiers, LifetimeConversions: 5, At: time.Now()})
	assert.Equal(t, int64(0), b.TierBonusCents)
}

func TestCalculateTiersIgnoredWhenDisabled(t *testing.T) {
	plan := flatPlan(1000)
	tiers := []*model.CommissionTier{{MinConversions: 1, BonusCents: 500}}

	b := Calculate(CalcInput{Plan: plan, Tiers: tiers, LifetimeConversions: 10, At: time.Now()})
	assert.Equal(t, int64(0), b.TierBonusCents)
}

func TestCalculatePromotionsStack(t *testing.T) {
	now := time.Now()
	promoA := &model.Promotion{BonusCents: 300, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)}
	promoA.ID = uuid.New()
	promoB := &model.Promotion{BonusCents: 200, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)}
	promoB.ID = uuid.New()
	expired := &model.Promotion{BonusCents: 999, StartsAt: now.Add(-2 * time.Hour), EndsAt: now.Add(-time.Hour)}
	expired.ID = uuid.New()
	capped := &model.Promotion{BonusCents: 999, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour), MaxUses: 5, UseCount: 5}
	capped.ID = uuid.New()

	b := Calculate(CalcInput{
		Plan:       flatPlan(1000),
		Promotions: []*model.Promotion{promoA, promoB, expired, capped},
		At:         now,
	})
	assert.Equal(t, int64(500), b.PromoBonusCents)
	assert.ElementsMatch(t, []uuid.UUID{promoA.ID, promoB.ID}, b.AppliedPromoIDs)
}

func TestCalculateProductRateOverridesAndAdjusts(t *testing.T) {
	plan := flatPlan(1000)
	rate := &model.ProductRate{
		PlanType:        model.PlanTypePercent,
		PercentBps:      1000,
		AdjustmentCents: -250,
	}

	b := Calculate(CalcInput{
		Plan:             plan,
		ProductRate:      rate,
		OrderAmountCents: 10000,
		At:               time.Now(),
	})
	assert.Equal(t, int64(1000), b.BaseCents)
	assert.Equal(t, int64(-250), b.AdjustmentCents)
	assert.Equal(t, int64(750), b.TotalCents)
}

func TestRecurringAmountCompounds(t *testing.T) {
	// $100 base with 50% decay: $100, $50, $25.
	assert.Equal(t, int64(10000), RecurringAmount(10000, 50, 1))
	assert.Equal(t, int64(5000), RecurringAmount(10000, 50, 2))
	assert.Equal(t, int64(2500), RecurringAmount(10000, 50, 3))
}

func TestRecurringAmountNoDecay(t *testing.T) {
	assert.Equal(t, int64(10000), RecurringAmount(10000, 0, 6))
}

func TestRecurringAmountFullDecay(t *testing.T) {
	assert.Equal(t, int64(0), RecurringAmount(10000, 100, 2))
}
