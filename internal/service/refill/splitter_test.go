package refill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanShipmentsEvenSplit(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	plans := PlanShipments(start, 180, 90)
	require.Len(t, plans, 2)

	assert.Equal(t, 1, plans[0].ShipmentNumber)
	assert.Equal(t, 2, plans[0].TotalShipments)
	assert.Equal(t, 90, plans[0].SupplyDays)
	assert.Equal(t, start, plans[0].RefillDate)

	assert.Equal(t, 2, plans[1].ShipmentNumber)
	assert.Equal(t, 90, plans[1].SupplyDays)
	assert.Equal(t, start.AddDate(0, 0, 90), plans[1].RefillDate)
}

func TestPlanShipmentsRemainderOnFinal(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	plans := PlanShipments(start, 200, 90)
	require.Len(t, plans, 3)

	assert.Equal(t, 90, plans[0].SupplyDays)
	assert.Equal(t, 90, plans[1].SupplyDays)
	assert.Equal(t, 20, plans[2].SupplyDays)

	total := 0
	for _, p := range plans {
		total += p.SupplyDays
		assert.Equal(t, 3, p.TotalShipments)
		assert.Equal(t, 90, p.BUDDays)
	}
	assert.Equal(t, 200, total)
}

func TestPlanShipmentsSingleShipment(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	plans := PlanShipments(start, 30, 90)
	require.Len(t, plans, 1)
	assert.Equal(t, 30, plans[0].SupplyDays)
	assert.Equal(t, 1, plans[0].TotalShipments)
}

func TestPlanShipmentsDefaultsBUD(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	plans := PlanShipments(start, 100, 0)
	require.Len(t, plans, 2)
	assert.Equal(t, defaultBUDDays, plans[0].BUDDays)
	assert.Equal(t, 90, plans[0].SupplyDays)
	assert.Equal(t, 10, plans[1].SupplyDays)
}
