package refill

import "time"

// ShipmentPlan is one planned shipment of a prescription too large to send
// in a single beyond-use-date window.
type ShipmentPlan struct {
	ShipmentNumber int
	TotalShipments int
	SupplyDays     int
	BUDDays        int
	RefillDate     time.Time
}

// PlanShipments splits prescribedDurationDays into ceil(duration/bud)
// shipments. Every shipment carries a full budDays supply except the last,
// which carries the remainder. Shipment k ships budDays after shipment k-1.
func PlanShipments(start time.Time, prescribedDurationDays, budDays int) []ShipmentPlan {
	if budDays <= 0 {
		budDays = defaultBUDDays
	}
	if prescribedDurationDays <= 0 {
		prescribedDurationDays = budDays
	}

	total := (prescribedDurationDays + budDays - 1) / budDays

	plans := make([]ShipmentPlan, 0, total)
	remaining := prescribedDurationDays
	for i := 1; i <= total; i++ {
		supply := budDays
		if remaining < budDays {
			supply = remaining
		}
		plans = append(plans, ShipmentPlan{
			ShipmentNumber: i,
			TotalShipments: total,
			SupplyDays:     supply,
			BUDDays:        budDays,
			RefillDate:     start.AddDate(0, 0, (i-1)*budDays),
		})
		remaining -= supply
	}
	return plans
}
