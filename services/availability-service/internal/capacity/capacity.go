// Package capacity resolves how many concurrent bookings the shop accepts at
// a given time of day. It is shop-wide and orthogonal to per-staff occupancy:
// a saturated shop blocks a free staff member, but shop headroom never
// overrides a staff member's own unavailability.
package capacity

import (
	"math"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
)

// Limit is the resolved capacity for one time granule.
type Limit struct {
	EffectiveMax int
	Ceiling      int
}

// Unlimited is returned when the shop has no capacity band covering a minute.
var Unlimited = Limit{EffectiveMax: math.MaxInt32, Ceiling: math.MaxInt32}

// Resolve picks the capacity band covering minuteOfDay and applies the peak
// multiplier (rounded down, never below 1) plus the overbooking allowance.
// Bands are half-open [StartMinute, EndMinute); the first match wins.
func Resolve(configs []model.CapacityConfig, minuteOfDay int) Limit {
	for _, cfg := range configs {
		if minuteOfDay < cfg.StartMinute || minuteOfDay >= cfg.EndMinute {
			continue
		}
		return fromConfig(cfg)
	}
	return Unlimited
}

func fromConfig(cfg model.CapacityConfig) Limit {
	mult := cfg.PeakMultiplier
	if mult <= 0 {
		mult = 1
	}
	eff := int(math.Floor(float64(cfg.MaxConcurrent) * mult))
	if eff < 1 {
		eff = 1
	}
	allowance := cfg.OverbookAllowance
	if allowance < 0 {
		allowance = 0
	}
	return Limit{EffectiveMax: eff, Ceiling: eff + allowance}
}
