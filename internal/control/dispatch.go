package control

import "math"

// DispatchSizer decides how many buses should be in service for the coming
// horizon. It runs on a slower cadence than the holding optimizer.
type DispatchSizer struct {
	busCapacity     int // passengers per bus
	minServiceFloor int // buses; service never drops below this
}

func NewDispatchSizer(busCapacity, minServiceFloor int) *DispatchSizer {
	return &DispatchSizer{busCapacity: busCapacity, minServiceFloor: minServiceFloor}
}

// Size returns the bus count for the horizon given current and forecast
// demand in passengers per hour. Demand can never request more buses than are
// available, and the result never drops below the service floor.
func (s *DispatchSizer) Size(currentDemand, forecastDemand float64, availableBuses int) int {
	avg := (currentDemand + forecastDemand) / 2
	required := int(math.Ceil(avg / float64(s.busCapacity)))
	if required > availableBuses {
		required = availableBuses
	}
	if required < s.minServiceFloor {
		required = s.minServiceFloor
	}
	return required
}
