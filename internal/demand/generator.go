// Package demand generates synthetic passenger demand for runs without a
// live demand feed. Arrival counts follow a Poisson process whose rate is
// shaped by time-of-day and day-of-week patterns.
package demand

import (
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"fleet-control/internal/fleet"
)

// Generator produces per-stop waiting-passenger snapshots. Seeded generators
// are reproducible.
type Generator struct {
	src      rand.Source
	baseRate float64 // mean waiting passengers per stop at the midday baseline
}

func NewGenerator(seed int64, baseRate float64) *Generator {
	return &Generator{
		src:      rand.NewPCG(uint64(seed), uint64(seed)+1),
		baseRate: baseRate,
	}
}

// TimeMultiplier scales demand by hour of day: commute peaks, quiet nights.
func TimeMultiplier(hour int) float64 {
	switch {
	case hour >= 7 && hour < 10:
		return 2.5 // morning peak
	case hour >= 10 && hour < 17:
		return 1.0 // midday
	case hour >= 17 && hour < 20:
		return 2.8 // evening peak
	case hour >= 20 && hour < 24:
		return 0.3 // night
	default:
		return 0.2 // early morning
	}
}

// DayMultiplier scales demand by day of week.
func DayMultiplier(day time.Weekday) float64 {
	switch day {
	case time.Monday:
		return 1.2
	case time.Tuesday:
		return 1.1
	case time.Friday:
		return 1.15
	case time.Saturday:
		return 0.7
	case time.Sunday:
		return 0.5
	default:
		return 1.0
	}
}

// Snapshot draws one waiting-passenger snapshot for the stops of a route at
// the given time. Terminal stops are weighted busier than intermediate ones.
func (g *Generator) Snapshot(routeID string, stops []string, at time.Time) []fleet.PassengerDemandSample {
	mult := TimeMultiplier(at.Hour()) * DayMultiplier(at.Weekday())

	samples := make([]fleet.PassengerDemandSample, 0, len(stops))
	for i, stop := range stops {
		importance := 1.0
		if len(stops) > 2 && (i == 0 || i == len(stops)-1) {
			importance = 1.5
		}
		lambda := g.baseRate * mult * importance

		waiting := 0
		avgWait := 0.0
		if lambda > 0 {
			waiting = int(distuv.Poisson{Lambda: lambda, Src: g.src}.Rand())
			if waiting > 0 {
				// Mean time already waited, roughly half a nominal headway.
				avgWait = distuv.Exponential{Rate: 1.0 / 150.0, Src: g.src}.Rand()
			}
		}
		samples = append(samples, fleet.PassengerDemandSample{
			StopID:     stop,
			RouteID:    routeID,
			Waiting:    waiting,
			AvgWaitSec: avgWait,
		})
	}
	return samples
}
