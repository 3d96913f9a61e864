package control

import (
	"log"
	"sort"

	"fleet-control/internal/fleet"
)

// BunchingDetector flags adjacent bus pairs running closer together than the
// bunching threshold.
type BunchingDetector struct {
	threshold float64 // seconds
}

func NewBunchingDetector(threshold float64) *BunchingDetector {
	return &BunchingDetector{threshold: threshold}
}

// Detect scans a route snapshot for bunched pairs and returns events in route
// order. Buses are ordered by stop sequence rather than raw GPS distance:
// stop order is robust to GPS noise and matches where holding actions are
// actuated. Fewer than two buses on the route yields no events.
func (d *BunchingDetector) Detect(buses []fleet.BusState, routeID string) []fleet.BunchingEvent {
	route := make([]fleet.BusState, 0, len(buses))
	for _, b := range buses {
		if b.RouteID == routeID {
			route = append(route, b)
		}
	}
	if len(route) < 2 {
		return nil
	}
	sort.SliceStable(route, func(i, j int) bool { return route[i].StopSequence < route[j].StopSequence })

	var events []fleet.BunchingEvent
	for i := 0; i+1 < len(route); i++ {
		lead, trail := route[i], route[i+1]
		gap := trail.PositionTime - lead.PositionTime
		if gap < 0 {
			gap = -gap
		}
		if gap >= d.threshold {
			continue
		}
		sev := (d.threshold - gap) / d.threshold
		if sev < 0 {
			sev = 0
		}
		if sev > 1 {
			sev = 1
		}
		events = append(events, fleet.BunchingEvent{
			Bus1ID:   lead.VehicleID,
			Bus2ID:   trail.VehicleID,
			TimeGap:  gap,
			Severity: sev,
			Location: lead.CurrentStop,
		})
	}
	if len(events) > 0 {
		log.Printf("warning: detected %d bunching events on route %s", len(events), routeID)
	}
	return events
}
