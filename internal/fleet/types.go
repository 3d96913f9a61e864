package fleet

// BusState is one vehicle's normalized position snapshot on a route, as landed
// by the ingestion layer. Immutable once produced; the control core never
// mutates it.
type BusState struct {
	VehicleID     string
	RouteID       string
	CurrentStop   string
	StopSequence  int     // position along the route's stop ordering
	PositionTime  float64 // seconds since the route's reference epoch, not wall-clock
	ScheduleDelay float64 // signed seconds vs. published schedule
}

// PassengerDemandSample is the number of passengers waiting at a stop at
// snapshot time.
type PassengerDemandSample struct {
	StopID     string
	RouteID    string
	Waiting    int
	AvgWaitSec float64 // mean time waited so far by passengers at the stop; 0 if unknown
}

// BunchingEvent flags one adjacent bus pair running closer than the bunching
// threshold. Recomputed on every detection pass, never persisted.
type BunchingEvent struct {
	Bus1ID   string  `json:"bus1Id"`
	Bus2ID   string  `json:"bus2Id"`
	TimeGap  float64 `json:"timeGapSec"`
	Severity float64 `json:"severity"` // (threshold - gap) / threshold, in [0,1]
	Location string  `json:"location"` // stop of the leading bus
}

// HeadwayStats summarizes the headway distribution of one route snapshot.
type HeadwayStats struct {
	Mean            float64
	Std             float64
	CV              float64 // std/mean; 0 when mean is 0
	Min             float64
	Max             float64
	TargetDeviation float64 // |mean - target headway|
}

// HoldingDecision maps each vehicle in a snapshot to its holding time in
// seconds, bounded by the configured maximum. Every input vehicle appears
// exactly once.
type HoldingDecision map[string]float64

// PerformanceMetrics is a named bag of post-hoc statistics over an observation
// window. A key is present only when its input series was non-empty.
type PerformanceMetrics map[string]float64
