package control

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"fleet-control/internal/fleet"
)

// HeadwayAnalyzer computes headway statistics for one route snapshot.
type HeadwayAnalyzer struct {
	targetHeadway float64 // seconds
}

func NewHeadwayAnalyzer(targetHeadway float64) *HeadwayAnalyzer {
	return &HeadwayAnalyzer{targetHeadway: targetHeadway}
}

// Headways returns the time gaps between consecutive buses ordered by
// position time. Fewer than two buses yields nil.
func Headways(buses []fleet.BusState) []float64 {
	if len(buses) < 2 {
		return nil
	}
	ordered := sortedByPositionTime(buses)
	gaps := make([]float64, 0, len(ordered)-1)
	for i := 0; i+1 < len(ordered); i++ {
		gaps = append(gaps, ordered[i+1].PositionTime-ordered[i].PositionTime)
	}
	return gaps
}

// Compute derives headway statistics from a route snapshot. A route with
// fewer than two buses has no headway; all-zero stats are returned rather
// than an error.
func (a *HeadwayAnalyzer) Compute(buses []fleet.BusState) fleet.HeadwayStats {
	gaps := Headways(buses)
	if len(gaps) == 0 {
		return fleet.HeadwayStats{}
	}

	mean := stat.Mean(gaps, nil)
	std := stat.PopStdDev(gaps, nil)
	cv := 0.0
	if mean > 0 {
		cv = std / mean
	}

	min, max := gaps[0], gaps[0]
	for _, g := range gaps[1:] {
		if g < min {
			min = g
		}
		if g > max {
			max = g
		}
	}

	dev := mean - a.targetHeadway
	if dev < 0 {
		dev = -dev
	}
	return fleet.HeadwayStats{
		Mean:            mean,
		Std:             std,
		CV:              cv,
		Min:             min,
		Max:             max,
		TargetDeviation: dev,
	}
}

func sortedByPositionTime(buses []fleet.BusState) []fleet.BusState {
	out := append([]fleet.BusState(nil), buses...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PositionTime < out[j].PositionTime })
	return out
}
