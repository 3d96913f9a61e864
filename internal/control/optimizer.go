package control

import (
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"fleet-control/internal/fleet"
	"fleet-control/internal/lp"
)

// HoldingOptimizer computes per-bus holding times with a rolling-horizon
// linear program. Each call is a single-shot solve over the latest snapshot;
// the only state kept across calls is a diagnostic counter.
type HoldingOptimizer struct {
	targetHeadway   float64 // seconds
	maxHolding      float64 // seconds, upper bound on every holding variable
	passengerWeight float64
	scheduleWeight  float64
	bunchingPenalty float64
	solver          lp.Solver

	calls atomic.Uint64
}

func NewHoldingOptimizer(targetHeadway, maxHolding, passengerWeight, scheduleWeight, bunchingPenalty float64, solver lp.Solver) *HoldingOptimizer {
	if solver == nil {
		solver = lp.Simplex{}
	}
	return &HoldingOptimizer{
		targetHeadway:   targetHeadway,
		maxHolding:      maxHolding,
		passengerWeight: passengerWeight,
		scheduleWeight:  scheduleWeight,
		bunchingPenalty: bunchingPenalty,
		solver:          solver,
	}
}

// Calls reports how many optimization cycles have run on this instance.
func (o *HoldingOptimizer) Calls() uint64 { return o.calls.Load() }

// Optimize computes a holding time in [0, max] for every bus in the snapshot.
//
// Decision variables are the per-bus holds; for each adjacent pair in
// position order an auxiliary variable captures |projected gap - target|
// through the usual pair of linear constraints. The projected gap is
// current gap + hold(trailing) - hold(leading): holding the leading bus
// shortens the gap behind it, holding the trailing bus lengthens it.
//
// The objective charges passengerWeight per held second per passenger waiting
// at the bus's current stop, scheduleWeight per held second, and
// bunchingPenalty per second of residual headway deviation. The
// scheduleWeight * sum(|schedule delay|) term is constant in the decision
// variables; it is kept so objective values stay comparable across cycles.
//
// Optimize always returns a complete decision covering every input bus. When
// the solve fails the decision is all zeros and the error reports why; the
// caller should treat the cycle as degraded and retry next tick.
// horizonMinutes names the rolling window the snapshot covers; the
// single-shot formulation needs no other use of it.
func (o *HoldingOptimizer) Optimize(buses []fleet.BusState, demand []fleet.PassengerDemandSample, horizonMinutes int) (fleet.HoldingDecision, error) {
	n := o.calls.Add(1)

	if len(buses) == 0 {
		return fleet.HoldingDecision{}, nil
	}
	ordered := sortedByPositionTime(buses)

	waiting := make(map[string]int, len(demand))
	for _, d := range demand {
		waiting[d.StopID] += d.Waiting
	}

	prob := lp.NewProblem()
	holds := make([]lp.VarID, len(ordered))
	var obj []lp.Term
	constant := 0.0
	for i, bus := range ordered {
		v, err := prob.AddVariable("hold_"+bus.VehicleID, 0, o.maxHolding)
		if err != nil {
			return o.zeroDecision(ordered), fmt.Errorf("declare holding variable: %w", err)
		}
		holds[i] = v
		pax := float64(waiting[bus.CurrentStop])
		obj = append(obj, lp.Term{Var: v, Coef: o.passengerWeight*pax + o.scheduleWeight})
		delay := bus.ScheduleDelay
		if delay < 0 {
			delay = -delay
		}
		constant += o.scheduleWeight * delay
	}
	for i := 0; i+1 < len(ordered); i++ {
		dev, err := prob.AddVariable(fmt.Sprintf("dev_%d", i), 0, math.Inf(1))
		if err != nil {
			return o.zeroDecision(ordered), fmt.Errorf("declare deviation variable: %w", err)
		}
		gap := ordered[i+1].PositionTime - ordered[i].PositionTime
		lead, trail := holds[i], holds[i+1]
		// dev >= projected - target and dev >= target - projected, so at the
		// optimum dev equals |projected - target| without a quadratic term.
		prob.AddConstraint([]lp.Term{{Var: dev, Coef: 1}, {Var: trail, Coef: -1}, {Var: lead, Coef: 1}}, lp.GE, gap-o.targetHeadway)
		prob.AddConstraint([]lp.Term{{Var: dev, Coef: 1}, {Var: trail, Coef: 1}, {Var: lead, Coef: -1}}, lp.GE, o.targetHeadway-gap)
		obj = append(obj, lp.Term{Var: dev, Coef: o.bunchingPenalty})
	}
	prob.SetObjective(obj, constant)

	sol, err := o.solver.Solve(prob)
	if err != nil {
		log.Printf("warning: holding optimization #%d failed, holding nothing: %v", n, err)
		return o.zeroDecision(ordered), fmt.Errorf("holding optimization: %w", err)
	}

	decision := make(fleet.HoldingDecision, len(ordered))
	for i, bus := range ordered {
		h := sol.Value(holds[i])
		if h < 0 {
			h = 0
		}
		if h > o.maxHolding {
			h = o.maxHolding
		}
		decision[bus.VehicleID] = h
	}
	log.Printf("holding optimization #%d: %d buses, objective %.1f over %d min horizon", n, len(ordered), sol.Objective, horizonMinutes)
	return decision, nil
}

func (o *HoldingOptimizer) zeroDecision(buses []fleet.BusState) fleet.HoldingDecision {
	d := make(fleet.HoldingDecision, len(buses))
	for _, b := range buses {
		d[b.VehicleID] = 0
	}
	return d
}
