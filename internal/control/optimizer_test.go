package control

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-control/internal/fleet"
	"fleet-control/internal/lp"
)

type failingSolver struct{}

func (failingSolver) Solve(*lp.Problem) (*lp.Solution, error) {
	return nil, errors.New("solver unavailable")
}

func newTestOptimizer(passengerWeight, scheduleWeight, bunchingPenalty float64) *HoldingOptimizer {
	return NewHoldingOptimizer(300, 180, passengerWeight, scheduleWeight, bunchingPenalty, lp.Simplex{})
}

// maxResidualDev recomputes the worst |projected gap - target| a decision
// leaves behind.
func maxResidualDev(buses []fleet.BusState, decision fleet.HoldingDecision, target float64) float64 {
	ordered := append([]fleet.BusState(nil), buses...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PositionTime < ordered[j].PositionTime })
	worst := 0.0
	for i := 0; i+1 < len(ordered); i++ {
		gap := ordered[i+1].PositionTime - ordered[i].PositionTime
		projected := gap + decision[ordered[i+1].VehicleID] - decision[ordered[i].VehicleID]
		dev := projected - target
		if dev < 0 {
			dev = -dev
		}
		if dev > worst {
			worst = dev
		}
	}
	return worst
}

func TestHoldingOptimizer(t *testing.T) {
	t.Parallel()

	t.Run("empty snapshot returns empty decision and still counts the call", func(t *testing.T) {
		t.Parallel()
		o := newTestOptimizer(1, 0.5, 2)
		decision, err := o.Optimize(nil, nil, 30)
		require.NoError(t, err)
		assert.Empty(t, decision)
		assert.EqualValues(t, 1, o.Calls())
	})

	t.Run("holds the trailing bus of a short gap to the limit", func(t *testing.T) {
		t.Parallel()
		o := newTestOptimizer(1, 0.5, 2)
		buses := []fleet.BusState{
			busOnRoute("b1", "r1", "stop_1", 1, 0),
			busOnRoute("b2", "r1", "stop_2", 2, 60),
		}
		// Gap 60 vs target 300: lengthening by holding b2 is worth 2/s against
		// its 0.5/s holding cost, so b2 is held to the 180s bound; holding b1
		// would only shrink the gap further.
		decision, err := o.Optimize(buses, nil, 30)
		require.NoError(t, err)
		assert.InDelta(t, 0, decision["b1"], 1e-6)
		assert.InDelta(t, 180, decision["b2"], 1e-6)
	})

	t.Run("waiting passengers suppress holding", func(t *testing.T) {
		t.Parallel()
		o := newTestOptimizer(1, 0.5, 2)
		buses := []fleet.BusState{
			busOnRoute("b1", "r1", "stop_1", 1, 0),
			busOnRoute("b2", "r1", "stop_2", 2, 60),
		}
		demand := []fleet.PassengerDemandSample{{StopID: "stop_2", RouteID: "r1", Waiting: 10}}

		decision, err := o.Optimize(buses, demand, 30)
		require.NoError(t, err)
		assert.InDelta(t, 0, decision["b1"], 1e-6)
		assert.InDelta(t, 0, decision["b2"], 1e-6)
	})

	t.Run("every bus appears once within bounds", func(t *testing.T) {
		t.Parallel()
		o := newTestOptimizer(1, 0.5, 2)
		buses := []fleet.BusState{
			busOnRoute("b1", "r1", "stop_1", 1, 0),
			busOnRoute("b2", "r1", "stop_2", 2, 180),
			busOnRoute("b3", "r1", "stop_5", 5, 600),
		}
		demand := []fleet.PassengerDemandSample{
			{StopID: "stop_1", Waiting: 3},
			{StopID: "stop_5", Waiting: 7},
		}

		decision, err := o.Optimize(buses, demand, 30)
		require.NoError(t, err)
		require.Len(t, decision, 3)
		for _, id := range []string{"b1", "b2", "b3"} {
			h, ok := decision[id]
			require.True(t, ok, "missing decision for %s", id)
			assert.GreaterOrEqual(t, h, 0.0)
			assert.LessOrEqual(t, h, 180.0)
		}
	})

	t.Run("identical inputs produce identical decisions", func(t *testing.T) {
		t.Parallel()
		o := newTestOptimizer(1, 0.5, 2)
		buses := []fleet.BusState{
			busOnRoute("b1", "r1", "stop_1", 1, 0),
			busOnRoute("b2", "r1", "stop_2", 2, 180),
			busOnRoute("b3", "r1", "stop_5", 5, 600),
		}
		demand := []fleet.PassengerDemandSample{{StopID: "stop_2", Waiting: 4}}

		first, err := o.Optimize(buses, demand, 30)
		require.NoError(t, err)
		second, err := o.Optimize(buses, demand, 30)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.EqualValues(t, 2, o.Calls())
	})

	t.Run("raising the bunching penalty weakly reduces residual deviation", func(t *testing.T) {
		t.Parallel()
		buses := []fleet.BusState{
			busOnRoute("b1", "r1", "stop_1", 1, 0),
			busOnRoute("b2", "r1", "stop_2", 2, 60),
		}
		demand := []fleet.PassengerDemandSample{{StopID: "stop_2", Waiting: 1}}

		weak, err := newTestOptimizer(1, 0.5, 0.1).Optimize(buses, demand, 30)
		require.NoError(t, err)
		strong, err := newTestOptimizer(1, 0.5, 2).Optimize(buses, demand, 30)
		require.NoError(t, err)

		weakDev := maxResidualDev(buses, weak, 300)
		strongDev := maxResidualDev(buses, strong, 300)
		assert.LessOrEqual(t, strongDev, weakDev)
	})

	t.Run("schedule delay shifts the objective but not the optimum", func(t *testing.T) {
		t.Parallel()
		o := newTestOptimizer(1, 0.5, 2)
		base := []fleet.BusState{
			busOnRoute("b1", "r1", "stop_1", 1, 0),
			busOnRoute("b2", "r1", "stop_2", 2, 60),
		}
		delayed := append([]fleet.BusState(nil), base...)
		delayed[0].ScheduleDelay = 120
		delayed[1].ScheduleDelay = -45

		without, err := o.Optimize(base, nil, 30)
		require.NoError(t, err)
		with, err := o.Optimize(delayed, nil, 30)
		require.NoError(t, err)
		assert.Equal(t, without, with)
	})

	t.Run("solver failure falls back to zero holding", func(t *testing.T) {
		t.Parallel()
		o := NewHoldingOptimizer(300, 180, 1, 0.5, 2, failingSolver{})
		buses := []fleet.BusState{
			busOnRoute("b1", "r1", "stop_1", 1, 0),
			busOnRoute("b2", "r1", "stop_2", 2, 60),
		}

		decision, err := o.Optimize(buses, nil, 30)
		assert.Error(t, err)
		require.Len(t, decision, 2)
		assert.Zero(t, decision["b1"])
		assert.Zero(t, decision["b2"])
		assert.EqualValues(t, 1, o.Calls())
	})

	t.Run("single bus is never held", func(t *testing.T) {
		t.Parallel()
		o := newTestOptimizer(1, 0.5, 2)
		decision, err := o.Optimize([]fleet.BusState{busOnRoute("b1", "r1", "stop_1", 1, 0)}, nil, 30)
		require.NoError(t, err)
		require.Len(t, decision, 1)
		assert.InDelta(t, 0, decision["b1"], 1e-6)
	})
}
