// Package runner drives the control loop: on each cycle tick it pulls the
// latest bus and demand snapshots, runs detection and the holding
// optimization per route, and publishes the decisions. A slower tick sizes
// the fleet and reports the performance window.
package runner

import (
	"context"
	"database/sql"
	"log"
	"sort"
	"sync"
	"time"

	"fleet-control/internal/config"
	"fleet-control/internal/control"
	"fleet-control/internal/demand"
	"fleet-control/internal/fleet"
	"fleet-control/internal/lp"
	mmetrics "fleet-control/internal/metrics"
	"fleet-control/internal/publisher"
	"fleet-control/internal/store"
)

type Runner struct {
	db  *sql.DB
	pub *publisher.Publisher
	cfg *config.Config

	analyzer  *control.HeadwayAnalyzer
	detector  *control.BunchingDetector
	optimizer *control.HoldingOptimizer
	sizer     *control.DispatchSizer
	perf      *control.PerformanceCalculator
	gen       *demand.Generator // nil when demand comes from the store

	metrics *mmetrics.Collector

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	windowHeadways []float64
	windowWaits    []float64
	prevWindow     fleet.PerformanceMetrics
	demandRate     float64 // latest observed passengers/hour
	forecastRate   float64 // exponential moving average of demandRate
	snapshotBuses  int
}

func New(db *sql.DB, pub *publisher.Publisher, cfg *config.Config, mcol *mmetrics.Collector) *Runner {
	r := &Runner{
		db:        db,
		pub:       pub,
		cfg:       cfg,
		analyzer:  control.NewHeadwayAnalyzer(cfg.TargetHeadway),
		detector:  control.NewBunchingDetector(cfg.BunchingThreshold),
		optimizer: control.NewHoldingOptimizer(cfg.TargetHeadway, cfg.MaxHoldingTime, cfg.PassengerWeight, cfg.ScheduleWeight, cfg.BunchingPenalty, lp.Simplex{}),
		sizer:     control.NewDispatchSizer(cfg.BusCapacity, cfg.MinServiceFloor()),
		perf:      control.NewPerformanceCalculator(cfg.BunchingThreshold),
		metrics:   mcol,
	}
	if cfg.SyntheticDemand {
		r.gen = demand.NewGenerator(cfg.DemandSeed, cfg.DemandBaseRate)
	}
	return r
}

// Start launches the cycle and dispatch loops. The first cycle runs
// immediately; after that one cycle runs per tick, at most one in flight.
func (r *Runner) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.runCycle(ctx); err != nil && ctx.Err() == nil {
			log.Printf("cycle error: %v", err)
		}
		ticker := time.NewTicker(r.cfg.CycleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// The loop body is synchronous, so a slow solve drops ticks
				// rather than stacking concurrent cycles over stale snapshots.
				if err := r.runCycle(ctx); err != nil && ctx.Err() == nil {
					log.Printf("cycle error: %v", err)
				}
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.DispatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.runDispatch(ctx); err != nil && ctx.Err() == nil {
					log.Printf("dispatch sizing error: %v", err)
				}
			}
		}
	}()
}

// Stop cancels future ticks and waits for any in-flight cycle to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

type routeResult struct {
	routeID  string
	events   []fleet.BunchingEvent
	stats    fleet.HeadwayStats
	decision fleet.HoldingDecision
	degraded bool
}

func (r *Runner) runCycle(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CycleInterval)
	defer cancel()

	buses, err := store.FetchBusSnapshot(ctx, r.db)
	if err != nil {
		return err
	}
	byRoute := r.groupByRoute(buses)
	routeIDs := make([]string, 0, len(byRoute))
	for id := range byRoute {
		routeIDs = append(routeIDs, id)
	}
	sort.Strings(routeIDs)

	var demandSamples []fleet.PassengerDemandSample
	if r.gen != nil {
		// Route order is fixed so a seeded generator draws reproducibly.
		now := time.Now().In(r.cfg.Location)
		for _, routeID := range routeIDs {
			demandSamples = append(demandSamples, r.gen.Snapshot(routeID, occupiedStops(byRoute[routeID]), now)...)
		}
	} else {
		demandSamples, err = store.FetchDemandSnapshot(ctx, r.db)
		if err != nil {
			return err
		}
	}

	results := make([]routeResult, 0, len(routeIDs))
	var cycleHeadways []float64
	for _, routeID := range routeIDs {
		routeBuses := byRoute[routeID]
		res := routeResult{
			routeID: routeID,
			events:  r.detector.Detect(routeBuses, routeID),
			stats:   r.analyzer.Compute(routeBuses),
		}
		solveStart := time.Now()
		res.decision, err = r.optimizer.Optimize(routeBuses, demandSamples, r.cfg.HorizonMinutes)
		if r.metrics != nil {
			r.metrics.SolveDuration.Observe(time.Since(solveStart).Seconds())
		}
		if err != nil {
			res.degraded = true
		}
		results = append(results, res)
		cycleHeadways = append(cycleHeadways, control.Headways(routeBuses)...)
	}

	// A cancelled cycle dispatches nothing: decisions are published only
	// after every route has been computed and the context is still live.
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	for _, res := range results {
		if len(res.events) > 0 {
			if err := r.pub.PublishBunching(publisher.BunchingMessage{RouteID: res.routeID, Timestamp: now, Events: res.events}); err != nil {
				log.Printf("publish bunching for route %s: %v", res.routeID, err)
			}
		}
		msg := publisher.HoldingMessage{
			RouteID:   res.routeID,
			Timestamp: now,
			Cycle:     r.optimizer.Calls(),
			Degraded:  res.degraded,
			Holds:     res.decision,
		}
		if err := r.pub.PublishHolding(msg); err != nil {
			log.Printf("publish holding for route %s: %v", res.routeID, err)
		}
		if res.stats.Mean > 0 {
			log.Printf("route %s: %d buses, mean headway %.0fs (cv %.2f), %d bunching events",
				res.routeID, len(byRoute[res.routeID]), res.stats.Mean, res.stats.CV, len(res.events))
		}
	}

	r.observeCycle(results, buses, byRoute, demandSamples, cycleHeadways, time.Since(start))
	return nil
}

func (r *Runner) observeCycle(results []routeResult, buses []fleet.BusState, byRoute map[string][]fleet.BusState, demandSamples []fleet.PassengerDemandSample, headways []float64, elapsed time.Duration) {
	totalWaiting := 0
	var waits []float64
	for _, s := range demandSamples {
		totalWaiting += s.Waiting
		if s.Waiting > 0 && s.AvgWaitSec > 0 {
			waits = append(waits, s.AvgWaitSec)
		}
	}

	r.mu.Lock()
	r.windowHeadways = append(r.windowHeadways, headways...)
	r.windowWaits = append(r.windowWaits, waits...)
	// Waiting counts accumulate over roughly one headway, so scale the stock
	// into a passengers/hour rate for the dispatch sizer.
	r.demandRate = float64(totalWaiting) * 3600 / r.cfg.TargetHeadway
	if r.forecastRate == 0 {
		r.forecastRate = r.demandRate
	} else {
		r.forecastRate = 0.3*r.demandRate + 0.7*r.forecastRate
	}
	r.snapshotBuses = len(buses)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.CyclesTotal.Inc()
		r.metrics.CycleDuration.Observe(elapsed.Seconds())
		r.metrics.ActiveBuses.Set(float64(len(buses)))
		r.metrics.ActiveRoutes.Set(float64(len(byRoute)))
		for _, res := range results {
			if res.degraded {
				r.metrics.DegradedCycles.Inc()
			}
			r.metrics.BunchingEvents.Add(float64(len(res.events)))
			for _, h := range res.decision {
				r.metrics.HoldingTime.Observe(h)
			}
		}
	}
}

func (r *Runner) runDispatch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	r.mu.Lock()
	current := r.demandRate
	forecast := r.forecastRate
	fallbackAvailable := r.snapshotBuses
	windowHeadways := r.windowHeadways
	windowWaits := r.windowWaits
	r.windowHeadways = nil
	r.windowWaits = nil
	r.mu.Unlock()

	available, err := store.FetchAvailableBuses(ctx, r.db)
	if err != nil {
		log.Printf("warning: falling back to snapshot bus count: %v", err)
		available = fallbackAvailable
	}

	n := r.sizer.Size(current, forecast, available)
	log.Printf("dispatch sizing: demand %.0f/h forecast %.0f/h available %d -> %d buses", current, forecast, available, n)
	if r.metrics != nil {
		r.metrics.RecommendedBuses.Set(float64(n))
		r.metrics.AvailableBuses.Set(float64(available))
	}
	if err := r.pub.PublishDispatch(publisher.DispatchMessage{
		Timestamp:        time.Now(),
		RecommendedBuses: n,
		AvailableBuses:   available,
		DemandPerHour:    current,
		ForecastPerHour:  forecast,
	}); err != nil {
		log.Printf("publish dispatch: %v", err)
	}

	// Close out the observation window and report against the previous one.
	window := r.perf.Compute(windowHeadways, windowWaits)
	r.mu.Lock()
	prev := r.prevWindow
	r.prevWindow = window
	r.mu.Unlock()
	if len(window) > 0 && len(prev) > 0 {
		for key, pct := range r.perf.Compare(window, prev) {
			log.Printf("performance %s: %+.2f%%", key, pct)
		}
	}
	return nil
}

func (r *Runner) groupByRoute(buses []fleet.BusState) map[string][]fleet.BusState {
	allowed := map[string]bool{}
	for _, id := range r.cfg.RouteIDs {
		allowed[id] = true
	}
	byRoute := make(map[string][]fleet.BusState)
	for _, b := range buses {
		if len(allowed) > 0 && !allowed[b.RouteID] {
			continue
		}
		byRoute[b.RouteID] = append(byRoute[b.RouteID], b)
	}
	return byRoute
}

func occupiedStops(buses []fleet.BusState) []string {
	seen := make(map[string]bool, len(buses))
	stops := make([]string, 0, len(buses))
	for _, b := range buses {
		if !seen[b.CurrentStop] {
			seen[b.CurrentStop] = true
			stops = append(stops, b.CurrentStop)
		}
	}
	return stops
}
