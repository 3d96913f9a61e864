package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	CyclesTotal    prometheus.Counter
	DegradedCycles prometheus.Counter
	BunchingEvents prometheus.Counter

	ActiveBuses  prometheus.Gauge
	ActiveRoutes prometheus.Gauge

	CycleDuration prometheus.Histogram
	SolveDuration prometheus.Histogram
	HoldingTime   prometheus.Histogram

	RecommendedBuses prometheus.Gauge
	AvailableBuses   prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	TargetHeadway     prometheus.Gauge
	BunchingThreshold prometheus.Gauge
	MaxHoldingTime    prometheus.Gauge
	CycleInterval     prometheus.Gauge // seconds
}

func NewCollector(targetHeadway, bunchingThreshold, maxHoldingTime float64, cycleInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetcontrol_cycles_total",
			Help: "Total optimization cycles run.",
		}),
		DegradedCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetcontrol_degraded_cycles_total",
			Help: "Cycles where the solver failed and zero holding was dispatched.",
		}),
		BunchingEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetcontrol_bunching_events_total",
			Help: "Total bunching events detected.",
		}),
		ActiveBuses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcontrol_active_buses",
			Help: "Buses in the latest position snapshot.",
		}),
		ActiveRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcontrol_active_routes",
			Help: "Routes in the latest position snapshot.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetcontrol_cycle_duration_seconds",
			Help:    "Duration of full optimization cycles.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		SolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetcontrol_solve_duration_seconds",
			Help:    "Duration of LP solves.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		HoldingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetcontrol_holding_seconds",
			Help:    "Holding times dispatched per bus.",
			Buckets: prometheus.LinearBuckets(0, 30, 10),
		}),
		RecommendedBuses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcontrol_recommended_buses",
			Help: "Latest fleet-size recommendation.",
		}),
		AvailableBuses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcontrol_available_buses",
			Help: "Buses available for dispatch.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetcontrol_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetcontrol_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcontrol_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetcontrol_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TargetHeadway: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcontrol_target_headway_seconds",
			Help: "Configured target headway.",
		}),
		BunchingThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcontrol_bunching_threshold_seconds",
			Help: "Configured bunching threshold.",
		}),
		MaxHoldingTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcontrol_max_holding_seconds",
			Help: "Configured maximum holding time.",
		}),
		CycleInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcontrol_cycle_interval_seconds",
			Help: "Optimization cycle interval in seconds.",
		}),
	}

	// Register
	reg.MustRegister(
		c.CyclesTotal, c.DegradedCycles, c.BunchingEvents,
		c.ActiveBuses, c.ActiveRoutes,
		c.CycleDuration, c.SolveDuration, c.HoldingTime,
		c.RecommendedBuses, c.AvailableBuses,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.TargetHeadway, c.BunchingThreshold, c.MaxHoldingTime, c.CycleInterval,
	)

	c.TargetHeadway.Set(targetHeadway)
	c.BunchingThreshold.Set(bunchingThreshold)
	c.MaxHoldingTime.Set(maxHoldingTime)
	c.CycleInterval.Set(cycleInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
