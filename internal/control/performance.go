package control

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"fleet-control/internal/fleet"
)

// Metric keys produced by PerformanceCalculator.Compute.
const (
	MetricMeanHeadway       = "mean_headway"
	MetricStdHeadway        = "std_headway"
	MetricCVHeadway         = "cv_headway"
	MetricHeadwayRegularity = "headway_regularity"
	MetricBunchingRate      = "bunching_rate"
	MetricMeanWait          = "mean_wait_time"
	MetricMedianWait        = "median_wait_time"
	MetricP95Wait           = "95th_percentile_wait"
	MetricMaxWait           = "max_wait_time"
)

// PerformanceCalculator derives post-hoc service statistics over an
// observation window.
type PerformanceCalculator struct {
	bunchingThreshold float64 // seconds
}

func NewPerformanceCalculator(bunchingThreshold float64) *PerformanceCalculator {
	return &PerformanceCalculator{bunchingThreshold: bunchingThreshold}
}

// Compute summarizes observed headways and passenger wait times. Each metric
// family is present only when its input series is non-empty.
func (c *PerformanceCalculator) Compute(headways, waitTimes []float64) fleet.PerformanceMetrics {
	m := fleet.PerformanceMetrics{}

	if len(headways) > 0 {
		mean := stat.Mean(headways, nil)
		std := stat.PopStdDev(headways, nil)
		cv := 0.0
		if mean > 0 {
			cv = std / mean
		}
		bunched := 0
		for _, h := range headways {
			if h < c.bunchingThreshold {
				bunched++
			}
		}
		m[MetricMeanHeadway] = mean
		m[MetricStdHeadway] = std
		m[MetricCVHeadway] = cv
		m[MetricHeadwayRegularity] = 1 - cv
		m[MetricBunchingRate] = float64(bunched) / float64(len(headways))
	}

	if len(waitTimes) > 0 {
		maxWait := waitTimes[0]
		for _, w := range waitTimes[1:] {
			if w > maxWait {
				maxWait = w
			}
		}
		m[MetricMeanWait] = stat.Mean(waitTimes, nil)
		m[MetricMedianWait] = quantile(waitTimes, 0.5)
		m[MetricP95Wait] = quantile(waitTimes, 0.95)
		m[MetricMaxWait] = maxWait
	}

	return m
}

// Compare reports the percent improvement of optimized over baseline for
// every metric present in both, skipping zero baselines to avoid division by
// zero. Positive values mean the optimized run reduced the metric.
func (c *PerformanceCalculator) Compare(optimized, baseline fleet.PerformanceMetrics) map[string]float64 {
	improvements := make(map[string]float64)
	for key, opt := range optimized {
		base, ok := baseline[key]
		if !ok || base == 0 {
			continue
		}
		improvements[key+"_improvement"] = (base - opt) / base * 100
	}
	return improvements
}

// quantile is the linearly interpolated order statistic at fraction p
// (p*(n-1) fractional rank). gonum's stat.Quantile kinds step on the
// empirical CDF instead, which reports the lower sample for an even-length
// median.
func quantile(xs []float64, p float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
