// Package uptime turns a completed series of samples into availability
// figures: the success streak length at each sample, the total time spent in
// streaks that ended in an observed failure, and the mean latency of
// successful polls.
package uptime

import (
	"errors"
	"sort"
	"time"

	"github.com/gustycube/uptime-probe/internal/types"
)

var (
	// ErrEmptySeries is returned when there are no samples to aggregate.
	ErrEmptySeries = errors.New("uptime: empty sample series")
	// ErrNoSuccessfulSamples is returned when latency is requested for a
	// series in which no poll succeeded.
	ErrNoSuccessfulSamples = errors.New("uptime: no successful samples")
)

// CumulativeUptimes returns, for each sample, how long the success streak
// ending at that sample has lasted. The first value is always zero and a
// failure resets the running value to zero. Samples must be time-ordered.
func CumulativeUptimes(samples []types.SampleRecord) ([]time.Duration, error) {
	if len(samples) == 0 {
		return nil, ErrEmptySeries
	}
	out := make([]time.Duration, len(samples))
	var cumulative time.Duration
	for i := 1; i < len(samples); i++ {
		if samples[i].Status.OK() {
			cumulative += samples[i].Timestamp.Sub(samples[i-1].Timestamp)
		} else {
			cumulative = 0
		}
		out[i] = cumulative
	}
	return out, nil
}

// TotalUptime sums the streaks that were terminated by an observed failure.
// With no failures at all it is the last cumulative value. A streak still
// open at the final sample is not counted when the series contains any
// failure; callers relying on that figure should know it undercounts runs
// that recover before the end.
func TotalUptime(samples []types.SampleRecord, cumulative []time.Duration) (time.Duration, error) {
	if len(samples) == 0 {
		return 0, ErrEmptySeries
	}
	if len(cumulative) != len(samples) {
		return 0, errors.New("uptime: cumulative series length does not match samples")
	}

	failures := 0
	for _, s := range samples {
		if !s.Status.OK() {
			failures++
		}
	}
	if failures == 0 {
		return cumulative[len(cumulative)-1], nil
	}

	var total time.Duration
	for i := 0; i < len(samples)-1; i++ {
		if !samples[i+1].Status.OK() {
			total += cumulative[i]
		}
	}
	return total, nil
}

// AverageLatency is the arithmetic mean latency of successful samples.
func AverageLatency(samples []types.SampleRecord) (time.Duration, error) {
	if len(samples) == 0 {
		return 0, ErrEmptySeries
	}
	var sum time.Duration
	n := 0
	for _, s := range samples {
		if s.Status.OK() {
			sum += s.Latency
			n++
		}
	}
	if n == 0 {
		return 0, ErrNoSuccessfulSamples
	}
	return sum / time.Duration(n), nil
}

// Aggregate computes the full report for a run's samples. The input is not
// modified; a stable, timestamp-ordered copy is scanned instead, since
// successful samples carry the endpoint's own clock while failures carry the
// probe's. A series with no successful sample still yields a report, with
// LatencyAvailable false.
func Aggregate(samples []types.SampleRecord) (*types.UptimeReport, error) {
	if len(samples) == 0 {
		return nil, ErrEmptySeries
	}
	ordered := make([]types.SampleRecord, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	cumulative, err := CumulativeUptimes(ordered)
	if err != nil {
		return nil, err
	}
	total, err := TotalUptime(ordered, cumulative)
	if err != nil {
		return nil, err
	}

	report := &types.UptimeReport{
		Samples:           ordered,
		CumulativeUptimes: cumulative,
		TotalUptime:       total,
	}
	latency, err := AverageLatency(ordered)
	switch {
	case err == nil:
		report.AverageLatency = latency
		report.LatencyAvailable = true
	case errors.Is(err, ErrNoSuccessfulSamples):
	default:
		return nil, err
	}
	return report, nil
}
