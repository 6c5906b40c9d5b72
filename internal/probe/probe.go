package probe

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/gustycube/uptime-probe/internal/metrics"
	"github.com/gustycube/uptime-probe/internal/poller"
	"github.com/gustycube/uptime-probe/internal/tlsinfo"
	"github.com/gustycube/uptime-probe/internal/types"
	"github.com/gustycube/uptime-probe/internal/uptime"
)

type Settings struct {
	RunID    string
	Interval time.Duration
	Duration time.Duration
}

// Probe runs one poller per target in parallel and aggregates each completed
// run once every poller has finished.
type Probe struct {
	settings  Settings
	inspector tlsinfo.Interface
	client    *http.Client
	opts      []poller.Option
	log       *zap.SugaredLogger
	active    atomic.Int32
}

func New(settings Settings, inspector tlsinfo.Interface, client *http.Client, log *zap.SugaredLogger, opts ...poller.Option) *Probe {
	return &Probe{settings: settings, inspector: inspector, client: client, opts: opts, log: log}
}

// Active is the number of pollers currently running.
func (p *Probe) Active() int { return int(p.active.Load()) }

type result struct {
	idx int
	run types.PollerRun
	err error
}

// Run blocks until every target's poller is done, then returns one report
// per target in input order. A target whose run cannot be aggregated still
// gets a report, carrying the reason instead of figures.
func (p *Probe) Run(ctx context.Context, targets []string) []types.EndpointReport {
	ctx, span := otel.Tracer("uptime/probe").Start(ctx, "Run")
	defer span.End()

	results := make(chan result, len(targets))
	for i, target := range targets {
		go func(i int, target string) {
			p.active.Add(1)
			defer p.active.Add(-1)
			run, err := p.runOne(ctx, target)
			results <- result{idx: i, run: run, err: err}
		}(i, target)
	}

	runs := make([]result, len(targets))
	for range targets {
		r := <-results
		runs[r.idx] = r
	}

	reports := make([]types.EndpointReport, len(targets))
	for i, r := range runs {
		reports[i] = p.aggregate(r)
	}
	return reports
}

func (p *Probe) runOne(ctx context.Context, target string) (types.PollerRun, error) {
	opts := append([]poller.Option{poller.WithClient(p.client), poller.WithLogger(p.log)}, p.opts...)
	pl, err := poller.New(ctx, poller.Target{URL: target, Interval: p.settings.Interval, Duration: p.settings.Duration}, p.inspector, opts...)
	if err != nil {
		return types.PollerRun{EndpointURL: target, State: types.StateUninitialized}, err
	}
	run, err := pl.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		p.log.Warnw("poller stopped early", "endpoint", target, "samples", len(run.Samples))
		err = nil
	}
	return run, err
}

func (p *Probe) aggregate(r result) types.EndpointReport {
	rep := types.EndpointReport{RunID: p.settings.RunID, Run: r.run}
	if r.err != nil {
		rep.Error = r.err.Error()
		metrics.ReportsTotal.WithLabelValues("poller_error").Inc()
		p.log.Errorw("poller failed", "endpoint", r.run.EndpointURL, "err", r.err)
		return rep
	}
	u, err := uptime.Aggregate(r.run.Samples)
	if err != nil {
		rep.Error = err.Error()
		metrics.ReportsTotal.WithLabelValues("empty").Inc()
		p.log.Warnw("aggregation unavailable", "endpoint", r.run.EndpointURL, "err", err)
		return rep
	}
	rep.Uptime = u
	if !u.LatencyAvailable {
		rep.Error = uptime.ErrNoSuccessfulSamples.Error()
		metrics.ReportsTotal.WithLabelValues("no_success").Inc()
	} else {
		metrics.ReportsTotal.WithLabelValues("ok").Inc()
	}
	p.log.Infow("endpoint aggregated",
		"endpoint", r.run.EndpointURL,
		"samples", len(u.Samples),
		"total_uptime", u.TotalUptime,
		"average_latency", u.AverageLatency,
		"latency_available", u.LatencyAvailable,
	)
	return rep
}
