// Package poller runs the polling loop for a single endpoint: one TLS
// inspection when the poller is built, an immediate first poll when it is
// run, then one poll each time the interval has elapsed until the duration
// budget is spent.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gustycube/uptime-probe/internal/httpclient"
	"github.com/gustycube/uptime-probe/internal/metrics"
	"github.com/gustycube/uptime-probe/internal/tlsinfo"
	"github.com/gustycube/uptime-probe/internal/types"
)

const (
	DefaultInterval = 60 * time.Second
	DefaultDuration = 3600 * time.Second

	// deadlineSlack is how far past the duration budget the loop sleeps
	// before its final check, so the budget comparison is strictly greater.
	deadlineSlack = time.Millisecond

	maxBodyBytes = 1 << 20
)

// Target is what to poll and for how long.
type Target struct {
	URL      string
	Interval time.Duration
	Duration time.Duration
}

// Poller owns the sample series of one endpoint until Run returns.
type Poller struct {
	target  Target
	client  *http.Client
	clock   Clock
	log     *zap.SugaredLogger
	failLog rate.Sometimes

	certErr error

	mu  sync.Mutex
	run types.PollerRun
}

type Option func(*Poller)

func WithClient(c *http.Client) Option { return func(p *Poller) { p.client = c } }

func WithClock(c Clock) Option { return func(p *Poller) { p.clock = c } }

func WithLogger(l *zap.SugaredLogger) Option { return func(p *Poller) { p.log = l } }

// New builds an initialized poller. It inspects the endpoint's certificate
// once; an inspection failure is logged and kept on the run, never returned.
// The only errors are invalid targets.
func New(ctx context.Context, target Target, inspector tlsinfo.Interface, opts ...Option) (*Poller, error) {
	if target.URL == "" {
		return nil, errors.New("poller: endpoint url is required")
	}
	if target.Interval == 0 {
		target.Interval = DefaultInterval
	}
	if target.Duration == 0 {
		target.Duration = DefaultDuration
	}
	if target.Interval < 0 || target.Duration < 0 {
		return nil, fmt.Errorf("poller: interval and duration must be positive (got %s, %s)", target.Interval, target.Duration)
	}

	p := &Poller{
		target:  target,
		clock:   realClock{},
		failLog: rate.Sometimes{First: 3, Interval: time.Minute},
		run: types.PollerRun{
			EndpointURL: target.URL,
			Interval:    target.Interval,
			Duration:    target.Duration,
			State:       types.StateUninitialized,
			Samples:     []types.SampleRecord{},
		},
	}
	for _, o := range opts {
		o(p)
	}
	if p.client == nil {
		p.client = httpclient.New(0, "")
	}
	if p.log == nil {
		p.log = zap.NewNop().Sugar()
	}
	p.log = p.log.With("endpoint", target.URL)

	if inspector != nil {
		host, cert, err := inspector.Inspect(ctx, target.URL)
		if err != nil {
			p.certErr = err
			p.run.CertError = err.Error()
			p.log.Warnw("certificate inspection failed, polling without tls metadata", "kind", tlsinfo.KindOf(err), "err", err)
		}
		if host.Hostname != "" {
			p.run.HostInfo = &host
		}
		if err == nil {
			p.run.Certificate = &cert
		}
	}
	p.run.State = types.StateInitialized
	return p, nil
}

// CertificateError is the inspection failure recorded at construction, or nil.
func (p *Poller) CertificateError() error { return p.certErr }

// State returns the current lifecycle state.
func (p *Poller) State() types.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run.State
}

// Run polls immediately, then whenever the interval has elapsed since the
// previous dispatch, until more than the configured duration has passed since
// start. Polls may fire late, never early. Cancelling ctx ends the run early;
// the partial run is still returned along with ctx.Err(). A poller runs once.
func (p *Poller) Run(ctx context.Context) (types.PollerRun, error) {
	p.mu.Lock()
	if p.run.State != types.StateInitialized {
		p.mu.Unlock()
		return types.PollerRun{}, ErrAlreadyStarted
	}
	start := p.clock.Now()
	p.run.State = types.StateInProgress
	p.run.StartTime = start
	p.mu.Unlock()

	metrics.ActivePollers.Inc()
	defer metrics.ActivePollers.Dec()
	p.log.Infow("poller started", "interval", p.target.Interval, "duration", p.target.Duration)

	deadline := start.Add(p.target.Duration)
	var err error
	p.poll(ctx)
	for {
		if err = ctx.Err(); err != nil {
			break
		}
		now := p.clock.Now()
		if now.Sub(start) > p.target.Duration {
			break
		}
		next := p.lastPoll().Add(p.target.Interval)
		if !now.Before(next) {
			p.poll(ctx)
			continue
		}
		wake := next
		if deadline.Before(wake) {
			wake = deadline.Add(deadlineSlack)
		}
		if err = p.clock.Sleep(ctx, wake.Sub(now)); err != nil {
			break
		}
	}

	p.mu.Lock()
	p.run.State = types.StateDone
	p.run.EndTime = p.clock.Now()
	out := p.run
	out.Samples = append([]types.SampleRecord(nil), p.run.Samples...)
	p.mu.Unlock()

	p.log.Infow("poller done", "samples", len(out.Samples), "elapsed", out.Elapsed(), "err", err)
	return out, err
}

func (p *Poller) lastPoll() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run.LastPollTime
}

func (p *Poller) externalIP() string {
	if p.run.HostInfo == nil {
		return ""
	}
	return p.run.HostInfo.EndpointIP
}

// poll performs one request and appends exactly one sample. A poll cut short
// by cancellation of ctx records nothing.
func (p *Poller) poll(ctx context.Context) {
	ctx, span := otel.Tracer("uptime/poller").Start(ctx, "poll")
	defer span.End()
	span.SetAttributes(attribute.String("endpoint.url", p.target.URL))

	dispatched := p.clock.Now()
	p.mu.Lock()
	p.run.LastPollTime = dispatched
	p.mu.Unlock()

	body, err := p.fetch(ctx)
	completed := p.clock.Now()

	sample := types.SampleRecord{
		ExternalIP: p.externalIP(),
		Latency:    completed.Sub(dispatched),
	}
	var d decoded
	if err == nil {
		d, err = decodeBody(body)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		span.RecordError(err)
		sample.Timestamp = completed
		sample.Status = types.Failure(err.Error())
		p.failLog.Do(func() {
			p.log.Warnw("poll failed", "err", err, "latency", sample.Latency)
		})
	} else {
		sample.Timestamp = d.timestamp
		sample.Metrics = d.metrics
		sample.Services = d.services
		sample.Status = d.status
		p.log.Debugw("poll ok", "status", d.status.String(), "latency", sample.Latency)
	}

	status := sample.Status.String()
	metrics.PollsTotal.WithLabelValues(status).Inc()
	metrics.PollLatency.WithLabelValues(status).Observe(sample.Latency.Seconds())
	span.SetAttributes(attribute.String("poll.status", status))

	p.mu.Lock()
	p.run.Samples = append(p.run.Samples, sample)
	p.mu.Unlock()
}

func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target.URL, nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpclient.HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return body, nil
}
