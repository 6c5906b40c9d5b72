package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/gustycube/uptime-probe/internal/types"
)

// Emitter delivers endpoint reports to an ingest endpoint. Reports that
// cannot be delivered are spooled to disk and retried by Drain.
type Emitter struct {
	ingest   string
	spoolDir string
	client   *http.Client
	// MaxElapsed bounds the retries of a single delivery.
	MaxElapsed time.Duration
}

func NewEmitter(ingest, spoolDir string, client *http.Client) *Emitter {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Emitter{ingest: ingest, spoolDir: spoolDir, client: client, MaxElapsed: 30 * time.Second}
}

// Enabled reports whether an ingest endpoint is configured.
func (e *Emitter) Enabled() bool { return e.ingest != "" }

// Publish posts each report, spooling the ones that fail. It returns the
// number of reports delivered.
func (e *Emitter) Publish(ctx context.Context, reports []types.EndpointReport, log *zap.SugaredLogger) int {
	if !e.Enabled() {
		return 0
	}
	sent := 0
	for _, r := range reports {
		if err := e.post(ctx, r); err != nil {
			log.Warnw("ingest failed, spooling", "endpoint", r.Run.EndpointURL, "err", err)
			e.spool(r, log)
			continue
		}
		sent++
	}
	return sent
}

func (e *Emitter) post(ctx context.Context, r types.EndpointReport) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(r); err != nil {
		return backoff.Permanent(err)
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.ingest, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(fmt.Errorf("rejected: %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("bad status: %d", resp.StatusCode)
		}
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = e.MaxElapsed
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func (e *Emitter) spool(r types.EndpointReport, log *zap.SugaredLogger) {
	if e.spoolDir == "" {
		return
	}
	if err := os.MkdirAll(e.spoolDir, 0o755); err != nil {
		log.Errorw("spool dir", "err", err)
		return
	}
	name := time.Now().UTC().Format("20060102T150405.000000000") + ".json"
	path := filepath.Join(e.spoolDir, name)
	f, err := os.Create(path)
	if err != nil {
		log.Errorw("spool create", "err", err)
		return
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(r); err != nil {
		log.Errorw("spool write", "path", path, "err", err)
	}
}

// Deliver re-sends whatever an earlier run left in the spool, then publishes
// reports. Reports spooled by this call wait for the next run, so a dead
// ingest costs one retry budget per report.
func (e *Emitter) Deliver(ctx context.Context, reports []types.EndpointReport, log *zap.SugaredLogger) int {
	if !e.Enabled() {
		return 0
	}
	e.Drain(ctx, log)
	return e.Publish(ctx, reports, log)
}

// Drain retries spooled reports, removing each one that is delivered.
func (e *Emitter) Drain(ctx context.Context, log *zap.SugaredLogger) {
	if !e.Enabled() || e.spoolDir == "" {
		return
	}
	entries, _ := os.ReadDir(e.spoolDir)
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".json" {
			continue
		}
		p := filepath.Join(e.spoolDir, ent.Name())
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var r types.EndpointReport
		if err := json.Unmarshal(data, &r); err != nil {
			log.Warnw("unreadable spooled report", "path", p, "err", err)
			continue
		}
		if err := e.post(ctx, r); err == nil {
			_ = os.Remove(p)
		}
	}
}
