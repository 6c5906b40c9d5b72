package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gustycube/uptime-probe/internal/config"
	"github.com/gustycube/uptime-probe/internal/emit"
	"github.com/gustycube/uptime-probe/internal/health"
	"github.com/gustycube/uptime-probe/internal/httpclient"
	"github.com/gustycube/uptime-probe/internal/logging"
	"github.com/gustycube/uptime-probe/internal/metrics"
	"github.com/gustycube/uptime-probe/internal/output"
	"github.com/gustycube/uptime-probe/internal/probe"
	"github.com/gustycube/uptime-probe/internal/queue"
	"github.com/gustycube/uptime-probe/internal/telemetry"
	"github.com/gustycube/uptime-probe/internal/tlsinfo"
)

const version = "1.0.0"

func main() {
	var configFile string
	var targets string
	var targetsFile string
	var interval int
	var duration int
	var requestTimeout int
	var tlsTimeout int
	var outfile string
	var outputFormat string
	var ua string
	var runID string
	var metricsAddr string
	var otelEndpoint string
	var otelInsecure bool
	var otelService string
	var ingest string
	var spoolDir string
	var shareTLS bool
	var verbose bool
	var showVersion bool

	flag.StringVar(&configFile, "config", "", "path to config file (YAML or JSON)")
	flag.StringVar(&targets, "targets", "", "comma-separated endpoint URLs")
	flag.StringVar(&targetsFile, "targets_file", "", "path to newline-separated endpoint URLs")
	flag.IntVar(&interval, "interval", 0, "seconds between polls (default 60)")
	flag.IntVar(&duration, "duration", 0, "seconds to poll each endpoint (default 3600)")
	flag.IntVar(&requestTimeout, "request_timeout", 0, "seconds before a poll request times out (default 15)")
	flag.IntVar(&tlsTimeout, "tls_timeout", 0, "seconds before a TLS inspection times out (default 8)")
	flag.StringVar(&outfile, "outfile", "", "report file, appended to (default ./<yymmdd_HHMMSS>-healthcheckdata.csv)")
	flag.StringVar(&outputFormat, "output_format", "", "output format (csv, json, jsonl)")
	flag.StringVar(&ua, "ua", "", "user-agent")
	flag.StringVar(&runID, "run", "", "run id")
	flag.StringVar(&metricsAddr, "metrics_addr", "", "metrics listen addr (empty to disable)")
	flag.StringVar(&otelEndpoint, "otel_endpoint", "", "OTLP HTTP endpoint (host:port)")
	flag.BoolVar(&otelInsecure, "otel_insecure", false, "OTLP insecure (no TLS)")
	flag.StringVar(&otelService, "otel_service", "", "OTEL service.name")
	flag.StringVar(&ingest, "ingest", "", "ingest endpoint for reports (optional)")
	flag.StringVar(&spoolDir, "spool_dir", "", "spool dir for undelivered reports")
	flag.BoolVar(&shareTLS, "share_tls_inspection", false, "inspect each host's certificate once per run")
	flag.BoolVar(&verbose, "verbose", false, "verbose logging")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "uptime-probe polls HTTP(S) health endpoints and reports their uptime\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -targets=https://api.example.com/health -interval=10 -duration=600\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config=config.yaml -output_format=jsonl\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  REDIS_QUEUE_ADDR Redis server holding queued targets\n")
		fmt.Fprintf(os.Stderr, "  REDIS_QUEUE_KEY  Redis list key for queued targets\n")
		fmt.Fprintf(os.Stderr, "  INGEST_URL       Ingest endpoint for reports\n")
		fmt.Fprintf(os.Stderr, "  LOG_LEVEL        Log level (debug, info, warn, error)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Println("uptime-probe v" + version)
		fmt.Println("Built with Go", strings.TrimPrefix(runtime.Version(), "go"))
		os.Exit(0)
	}

	log := logging.New(verbose)
	defer log.Sync()

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			log.Fatalw("failed to load config file", "file", configFile, "err", err)
		}
		log.Infow("loaded config from file", "file", configFile)
	} else {
		cfg = &config.Config{}
		cfg.SetDefaults()
	}

	cfg.LoadFromEnv()

	values := map[string]interface{}{
		"targets":              targets,
		"targets_file":         targetsFile,
		"interval":             interval,
		"duration":             duration,
		"request_timeout":      requestTimeout,
		"tls_timeout":          tlsTimeout,
		"outfile":              outfile,
		"output_format":        outputFormat,
		"ua":                   ua,
		"run":                  runID,
		"metrics_addr":         metricsAddr,
		"otel_endpoint":        otelEndpoint,
		"otel_insecure":        otelInsecure,
		"otel_service":         otelService,
		"ingest":               ingest,
		"spool_dir":            spoolDir,
		"share_tls_inspection": shareTLS,
	}
	// Only flags given on the command line override the file and env.
	flags := make(map[string]interface{})
	flag.Visit(func(f *flag.Flag) {
		if v, ok := values[f.Name]; ok {
			flags[f.Name] = v
		}
	})
	cfg.MergeWithFlags(flags)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.OTELService, version, cfg.OTELInsecure)
	if err != nil {
		log.Warnw("otel init failed", "err", err)
	} else {
		defer shutdown(context.Background())
	}

	healthHandler := health.NewHandler(log)
	healthHandler.SetMetadata("run", cfg.Run)
	healthHandler.SetMetadata("version", version)

	endpoints, err := collectTargets(ctx, cfg, healthHandler, log)
	if err != nil {
		log.Fatalw("collect targets", "err", err)
	}
	if len(endpoints) == 0 {
		log.Fatalw("no targets to poll")
	}

	var inspector tlsinfo.Interface = tlsinfo.New(cfg.TLSTimeoutDuration())
	if cfg.ShareTLSInspection {
		inspector = tlsinfo.NewCache(inspector, len(endpoints), cfg.RunDuration()+time.Hour)
	}
	client := httpclient.New(cfg.RequestTimeoutDuration(), cfg.UA)

	p := probe.New(probe.Settings{
		RunID:    cfg.Run,
		Interval: cfg.IntervalDuration(),
		Duration: cfg.RunDuration(),
	}, inspector, client, log)
	healthHandler.RegisterChecker("pollers", health.NewPollerChecker(p.Active, len(endpoints)))
	healthHandler.ReadyWhen(func() bool { return p.Active() > 0 })

	if cfg.MetricsAddr != "" {
		go metrics.ServeWithHealth(cfg.MetricsAddr, healthHandler, log)
		log.Infow("metrics and health server started", "addr", cfg.MetricsAddr)
	}

	out := os.Stdout
	if cfg.Outfile != "-" {
		f, err := output.OpenFile(cfg.Outfile)
		if err != nil {
			log.Fatalw("open outfile", "file", cfg.Outfile, "err", err)
		}
		defer f.Close()
		out = f
	}
	w, err := output.NewWriter(cfg.OutputFormat, out)
	if err != nil {
		log.Fatalw("output writer", "err", err)
	}

	log.Infow("starting uptime probe",
		"run", cfg.Run,
		"targets", len(endpoints),
		"interval", cfg.IntervalDuration(),
		"duration", cfg.RunDuration(),
		"outfile", cfg.Outfile,
		"config_file", configFile,
	)

	reports := p.Run(ctx, endpoints)

	for _, r := range reports {
		if err := w.WriteReport(r); err != nil {
			log.Errorw("write report", "endpoint", r.Run.EndpointURL, "err", err)
		}
	}
	if err := w.Flush(); err != nil {
		log.Errorw("flush output", "err", err)
	}
	log.Infow("reports written", "count", len(reports), "outfile", cfg.Outfile)

	// Delivery runs on a fresh context so an interrupted run still ships
	// what it collected.
	deliverCtx, deliverCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer deliverCancel()
	emitter := emit.NewEmitter(cfg.Ingest, cfg.SpoolDir, nil)
	if emitter.Enabled() {
		sent := emitter.Deliver(deliverCtx, reports, log)
		log.Infow("reports delivered", "sent", sent, "total", len(reports))
	}
	log.Info("shutdown complete")
}

// collectTargets merges configured, file and queued targets, dropping
// duplicates while keeping first-seen order.
func collectTargets(ctx context.Context, cfg *config.Config, h *health.Handler, log *logging.Logger) ([]string, error) {
	all := append([]string(nil), cfg.Targets...)
	if cfg.TargetsFile != "" {
		fromFile, err := config.LoadTargetsFile(cfg.TargetsFile)
		if err != nil {
			return nil, err
		}
		all = append(all, acceptTargets(fromFile, "targets_file", log)...)
	}
	if cfg.RedisQueueAddr != "" {
		log.Infow("redis queue enabled", "addr", cfg.RedisQueueAddr, "key", cfg.RedisQueueKey)
		q, err := queue.NewRedis(cfg.RedisQueueAddr, cfg.RedisQueueKey, time.Second)
		if err != nil {
			return nil, fmt.Errorf("redis queue init: %w", err)
		}
		h.RegisterChecker("redis", health.NewRedisChecker(cfg.RedisQueueAddr, q.Ping))
		queued, err := q.Drain(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("redis queue drain: %w", err)
		}
		all = append(all, acceptTargets(queued, "redis_queue", log)...)
	}

	seen := make(map[string]struct{}, len(all))
	out := all[:0]
	for _, t := range all {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// acceptTargets drops entries that are not absolute URLs so a bad line never
// becomes a poller that can only fail.
func acceptTargets(targets []string, source string, log *logging.Logger) []string {
	valid, invalid := config.FilterTargets(targets)
	for _, t := range invalid {
		log.Warnw("dropping invalid target", "source", source, "target", t)
	}
	return valid
}
