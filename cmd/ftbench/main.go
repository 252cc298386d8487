// ftbench generates sustained fungible token transfer load against a
// NEAR-compatible network: it deploys and initializes an FT contract, funds
// and registers a set of accounts, then issues random transfers between them
// while serving a monitor API for live observation and control.
package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/gateway-fm/ftbench/internal/account"
	"github.com/gateway-fm/ftbench/internal/bench"
	"github.com/gateway-fm/ftbench/internal/chain"
	"github.com/gateway-fm/ftbench/internal/config"
	"github.com/gateway-fm/ftbench/internal/metrics"
	"github.com/gateway-fm/ftbench/internal/pipeline"
	"github.com/gateway-fm/ftbench/internal/ratelimit"
	"github.com/gateway-fm/ftbench/internal/rpc"
	"github.com/gateway-fm/ftbench/internal/storage"
	"github.com/gateway-fm/ftbench/internal/transport"
	"github.com/gateway-fm/ftbench/pkg/types"
)

const (
	// sampleInterval is how often the recorder captures a time-series point
	// and recomputes the completion rate.
	sampleInterval = time.Second

	// liveUpdateEvery is the number of samples between refreshes of the
	// persisted run record, so a killed process still leaves recent numbers
	// behind.
	liveUpdateEvery = 30

	// maxBufferedSamples caps the in-memory time series at 24h of samples.
	// Samples are flushed to storage only when the run ends.
	maxBufferedSamples = 86400

	// shutdownTimeout bounds the monitor server drain at exit.
	shutdownTimeout = 5 * time.Second
)

// runRecorder samples the running benchmark once a second, keeps the
// persisted run record fresh, and writes the final summary plus the buffered
// time series when the run ends. With no storage configured it still drives
// the TPS gauge; only persistence is skipped.
type runRecorder struct {
	store     storage.Storage // nil disables persistence
	driver    *bench.Driver
	collector *metrics.MemoryCollector
	prom      *metrics.PrometheusMetrics
	logger    *slog.Logger

	run     *storage.BenchRun
	samples []storage.RunSample

	lastCompleted int64
	lastTick      time.Time
	ticks         int
	full          bool
}

// start creates the run record. A storage failure here is logged and
// disables persistence for this run; history is additive and must never
// keep the benchmark from running.
func (r *runRecorder) start(ctx context.Context, run *storage.BenchRun) {
	if r.store == nil {
		return
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		r.logger.Error("failed to create run record, continuing without history",
			slog.String("error", err.Error()),
		)
		r.store = nil
		return
	}
	r.run = run
	r.logger.Info("run record created", slog.String("run_id", run.ID))
}

// loop samples until ctx ends.
func (r *runRecorder) loop(ctx context.Context) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.record(r.driver.Snapshot(), now)
		}
	}
}

// record turns one snapshot into a time-series sample and publishes the
// measured completion rate.
func (r *runRecorder) record(snap types.StatsSnapshot, now time.Time) {
	var tps float64
	if !r.lastTick.IsZero() {
		if dt := now.Sub(r.lastTick).Seconds(); dt > 0 {
			tps = float64(int64(snap.TxCompleted)-r.lastCompleted) / dt
		}
	}
	r.lastCompleted = int64(snap.TxCompleted)
	r.lastTick = now
	r.ticks++

	r.collector.SetCurrentTPS(tps)
	if r.prom != nil {
		r.prom.SetOutstanding(snap.Outstanding)
	}

	if len(r.samples) >= maxBufferedSamples {
		if !r.full {
			r.full = true
			r.logger.Warn("sample buffer full, dropping further time-series points",
				slog.Int("samples", len(r.samples)),
			)
		}
	} else {
		r.samples = append(r.samples, storage.RunSample{
			TimestampMs:   snap.ElapsedMs,
			TransfersSent: snap.TransfersSent,
			Submissions:   snap.Submissions,
			TxCompleted:   snap.TxCompleted,
			TxFailed:      snap.TxFailed,
			Outstanding:   snap.Outstanding,
			CurrentTPS:    tps,
			TargetTPS:     snap.RateCap,
		})
	}

	if r.run != nil && r.ticks%liveUpdateEvery == 0 {
		fillRun(r.run, snap)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.UpdateRun(ctx, r.run); err != nil {
			r.logger.Warn("failed to update run record", slog.String("error", err.Error()))
		}
		cancel()
	}
}

// finalize writes the run summary and flushes the buffered samples.
func (r *runRecorder) finalize(status types.RunStatus, errMsg string) {
	if r.run == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fillRun(r.run, r.driver.Snapshot())
	r.run.Status = status
	r.run.ErrorMessage = errMsg

	if err := r.store.BulkInsertSamples(ctx, r.run.ID, r.samples); err != nil {
		r.logger.Error("failed to persist run samples", slog.String("error", err.Error()))
	}
	if err := r.store.CompleteRun(ctx, r.run.ID, r.run); err != nil {
		r.logger.Error("failed to complete run record", slog.String("error", err.Error()))
		return
	}
	r.logger.Info("run record saved",
		slog.String("run_id", r.run.ID),
		slog.String("status", string(status)),
		slog.Int("samples", len(r.samples)),
	)
}

// fillRun copies the live statistics into the run record.
func fillRun(run *storage.BenchRun, snap types.StatsSnapshot) {
	run.DurationMs = snap.ElapsedMs
	run.TransfersSent = snap.TransfersSent
	run.Submissions = snap.Submissions
	run.Resubmissions = snap.Resubmissions
	run.SubmitFailures = snap.SubmitFailures
	run.StatusChecks = snap.StatusChecks
	run.TxCompleted = snap.TxCompleted
	run.TxFailed = snap.TxFailed
	run.AverageTPS = snap.AverageTPS
	run.PeakOutstanding = snap.PeakOutstanding
	run.Latency = snap.Latency
}

// runStatusFor maps the driver's exit into a persisted run status.
func runStatusFor(err error) (types.RunStatus, string) {
	switch {
	case err == nil:
		return types.RunStatusCompleted, ""
	case errors.Is(err, context.Canceled):
		return types.RunStatusInterrupted, ""
	default:
		return types.RunStatusError, err.Error()
	}
}

// buildLogger creates the process logger at the configured level.
func buildLogger(logLevel string) *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		// The flag package already printed usage.
		os.Exit(2)
	}

	logger := buildLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Everything derived from the seed (account keys, transfer pairs) is
	// reproducible from this one logged value.
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	logger.Info("benchmark configured",
		slog.Any("endpoints", cfg.RPCEndpoints),
		slog.Int("accounts", cfg.Accounts),
		slog.Int("workers", cfg.Workers),
		slog.Int("in_flight_cap", cfg.InFlightCap),
		slog.Int("queue_capacity", cfg.QueueCapacity()),
		slog.Duration("tx_ttl", cfg.TxTTL),
		slog.Int("shards", cfg.Shards),
		slog.Uint64("seed", seed),
	)

	// pprof on localhost only, never reachable from outside the host.
	go func() {
		logger.Info("pprof listening", slog.String("addr", "localhost:6061"))
		if err := http.ListenAndServe("localhost:6061", nil); err != nil {
			logger.Error("pprof server failed", slog.String("error", err.Error()))
		}
	}()

	var store storage.Storage
	if cfg.DBPath != "" {
		s, err := storage.NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			logger.Error("failed to initialize storage", slog.String("error", err.Error()), slog.String("path", cfg.DBPath))
			os.Exit(1)
		}
		defer s.Close()
		store = s
		logger.Info("initialized storage", slog.String("path", cfg.DBPath))
	}

	prom := metrics.NewPrometheusMetrics(nil)
	collector := metrics.NewMemoryCollector(prom)

	nodes := make([]chain.Node, 0, len(cfg.RPCEndpoints))
	for _, endpoint := range cfg.RPCEndpoints {
		clientCfg := rpc.DefaultClientConfig(endpoint)
		clientCfg.Timeout = cfg.RPCTimeout
		clientCfg.Logger = logger
		nodes = append(nodes, chain.NewHTTPNode(rpc.NewHTTPClient(clientCfg), collector, logger))
	}
	pool, err := chain.NewPool(nodes)
	if err != nil {
		logger.Error("failed to build endpoint pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	contract, err := account.LoadKeyFile(cfg.ContractKeyPath)
	if err != nil {
		logger.Error("failed to load contract account", slog.String("error", err.Error()), slog.String("path", cfg.ContractKeyPath))
		os.Exit(1)
	}
	registry := account.NewRegistry(contract)
	registry.Generate(cfg.Accounts, seed)
	logger.Info("accounts generated",
		slog.String("contract", contract.ID),
		slog.Int("accounts", registry.Len()),
	)

	queue := pipeline.NewQueue(cfg.QueueCapacity(), logger)
	anchor := chain.NewBlockAnchor(pool.Primary(), chain.DefaultAnchorMaxAge, logger)
	workers := pipeline.NewPool(pipeline.PoolConfig{
		Workers: cfg.Workers,
		Queue:   queue,
		Nodes:   pool,
		Anchor:  anchor,
		Logger:  logger.With(slog.String("component", "pipeline")),
	})
	limiter := ratelimit.New(cfg.MaxTPS)

	driver, err := bench.New(bench.Config{
		Registry:    registry,
		Queue:       queue,
		Workers:     workers,
		Nodes:       pool,
		Collector:   collector,
		Limiter:     limiter,
		WasmPath:    cfg.WasmPath,
		TopUp:       cfg.TopUp,
		Verify:      cfg.Verify,
		InFlightCap: cfg.InFlightCap,
		TxTTL:       cfg.TxTTL,
		Seed:        seed,
		Transfers:   cfg.Transfers,
		Logger:      logger.With(slog.String("component", "bench")),
	})
	if err != nil {
		logger.Error("failed to build driver", slog.String("error", err.Error()))
		os.Exit(1)
	}

	health := transport.HealthFunc(func(ctx context.Context) error {
		_, err := pool.Primary().Status(ctx)
		return err
	})
	server := transport.NewServer(driver, store, health, nil, logger.With(slog.String("component", "monitor")), cfg.CORSOrigins)
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: server.Handler()}
	go func() {
		logger.Info("monitor listening", slog.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("monitor server failed", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := &runRecorder{
		store:     store,
		driver:    driver,
		collector: collector,
		prom:      prom,
		logger:    logger,
	}
	recorder.start(ctx, &storage.BenchRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Status:    types.RunStatusRunning,
		Seed:      seed,
		Accounts:  registry.Len(),
		Workers:   cfg.Workers,
		Config: &storage.RunConfig{
			Endpoints:     cfg.RPCEndpoints,
			ContractID:    contract.ID,
			Accounts:      registry.Len(),
			Workers:       cfg.Workers,
			InFlightCap:   cfg.InFlightCap,
			QueueCapacity: cfg.QueueCapacity(),
			TxTTLMs:       cfg.TxTTL.Milliseconds(),
			RateCap:       cfg.MaxTPS,
			TransferLimit: cfg.Transfers,
			TopUp:         cfg.TopUp,
			Verify:        cfg.Verify,
			Shards:        cfg.Shards,
		},
	})

	recCtx, recCancel := context.WithCancel(context.Background())
	go recorder.loop(recCtx)

	runErr := driver.Run(ctx)
	recCancel()

	status, errMsg := runStatusFor(runErr)
	switch status {
	case types.RunStatusCompleted:
		logger.Info("benchmark completed")
	case types.RunStatusInterrupted:
		logger.Info("benchmark interrupted")
	default:
		logger.Error("benchmark failed", slog.String("error", errMsg))
	}
	recorder.finalize(status, errMsg)

	server.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("monitor shutdown incomplete", slog.String("error", err.Error()))
	}

	if status == types.RunStatusError {
		os.Exit(1)
	}
}
