package bench

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gateway-fm/ftbench/internal/account"
	"github.com/gateway-fm/ftbench/internal/chain"
	"github.com/gateway-fm/ftbench/internal/metrics"
	"github.com/gateway-fm/ftbench/internal/ops"
	"github.com/gateway-fm/ftbench/internal/pipeline"
	"github.com/gateway-fm/ftbench/internal/ratelimit"
	"github.com/gateway-fm/ftbench/internal/verify"
	"github.com/gateway-fm/ftbench/pkg/types"
)

const (
	// DefaultInFlightCap bounds outstanding steady-state transfers.
	DefaultInFlightCap = 5000

	// capPollInterval is how often the steady-state loop rechecks the
	// outstanding count once the in-flight cap is reached.
	capPollInterval = 250 * time.Millisecond

	// progressInterval is the number of transfers between progress lines.
	progressInterval = 10000

	// verifySampleSize bounds the post-seed balance spot check.
	verifySampleSize = 50
)

// Config configures the Driver.
type Config struct {
	Registry  *account.Registry
	Queue     *pipeline.Queue
	Workers   *pipeline.Pool
	Nodes     *chain.Pool
	Collector metrics.Collector
	Limiter   *ratelimit.Limiter // nil means uncapped

	WasmPath    string
	TopUp       bool
	Verify      bool
	InFlightCap int           // default DefaultInFlightCap
	TxTTL       time.Duration // default pipeline.DefaultTransactionTTL
	Seed        uint64
	Transfers   uint64 // stop after this many steady-state transfers, 0 = run forever
	Logger      *slog.Logger
}

// Driver runs the benchmark: deploy, initialize, top-up, nonce refresh,
// register, seed, then steady-state transfers. Each setup phase drains the
// queue before the next begins. Failed setup operations are logged and do
// not block phase advancement; only infrastructure failures (unreachable
// endpoint, nonce refresh, unreadable artifacts) abort the run.
type Driver struct {
	registry  *account.Registry
	queue     *pipeline.Queue
	workers   *pipeline.Pool
	nodes     *chain.Pool
	collector metrics.Collector
	limiter   *ratelimit.Limiter
	gate      *Gate

	wasmPath    string
	topUp       bool
	verify      bool
	inFlightCap int
	txTTL       time.Duration
	seed        uint64
	transfers   uint64
	logger      *slog.Logger

	// rng drives steady-state pair picking; only the Run goroutine uses it.
	rng *rand.Rand

	mu      sync.Mutex
	phase   types.Phase
	started time.Time
}

// New creates a Driver.
func New(cfg Config) (*Driver, error) {
	if cfg.Registry == nil || cfg.Queue == nil || cfg.Workers == nil || cfg.Nodes == nil || cfg.Collector == nil {
		return nil, fmt.Errorf("registry, queue, workers, nodes and collector are required")
	}
	if cfg.Registry.Len() < 2 {
		return nil, fmt.Errorf("at least two accounts are required for transfers")
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(0)
	}
	inFlightCap := cfg.InFlightCap
	if inFlightCap <= 0 {
		inFlightCap = DefaultInFlightCap
	}
	txTTL := cfg.TxTTL
	if txTTL <= 0 {
		txTTL = pipeline.DefaultTransactionTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Driver{
		registry:    cfg.Registry,
		queue:       cfg.Queue,
		workers:     cfg.Workers,
		nodes:       cfg.Nodes,
		collector:   cfg.Collector,
		limiter:     limiter,
		gate:        NewGate(),
		wasmPath:    cfg.WasmPath,
		topUp:       cfg.TopUp,
		verify:      cfg.Verify,
		inFlightCap: inFlightCap,
		txTTL:       txTTL,
		seed:        cfg.Seed,
		transfers:   cfg.Transfers,
		logger:      logger,
		rng:         rand.New(rand.NewPCG(cfg.Seed, 0)),
		phase:       types.PhaseIdle,
	}
	d.collector.SetTargetTPS(limiter.Rate())
	return d, nil
}

// Run executes the benchmark. It returns when the transfer limit is reached,
// the context is cancelled, or a setup step fails fatally. Run must be
// called at most once.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	d.started = time.Now()
	d.mu.Unlock()

	contract := d.registry.Contract()

	d.setPhase(types.PhaseProbing)
	if err := d.nodes.Probe(ctx, d.logger); err != nil {
		return fmt.Errorf("endpoint probe: %w", err)
	}
	if err := contract.RefreshNonce(ctx, d.nodes.Primary()); err != nil {
		return fmt.Errorf("contract account: %w", err)
	}

	d.workers.Start(ctx)
	d.logger.Info("benchmark starting",
		slog.Int("accounts", d.registry.Len()),
		slog.Uint64("seed", d.seed),
		slog.Int("endpoints", d.nodes.Size()),
		slog.Int("workers", d.workers.Workers()),
	)

	d.setPhase(types.PhaseDeploying)
	deploy, err := ops.NewDeployFT(contract, d.wasmPath)
	if err != nil {
		return fmt.Errorf("load contract: %w", err)
	}
	if err := d.runPhase(ctx, "deployment", deploy); err != nil {
		return err
	}

	d.setPhase(types.PhaseInitializing)
	if err := d.runPhase(ctx, "contract initialization", &ops.InitFT{Contract: contract}); err != nil {
		return err
	}

	// The contract account tops up and seeds itself along with everyone
	// else; its own seed transfer fails on-chain and is tolerated like any
	// other setup failure.
	if d.topUp {
		d.setPhase(types.PhaseTopUp)
		topUps := make([]ops.Op, 0, d.registry.Len())
		for _, acc := range d.registry.All() {
			topUps = append(topUps, &ops.TransferNative{From: contract, To: acc.ID, Amount: ops.TopUpAmount})
		}
		if err := d.runPhase(ctx, "account creation and top-up", topUps...); err != nil {
			return err
		}
	}

	d.setPhase(types.PhaseNonceRefresh)
	if err := d.registry.RefreshNonces(ctx, d.nodes.Primary(), d.logger); err != nil {
		return fmt.Errorf("nonce refresh: %w", err)
	}

	d.setPhase(types.PhaseRegistering)
	registrations := make([]ops.Op, 0, d.registry.Len())
	for _, acc := range d.registry.All() {
		registrations = append(registrations, &ops.RegisterAccount{Contract: contract, AccountID: acc.ID})
	}
	if err := d.runPhase(ctx, "registration with the FT contract", registrations...); err != nil {
		return err
	}

	d.setPhase(types.PhaseSeeding)
	seeds := make([]ops.Op, 0, d.registry.Len())
	for _, acc := range d.registry.All() {
		seeds = append(seeds, &ops.TransferFT{ContractID: contract.ID, From: contract, To: acc.ID, Amount: ops.SeedAmount})
	}
	if err := d.runPhase(ctx, "distribution of initial FT", seeds...); err != nil {
		return err
	}

	if d.verify {
		d.setPhase(types.PhaseVerifying)
		verifier := verify.NewVerifier(d.nodes.Primary(), d.logger)
		verifier.SpotCheck(ctx, contract.ID, d.registry.All()[1:], ops.SeedAmount, verifySampleSize)
	}

	d.setPhase(types.PhaseSteadyState)
	err = d.steadyState(ctx)
	d.setPhase(types.PhaseDone)
	return err
}

// runPhase enqueues the phase's operations and blocks until the queue
// drains.
func (d *Driver) runPhase(ctx context.Context, label string, operations ...ops.Op) error {
	for _, op := range operations {
		task := pipeline.NewTaskTTL(op, d.txTTL, d.collector, d.logger)
		if err := d.queue.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("enqueue for %s: %w", label, err)
		}
	}
	return d.queue.Drain(ctx, label)
}

// steadyState issues random transfers between distinct accounts forever, or
// until the configured transfer limit, honoring the pause gate, the rate
// cap, and the in-flight cap.
func (d *Driver) steadyState(ctx context.Context) error {
	d.logger.Info("entering steady state",
		slog.Int("in_flight_cap", d.inFlightCap),
		slog.Float64("rate_cap", d.limiter.Rate()),
		slog.Uint64("transfer_limit", d.transfers),
	)

	contractID := d.registry.Contract().ID
	n := d.registry.Len()
	var sent uint64
	for {
		if err := d.gate.Wait(ctx); err != nil {
			return err
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		from, to := d.pickPair(n)
		op := &ops.TransferFT{
			ContractID: contractID,
			From:       d.registry.At(from),
			To:         d.registry.At(to).ID,
			Amount:     ops.OneToken,
		}
		task := pipeline.NewTaskTTL(op, d.txTTL, d.collector, d.logger)
		if err := d.queue.Enqueue(ctx, task); err != nil {
			return err
		}
		d.collector.RecordTransfer()

		sent++
		if sent%progressInterval == 0 {
			d.logger.Info(fmt.Sprintf("%d transfers so far (%d outstanding)", sent, d.queue.Outstanding()))
		}
		if d.transfers > 0 && sent >= d.transfers {
			d.logger.Info("transfer limit reached", slog.Uint64("transfers", sent))
			return d.queue.Drain(ctx, "steady-state completion")
		}

		for d.queue.Outstanding() >= int64(d.inFlightCap) {
			if !sleepCtx(ctx, capPollInterval) {
				return ctx.Err()
			}
		}
	}
}

// pickPair returns two distinct account indices. The contract account in
// slot 0 participates in transfers like any other account.
func (d *Driver) pickPair(n int) (from, to int) {
	from = d.rng.IntN(n)
	to = d.rng.IntN(n - 1)
	if to >= from {
		to++
	}
	return from, to
}

func (d *Driver) setPhase(phase types.Phase) {
	d.mu.Lock()
	d.phase = phase
	d.mu.Unlock()
	d.collector.SetPhase(phase)
	d.logger.Info("entering phase", slog.String("phase", string(phase)))
}

// Phase returns the current benchmark phase.
func (d *Driver) Phase() types.Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Pause suspends the steady-state loop before its next transfer. Transfers
// already queued keep completing.
func (d *Driver) Pause() {
	d.gate.Pause()
	d.logger.Info("steady state paused")
}

// Resume releases a paused steady-state loop.
func (d *Driver) Resume() {
	d.gate.Resume()
	d.logger.Info("steady state resumed")
}

// Paused reports whether the steady-state loop is paused.
func (d *Driver) Paused() bool {
	return d.gate.Paused()
}

// SetRate adjusts the steady-state rate cap. Zero removes the cap.
func (d *Driver) SetRate(tps float64) {
	d.limiter.SetRate(tps)
	d.collector.SetTargetTPS(d.limiter.Rate())
	d.logger.Info("rate cap changed", slog.Float64("tps", d.limiter.Rate()))
}

// Rate returns the current rate cap, 0 when uncapped.
func (d *Driver) Rate() float64 {
	return d.limiter.Rate()
}

// Snapshot assembles a point-in-time view for the monitor surfaces.
func (d *Driver) Snapshot() types.StatsSnapshot {
	d.mu.Lock()
	phase := d.phase
	started := d.started
	d.mu.Unlock()

	var elapsed time.Duration
	if !started.IsZero() {
		elapsed = time.Since(started)
	}
	completed := d.collector.Completed()
	var avg float64
	if secs := elapsed.Seconds(); secs > 0 {
		avg = float64(completed) / secs
	}

	return types.StatsSnapshot{
		Phase:           phase,
		ElapsedMs:       elapsed.Milliseconds(),
		Seed:            d.seed,
		Accounts:        d.registry.Len(),
		Workers:         d.workers.Workers(),
		Endpoints:       d.nodes.Size(),
		QueueCapacity:   d.queue.Capacity(),
		InFlightCap:     d.inFlightCap,
		Outstanding:     d.queue.Outstanding(),
		PeakOutstanding: d.queue.PeakOutstanding(),
		TransfersSent:   uint64(d.collector.Transfers()),
		Submissions:     uint64(d.collector.Submissions()),
		Resubmissions:   uint64(d.collector.Resubmissions()),
		SubmitFailures:  uint64(d.collector.SubmitFailures()),
		StatusChecks:    uint64(d.collector.StatusChecks()),
		TxCompleted:     uint64(completed),
		TxFailed:        uint64(d.collector.Failed()),
		CurrentTPS:      d.collector.CurrentTPS(),
		AverageTPS:      avg,
		RateCap:         d.limiter.Rate(),
		Paused:          d.gate.Paused(),
		Latency:         d.collector.LatencyStats(),
	}
}

// sleepCtx sleeps for d or until ctx is cancelled. It reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
