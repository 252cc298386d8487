package integration

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gateway-fm/ftbench/internal/account"
	"github.com/gateway-fm/ftbench/internal/bench"
	"github.com/gateway-fm/ftbench/internal/chain"
	"github.com/gateway-fm/ftbench/internal/metrics"
	"github.com/gateway-fm/ftbench/internal/ops"
	"github.com/gateway-fm/ftbench/internal/pipeline"
	"github.com/gateway-fm/ftbench/internal/rpc"
	"github.com/gateway-fm/ftbench/pkg/types"
)

// e2eStack wires the full benchmark stack against a fake endpoint.
type e2eStack struct {
	fake      *fakeNear
	node      chain.Node
	contract  *account.Account
	registry  *account.Registry
	queue     *pipeline.Queue
	collector *metrics.MemoryCollector
	driver    *bench.Driver
}

// newStack builds a driver over real HTTP with fast test timings: generated
// accounts from a fixed seed, four workers with a 1ms throttle, and a short
// transfer TTL so recovery paths stay quick. mutate adjusts the driver config
// before construction.
func newStack(t *testing.T, accounts int, mutate func(*bench.Config)) *e2eStack {
	t.Helper()

	f := newFakeNear(t)
	logger := discardLogger()

	wasmPath := filepath.Join(t.TempDir(), "ft.wasm")
	if err := os.WriteFile(wasmPath, []byte("\x00asm\x01\x00\x00\x00"), 0o644); err != nil {
		t.Fatal(err)
	}

	clientCfg := rpc.DefaultClientConfig(f.url())
	clientCfg.Logger = logger
	collector := metrics.NewMemoryCollector(nil)
	node := chain.NewHTTPNode(rpc.NewHTTPClient(clientCfg), collector, logger)
	pool, err := chain.NewPool([]chain.Node{node})
	if err != nil {
		t.Fatal(err)
	}

	contract := account.NewAccount("ft.test.near", testKey(0))
	registry := account.NewRegistry(contract)
	registry.Generate(accounts, 11)

	queue := pipeline.NewQueue(256, logger)
	anchor := chain.NewBlockAnchor(pool.Primary(), 5*time.Second, logger)
	workers := pipeline.NewPool(pipeline.PoolConfig{
		Workers:  4,
		Queue:    queue,
		Nodes:    pool,
		Anchor:   anchor,
		Throttle: time.Millisecond,
		Logger:   logger,
	})

	cfg := bench.Config{
		Registry:    registry,
		Queue:       queue,
		Workers:     workers,
		Nodes:       pool,
		Collector:   collector,
		WasmPath:    wasmPath,
		TopUp:       true,
		Verify:      true,
		InFlightCap: 64,
		TxTTL:       5 * time.Second,
		Seed:        7,
		Transfers:   40,
		Logger:      logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	driver, err := bench.New(cfg)
	if err != nil {
		t.Fatalf("bench.New failed: %v", err)
	}
	return &e2eStack{
		fake:      f,
		node:      node,
		contract:  contract,
		registry:  registry,
		queue:     queue,
		collector: collector,
		driver:    driver,
	}
}

// TestBenchmarkEndToEnd runs every phase against the fake endpoint and checks
// the transaction counts, phase ordering, nonce discipline and the token
// ledger after the run.
func TestBenchmarkEndToEnd(t *testing.T) {
	st := newStack(t, 6, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := st.driver.Run(ctx); err != nil {
		t.Fatalf("benchmark run failed: %v", err)
	}

	// 7 accounts including the contract: one deploy, one init, a top-up,
	// registration and seed per account, then the 40 steady-state transfers.
	wantCounts := map[string]int{
		"deploy":   1,
		"init":     1,
		"top_up":   7,
		"register": 7,
		"seed":     7,
		"transfer": 40,
	}
	for label, want := range wantCounts {
		if got := st.fake.countFor(label); got != want {
			t.Errorf("%s transactions = %d, want %d", label, got, want)
		}
	}
	if got, want := st.fake.broadcastCount(), 63; got != want {
		t.Errorf("broadcasts = %d, want %d", got, want)
	}

	// The contract seeding itself is the one expected failure.
	succeeded, failed := st.fake.settled()
	if succeeded != 62 || failed != 1 {
		t.Errorf("settled = %d succeeded, %d failed, want 62 and 1", succeeded, failed)
	}
	if got := st.collector.Completed(); got != 62 {
		t.Errorf("completed = %d, want 62", got)
	}
	if got := st.collector.Failed(); got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
	if got := st.collector.Resubmissions(); got != 0 {
		t.Errorf("resubmissions = %d, want 0", got)
	}

	// Setup phases drain before the next begins, so the first transaction of
	// each phase must broadcast after every earlier phase started.
	order := []string{"deploy", "init", "top_up", "register", "seed", "transfer"}
	prev := -1
	for _, label := range order {
		idx, ok := st.fake.firstSeenIndex(label)
		if !ok {
			t.Fatalf("no %s transaction was broadcast", label)
		}
		if idx <= prev {
			t.Errorf("%s first broadcast at index %d, not after the previous phase", label, idx)
		}
		prev = idx
	}

	// Every signer must use each nonce at most once across the whole run.
	for _, signer := range st.fake.signers() {
		nonces := st.fake.noncesFor(signer)
		seen := make(map[uint64]bool, len(nonces))
		for _, n := range nonces {
			if seen[n] {
				t.Errorf("signer %s reused nonce %d", signer, n)
			}
			seen[n] = true
		}
	}

	// Transfers move tokens around but never mint or burn.
	supply, ok := new(big.Int).SetString(ops.TotalSupply, 10)
	if !ok {
		t.Fatal("total supply does not parse")
	}
	if total := st.fake.totalBalance(); total.Cmp(supply) != 0 {
		t.Errorf("ledger total = %s, want %s", total, supply)
	}

	snap := st.driver.Snapshot()
	if snap.Phase != types.PhaseDone {
		t.Errorf("phase = %s, want %s", snap.Phase, types.PhaseDone)
	}
	if snap.Outstanding != 0 {
		t.Errorf("outstanding = %d after drain, want 0", snap.Outstanding)
	}
	if snap.TransfersSent != 40 {
		t.Errorf("transfers sent = %d, want 40", snap.TransfersSent)
	}
	if snap.Submissions != 63 {
		t.Errorf("submissions = %d, want 63", snap.Submissions)
	}
	if snap.TxCompleted != 62 || snap.TxFailed != 1 {
		t.Errorf("snapshot completion = %d/%d, want 62/1", snap.TxCompleted, snap.TxFailed)
	}
}

// runSingleTask drives one native transfer through a single worker against
// the fake and blocks until the task completes.
func runSingleTask(t *testing.T, f *fakeNear, sender *account.Account, ttl time.Duration) (*pipeline.Task, *metrics.MemoryCollector) {
	t.Helper()
	logger := discardLogger()

	clientCfg := rpc.DefaultClientConfig(f.url())
	clientCfg.Logger = logger
	collector := metrics.NewMemoryCollector(nil)
	node := chain.NewHTTPNode(rpc.NewHTTPClient(clientCfg), collector, logger)
	pool, err := chain.NewPool([]chain.Node{node})
	if err != nil {
		t.Fatal(err)
	}
	anchor := chain.NewBlockAnchor(pool.Primary(), 5*time.Second, logger)
	queue := pipeline.NewQueue(4, logger)
	workers := pipeline.NewPool(pipeline.PoolConfig{
		Workers:  1,
		Queue:    queue,
		Nodes:    pool,
		Anchor:   anchor,
		Throttle: time.Millisecond,
		Logger:   logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	workers.Start(ctx)

	op := &ops.TransferNative{From: sender, To: "receiver.near", Amount: ops.NEAR(1)}
	task := pipeline.NewTaskTTL(op, ttl, collector, logger)
	if err := queue.Enqueue(ctx, task); err != nil {
		t.Fatal(err)
	}
	if err := queue.Drain(ctx, "single transfer"); err != nil {
		t.Fatal(err)
	}
	cancel()
	workers.Wait()
	return task, collector
}

// TestResubmissionAfterDrop drops the first broadcast and checks the task
// goes out again under a fresh nonce once its TTL expires.
func TestResubmissionAfterDrop(t *testing.T) {
	f := newFakeNear(t)
	f.setDropBroadcasts(1)
	sender := account.NewAccount("", testKey(9))

	task, collector := runSingleTask(t, f, sender, 300*time.Millisecond)

	if task.State() != pipeline.StateCompleted {
		t.Fatalf("task state = %v, want completed", task.State())
	}
	if !task.Outcome().Success {
		t.Fatalf("task failed: %s", task.Outcome().Reason)
	}
	if got := task.Resubmits(); got != 1 {
		t.Errorf("resubmits = %d, want 1", got)
	}
	if got := collector.Resubmissions(); got != 1 {
		t.Errorf("collector resubmissions = %d, want 1", got)
	}
	if got := f.broadcastCount(); got != 2 {
		t.Errorf("broadcasts = %d, want 2", got)
	}

	// The dropped submission consumed nonce 1; the successful retry must use
	// a fresh one.
	nonces := f.noncesFor(sender.ID)
	if len(nonces) != 2 || nonces[0] != 1 || nonces[1] != 2 {
		t.Errorf("nonces = %v, want [1 2]", nonces)
	}
}

// TestUnknownWindowDoesNotResubmit covers a lagging node: the first polls
// after a broadcast answer unknown. Before the TTL expires the task keeps
// polling the same submission instead of going out again.
func TestUnknownWindowDoesNotResubmit(t *testing.T) {
	f := newFakeNear(t)
	f.setUnknownPolls(3)
	sender := account.NewAccount("", testKey(10))

	task, collector := runSingleTask(t, f, sender, 5*time.Second)

	if !task.Outcome().Success {
		t.Fatalf("task failed: %s", task.Outcome().Reason)
	}
	if got := task.Resubmits(); got != 0 {
		t.Errorf("resubmits = %d, want 0", got)
	}
	if got := f.broadcastCount(); got != 1 {
		t.Errorf("broadcasts = %d, want 1", got)
	}
	// Three unknown polls, then the success verdict.
	if got := collector.StatusChecks(); got < 4 {
		t.Errorf("status checks = %d, want at least 4", got)
	}
}

// TestSteadyStateToleratesFailures injects transfer failures and checks the
// run completes with the failures counted, not retried and not fatal.
func TestSteadyStateToleratesFailures(t *testing.T) {
	st := newStack(t, 6, func(cfg *bench.Config) {
		cfg.TopUp = false
		cfg.Verify = false
		cfg.Transfers = 20
	})
	st.fake.setFailTransferEvery(5)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := st.driver.Run(ctx); err != nil {
		t.Fatalf("benchmark run failed: %v", err)
	}

	if got := st.fake.countFor("transfer"); got != 20 {
		t.Errorf("transfer transactions = %d, want 20", got)
	}
	// Four injected failures plus the contract's own seed transfer.
	if got := st.collector.Failed(); got != 5 {
		t.Errorf("failed = %d, want 5", got)
	}
	if got := st.collector.Completed(); got != 31 {
		t.Errorf("completed = %d, want 31", got)
	}
	if got := st.collector.Transfers(); got != 20 {
		t.Errorf("transfers enqueued = %d, want 20", got)
	}
	if got := st.collector.Resubmissions(); got != 0 {
		t.Errorf("resubmissions = %d, want 0", got)
	}
	if outstanding := st.queue.Outstanding(); outstanding != 0 {
		t.Errorf("outstanding = %d after drain, want 0", outstanding)
	}
}
