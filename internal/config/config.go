// Package config handles configuration loading and validation.
package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds FT benchmark configuration.
type Config struct {
	RPCEndpoints []string      // JSON-RPC endpoints, workers are spread across them
	RPCTimeout   time.Duration // per-request HTTP timeout

	Accounts    int           // number of generated test accounts
	Workers     int           // transaction worker count
	InFlightCap int           // steady-state outstanding transaction cap
	QueueSize   int           // work queue capacity, 0 derives it from Accounts
	TxTTL       time.Duration // unresolved submissions are replaced after this long
	Shards      int           // shard count of the target network, informational
	Seed        uint64        // account generation and pair picking seed, 0 = random
	MaxTPS      float64       // steady-state rate cap, 0 = uncapped
	Transfers   uint64        // stop after this many transfers, 0 = run until interrupted
	TopUp       bool          // run the native top-up phase
	Verify      bool          // spot-check balances after seeding

	WasmPath        string // compiled fungible token contract
	ContractKeyPath string // key file for the contract account

	ListenAddr  string // monitor HTTP listen address
	DBPath      string // SQLite run history, empty disables persistence
	CORSOrigins string // comma-separated allowed origins for the monitor API, empty allows all
	LogLevel    string // debug, info, warn, error
}

// Defaults
const (
	DefaultRPCEndpoint = "http://127.0.0.1:3030"
	DefaultRPCTimeout  = 2 * time.Second
	DefaultAccounts    = 1000
	DefaultWorkers     = 4
	DefaultInFlightCap = 5000
	DefaultTxTTL       = 10 * time.Second
	DefaultShards      = 10
	DefaultListenAddr  = ":13001"
	DefaultDBPath      = "./data/ftbench.db"
	DefaultLogLevel    = "info"

	// MaxQueueSize caps the derived work queue capacity regardless of
	// account count.
	MaxQueueSize = 10240
	// QueueSlack is added to the account count when deriving the queue
	// capacity so setup phases never block on their own backlog.
	QueueSlack = 50

	MaxAccountsLimit = 100000
)

// defaultContractKeyPath points at the localnet validator key layout.
func defaultContractKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".near", "localnet", "node0", "shard0_key.json")
}

// Load reads configuration from environment variables and command-line flags.
// Command-line flags take precedence over environment variables.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		RPCEndpoints:    []string{DefaultRPCEndpoint},
		RPCTimeout:      DefaultRPCTimeout,
		Accounts:        DefaultAccounts,
		Workers:         DefaultWorkers,
		InFlightCap:     DefaultInFlightCap,
		TxTTL:           DefaultTxTTL,
		Shards:          DefaultShards,
		TopUp:           true,
		Verify:          true,
		ContractKeyPath: defaultContractKeyPath(),
		ListenAddr:      DefaultListenAddr,
		DBPath:          DefaultDBPath,
		LogLevel:        DefaultLogLevel,
	}

	// Load from environment variables first
	if v := os.Getenv("FTBENCH_RPC"); v != "" {
		cfg.RPCEndpoints = splitEndpoints(v)
	}
	if v := os.Getenv("FTBENCH_RPC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RPCTimeout = d
		}
	}
	if v := os.Getenv("FTBENCH_ACCOUNTS"); v != "" {
		if n, err := parseIntEnv(v); err == nil && n > 0 {
			cfg.Accounts = n
		}
	}
	if v := os.Getenv("FTBENCH_WORKERS"); v != "" {
		if n, err := parseIntEnv(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("FTBENCH_WASM"); v != "" {
		cfg.WasmPath = v
	}
	if v := os.Getenv("FTBENCH_CONTRACT_KEY"); v != "" {
		cfg.ContractKeyPath = v
	}
	if v := os.Getenv("FTBENCH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FTBENCH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FTBENCH_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = v
	}
	if v := os.Getenv("FTBENCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Define command-line flags
	fs := flag.NewFlagSet("ftbench", flag.ContinueOnError)
	var (
		rpcFlag  = fs.String("rpc", strings.Join(cfg.RPCEndpoints, ","), "Comma-separated JSON-RPC endpoints")
		noTopUp  = fs.Bool("no-account-topup", !cfg.TopUp, "Skip the native top-up phase (accounts already funded)")
		noVerify = fs.Bool("no-verify", !cfg.Verify, "Skip the balance spot-check after seeding")
	)
	fs.DurationVar(&cfg.RPCTimeout, "rpc-timeout", cfg.RPCTimeout, "Per-request RPC timeout")
	fs.IntVar(&cfg.Accounts, "accounts", cfg.Accounts, "Number of test accounts")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of transaction workers")
	fs.IntVar(&cfg.InFlightCap, "in-flight", cfg.InFlightCap, "Steady-state outstanding transaction cap")
	fs.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "Work queue capacity (0 = derived from accounts)")
	fs.DurationVar(&cfg.TxTTL, "tx-ttl", cfg.TxTTL, "Time a submission may stay unresolved before resubmission")
	fs.IntVar(&cfg.Shards, "shards", cfg.Shards, "Shard count of the target network (informational)")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "RNG seed for account generation and pair picking (0 = random)")
	fs.Float64Var(&cfg.MaxTPS, "max-tps", cfg.MaxTPS, "Steady-state transfer rate cap (0 = uncapped)")
	fs.Uint64Var(&cfg.Transfers, "transfers", cfg.Transfers, "Stop after this many steady-state transfers (0 = run until interrupted)")
	fs.StringVar(&cfg.WasmPath, "fungible-token-wasm", cfg.WasmPath, "Path to the compiled fungible token contract")
	fs.StringVar(&cfg.ContractKeyPath, "contract-key", cfg.ContractKeyPath, "Key file for the contract account")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Monitor HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path for run history (empty = disabled)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", cfg.CORSOrigins, "Comma-separated allowed CORS origins (empty = allow all)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.RPCEndpoints = splitEndpoints(*rpcFlag)
	cfg.TopUp = !*noTopUp
	cfg.Verify = !*noVerify

	return cfg, nil
}

// QueueCapacity returns the configured queue size, deriving it from the
// account count when unset.
func (c *Config) QueueCapacity() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}
	derived := c.Accounts + QueueSlack
	if derived > MaxQueueSize {
		return MaxQueueSize
	}
	return derived
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}
	for _, ep := range c.RPCEndpoints {
		u, err := url.Parse(ep)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid RPC endpoint: %q", ep)
		}
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if c.Accounts <= 0 || c.Accounts > MaxAccountsLimit {
		return fmt.Errorf("accounts must be between 1 and %d", MaxAccountsLimit)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.InFlightCap <= 0 {
		return fmt.Errorf("in-flight cap must be positive")
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size cannot be negative")
	}
	if c.TxTTL <= 0 {
		return fmt.Errorf("transaction TTL must be positive")
	}
	if c.Shards <= 0 {
		return fmt.Errorf("shards must be positive")
	}
	if c.MaxTPS < 0 {
		return fmt.Errorf("max TPS cannot be negative")
	}
	if c.WasmPath == "" {
		return fmt.Errorf("fungible token wasm path is required")
	}
	if c.ContractKeyPath == "" {
		return fmt.Errorf("contract key path is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

// splitEndpoints splits a comma-separated endpoint list, trimming blanks.
func splitEndpoints(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseIntEnv parses a string environment variable as an integer.
func parseIntEnv(s string) (int, error) {
	return strconv.Atoi(s)
}
