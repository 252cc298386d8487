package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		RPCEndpoints:    []string{"http://localhost:3030"},
		RPCTimeout:      2 * time.Second,
		Accounts:        1000,
		Workers:         4,
		InFlightCap:     5000,
		TxTTL:           10 * time.Second,
		Shards:          10,
		WasmPath:        "/tmp/fungible_token.wasm",
		ContractKeyPath: "/tmp/shard0_key.json",
		ListenAddr:      ":13001",
		LogLevel:        "info",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "no endpoints",
			mutate:  func(c *Config) { c.RPCEndpoints = nil },
			wantErr: true,
		},
		{
			name:    "malformed endpoint",
			mutate:  func(c *Config) { c.RPCEndpoints = []string{"not a url"} },
			wantErr: true,
		},
		{
			name:    "zero accounts",
			mutate:  func(c *Config) { c.Accounts = 0 },
			wantErr: true,
		},
		{
			name:    "too many accounts",
			mutate:  func(c *Config) { c.Accounts = MaxAccountsLimit + 1 },
			wantErr: true,
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "zero in-flight cap",
			mutate:  func(c *Config) { c.InFlightCap = 0 },
			wantErr: true,
		},
		{
			name:    "negative queue size",
			mutate:  func(c *Config) { c.QueueSize = -1 },
			wantErr: true,
		},
		{
			name:    "zero TTL",
			mutate:  func(c *Config) { c.TxTTL = 0 },
			wantErr: true,
		},
		{
			name:    "negative max TPS",
			mutate:  func(c *Config) { c.MaxTPS = -1 },
			wantErr: true,
		},
		{
			name:    "missing wasm path",
			mutate:  func(c *Config) { c.WasmPath = "" },
			wantErr: true,
		},
		{
			name:    "missing contract key",
			mutate:  func(c *Config) { c.ContractKeyPath = "" },
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQueueCapacity(t *testing.T) {
	tests := []struct {
		name      string
		accounts  int
		queueSize int
		want      int
	}{
		{
			name:     "derived from accounts",
			accounts: 1000,
			want:     1050,
		},
		{
			name:     "derived capped at max",
			accounts: 50000,
			want:     MaxQueueSize,
		},
		{
			name:      "explicit override wins",
			accounts:  1000,
			queueSize: 64,
			want:      64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Accounts: tt.accounts, QueueSize: tt.queueSize}
			if got := cfg.QueueCapacity(); got != tt.want {
				t.Errorf("QueueCapacity() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.Accounts, DefaultAccounts; got != want {
		t.Errorf("Accounts = %d, want %d", got, want)
	}
	if got, want := cfg.Workers, DefaultWorkers; got != want {
		t.Errorf("Workers = %d, want %d", got, want)
	}
	if got, want := cfg.InFlightCap, DefaultInFlightCap; got != want {
		t.Errorf("InFlightCap = %d, want %d", got, want)
	}
	if got, want := cfg.TxTTL, DefaultTxTTL; got != want {
		t.Errorf("TxTTL = %v, want %v", got, want)
	}
	if !cfg.TopUp {
		t.Error("TopUp = false, want true by default")
	}
	if !cfg.Verify {
		t.Error("Verify = false, want true by default")
	}
	if len(cfg.RPCEndpoints) != 1 || cfg.RPCEndpoints[0] != DefaultRPCEndpoint {
		t.Errorf("RPCEndpoints = %v, want [%s]", cfg.RPCEndpoints, DefaultRPCEndpoint)
	}
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{
		"-rpc", "http://a:3030,http://b:3030",
		"-accounts", "50",
		"-workers", "8",
		"-in-flight", "200",
		"-tx-ttl", "5s",
		"-seed", "42",
		"-max-tps", "150",
		"-transfers", "1000",
		"-no-account-topup",
		"-no-verify",
		"-fungible-token-wasm", "/tmp/ft.wasm",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := len(cfg.RPCEndpoints), 2; got != want {
		t.Fatalf("len(RPCEndpoints) = %d, want %d", got, want)
	}
	if cfg.RPCEndpoints[1] != "http://b:3030" {
		t.Errorf("RPCEndpoints[1] = %q, want %q", cfg.RPCEndpoints[1], "http://b:3030")
	}
	if cfg.Accounts != 50 {
		t.Errorf("Accounts = %d, want 50", cfg.Accounts)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.InFlightCap != 200 {
		t.Errorf("InFlightCap = %d, want 200", cfg.InFlightCap)
	}
	if cfg.TxTTL != 5*time.Second {
		t.Errorf("TxTTL = %v, want 5s", cfg.TxTTL)
	}
	if cfg.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Seed)
	}
	if cfg.MaxTPS != 150 {
		t.Errorf("MaxTPS = %v, want 150", cfg.MaxTPS)
	}
	if cfg.Transfers != 1000 {
		t.Errorf("Transfers = %d, want 1000", cfg.Transfers)
	}
	if cfg.TopUp {
		t.Error("TopUp = true, want false with -no-account-topup")
	}
	if cfg.Verify {
		t.Error("Verify = true, want false with -no-verify")
	}
	if cfg.WasmPath != "/tmp/ft.wasm" {
		t.Errorf("WasmPath = %q, want %q", cfg.WasmPath, "/tmp/ft.wasm")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FTBENCH_RPC", "http://env-node:3030")
	t.Setenv("FTBENCH_ACCOUNTS", "77")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.RPCEndpoints) != 1 || cfg.RPCEndpoints[0] != "http://env-node:3030" {
		t.Errorf("RPCEndpoints = %v, want env value", cfg.RPCEndpoints)
	}
	if cfg.Accounts != 77 {
		t.Errorf("Accounts = %d, want 77", cfg.Accounts)
	}

	// Flags win over environment.
	cfg, err = Load([]string{"-accounts", "12"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Accounts != 12 {
		t.Errorf("Accounts = %d, want flag override 12", cfg.Accounts)
	}
}

func TestSplitEndpoints(t *testing.T) {
	got := splitEndpoints(" http://a:3030, ,http://b:3030,")
	if len(got) != 2 {
		t.Fatalf("splitEndpoints returned %d entries, want 2", len(got))
	}
	if got[0] != "http://a:3030" || got[1] != "http://b:3030" {
		t.Errorf("splitEndpoints = %v", got)
	}
}
