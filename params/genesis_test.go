package params

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGenesis(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadGenesis(t *testing.T) {
	path := writeGenesis(t, `
pairs:
  - base: "0x0100000000000000000000000000000000000000"
    quote: "0x0200000000000000000000000000000000000000"
    min_order_size: 10
    price_precision: 5
credits:
  - account: "0xAA00000000000000000000000000000000000000"
    token: "0x0200000000000000000000000000000000000000"
    amount: 1000000
`)

	g, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(g.Pairs) != 1 || g.Pairs[0].MinOrderSize != 10 || g.Pairs[0].PricePrecision != 5 {
		t.Errorf("pairs: %+v", g.Pairs)
	}
	if len(g.Credits) != 1 || g.Credits[0].Amount != 1000000 {
		t.Errorf("credits: %+v", g.Credits)
	}
}

func TestLoadGenesisRejectsBadAddress(t *testing.T) {
	path := writeGenesis(t, `
pairs:
  - base: "not-an-address"
    quote: "0x0200000000000000000000000000000000000000"
    min_order_size: 1
    price_precision: 1
`)
	if _, err := LoadGenesis(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/dexd-test")
	t.Setenv("METRICS_ADDR", "")

	cfg := LoadFromEnv("")
	if cfg.Node.DataDir != "/tmp/dexd-test" {
		t.Errorf("data dir: %q", cfg.Node.DataDir)
	}
	// empty env falls back to the default
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr: %q", cfg.Metrics.Addr)
	}
	if cfg.Node.LogFile != "data/dexd.log" {
		t.Errorf("log file: %q", cfg.Node.LogFile)
	}
}
