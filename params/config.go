// Package params holds runtime configuration, loaded from the environment
// with optional .env support, plus the YAML genesis file describing the
// markets and devnet balances to bootstrap.
package params

import (
	"os"

	"github.com/joho/godotenv"
)

type Node struct {
	// DataDir is the root for the Pebble database and the fill journal.
	DataDir string
	LogFile string
	// GenesisFile points at the YAML market/balance bootstrap; empty
	// disables genesis application.
	GenesisFile string
}

type Metrics struct {
	// Addr is the Prometheus listen address; empty disables the endpoint.
	Addr string
}

type Config struct {
	Node    Node
	Metrics Metrics
}

func Default() Config {
	return Config{
		Node: Node{
			DataDir:     "data",
			LogFile:     "data/dexd.log",
			GenesisFile: "",
		},
		Metrics: Metrics{
			Addr: ":9090",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: environment > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.GenesisFile = getEnv("GENESIS_FILE", cfg.Node.GenesisFile)
	cfg.Metrics.Addr = getEnv("METRICS_ADDR", cfg.Metrics.Addr)

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
