package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"spotdex/params"
	"spotdex/pkg/dex"
	"spotdex/pkg/dex/market"
	"spotdex/pkg/metrics"
	"spotdex/pkg/storage"
	"spotdex/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	store, err := storage.Open(filepath.Join(cfg.Node.DataDir, "state"))
	if err != nil {
		sugar.Fatalw("open_store", "err", err)
	}
	defer store.Close()

	journal, err := storage.NewFileJournal(filepath.Join(cfg.Node.DataDir, "fills.log"))
	if err != nil {
		sugar.Fatalw("open_journal", "err", err)
	}
	defer journal.Close()

	ex, err := dex.New(dex.Options{
		Logger:  logger,
		Store:   store,
		Journal: journal,
	})
	if err != nil {
		sugar.Fatalw("build_exchange", "err", err)
	}

	if err := store.Restore(ex.Engine(), ex.Ledger()); err != nil {
		sugar.Fatalw("restore", "err", err)
	}
	fresh := len(ex.Engine().Pairs().List()) == 0
	sugar.Infow("state_restored", "fresh", fresh, "pairs", len(ex.Engine().Pairs().List()))

	if cfg.Node.GenesisFile != "" {
		if err := applyGenesis(ex, cfg.Node.GenesisFile, fresh); err != nil {
			sugar.Fatalw("genesis", "err", err)
		}
	}

	if cfg.Metrics.Addr != "" {
		metrics.StartServer(cfg.Metrics.Addr)
		sugar.Infow("metrics_listening", "addr", cfg.Metrics.Addr)
	}

	sugar.Infow("dexd_ready", "data_dir", cfg.Node.DataDir)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	sugar.Infow("shutting_down", "signal", sig.String())
}

// applyGenesis registers genesis pairs (skipping ones already restored)
// and, on a fresh database only, seeds the devnet balance credits.
func applyGenesis(ex *dex.Exchange, path string, fresh bool) error {
	g, err := params.LoadGenesis(path)
	if err != nil {
		return err
	}

	for _, p := range g.Pairs {
		_, err := ex.AddTradingPair(
			common.HexToAddress(p.Base),
			common.HexToAddress(p.Quote),
			p.MinOrderSize,
			p.PricePrecision,
		)
		if err != nil && !errors.Is(err, market.ErrPairExists) {
			return err
		}
	}

	if !fresh {
		return nil
	}
	for _, c := range g.Credits {
		if err := ex.Deposit(common.HexToAddress(c.Account), common.HexToAddress(c.Token), c.Amount); err != nil {
			return err
		}
	}
	return nil
}
