package params

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Genesis bootstraps a fresh node: markets to register and devnet balances
// to credit. Applying it is idempotent against restored state — pairs that
// already exist are skipped.
type Genesis struct {
	Pairs   []GenesisPair   `yaml:"pairs"`
	Credits []GenesisCredit `yaml:"credits"`
}

type GenesisPair struct {
	Base           string `yaml:"base"`
	Quote          string `yaml:"quote"`
	MinOrderSize   uint64 `yaml:"min_order_size"`
	PricePrecision uint64 `yaml:"price_precision"`
}

type GenesisCredit struct {
	Account string `yaml:"account"`
	Token   string `yaml:"token"`
	Amount  uint64 `yaml:"amount"`
}

func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis %s: %w", path, err)
	}
	var g Genesis
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse genesis %s: %w", path, err)
	}
	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return &g, nil
}

func (g *Genesis) validate() error {
	for i, p := range g.Pairs {
		if !common.IsHexAddress(p.Base) || !common.IsHexAddress(p.Quote) {
			return fmt.Errorf("pair %d: bad token address", i)
		}
	}
	for i, c := range g.Credits {
		if !common.IsHexAddress(c.Account) || !common.IsHexAddress(c.Token) {
			return fmt.Errorf("credit %d: bad address", i)
		}
	}
	return nil
}
