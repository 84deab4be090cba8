// Package storage persists exchange state in Pebble: the balance table,
// trading pairs, orders, the append-only fill history and the id/sequence
// counters — everything needed to resume matching after a restart as if
// none happened.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"spotdex/pkg/dex/book"
	"spotdex/pkg/dex/engine"
	"spotdex/pkg/dex/ledger"
	"spotdex/pkg/dex/market"
)

type PebbleStore struct {
	db *pebble.DB
}

func Open(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// Commit applies one engine mutation as a single synced batch, so a crash
// between operations never leaves a half-applied state on disk.
func (s *PebbleStore) Commit(m *engine.Mutation) error {
	b := s.db.NewBatch()
	defer b.Close()

	for _, p := range m.Pairs {
		val, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal pair: %w", err)
		}
		if err := b.Set(pairKey(p.Base, p.Quote), val, nil); err != nil {
			return err
		}
	}

	for _, o := range m.Orders {
		val, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal order %d: %w", o.ID, err)
		}
		if err := b.Set(orderKey(o.ID), val, nil); err != nil {
			return err
		}
	}

	for _, u := range m.Balances {
		key := balanceKey(u.Account, u.Token)
		if u.Balance.Available == 0 && u.Balance.Locked == 0 {
			if err := b.Delete(key, nil); err != nil {
				return err
			}
			continue
		}
		val, err := json.Marshal(u.Balance)
		if err != nil {
			return fmt.Errorf("marshal balance: %w", err)
		}
		if err := b.Set(key, val, nil); err != nil {
			return err
		}
	}

	for _, f := range m.Fills {
		val, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("marshal fill %d: %w", f.Seq, err)
		}
		if err := b.Set(fillKey(f.Seq), val, nil); err != nil {
			return err
		}
	}

	if m.NextOrderID > 0 {
		if err := b.Set(keyNextOrderID, u64Key(m.NextOrderID), nil); err != nil {
			return err
		}
	}
	if m.NextSeq > 0 {
		if err := b.Set(keyNextSeq, u64Key(m.NextSeq), nil); err != nil {
			return err
		}
	}

	return s.db.Apply(b, pebble.Sync)
}

var _ engine.Store = (*PebbleStore)(nil)

// Restore rebuilds the ledger and engine from disk. Orders are replayed in
// sequence order so FIFO priority inside each price level comes back
// exactly; terminal orders are re-indexed for audit only.
func (s *PebbleStore) Restore(e *engine.Engine, led *ledger.Ledger) error {
	if err := s.loadPairs(e); err != nil {
		return err
	}
	if err := s.loadBalances(led); err != nil {
		return err
	}
	if err := s.loadOrders(e); err != nil {
		return err
	}
	if err := s.loadFills(e); err != nil {
		return err
	}
	return s.loadCounters(e)
}

func (s *PebbleStore) loadPairs(e *engine.Engine) error {
	return s.scan(prefixPair, func(_, val []byte) error {
		var p market.Pair
		if err := json.Unmarshal(val, &p); err != nil {
			return fmt.Errorf("unmarshal pair: %w", err)
		}
		return e.LoadPair(&p)
	})
}

func (s *PebbleStore) loadBalances(led *ledger.Ledger) error {
	return s.scan(prefixBal, func(key, val []byte) error {
		raw := key[len(prefixBal):]
		if len(raw) != 2*common.AddressLength {
			return fmt.Errorf("malformed balance key %q", key)
		}
		var b ledger.Balance
		if err := json.Unmarshal(val, &b); err != nil {
			return fmt.Errorf("unmarshal balance: %w", err)
		}
		acct := common.BytesToAddress(raw[:common.AddressLength])
		token := common.BytesToAddress(raw[common.AddressLength:])
		led.Restore(acct, token, b)
		return nil
	})
}

func (s *PebbleStore) loadOrders(e *engine.Engine) error {
	var orders []*book.Order
	err := s.scan(prefixOrd, func(_, val []byte) error {
		var o book.Order
		if err := json.Unmarshal(val, &o); err != nil {
			return fmt.Errorf("unmarshal order: %w", err)
		}
		orders = append(orders, &o)
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })
	for _, o := range orders {
		if err := e.LoadOrder(o); err != nil {
			return err
		}
	}
	return nil
}

func (s *PebbleStore) loadFills(e *engine.Engine) error {
	var fills []book.Fill
	err := s.scan(prefixFill, func(_, val []byte) error {
		var f book.Fill
		if err := json.Unmarshal(val, &f); err != nil {
			return fmt.Errorf("unmarshal fill: %w", err)
		}
		fills = append(fills, f)
		return nil
	})
	if err != nil {
		return err
	}
	e.LoadFills(fills)
	return nil
}

func (s *PebbleStore) loadCounters(e *engine.Engine) error {
	nextID, err := s.getU64(keyNextOrderID)
	if err != nil {
		return err
	}
	nextSeq, err := s.getU64(keyNextSeq)
	if err != nil {
		return err
	}
	e.SetCounters(nextID, nextSeq)
	return nil
}

func (s *PebbleStore) getU64(key []byte) (uint64, error) {
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("malformed counter %q", key)
	}
	return binary.BigEndian.Uint64(val), nil
}

func (s *PebbleStore) scan(prefix string, fn func(key, val []byte) error) error {
	lower, upper := prefixBounds(prefix)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}
