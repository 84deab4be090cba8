package book

import (
	"container/heap"
	"math"
	"math/bits"
	"sort"

	"github.com/gammazero/deque"
)

// Book holds the resting limit orders of one pair.
//
// Each side keeps a price heap for O(1) best-price peeks plus a FIFO deque
// per price level, so price-time priority falls out of the structure: the
// heap orders prices, the deque orders arrivals. An id index gives O(1)
// cancellation lookups.
//
// The Book is a plain structure with no internal locking: the matching
// engine serializes all access through the owning pair's domain lock.
type Book struct {
	bidHeap MaxPriceHeap
	askHeap MinPriceHeap

	bids map[uint64]*deque.Deque[*Order]
	asks map[uint64]*deque.Deque[*Order]

	byID map[uint64]*Order
}

func New() *Book {
	b := &Book{
		bids: make(map[uint64]*deque.Deque[*Order]),
		asks: make(map[uint64]*deque.Deque[*Order]),
		byID: make(map[uint64]*Order),
	}
	heap.Init(&b.bidHeap)
	heap.Init(&b.askHeap)
	return b
}

func (b *Book) levels(side Side) map[uint64]*deque.Deque[*Order] {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// Insert adds a resting order at the back of its price level's queue.
func (b *Book) Insert(o *Order) {
	levels := b.levels(o.Side)
	q, ok := levels[o.Price]
	if !ok {
		q = &deque.Deque[*Order]{}
		levels[o.Price] = q
		if o.Side == Buy {
			heap.Push(&b.bidHeap, o.Price)
		} else {
			heap.Push(&b.askHeap, o.Price)
		}
	}
	q.PushBack(o)
	b.byID[o.ID] = o
}

// PeekBest returns the order at the head of the given side's best price
// level, without removing it.
func (b *Book) PeekBest(side Side) (*Order, bool) {
	var price uint64
	var ok bool
	if side == Buy {
		price, ok = b.bidHeap.Peek()
	} else {
		price, ok = b.askHeap.Peek()
	}
	if !ok {
		return nil, false
	}
	q := b.levels(side)[price]
	if q == nil || q.Len() == 0 {
		return nil, false
	}
	return q.Front(), true
}

// DropBest removes the head order of the side's best level, collapsing the
// level when it empties. Used by the engine once a maker is fully filled.
func (b *Book) DropBest(side Side) (*Order, bool) {
	o, ok := b.PeekBest(side)
	if !ok {
		return nil, false
	}
	q := b.levels(side)[o.Price]
	q.PopFront()
	delete(b.byID, o.ID)
	if q.Len() == 0 {
		delete(b.levels(side), o.Price)
		if side == Buy {
			heap.Pop(&b.bidHeap)
		} else {
			heap.Pop(&b.askHeap)
		}
	}
	return o, true
}

// Remove deletes an arbitrary resting order by id (cancellation path).
func (b *Book) Remove(id uint64) (*Order, bool) {
	o, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	levels := b.levels(o.Side)
	q := levels[o.Price]
	if q != nil {
		if i := q.Index(func(x *Order) bool { return x.ID == id }); i >= 0 {
			q.Remove(i)
		}
		if q.Len() == 0 {
			delete(levels, o.Price)
			b.removePrice(o.Side, o.Price)
		}
	}
	delete(b.byID, id)
	return o, true
}

// removePrice drops a price from the side's heap. O(levels) worst case,
// only hit when a cancellation empties a level.
func (b *Book) removePrice(side Side, price uint64) {
	if side == Buy {
		for i := 0; i < b.bidHeap.Len(); i++ {
			if b.bidHeap[i] == price {
				heap.Remove(&b.bidHeap, i)
				return
			}
		}
	} else {
		for i := 0; i < b.askHeap.Len(); i++ {
			if b.askHeap[i] == price {
				heap.Remove(&b.askHeap, i)
				return
			}
		}
	}
}

// Contains reports whether id is resting in this book.
func (b *Book) Contains(id uint64) bool {
	_, ok := b.byID[id]
	return ok
}

// Len returns the number of resting orders on one side.
func (b *Book) Len(side Side) int {
	n := 0
	for _, q := range b.levels(side) {
		n += q.Len()
	}
	return n
}

// Snapshot aggregates remaining amounts by price level, best levels first
// on both sides (bids high to low, asks low to high).
func (b *Book) Snapshot() Depth {
	var d Depth

	bidPrices := append([]uint64(nil), b.bidHeap...)
	sort.Slice(bidPrices, func(i, j int) bool { return bidPrices[i] > bidPrices[j] })
	for _, p := range bidPrices {
		d.BidPrices = append(d.BidPrices, p)
		d.BidAmounts = append(d.BidAmounts, levelAmount(b.bids[p]))
	}

	askPrices := append([]uint64(nil), b.askHeap...)
	sort.Slice(askPrices, func(i, j int) bool { return askPrices[i] < askPrices[j] })
	for _, p := range askPrices {
		d.AskPrices = append(d.AskPrices, p)
		d.AskAmounts = append(d.AskAmounts, levelAmount(b.asks[p]))
	}

	return d
}

// levelAmount sums the level's remaining amounts, saturating at the
// uint64 ceiling instead of wrapping.
func levelAmount(q *deque.Deque[*Order]) uint64 {
	var total uint64
	for i := 0; i < q.Len(); i++ {
		sum, carry := bits.Add64(total, q.At(i).AmountRemaining, 0)
		if carry != 0 {
			return math.MaxUint64
		}
		total = sum
	}
	return total
}
