package book

// MaxPriceHeap implements heap.Interface for bid prices (highest on top).
// Manipulate through container/heap (Init, Push, Pop, Remove).
type MaxPriceHeap []uint64

func (h MaxPriceHeap) Len() int           { return len(h) }
func (h MaxPriceHeap) Less(i, j int) bool { return h[i] > h[j] }
func (h MaxPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *MaxPriceHeap) Push(x any) {
	*h = append(*h, x.(uint64))
}

func (h *MaxPriceHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Peek returns the top price without removing it.
func (h MaxPriceHeap) Peek() (uint64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}

// MinPriceHeap implements heap.Interface for ask prices (lowest on top).
type MinPriceHeap []uint64

func (h MinPriceHeap) Len() int           { return len(h) }
func (h MinPriceHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h MinPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *MinPriceHeap) Push(x any) {
	*h = append(*h, x.(uint64))
}

func (h *MinPriceHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Peek returns the top price without removing it.
func (h MinPriceHeap) Peek() (uint64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}
