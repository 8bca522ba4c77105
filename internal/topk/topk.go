// Package topk implements the top-K operator: per (window, outerKey),
// selects the K largest entries by total bytes with a deterministic,
// stable tiebreak, using a bounded min-heap of size K.
package topk

import (
	"container/heap"
	"sort"

	"FlowRollup/internal/model"
)

// Entry is one (innerKey, bytes) pair competing for a top-K slot.
type Entry struct {
	Key   string
	Bytes model.BytesInOut
}

// Compare orders entries by the C6 comparator: primary bytesIngress +
// bytesEgress descending, secondary bytesIngress descending, tertiary the
// encoded key ascending. It returns a negative number if a ranks before b,
// positive if a ranks after b, and 0 only if a and b are the same key (keys
// are expected to be unique per competing set, so 0 should not otherwise
// occur).
func Compare(a, b Entry) int {
	if at, bt := a.Bytes.Total(), b.Bytes.Total(); at != bt {
		if at > bt {
			return -1
		}
		return 1
	}
	if a.Bytes.BytesIn != b.Bytes.BytesIn {
		if a.Bytes.BytesIn > b.Bytes.BytesIn {
			return -1
		}
		return 1
	}
	switch {
	case a.Key < b.Key:
		return -1
	case a.Key > b.Key:
		return 1
	default:
		return 0
	}
}

// minHeap holds a bounded set of candidates with the worst-ranked entry at
// the root, so it can be evicted in O(log K) when the set grows past K.
type minHeap []Entry

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	// The root must be the worst entry: i is "less" (closer to the root)
	// when i ranks after j.
	return Compare(h[i], h[j]) > 0
}
func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)   { *h = append(*h, x.(Entry)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopK returns up to k entries from entries, sorted best-first by Compare.
// The result is identical regardless of the order entries are supplied in.
func TopK(entries []Entry, k int) []Entry {
	if k <= 0 {
		return nil
	}
	h := &minHeap{}
	heap.Init(h)
	for _, e := range entries {
		heap.Push(h, e)
		if h.Len() > k {
			heap.Pop(h)
		}
	}

	result := make([]Entry, h.Len())
	copy(result, *h)
	sort.Slice(result, func(i, j int) bool { return Compare(result[i], result[j]) < 0 })
	return result
}
