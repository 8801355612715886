// Package topn implements a bounded best-K selector over (index, score) pairs.
//
// Lower scores win. The selection is a pure function of the multiset of pairs offered since the
// last Clear: splitting the offers across several batches does not change the result. Equal
// scores are resolved in favour of the pair offered first.
package topn

import (
	"container/heap"
	"math"
	"sort"
)

type entry struct {
	index int
	score float64
	seq   uint64
}

// worse reports whether a ranks below b. NaN ranks below every number.
func worse(a, b entry) bool {
	aNaN, bNaN := math.IsNaN(a.score), math.IsNaN(b.score)
	if aNaN != bNaN {
		return aNaN
	}
	if !aNaN && a.score != b.score {
		return a.score > b.score
	}
	return a.seq > b.seq
}

// maxHeap keeps the worst retained entry on top so it can be replaced when a better candidate
// arrives.
type maxHeap []entry

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(entry)) }

func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Buffer retains the K best pairs offered to it.
type Buffer struct {
	k      int
	seq    uint64
	heap   maxHeap
	sorted bool
}

// New returns a buffer of capacity k. A non-positive k yields a buffer that never retains
// anything.
func New(k int) *Buffer {
	if k < 0 {
		k = 0
	}
	return &Buffer{k: k, heap: make(maxHeap, 0, k)}
}

// Cap returns K.
func (b *Buffer) Cap() int {
	return b.k
}

// Len returns how many pairs are currently retained.
func (b *Buffer) Len() int {
	return len(b.heap)
}

// Clear resets the buffer for a new selection pass.
func (b *Buffer) Clear() {
	b.heap = b.heap[:0]
	b.seq = 0
	b.sorted = false
}

// Add offers one candidate.
func (b *Buffer) Add(index int, score float64) {
	if b.k == 0 {
		return
	}
	if b.sorted {
		// Sorting broke the heap order; restore it before accepting more offers.
		heap.Init(&b.heap)
		b.sorted = false
	}
	e := entry{index: index, score: score, seq: b.seq}
	b.seq++
	if len(b.heap) < b.k {
		heap.Push(&b.heap, e)
		return
	}
	if worse(b.heap[0], e) {
		b.heap[0] = e
		heap.Fix(&b.heap, 0)
	}
}

// Sort orders the retained pairs best-first.
func (b *Buffer) Sort() {
	sort.Slice(b.heap, func(i, j int) bool { return worse(b.heap[j], b.heap[i]) })
	b.sorted = true
}

// IndexArray returns the retained indices. After Sort they are ordered best-first.
func (b *Buffer) IndexArray() []int {
	out := make([]int, len(b.heap))
	for i, e := range b.heap {
		out[i] = e.index
	}
	return out
}

// CopyIndices writes the retained indices into dst and returns how many were written.
func (b *Buffer) CopyIndices(dst []int) int {
	n := 0
	for _, e := range b.heap {
		if n == len(dst) {
			break
		}
		dst[n] = e.index
		n++
	}
	return n
}

// Scores returns the retained scores, in the same order as IndexArray.
func (b *Buffer) Scores() []float64 {
	out := make([]float64, len(b.heap))
	for i, e := range b.heap {
		out[i] = e.score
	}
	return out
}
