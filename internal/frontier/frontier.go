// Package frontier selects the next cell to decide: the one with the fewest candidates, ties going
// to the lowest index.
//
// Entries are never updated in place. Every change to a cell pushes a new entry and stale ones are
// dropped when they reach the top, so callers must Push whenever a count changes.
package frontier

import "container/heap"

type entry struct {
	count, index int
}

type entries []entry

func (e entries) Len() int { return len(e) }
func (e entries) Less(i, j int) bool {
	if e[i].count != e[j].count {
		return e[i].count < e[j].count
	}
	return e[i].index < e[j].index
}
func (e entries) Swap(i, j int)  { e[i], e[j] = e[j], e[i] }
func (e *entries) Push(x any)    { *e = append(*e, x.(entry)) }
func (e *entries) Pop() any {
	old := *e
	n := len(old)
	x := old[n-1]
	*e = old[:n-1]
	return x
}

// Frontier is a lazy min-heap of (count, index) pairs.
type Frontier struct {
	heap  entries
	count func(index int) int
	size  int
}

// New creates a frontier over size cells. count reports the current candidate count of a cell, only
// cells with a count above one are ever returned.
func New(size int, count func(index int) int) *Frontier {
	f := &Frontier{count: count, size: size}
	f.Rebuild()
	return f
}

// Push records that the count of a cell changed.
func (f *Frontier) Push(index, count int) {
	if count <= 1 {
		return
	}
	heap.Push(&f.heap, entry{count: count, index: index})
	if len(f.heap) > 8*f.size+64 {
		f.Rebuild()
	}
}

// Next returns the undecided cell with the fewest candidates without removing it.
func (f *Frontier) Next() (int, bool) {
	for len(f.heap) > 0 {
		top := f.heap[0]
		if c := f.count(top.index); c > 1 && c == top.count {
			return top.index, true
		}
		heap.Pop(&f.heap)
	}
	return 0, false
}

// Rebuild discards every entry and reads the counts of all cells again.
func (f *Frontier) Rebuild() {
	f.heap = f.heap[:0]
	for i := range f.size {
		if c := f.count(i); c > 1 {
			f.heap = append(f.heap, entry{count: c, index: i})
		}
	}
	heap.Init(&f.heap)
}

// Len returns the number of entries, stale ones included.
func (f *Frontier) Len() int {
	return len(f.heap)
}
