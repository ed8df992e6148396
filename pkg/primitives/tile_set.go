package primitives

import (
	"fmt"
	"iter"
	"math/bits"
	"strings"
)

// TileSet efficiently represents a set of tile indices in [0, capacity).
//
// The zero value is an empty set with no capacity. Copying a TileSet by value shares its storage,
// use Clone to get an independent copy.
type TileSet struct {
	words    []uint64
	capacity int
	count    int
}

func NewTileSet(capacity int) *TileSet {
	return &TileSet{
		words:    make([]uint64, (capacity+63)/64),
		capacity: capacity,
	}
}

// FullTileSet returns a set containing every index in [0, capacity).
func FullTileSet(capacity int) *TileSet {
	s := NewTileSet(capacity)
	s.Fill()
	return s
}

// Add adds a tile index to the set.
func (s *TileSet) Add(i int) error {
	if i < 0 || i >= s.capacity {
		return fmt.Errorf("tile %d is out of range [0, %d)", i, s.capacity)
	}

	w, b := i/64, uint64(1)<<(i%64)
	if s.words[w]&b != 0 {
		return nil
	}
	s.words[w] |= b
	s.count++
	return nil
}

// Remove removes a tile index from the set. Out of range indices are ignored.
func (s *TileSet) Remove(i int) {
	if i < 0 || i >= s.capacity {
		return
	}
	w, b := i/64, uint64(1)<<(i%64)
	if s.words[w]&b == 0 {
		return
	}
	s.words[w] &^= b
	s.count--
}

// Fill adds every index to the set.
func (s *TileSet) Fill() {
	for i := range s.words {
		s.words[i] = ^uint64(0)
	}
	if rem := s.capacity % 64; rem != 0 {
		s.words[len(s.words)-1] = (uint64(1) << rem) - 1
	}
	s.count = s.capacity
}

// Clear removes every index from the set.
func (s *TileSet) Clear() {
	clear(s.words)
	s.count = 0
}

// AddAll adds all indices from another set to this set.
func (s *TileSet) AddAll(other *TileSet) {
	if s.capacity != other.capacity {
		panic(fmt.Sprintf("cannot add all: tile sets have different capacities, %d != %d", s.capacity, other.capacity))
	}

	if s.IsFull() {
		return
	}

	count := 0
	for i, w := range other.words {
		s.words[i] |= w
		count += bits.OnesCount64(s.words[i])
	}
	s.count = count
}

// Intersect removes every index that is not also in other. It reports whether the set changed.
func (s *TileSet) Intersect(other *TileSet) bool {
	if s.capacity != other.capacity {
		panic(fmt.Sprintf("cannot intersect: tile sets have different capacities, %d != %d", s.capacity, other.capacity))
	}

	count := 0
	for i, w := range other.words {
		s.words[i] &= w
		count += bits.OnesCount64(s.words[i])
	}
	changed := count != s.count
	s.count = count
	return changed
}

// Intersects reports whether the two sets share at least one index.
func (s *TileSet) Intersects(other *TileSet) bool {
	for i, w := range other.words {
		if s.words[i]&w != 0 {
			return true
		}
	}
	return false
}

// IntersectionCount returns the size of the intersection without modifying either set.
func (s *TileSet) IntersectionCount(other *TileSet) int {
	n := 0
	for i, w := range other.words {
		n += bits.OnesCount64(s.words[i] & w)
	}
	return n
}

// Contains checks if a tile index is in the set.
func (s *TileSet) Contains(i int) bool {
	if i < 0 || i >= s.capacity {
		return false
	}
	return s.words[i/64]&(uint64(1)<<(i%64)) != 0
}

// First returns the lowest index in the set.
func (s *TileSet) First() (int, bool) {
	for i, w := range s.words {
		if w != 0 {
			return i*64 + bits.TrailingZeros64(w), true
		}
	}
	return 0, false
}

// Ones iterates over the indices in the set in increasing order.
func (s *TileSet) Ones() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i, w := range s.words {
			for w != 0 {
				b := bits.TrailingZeros64(w)
				if !yield(i*64 + b) {
					return
				}
				w &= w - 1
			}
		}
	}
}

// Slice returns the indices in the set in increasing order.
func (s *TileSet) Slice() []int {
	out := make([]int, 0, s.count)
	for i := range s.Ones() {
		out = append(out, i)
	}
	return out
}

func (s *TileSet) Clone() *TileSet {
	c := &TileSet{
		words:    make([]uint64, len(s.words)),
		capacity: s.capacity,
		count:    s.count,
	}
	copy(c.words, s.words)
	return c
}

func (s *TileSet) Equal(other *TileSet) bool {
	if s.capacity != other.capacity || s.count != other.count {
		return false
	}
	for i, w := range s.words {
		if other.words[i] != w {
			return false
		}
	}
	return true
}

// IsFull checks if the set contains every index.
func (s *TileSet) IsFull() bool {
	return s.count == s.capacity
}

func (s *TileSet) IsEmpty() bool {
	return s.count == 0
}

// Capacity returns the number of indices that can be added to the set.
func (s *TileSet) Capacity() int {
	return s.capacity
}

// Count returns the number of indices in the set.
func (s *TileSet) Count() int {
	return s.count
}

func (s *TileSet) String() string {
	parts := make([]string, 0, s.count)
	for i := range s.Ones() {
		parts = append(parts, fmt.Sprint(i))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
