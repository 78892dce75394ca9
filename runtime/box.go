// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package runtime

import (
	"math/big"
	"sync"

	"corvus/utils"
)

// Heap values (strings, bigints) cannot embed a real Go pointer inside
// the NaN payload: Go's tracing garbage collector does not scan
// non-pointer-typed words, so a heap object reachable only through a
// hidden bit pattern could be collected out from under a live Value.
// Instead the payload is an index into an append-only table that holds
// the real Go reference, so the GC always sees it. The table is never
// compacted or shrunk, matching spec.md §1's "no GC of heap values"
// non-goal: boxed heap objects live for the process lifetime.
var heap = struct {
	mu       sync.Mutex
	strings  []string
	bigints  []*big.Int
}{}

// NewString boxes a Go string as a language string Value.
func NewString(s string) Value {
	heap.mu.Lock()
	idx := uint32(len(heap.strings))
	heap.strings = append(heap.strings, s)
	heap.mu.Unlock()
	return boxHeap(tagString, idx)
}

// GetString unboxes a string Value. The caller must have checked
// Kind() == KindString.
func GetString(v Value) string {
	utils.Assert(v.Kind() == KindString, "GetString on non-string Value")
	heap.mu.Lock()
	defer heap.mu.Unlock()
	return heap.strings[v.heapIndex()]
}

// NewBigInt boxes an arbitrary-precision integer, used once fixnum
// arithmetic overflows [MinFixnum, MaxFixnum] (spec.md §8 boundary
// behaviors).
func NewBigInt(b *big.Int) Value {
	heap.mu.Lock()
	idx := uint32(len(heap.bigints))
	heap.bigints = append(heap.bigints, new(big.Int).Set(b))
	heap.mu.Unlock()
	return boxHeap(tagBigInt, idx)
}

// GetBigInt unboxes a bigint Value. The caller must have checked
// Kind() == KindBigInt.
func GetBigInt(v Value) *big.Int {
	utils.Assert(v.Kind() == KindBigInt, "GetBigInt on non-bigint Value")
	heap.mu.Lock()
	defer heap.mu.Unlock()
	return heap.bigints[v.heapIndex()]
}
