// Copyright 2025 The pbtdp Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package arena provides a small bump allocator for values that are all
// allocated once and freed together.
//
// Unlike a general-purpose arena meant to elide millions of small
// allocations per second in a hot loop, this one holds plain Go values in
// an ordinary slice. (The schema and VM packages keep their definitions and
// frame/call stacks in plain slices and do not use it.) There is no need
// for the self-referential raw-pointer chunk
// trick a high-throughput arena uses to keep the GC from reclaiming chunks
// out from under live pointers into them; ordinary slices do that for us.
package arena

// Arena is a bump allocator of values of type T, indexed rather than
// pointed to, so that growth never invalidates a previously issued
// reference.
//
// A zero Arena is empty and ready to use.
type Arena[T any] struct {
	items []T
}

// New creates an arena pre-sized for roughly n items.
func New[T any](n int) *Arena[T] {
	return &Arena[T]{items: make([]T, 0, n)}
}

// Alloc appends v to the arena and returns its index.
func (a *Arena[T]) Alloc(v T) int {
	a.items = append(a.items, v)
	return len(a.items) - 1
}

// At returns a pointer to the value at index i. The pointer is invalidated
// by the next Alloc that grows the backing slice, or by Reset; callers that
// must hold a long-lived reference should store the index instead.
func (a *Arena[T]) At(i int) *T {
	return &a.items[i]
}

// Len returns the number of values allocated so far.
func (a *Arena[T]) Len() int {
	return len(a.items)
}

// Reset empties the arena, allowing its backing storage to be reused.
//
// Any pointer previously returned by At must not be used after calling
// Reset.
func (a *Arena[T]) Reset() {
	a.items = a.items[:0]
}

// All returns the arena's contents as a slice. The slice aliases the
// arena's internal storage and is invalidated by the next Alloc that grows
// it, or by Reset.
func (a *Arena[T]) All() []T {
	return a.items
}
