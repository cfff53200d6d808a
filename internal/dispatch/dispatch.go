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

// Package dispatch implements the two-tier field-number to bytecode-offset
// table that each compiled message method consults for every tag it reads
// (the compiler emits no per-field tag-matching fast path).
//
// Grounded on original_source/upb/pb/decoder.int.h's packed dispatch value
// format and compile_decoder.c's dispatchtarget/repack, and on hyperpb's
// internal/swiss for the hash-tail half, simplified: a plain open-addressed
// table without SIMD control-byte scanning, since this table is built once
// at compile time and probed at most twice per tag.
package dispatch

import (
	"math/bits"

	"github.com/pbtdp/decode/internal/wire"
)

// denseThreshold is one past the largest key stored in the dense array
// half of a message's table; anything at or above it lives in the hash
// part. Matches the order of magnitude of upb's dispatch table sizing
// (most real schemas keep field numbers under a few hundred).
const denseThreshold = 64

// Entry is one packed dispatch slot: a bytecode offset plus up to two wire
// types that are allowed to reach it, matching
// upb_pbdecoder_packdispatch's (ofs<<16)|(wt2<<8)|wt1 layout. wt2 lets a
// single slot serve both the packed and non-packed encodings of a
// repeated scalar field.
type Entry struct {
	Offset uint32
	WT1    uint8
	WT2    uint8
}

// Empty reports whether e is an unset slot.
func (e Entry) Empty() bool {
	return e.WT1 == wire.NoWireType && e.WT2 == wire.NoWireType
}

// EndMsgKey is the sentinel field-number key (0, which is never a valid
// field number) whose slot holds the bytecode offset of a message's
// epilogue, matching decoder.int.h's DISPATCH_ENDMSG.
const EndMsgKey = 0

// secondaryBase is added to a field number to form the key of its
// "secondary" slot: the alternate wire type for a repeated scalar field
// that can appear either packed or unpacked on the wire. Chosen well above
// any legal field number (1<<29-1) so the two key spaces never collide.
const secondaryBase = 1 << 30

// SecondaryKey returns the dispatch key for the alternate-wire-type slot of
// field num.
func SecondaryKey(num uint32) uint32 {
	return secondaryBase + num
}

// Table is a compiled message's field-number to Entry map.
type Table struct {
	dense        []Entry // index 0 holds the EndMsgKey entry; index i holds field i's entry.
	writtenDense writtenSet
	hash         *hashTail
}

// New creates an empty Table.
func New() *Table {
	return &Table{
		dense: make([]Entry, denseThreshold),
		hash:  newHashTail(),
	}
	// Note: dense entries default to the zero Entry, whose WT1/WT2 are 0
	// (VARINT), not NoWireType; Set always overwrites slots it uses, and
	// Lookup on a slot nobody ever Set returns ok=false via the hash/dense
	// "was this written" bookkeeping below rather than trusting Empty on
	// the zero value.
}

// Set installs an Entry at key (a field number, EndMsgKey, or a
// SecondaryKey).
func (t *Table) Set(key uint32, e Entry) {
	if key < denseThreshold {
		t.dense[key] = e
		t.written(key)
		return
	}
	t.hash.set(key, e)
}

// writtenSet tracks which dense slots have actually been assigned, since
// the zero Entry is not distinguishable from "never set" by value alone.
type writtenSet = map[uint32]struct{}

func (t *Table) written(key uint32) {
	if t.writtenDense == nil {
		t.writtenDense = make(writtenSet)
	}
	t.writtenDense[key] = struct{}{}
}

// Shift adds delta to every Entry's Offset. Used once, when a
// method-locally-compiled table's bytecode is concatenated into the
// shared Program at a known base offset.
func (t *Table) Shift(delta int) {
	for k := range t.writtenDense {
		e := t.dense[k]
		e.Offset += uint32(delta)
		t.dense[k] = e
	}
	t.hash.shift(uint32(delta))
}

// Lookup finds the Entry registered for key, if any.
func (t *Table) Lookup(key uint32) (Entry, bool) {
	if key < denseThreshold {
		_, ok := t.writtenDense[key]
		if !ok {
			return Entry{}, false
		}
		return t.dense[key], true
	}
	return t.hash.get(key)
}

// hashTail is an open-addressed table for dispatch keys at or above
// denseThreshold: large field numbers and the SecondaryKey-offset slots.
// Adapted from hyperpb's internal/swiss control-byte design (the fxhash
// split of a mixed 64-bit hash into a bucket index h1 and a 7-bit
// fingerprint h2), simplified to linear probing over plain parallel slices
// instead of SIMD-scanned 16-slot groups: this table is built once per
// compiled method and probed at most twice per tag whose key falls in it.
type hashTail struct {
	keys []uint32
	vals []Entry
	fp   []uint8
	used []bool
	n    int
}

const initialHashCap = 8

func newHashTail() *hashTail {
	return &hashTail{
		keys: make([]uint32, initialHashCap),
		vals: make([]Entry, initialHashCap),
		fp:   make([]uint8, initialHashCap),
		used: make([]bool, initialHashCap),
	}
}

// splitHash mixes key and splits the result into a bucket index h1 and a
// 7-bit fingerprint h2, mirroring swiss's fxhash.h1/h2 but operating on a
// fixed-size uint32 key instead of a byte slice.
func splitHash(key uint32) (h1 uint64, h2 uint8) {
	const mul = 0x517cc1b727220a95
	hi, lo := bits.Mul64(bits.RotateLeft64(uint64(key)^0x9e3779b97f4a7c15, 5), mul)
	mixed := lo ^ hi
	return mixed >> 7, uint8(mixed) & 0x7f
}

func (h *hashTail) set(key uint32, e Entry) {
	if h.n*2 >= len(h.used) {
		h.grow()
	}
	mask := uint64(len(h.used) - 1)
	h1, h2 := splitHash(key)
	i := h1 & mask
	for {
		if !h.used[i] {
			h.used[i] = true
			h.keys[i] = key
			h.fp[i] = h2
			h.vals[i] = e
			h.n++
			return
		}
		if h.keys[i] == key {
			h.vals[i] = e
			return
		}
		i = (i + 1) & mask
	}
}

func (h *hashTail) get(key uint32) (Entry, bool) {
	mask := uint64(len(h.used) - 1)
	h1, h2 := splitHash(key)
	i := h1 & mask
	for {
		if !h.used[i] {
			return Entry{}, false
		}
		if h.fp[i] == h2 && h.keys[i] == key {
			return h.vals[i], true
		}
		i = (i + 1) & mask
	}
}

// shift adds delta to every stored Entry's Offset in place, without
// rehashing (keys are untouched).
func (h *hashTail) shift(delta uint32) {
	for i, used := range h.used {
		if used {
			h.vals[i].Offset += delta
		}
	}
}

func (h *hashTail) grow() {
	old := *h
	newCap := len(old.used) * 2
	*h = hashTail{
		keys: make([]uint32, newCap),
		vals: make([]Entry, newCap),
		fp:   make([]uint8, newCap),
		used: make([]bool, newCap),
	}
	for i, used := range old.used {
		if used {
			h.set(old.keys[i], old.vals[i])
		}
	}
}
