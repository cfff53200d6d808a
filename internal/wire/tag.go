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

// Package wire contains the low-level protobuf wire-format primitives:
// varint and fixed-width decoding, zigzag encode/decode, and tag packing.
//
// Everything in this package operates on plain byte slices with no notion of
// suspension; the varint reader reports how much of its input it consumed
// and tells a short buffer apart from a malformed value, which is what lets
// the VM suspend and resume around it.
package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Type is a wire type, one of the six values the protobuf wire format
// defines.
type Type = protowire.Type

// The six wire types. Values match the protobuf wire format exactly.
const (
	Varint     = protowire.VarintType
	Fixed64    = protowire.Fixed64Type
	Delimited  = protowire.BytesType
	StartGroup = protowire.StartGroupType
	EndGroup   = protowire.EndGroupType
	Fixed32    = protowire.Fixed32Type
)

// NoWireType is a sentinel meaning "no alternate wire type accepted" in a
// dispatch entry. 0xff is not a valid wire type (the type field is 3 bits).
const NoWireType uint8 = 0xff

// MaxFieldNumber is the largest field number the wire format allows.
// Field numbers occupy 29 bits of the tag once the low 3 wire-type bits are
// removed.
const MaxFieldNumber = 1<<29 - 1

// Tag packs a field number and wire type the way they appear on the wire.
func Tag(num protowire.Number, t Type) uint64 {
	return uint64(num)<<3 | uint64(t&7)
}

// UnpackTag splits a decoded tag varint into its field number and wire type.
//
// Returns field number 0 if the tag is malformed (number <= 0 or overflows
// MaxFieldNumber); callers must check for this.
func UnpackTag(tag uint64) (num protowire.Number, t Type) {
	n, wt := protowire.DecodeTag(tag)
	if n <= 0 || n > MaxFieldNumber {
		return 0, wt
	}
	return n, wt
}

// ZigZagDecode32 decodes a 32-bit zig-zag encoded value, as used by sint32.
func ZigZagDecode32(v uint32) int32 {
	return int32(v>>1) ^ -int32(v&1)
}

// ZigZagDecode64 decodes a 64-bit zig-zag encoded value, as used by sint64.
func ZigZagDecode64(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// ZigZagEncode32 encodes a 32-bit signed value using zig-zag encoding.
func ZigZagEncode32(v int32) uint32 {
	return uint32(v<<1) ^ uint32(v>>31)
}

// ZigZagEncode64 encodes a 64-bit signed value using zig-zag encoding.
func ZigZagEncode64(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}
