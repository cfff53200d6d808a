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

package wire

import "encoding/binary"

// DecodeFixed32 reads a little-endian 32-bit value from the front of b.
// Reports ok=false if b has fewer than 4 bytes, grounded on decode_fixed32
// in original_source/upb/pb/decoder.c.
func DecodeFixed32(b []byte) (val uint32, ok bool) {
	if len(b) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// DecodeFixed64 reads a little-endian 64-bit value from the front of b.
// Reports ok=false if b has fewer than 8 bytes, grounded on decode_fixed64
// in original_source/upb/pb/decoder.c.
func DecodeFixed64(b []byte) (val uint64, ok bool) {
	if len(b) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}
