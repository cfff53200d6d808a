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

package vm

import "unicode/utf8"

// validateUTF8Chunk checks that carry+chunk is a prefix of valid UTF-8,
// given that more bytes (from a later Put call) may still complete a
// sequence straddling the end of chunk. It returns the trailing bytes of
// an incomplete-but-so-far-valid multi-byte sequence to carry into the
// next call, or ok=false if the bytes already in hand can never form valid
// UTF-8.
//
// No available UTF-8 validator operates incrementally across a streamed
// byte boundary (wire validators typically assume the whole string is
// already in memory); this is built directly on unicode/utf8's rune
// decoder, which is the standard building block those validators use
// under the hood, so it's the smallest correct option rather than a
// hand-rolled decoder.
func validateUTF8Chunk(carry, chunk []byte, final bool) (rest []byte, ok bool) {
	buf := append(append([]byte(nil), carry...), chunk...)
	for len(buf) > 0 {
		if !utf8.FullRune(buf) {
			// Either a valid prefix awaiting more bytes, or truncated
			// garbage; FullRune can't tell the two apart, so only treat it
			// as "need more" when the caller says more is coming.
			if final {
				return nil, false
			}
			return buf, true
		}
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size == 1 {
			return nil, false
		}
		buf = buf[size:]
	}
	return nil, true
}
