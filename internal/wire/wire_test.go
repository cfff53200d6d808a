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

package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/pbtdp/decode/internal/wire"
)

func TestDecodeVarintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0)} {
		var buf []byte
		buf = protowire.AppendVarint(buf, v)
		got, n, status := wire.DecodeVarint(buf)
		require.Equal(t, wire.VarintOK, status)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, v, got)
	}
}

func TestDecodeVarintShortIsNotMalformed(t *testing.T) {
	full := protowire.AppendVarint(nil, 1<<40)
	for i := 1; i < len(full); i++ {
		_, _, status := wire.DecodeVarint(full[:i])
		assert.Equal(t, wire.VarintShort, status, "prefix of length %d", i)
	}
}

func TestDecodeVarintMalformedNeverTerminates(t *testing.T) {
	b := make([]byte, wire.MaxVarintLen)
	for i := range b {
		b[i] = 0x80
	}
	_, _, status := wire.DecodeVarint(b)
	assert.Equal(t, wire.VarintMalformed, status)
}

func TestSizeVarintMatchesEncodedLength(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 1 << 20, ^uint64(0)} {
		buf := protowire.AppendVarint(nil, v)
		assert.Equal(t, len(buf), wire.SizeVarint(v))
	}
}

func TestZigZagRoundTrip32(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 2, -2, 1<<31 - 1, -(1 << 30)} {
		assert.Equal(t, v, wire.ZigZagDecode32(wire.ZigZagEncode32(v)))
	}
}

func TestZigZagRoundTrip64(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 2, -2, 1<<62 - 1, -(1 << 61)} {
		assert.Equal(t, v, wire.ZigZagDecode64(wire.ZigZagEncode64(v)))
	}
}

func TestZigZagMatchesProtowire(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 12345, -98765} {
		assert.Equal(t, protowire.EncodeZigZag(v), wire.ZigZagEncode64(v))
	}
}

func TestDecodeFixed32ShortBuffer(t *testing.T) {
	_, ok := wire.DecodeFixed32([]byte{1, 2, 3})
	assert.False(t, ok)

	v, ok := wire.DecodeFixed32([]byte{1, 0, 0, 0, 0xff})
	require.True(t, ok)
	assert.Equal(t, uint32(1), v)
}

func TestDecodeFixed64ShortBuffer(t *testing.T) {
	_, ok := wire.DecodeFixed64([]byte{1, 2, 3, 4, 5, 6, 7})
	assert.False(t, ok)

	v, ok := wire.DecodeFixed64([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0xff})
	require.True(t, ok)
	assert.Equal(t, uint64(1), v)
}

func TestUnpackTagRejectsZeroAndOverflow(t *testing.T) {
	num, _ := wire.UnpackTag(wire.Tag(0, wire.Varint))
	assert.Equal(t, protowire.Number(0), num)

	num, wt := wire.UnpackTag(wire.Tag(5, wire.Delimited))
	assert.Equal(t, protowire.Number(5), num)
	assert.Equal(t, wire.Delimited, wt)

	overflowed := wire.Tag(wire.MaxFieldNumber+1, wire.Varint)
	num, _ = wire.UnpackTag(overflowed)
	assert.Equal(t, protowire.Number(0), num, "field numbers past MaxFieldNumber must not unpack")
}
