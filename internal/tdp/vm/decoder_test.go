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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/pbtdp/decode/internal/schema"
	"github.com/pbtdp/decode/internal/tdp/compiler"
)

// countingSink is a minimal Sink used to exercise the interpreter's control
// flow directly (this file is white-box, in package vm, so it can build a
// Decoder and poke at it without going through the public API).
type countingSink struct {
	starts, ends, values, strings, unknowns int
	strBuf                                  []byte
	lastStr                                 string
}

func (s *countingSink) StartMessage() bool        { s.starts++; return true }
func (s *countingSink) EndMessage(error) bool      { s.ends++; return true }
func (s *countingSink) ValueBool(HandlerData, bool) bool       { s.values++; return true }
func (s *countingSink) ValueInt32(HandlerData, int32) bool     { s.values++; return true }
func (s *countingSink) ValueInt64(HandlerData, int64) bool     { s.values++; return true }
func (s *countingSink) ValueUint32(HandlerData, uint32) bool   { s.values++; return true }
func (s *countingSink) ValueUint64(HandlerData, uint64) bool   { s.values++; return true }
func (s *countingSink) ValueFloat(HandlerData, float32) bool   { s.values++; return true }
func (s *countingSink) ValueDouble(HandlerData, float64) bool  { s.values++; return true }
func (s *countingSink) StartString(HandlerData, int) bool {
	s.strBuf = s.strBuf[:0]
	return true
}
func (s *countingSink) OnString(_ HandlerData, b []byte) int {
	s.strBuf = append(s.strBuf, b...)
	return len(b)
}
func (s *countingSink) EndString(HandlerData) bool {
	s.strings++
	s.lastStr = string(s.strBuf)
	return true
}
func (s *countingSink) StartSeq(HandlerData) bool { return true }
func (s *countingSink) EndSeq(HandlerData) bool   { return true }
func (s *countingSink) StartSubMessage(HandlerData) Sink {
	return &countingSink{}
}
func (s *countingSink) EndSubMessage(HandlerData) bool { return true }
func (s *countingSink) OnUnknown(b []byte) int {
	s.unknowns++
	return len(b)
}

func fileDescriptorProtoProgram(t *testing.T) (*compiler.Program, schema.DefIndex) {
	t.Helper()
	md := (&descriptorpb.FileDescriptorProto{}).ProtoReflect().Descriptor()
	s := schema.FromDescriptor(md)
	h := schema.NewHandlerCache(s)
	prog := compiler.Compile(s, h)
	return prog, s.Lookup(md.FullName())
}

func TestNewDefaultsMaxDepthWhenUnset(t *testing.T) {
	prog, root := fileDescriptorProtoProgram(t)
	d := New(prog, root, Config{})
	assert.Equal(t, MaxNesting, d.maxDepth)
}

func TestStartTwiceIsRejected(t *testing.T) {
	prog, root := fileDescriptorProtoProgram(t)
	d := New(prog, root, DefaultConfig)
	sink := &countingSink{}
	require.NoError(t, d.Start(sink))

	err := d.Start(sink)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorHandlerRejected, perr.Code)
}

func TestPutBeforeStartIsRejected(t *testing.T) {
	prog, root := fileDescriptorProtoProgram(t)
	d := New(prog, root, DefaultConfig)
	err := d.Put([]byte{0})
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorHandlerRejected, perr.Code)
}

func TestPutEmptySliceIsANoop(t *testing.T) {
	prog, root := fileDescriptorProtoProgram(t)
	d := New(prog, root, DefaultConfig)
	require.NoError(t, d.Start(&countingSink{}))
	require.NoError(t, d.Put(nil))
	assert.False(t, d.done)
}

func TestSimpleStringFieldDeliversStartEndMessageAndString(t *testing.T) {
	var raw []byte
	raw = protowire.AppendTag(raw, 1, protowire.BytesType) // FileDescriptorProto.name
	raw = protowire.AppendString(raw, "hello.proto")

	prog, root := fileDescriptorProtoProgram(t)
	d := New(prog, root, DefaultConfig)
	sink := &countingSink{}
	require.NoError(t, d.Start(sink))
	require.NoError(t, d.Put(raw))
	require.NoError(t, d.End())

	assert.Equal(t, 1, sink.starts)
	assert.Equal(t, 1, sink.ends)
	assert.Equal(t, 1, sink.strings)
	assert.Equal(t, "hello.proto", sink.lastStr)
}

func TestUnrecognizedFieldNumberReachesOnUnknown(t *testing.T) {
	var raw []byte
	raw = protowire.AppendTag(raw, 12345, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 1)

	prog, root := fileDescriptorProtoProgram(t)
	d := New(prog, root, DefaultConfig)
	sink := &countingSink{}
	require.NoError(t, d.Start(sink))
	require.NoError(t, d.Put(raw))
	require.NoError(t, d.End())

	assert.Equal(t, 1, sink.unknowns)
}

func TestEndWithoutBalancedFrameFails(t *testing.T) {
	var raw []byte
	raw = protowire.AppendTag(raw, 1, protowire.BytesType)
	raw = protowire.AppendVarint(raw, 20) // claims 20 bytes, none follow

	prog, root := fileDescriptorProtoProgram(t)
	d := New(prog, root, DefaultConfig)
	require.NoError(t, d.Start(&countingSink{}))
	require.NoError(t, d.Put(raw))

	err := d.End()
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorTruncatedAtEnd, perr.Code)
}

func TestValidateUTF8ChunkAcrossBoundary(t *testing.T) {
	full := []byte("héllo") // 'é' is a 2-byte UTF-8 sequence
	split := 2              // lands inside the 2-byte rune

	carry, ok := validateUTF8Chunk(nil, full[:split], false)
	require.True(t, ok)

	_, ok = validateUTF8Chunk(carry, full[split:], true)
	assert.True(t, ok)
}

func TestValidateUTF8ChunkRejectsInvalidBytes(t *testing.T) {
	_, ok := validateUTF8Chunk(nil, []byte{0xff, 0xfe}, true)
	assert.False(t, ok)
}

// TestShimFieldBypassesSinkAndStoresDirectly exercises the opt-in
// HandlerShim path end to end: a field marked with ShimField must not reach
// the Sink at all, and its decoded value must be recoverable through
// ShimValue/ShimPresent instead.
func TestShimFieldBypassesSinkAndStoresDirectly(t *testing.T) {
	md := (&descriptorpb.FieldDescriptorProto{}).ProtoReflect().Descriptor()
	s := schema.FromDescriptor(md)
	h := schema.NewHandlerCache(s)

	idx := s.Lookup(md.FullName())
	handlers := h.Get(idx)
	def := s.Def(idx)

	var numberField int
	found := false
	for i, f := range def.Fields {
		if f.Name == "number" {
			numberField = i
			found = true
			break
		}
	}
	require.True(t, found, "FieldDescriptorProto should have a `number` field")
	handlers.ShimField(numberField, 0, 0)

	prog := compiler.Compile(s, h)

	var raw []byte
	raw = protowire.AppendTag(raw, 3, protowire.VarintType) // FieldDescriptorProto.number
	raw = protowire.AppendVarint(raw, 42)

	d := New(prog, idx, DefaultConfig)
	sink := &countingSink{}
	require.NoError(t, d.Start(sink))
	require.NoError(t, d.Put(raw))
	require.NoError(t, d.End())

	assert.Equal(t, 0, sink.values, "shimmed field must not reach the Sink")
	v, ok := d.ShimValue(0)
	require.True(t, ok)
	assert.Equal(t, int32(42), int32(uint32(v)))
	assert.True(t, d.ShimPresent(0))
}

func TestValidateUTF8ChunkRejectsIncompleteAtFinal(t *testing.T) {
	// 0xe2 0x82 starts a 3-byte sequence ('€' is 0xe2 0x82 0xac); cut short
	// with final=true, it must be rejected rather than silently accepted.
	_, ok := validateUTF8Chunk(nil, []byte{0xe2, 0x82}, true)
	assert.False(t, ok)
}
