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

import "github.com/pbtdp/decode/internal/tdp/compiler"

// MaxNesting is the default cap on simultaneously open frames (messages,
// groups, strings, and packed-repeated runs all push one). Matches
// UPB_DECODER_MAX_NESTING in original_source/upb/pb/decoder.int.h.
const MaxNesting = 64

// frame is one entry of the decoder's open-scope stack. A message or group
// occurrence pushes a frame with method set; a string or packed-repeated
// run pushes a bare frame (method nil) that exists only to bound how far
// OP_CHECKDELIM/OP_STRING may read before popping back out.
type frame struct {
	// end is the absolute stream offset this scope must not read past, or
	// -1 if unbounded (a group, closed only by a matching END_GROUP tag,
	// or the outermost message when its overall length isn't known up
	// front).
	end int64

	// groupNum is the field number a START_GROUP frame must see on a
	// matching END_GROUP tag to close, or 0 if this isn't a group frame.
	groupNum uint32

	// method is set for message/group frames (the compiled method whose
	// bytecode is currently executing in this scope) and nil for string
	// and packed-scalar frames, which have no dispatch table of their own.
	method *compiler.Method

	// sink receives this frame's callbacks. A bare frame (method nil)
	// carries its enclosing message's sink, as it does that message's
	// shimData and hasbits.
	sink Sink

	// seqStarted tracks, per field index in method.Def.Fields, whether
	// Sink.StartSeq has already fired for that field in this message
	// occurrence, so a repeated field seen across several separate
	// packed/unpacked runs only starts its sequence once.
	seqStarted []bool

	// shimData and hasbits back this frame's HandlerShim fields: a value
	// opcode whose field handler is HandlerShim writes its decoded bit
	// pattern into shimData[Shim.Offset] and, if Shim.Hasbit >= 0, sets
	// hasbits[Shim.Hasbit], instead of calling the Sink. Sized from
	// method.ShimWords/HasbitCount when the frame is pushed; nil when the
	// method has no shim fields.
	shimData []uint64
	hasbits  []bool
}

// newFrameShims allocates shimData/hasbits sized for m, or leaves both nil
// if m registers no HandlerShim fields.
func newFrameShims(f *frame, m *compiler.Method) {
	if m == nil {
		return
	}
	if m.ShimWords > 0 {
		f.shimData = make([]uint64, m.ShimWords)
	}
	if m.HasbitCount > 0 {
		f.hasbits = make([]bool, m.HasbitCount)
	}
}

// discardSink is the Sink of a submessage whose field has no registered
// handler (HandlerNone), so the bytecode below it
// can still run to correctly track byte accounting and nesting without a
// nil Sink.
type discardSink struct{}

func (discardSink) StartMessage() bool                    { return true }
func (discardSink) EndMessage(status error) bool          { return true }
func (discardSink) ValueBool(HandlerData, bool) bool      { return true }
func (discardSink) ValueInt32(HandlerData, int32) bool    { return true }
func (discardSink) ValueInt64(HandlerData, int64) bool    { return true }
func (discardSink) ValueUint32(HandlerData, uint32) bool  { return true }
func (discardSink) ValueUint64(HandlerData, uint64) bool  { return true }
func (discardSink) ValueFloat(HandlerData, float32) bool  { return true }
func (discardSink) ValueDouble(HandlerData, float64) bool { return true }
func (discardSink) StartString(HandlerData, int) bool     { return true }
func (discardSink) OnString(_ HandlerData, b []byte) int  { return len(b) }
func (discardSink) EndString(HandlerData) bool            { return true }
func (discardSink) StartSeq(HandlerData) bool             { return true }
func (discardSink) EndSeq(HandlerData) bool               { return true }
func (discardSink) StartSubMessage(HandlerData) Sink      { return discardSink{} }
func (discardSink) EndSubMessage(HandlerData) bool        { return true }
func (discardSink) OnUnknown(b []byte) int                { return len(b) }
