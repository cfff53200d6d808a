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

// HandlerData identifies which field a Sink callback fires for.
type HandlerData = *compiler.CompiledField

// Sink is the visitor a Decoder drives as it parses. There is one Sink per
// message in the tree being parsed: StartSubMessage returns the Sink to use
// for the nested message, matching
// original_source/upb/upb_sink.h's design of a fresh sub-sink per
// submessage rather than one sink juggling a stack itself.
//
// None of these methods are ever called concurrently for a single Decoder.
type Sink interface {
	// StartMessage is called once when a message body begins (including
	// the outermost message passed to Start). Returning false aborts the
	// parse with ErrorHandlerRejected.
	StartMessage() bool
	// EndMessage is called once when a message body ends successfully,
	// always with a nil status. A fatal parse error does not unwind the
	// open frames, so EndMessage is not called for them.
	EndMessage(status error) bool

	ValueBool(h HandlerData, v bool) bool
	ValueInt32(h HandlerData, v int32) bool
	ValueInt64(h HandlerData, v int64) bool
	ValueUint32(h HandlerData, v uint32) bool
	ValueUint64(h HandlerData, v uint64) bool
	ValueFloat(h HandlerData, v float32) bool
	ValueDouble(h HandlerData, v float64) bool

	// StartString begins a string/bytes field. sizeHint is the declared
	// length-delimited size, so the Sink can preallocate. Returns false to
	// reject.
	StartString(h HandlerData, sizeHint int) bool
	// OnString delivers a chunk of a string/bytes field's contents; it may
	// be called more than once per field if the value spans Put calls.
	// Returns the number of bytes accepted; returning less than len(b) is
	// treated as rejection.
	OnString(h HandlerData, b []byte) int
	EndString(h HandlerData) bool

	StartSeq(h HandlerData) bool
	EndSeq(h HandlerData) bool

	// StartSubMessage begins a message or group field and returns the Sink
	// to drive for its contents.
	StartSubMessage(h HandlerData) Sink
	EndSubMessage(h HandlerData) bool

	// OnUnknown delivers the raw bytes (tag included) of a field the
	// message's dispatch table has no match for: an unrecognized field
	// number, or a wire type the field does not accept. Returns the number
	// of bytes accepted.
	OnUnknown(b []byte) int
}
