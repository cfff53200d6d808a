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

package schema

// Selector identifies which callback on a Sink a piece of bytecode should
// invoke for a given field: its "start", "value", or "end" handler. Mirrors
// upb_selector_t from original_source/upb/upb_handlers.h, but as a small
// closed Go type instead of an opaque integer computed by macro.
type Selector struct {
	Field *FieldDef
	Which SelectorKind
}

// SelectorKind distinguishes which of a field's handler slots a Selector
// names.
type SelectorKind int

const (
	SelectorValue SelectorKind = iota
	SelectorStartSeq
	SelectorEndSeq
	SelectorStartSub
	SelectorEndSub
	SelectorStartStr
	SelectorString
	SelectorEndStr
	SelectorStartMsg
	SelectorEndMsg
)

// HandlerKind distinguishes the three ways a field's value callback can be
// realized, per Design Note §9: a tagged enum with a dedicated Shim variant
// rather than upb's pointer-equality sentinel trick (upb detects "this is a
// shim" by comparing the registered function pointer against a handful of
// well-known shim function addresses).
type HandlerKind int

const (
	// HandlerNone means no handler is registered for this selector; the
	// compiler emits the same bytecode and the VM skips the Sink call
	// (unlike putsel/maybeput in original_source/upb/pb/compile_decoder.c,
	// which leave the call out of the bytecode).
	HandlerNone HandlerKind = iota
	// HandlerShim means the value is stored directly into the message
	// frame's shim storage at Shim.Offset, optionally setting a "has" bit,
	// without calling back into user code at all. NewHandlerCache never
	// selects it; ShimField opts a field in.
	HandlerShim
	// HandlerFunc means a user-supplied callback on the Sink should be
	// invoked.
	HandlerFunc
)

// Shim describes a direct store-to-offset handler.
type Shim struct {
	Offset int
	Hasbit int // bit index into the message's presence bitmap, or -1.
}

// Handler is one entry of a Handlers table: how to react when a given
// Selector fires.
type Handler struct {
	Kind HandlerKind
	Shim Shim
}

// Handlers is the set of callbacks registered for one MessageDef. It's built
// once, frozen, and shared read-only across every Decoder that parses that
// message type concurrently.
type Handlers struct {
	Def *MessageDef

	// ByField holds one entry per field, indexed the same as Def.Fields,
	// describing its value handler.
	ByField []Handler

	// StartMessage/EndMessage are the message-level handlers; HandlerNone
	// means "no handler", in which case the VM still runs the OP_STARTMSG/
	// OP_ENDMSG bytecode (OP_ENDMSG also closes the message's open
	// sequences) but skips invoking a Sink callback.
	StartMessage Handler
	EndMessage   Handler
}

// HandlerCache maps a MessageDef (by DefIndex) to its Handlers, which
// compiler.Compile reads when building a Program.
type HandlerCache struct {
	byIndex map[DefIndex]*Handlers
}

// NewHandlerCache builds a HandlerCache with a default Handlers entry for
// every message in s: every field and both message brackets are
// HandlerFunc, so a freshly compiled Program routes every decoded value to
// the Sink a caller passes to NewDecoder. There is no generated struct for
// a shim to store into by default; ShimField opts specific fields out of
// the Sink and into direct storage instead.
func NewHandlerCache(s *Schema) *HandlerCache {
	hc := &HandlerCache{byIndex: make(map[DefIndex]*Handlers, len(s.Messages))}
	for i := range s.Messages {
		m := s.Def(DefIndex(i))
		h := &Handlers{
			Def:          m,
			ByField:      make([]Handler, len(m.Fields)),
			StartMessage: Handler{Kind: HandlerFunc},
			EndMessage:   Handler{Kind: HandlerFunc},
		}
		for fi := range m.Fields {
			h.ByField[fi] = Handler{Kind: HandlerFunc}
		}
		hc.byIndex[DefIndex(i)] = h
	}
	return hc
}

// Get returns the Handlers for a message, or nil if none were registered.
func (hc *HandlerCache) Get(idx DefIndex) *Handlers {
	return hc.byIndex[idx]
}

// Set installs a custom Handlers for a message, overriding the default
// produced by NewHandlerCache. Must be called before compiler.Compile,
// which copies each Handler into the Program; later changes do not reach
// a Program already compiled.
func (hc *HandlerCache) Set(idx DefIndex, h *Handlers) {
	hc.byIndex[idx] = h
}

// ShimField marks field fi of h as a direct-store field: the compiled
// bytecode writes its decoded value straight into the message frame's shim
// storage at offset, optionally recording presence in hasbit (or -1 for
// none), instead of invoking the Sink. Callers that don't need a callback
// for every field (e.g. a decoder only interested in a handful of them, or
// one pre-counting occurrences) use this to skip the Sink call entirely for
// the rest. offset and hasbit are caller-assigned and must be dense enough
// that the largest value used fits in a small per-message array; field
// index and offset need not match.
func (h *Handlers) ShimField(fi, offset, hasbit int) {
	h.ByField[fi] = Handler{Kind: HandlerShim, Shim: Shim{Offset: offset, Hasbit: hasbit}}
}
