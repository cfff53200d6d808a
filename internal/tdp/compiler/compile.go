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

package compiler

import (
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/pbtdp/decode/internal/dispatch"
	"github.com/pbtdp/decode/internal/schema"
	"github.com/pbtdp/decode/internal/wire"
)

// CompiledField pairs a schema field with its resolved handler, so bytecode
// that parses it doesn't need to re-look-up the handler at VM runtime.
type CompiledField struct {
	Def     *schema.FieldDef
	Handler schema.Handler
	// Seq is true if this field's value opcodes run inside a
	// StartSeq/EndSeq bracket (i.e. Def.Label == LabelRepeated).
	Seq bool
	// Index is this field's position in the owning MessageDef.Fields,
	// used by the VM to index a Frame's per-field "have I called StartSeq
	// for this one yet" bookkeeping.
	Index int
}

// Method is one message type's compiled entry point into the shared
// Program, plus the dispatch table its OP_DISPATCH instruction consults.
type Method struct {
	Def      *schema.MessageDef
	Entry    int // index of this method's OP_STARTMSG.
	Loop     int // index of this method's OP_CHECKDELIM, where the dispatch loop restarts.
	Dispatch *dispatch.Table
	// StartMsg and EndMsg are the message-level handlers OP_STARTMSG/
	// OP_ENDMSG consult: HandlerNone means the bracketing opcode still runs
	// (so OP_ENDMSG still closes the Repeated sequences) but skips invoking
	// the Sink.
	StartMsg schema.Handler
	EndMsg   schema.Handler
	// ShimWords and HasbitCount size the per-frame shim storage the VM
	// allocates for this method: the smallest slice lengths that fit every
	// HandlerShim field's Shim.Offset/Shim.Hasbit. Zero if no field opts
	// into direct storage.
	ShimWords   int
	HasbitCount int
	// Repeated lists every field compiled with Seq set, in declaration
	// order, so the VM's OP_ENDMSG epilogue knows which sequences might
	// need closing with EndSeq even if their underlying frame data
	// structure doesn't track "was this field ever seen" itself.
	Repeated []*CompiledField
}

// Program is the flat bytecode all of a Schema's compiled methods share.
// Immutable and safe for concurrent use by many Decoders at once.
type Program struct {
	Instrs  []Instr
	Methods []*Method // indexed the same as the source Schema's Messages.
}

// MethodFor returns the compiled Method for a schema message, by index.
func (p *Program) MethodFor(idx schema.DefIndex) *Method {
	return p.Methods[idx]
}

// callSite records a CALL instruction awaiting its target method's final
// base offset, discovered only after every method has been laid out.
type callSite struct {
	instrIndex int
	target     schema.DefIndex
}

// methodBuf is one message's bytecode, compiled in isolation with
// method-local instruction indices; Compile concatenates these and fixes
// up offsets in a second pass, mirroring compile_decoder.c's two-pass
// mgroup_new (lay out every method, then link CALLs across methods).
type methodBuf struct {
	def      *schema.MessageDef
	idx      schema.DefIndex
	instrs   []Instr
	dispatch *dispatch.Table
	calls    []callSite // local instrIndex, pending patch to global target
	repeated []*CompiledField
	startMsg int // local index of this method's OP_STARTMSG.
	loop     int // local index of this method's OP_CHECKDELIM.

	startMsgHandler schema.Handler
	endMsgHandler   schema.Handler

	shimWords   int
	hasbitCount int
}

// Compile builds a Program for every message in s, using h to resolve
// field and message-level handlers.
func Compile(s *schema.Schema, h *schema.HandlerCache) *Program {
	bufs := make([]*methodBuf, len(s.Messages))
	for i := range s.Messages {
		idx := schema.DefIndex(i)
		bufs[i] = compileMessage(s, idx, h.Get(idx))
	}

	base := make([]int, len(bufs))
	total := 0
	for i, b := range bufs {
		base[i] = total
		total += len(b.instrs)
	}

	prog := &Program{
		Instrs:  make([]Instr, 0, total),
		Methods: make([]*Method, len(bufs)),
	}
	for i, b := range bufs {
		// Branch and CHECKDELIM targets recorded during compileMessage are
		// method-local indices; shift them to their final global position
		// first, before patching CALLs (which are set directly to an
		// already-global base[target]).
		for j := range b.instrs {
			switch b.instrs[j].Op {
			case OpBranch, OpCheckDelim:
				b.instrs[j].Target += base[i]
			}
		}
		for _, c := range b.calls {
			b.instrs[c.instrIndex].Target = base[c.target]
		}

		// The dispatch table's offsets are also method-local; shift them
		// the same way so the VM can use them directly once this method's
		// bytecode is concatenated into the shared Program.
		b.dispatch.Shift(base[i])

		prog.Instrs = append(prog.Instrs, b.instrs...)
		prog.Methods[i] = &Method{
			Def:      b.def,
			Entry:    base[i] + b.startMsg,
			Loop:     base[i] + b.loop,
			Dispatch: b.dispatch,
			Repeated:    b.repeated,
			StartMsg:    b.startMsgHandler,
			EndMsg:      b.endMsgHandler,
			ShimWords:   b.shimWords,
			HasbitCount: b.hasbitCount,
		}
	}
	return prog
}

// emit appends instr to buf and returns its local index.
func (b *methodBuf) emit(instr Instr) int {
	b.instrs = append(b.instrs, instr)
	return len(b.instrs) - 1
}

func compileMessage(s *schema.Schema, idx schema.DefIndex, h *schema.Handlers) *methodBuf {
	def := s.Def(idx)
	b := &methodBuf{def: def, idx: idx, dispatch: dispatch.New()}
	if h != nil {
		b.startMsgHandler = h.StartMessage
		b.endMsgHandler = h.EndMessage
	}
	lb := newLabeler()

	// OP_STARTMSG runs exactly once per invocation of this method (whether
	// reached via Start or via a CALL from a parent field), bracketing the
	// whole message body together with OP_ENDMSG below. Grounded on
	// decoder.int.h's OP_STARTMSG/OP_ENDMSG, kept as separate opcodes from
	// the CHECKDELIM loop they bracket so a zero-field message still fires
	// both.
	b.startMsg = b.emit(Instr{Op: OpStartMsg})

	entry := b.emit(Instr{Op: OpCheckDelim})
	b.loop = entry
	lb.place(b.instrs, entry, labelLoopStart)
	lb.ref(b.instrs, entry, labelLoopBreak) // branch target patched below

	b.emit(Instr{Op: OpDispatch})

	for i := range def.Fields {
		fd := &def.Fields[i]
		var handler schema.Handler
		if h != nil && i < len(h.ByField) {
			handler = h.ByField[i]
		}
		cf := &CompiledField{Def: fd, Handler: handler, Seq: fd.Label == schema.LabelRepeated, Index: i}
		if handler.Kind == schema.HandlerShim {
			if n := handler.Shim.Offset + 1; n > b.shimWords {
				b.shimWords = n
			}
			if n := handler.Shim.Hasbit + 1; n > b.hasbitCount {
				b.hasbitCount = n
			}
		}
		primaryEntry, secondaryEntry := compileField(s, b, lb, cf)

		primary, secondary := wireTypesFor(fd)
		b.dispatch.Set(uint32(fd.Number), dispatch.Entry{
			Offset: uint32(primaryEntry),
			WT1:    uint8(primary),
			WT2:    secondaryWT(fd, secondary),
		})
		if secondary != primary {
			b.dispatch.Set(dispatch.SecondaryKey(uint32(fd.Number)), dispatch.Entry{
				Offset: uint32(secondaryEntry),
				WT1:    uint8(secondary),
				WT2:    uint8(primary),
			})
		}
		if cf.Seq {
			b.repeated = append(b.repeated, cf)
		}
	}

	// Epilogue: OP_ENDMSG then OP_RET. LABEL_LOOPBREAK and the dispatch
	// table's DISPATCH_ENDMSG entry both land here.
	endMsg := b.emit(Instr{Op: OpEndMsg})
	lb.place(b.instrs, endMsg, labelLoopBreak)
	b.emit(Instr{Op: OpRet})
	b.dispatch.Set(dispatch.EndMsgKey, dispatch.Entry{
		Offset: uint32(endMsg),
		WT1:    wire.NoWireType,
		WT2:    wire.NoWireType,
	})

	// The LOOPBREAK branch emitted by OP_CHECKDELIM above was registered
	// against the label before the label was placed, so it was already in
	// the pending patch list and got fixed by the lb.place call above.
	return b
}

// wireTypesFor returns the wire type(s) that should route to this field's
// bytecode: for most kinds these are equal (there is only one valid wire
// type), but a repeated primitive field accepts both its packed
// (length-delimited) and unpacked (its natural type) encodings.
func wireTypesFor(fd *schema.FieldDef) (primary, secondary wire.Type) {
	natural := naturalWireType(fd.Kind)
	if fd.Label != schema.LabelRepeated || fd.IsMessage() || isBytesLike(fd.Kind) {
		return natural, natural
	}
	// Packed-vs-unpacked dispatch priority: compile_decoder.c leaves a TODO
	// to prioritize by the field's declared packed setting. FieldDef.Packed
	// picks which encoding is the "primary" (first checked) slot.
	if fd.Packed {
		return wire.Delimited, natural
	}
	return natural, wire.Delimited
}

func secondaryWT(fd *schema.FieldDef, secondary wire.Type) uint8 {
	if fd.Label != schema.LabelRepeated || fd.IsMessage() || isBytesLike(fd.Kind) {
		return wire.NoWireType
	}
	return uint8(secondary)
}

func isBytesLike(k schema.Kind) bool {
	return k == protoreflect.StringKind || k == protoreflect.BytesKind
}

// naturalWireType returns the one wire type a scalar/message kind is
// encoded as when not packed.
func naturalWireType(k schema.Kind) wire.Type {
	switch k {
	case protoreflect.DoubleKind, protoreflect.Fixed64Kind, protoreflect.Sfixed64Kind:
		return wire.Fixed64
	case protoreflect.FloatKind, protoreflect.Fixed32Kind, protoreflect.Sfixed32Kind:
		return wire.Fixed32
	case protoreflect.Int64Kind, protoreflect.Uint64Kind, protoreflect.Int32Kind,
		protoreflect.Uint32Kind, protoreflect.Sint32Kind, protoreflect.Sint64Kind,
		protoreflect.BoolKind, protoreflect.EnumKind:
		return wire.Varint
	case protoreflect.StringKind, protoreflect.BytesKind, protoreflect.MessageKind:
		return wire.Delimited
	case protoreflect.GroupKind:
		return wire.StartGroup
	default:
		return wire.Varint
	}
}
