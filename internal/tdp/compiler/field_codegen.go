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

	"github.com/pbtdp/decode/internal/debug"
	"github.com/pbtdp/decode/internal/schema"
)

// compileField emits the bytecode sequence(s) for one field and returns the
// local instruction index(es) OP_DISPATCH should jump to for its primary
// and secondary wire types (equal, except for repeated scalar fields that
// accept both a packed and unpacked encoding).
//
// Grounded on compile_decoder.c's generate_primitivefield/generate_delimfield/
// generate_msgfield, collapsed into Go functions operating over a
// methodBuf instead of emitting directly into a shared growable C buffer.
func compileField(s *schema.Schema, b *methodBuf, lb *labeler, cf *CompiledField) (primary, secondary int) {
	switch {
	case cf.Def.IsMessage():
		e := compileMessageField(s, b, lb, cf)
		return e, e
	case isBytesLike(cf.Def.Kind):
		e := compileStringField(b, lb, cf)
		return e, e
	default:
		return compilePrimitiveField(b, lb, cf)
	}
}

// opFor returns the PARSE_* opcode for a scalar kind.
func opFor(k schema.Kind) Op {
	switch k {
	case protoreflect.DoubleKind:
		return OpParseDouble
	case protoreflect.FloatKind:
		return OpParseFloat
	case protoreflect.Int64Kind:
		return OpParseInt64
	case protoreflect.Uint64Kind:
		return OpParseUint64
	case protoreflect.Int32Kind:
		return OpParseInt32
	case protoreflect.Fixed64Kind:
		return OpParseFixed64
	case protoreflect.Fixed32Kind:
		return OpParseFixed32
	case protoreflect.BoolKind:
		return OpParseBool
	case protoreflect.Uint32Kind:
		return OpParseUint32
	case protoreflect.EnumKind:
		return OpParseInt32
	case protoreflect.Sfixed32Kind:
		return OpParseSfixed32
	case protoreflect.Sfixed64Kind:
		return OpParseSfixed64
	case protoreflect.Sint32Kind:
		return OpParseSint32
	case protoreflect.Sint64Kind:
		return OpParseSint64
	default:
		// compileField only ever routes message, group, string, and bytes
		// kinds away from compilePrimitiveField; every other protoreflect.Kind
		// value is handled above, so this is unreachable for any FieldDef
		// built by descriptor.go.
		panic(debug.Unsupported())
	}
}

// compilePrimitiveField handles non-message, non-string scalar kinds: for
// a repeated field it emits both an unpacked entry (read one value) and a
// packed entry (read a length-delimited run of values) and returns the one
// matching cf's primary wire type; for a singular field it emits just the
// one sequence.
func compilePrimitiveField(b *methodBuf, lb *labeler, cf *CompiledField) (primary, secondary int) {
	if cf.Def.Label != schema.LabelRepeated {
		entry := b.emit(Instr{Op: opFor(cf.Def.Kind), Field: cf})
		lb.ref(b.instrs, b.emit(Instr{Op: OpBranch}), labelLoopStart)
		return entry, entry
	}

	// Unpacked entry: OP_STARTSEQ is idempotent (the VM only calls
	// Sink.StartSeq the first time a given field is seen in this frame),
	// so every occurrence, packed or not, starts by routing through it.
	unpacked := b.emit(Instr{Op: OpStartSeq, Field: cf})
	b.emit(Instr{Op: opFor(cf.Def.Kind), Field: cf})
	lb.ref(b.instrs, b.emit(Instr{Op: OpBranch}), labelLoopStart)

	// Packed entry: length-delimited run of the same scalar.
	packed := b.emit(Instr{Op: OpStartSeq, Field: cf})
	b.emit(Instr{Op: OpPushLenDelim, Field: cf})
	innerStart := b.emit(Instr{Op: OpCheckDelim})
	b.emit(Instr{Op: opFor(cf.Def.Kind), Field: cf})
	b.emit(Instr{Op: OpBranch, Target: innerStart})
	popAt := b.emit(Instr{Op: OpPop})
	lb.ref(b.instrs, b.emit(Instr{Op: OpBranch}), labelLoopStart)
	b.instrs[innerStart].Target = popAt

	if cf.Def.Packed {
		return packed, unpacked
	}
	return unpacked, packed
}

// compileStringField handles string/bytes fields, singular or repeated.
func compileStringField(b *methodBuf, lb *labeler, cf *CompiledField) int {
	entry := b.emit(Instr{Op: OpStartSeq, Field: cf}) // no-op epilogue marker for non-repeated; VM only acts on it when cf.Seq.
	b.emit(Instr{Op: OpPushLenDelim, Field: cf})
	b.emit(Instr{Op: OpStartStr, Field: cf})
	b.emit(Instr{Op: OpString, Field: cf})
	b.emit(Instr{Op: OpEndStr, Field: cf})
	b.emit(Instr{Op: OpPop})
	lb.ref(b.instrs, b.emit(Instr{Op: OpBranch}), labelLoopStart)
	return entry
}

// compileMessageField handles message and group fields, singular or
// repeated, including the cyclic-schema CALL into the submessage's own
// method.
func compileMessageField(s *schema.Schema, b *methodBuf, lb *labeler, cf *CompiledField) int {
	entry := b.emit(Instr{Op: OpStartSeq, Field: cf})
	if cf.Def.Kind == protoreflect.GroupKind {
		b.emit(Instr{Op: OpPushTagDelim, Field: cf})
	} else {
		b.emit(Instr{Op: OpPushLenDelim, Field: cf})
	}
	b.emit(Instr{Op: OpStartSubMsg, Field: cf})
	call := b.emit(Instr{Op: OpCall})
	b.calls = append(b.calls, callSite{instrIndex: call, target: cf.Def.Sub})
	b.emit(Instr{Op: OpEndSubMsg, Field: cf})
	b.emit(Instr{Op: OpPop})
	lb.ref(b.instrs, b.emit(Instr{Op: OpBranch}), labelLoopStart)
	return entry
}
