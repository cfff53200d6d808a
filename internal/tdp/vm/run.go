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
	"math"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/pbtdp/decode/internal/debug"
	"github.com/pbtdp/decode/internal/dispatch"
	"github.com/pbtdp/decode/internal/schema"
	"github.com/pbtdp/decode/internal/tdp/compiler"
	. "github.com/pbtdp/decode/internal/tdp/compiler" // the Op* constants, unqualified in the switch below.
	"github.com/pbtdp/decode/internal/wire"
)

// step executes one instruction. more=false means the interpreter ran out
// of buffered bytes partway through decoding a value and should suspend;
// the pc (and, for OP_STRING, strInProgress) is left such that resuming
// picks up exactly where it stopped. A non-nil error is always fatal.
//
// Grounded on run_decoder_vm's giant switch in
// original_source/upb/pb/decoder.c, one case per opcode.
func (d *Decoder) step() (more bool, err error) {
	instr := d.prog.Instrs[d.pc]
	debug.Log(nil, "vm.step", "pc=%d op=%d pos=%d", d.pc, instr.Op, d.absPos())

	switch instr.Op {
	case OpCheckDelim:
		f := d.curFrame()
		if f.end >= 0 {
			if d.absPos() > f.end {
				return false, d.fail(ErrorSubmessageTooLong, "field parse overran its delimited length")
			}
			if d.absPos() == f.end {
				d.pc = instr.Target
				return true, nil
			}
		}
		d.pc++
		return true, nil

	case OpDispatch:
		if d.pendingSkip != nil {
			return d.resumeSkip()
		}
		return d.stepDispatch()

	case OpStartMsg:
		f := d.curFrame()
		if f.method.StartMsg.Kind != schema.HandlerNone && !f.sink.StartMessage() {
			return false, d.fail(ErrorHandlerRejected, "StartMessage rejected")
		}
		d.pc++
		return true, nil

	case OpEndMsg:
		f := d.curFrame()
		for _, cf := range f.method.Repeated {
			if f.seqStarted[cf.Index] && cf.Handler.Kind != schema.HandlerNone && !f.sink.EndSeq(cf) {
				return false, d.fail(ErrorHandlerRejected, "EndSeq rejected")
			}
		}
		if f.method.EndMsg.Kind != schema.HandlerNone && !f.sink.EndMessage(nil) {
			return false, d.fail(ErrorHandlerRejected, "EndMessage rejected")
		}
		d.pc++
		return true, nil

	case OpStartSeq:
		return d.stepStartSeq(instr)

	case OpEndSeq:
		// Folded into OP_ENDMSG, which closes every started sequence listed
		// in Method.Repeated; see compile.go. Not emitted, kept only so the
		// Op enum matches decoder.int.h's shape.
		d.pc++
		return true, nil

	case OpStartSubMsg:
		return d.stepStartSubMsg(instr)

	case OpEndSubMsg:
		parent := d.frames[len(d.frames)-2]
		if instr.Field.Handler.Kind != schema.HandlerNone {
			if !parent.sink.EndSubMessage(instr.Field) {
				return false, d.fail(ErrorHandlerRejected, "EndSubMessage rejected")
			}
		}
		d.pc++
		return true, nil

	case OpStartStr:
		f := d.curFrame()
		hint := 0
		if f.end >= 0 {
			hint = int(f.end - d.absPos())
		}
		d.utf8Carry = nil
		if instr.Field.Handler.Kind != schema.HandlerNone {
			if !f.sink.StartString(instr.Field, hint) {
				return false, d.fail(ErrorHandlerRejected, "StartString rejected")
			}
		}
		d.pc++
		return true, nil

	case OpString:
		return d.stepString(instr)

	case OpEndStr:
		f := d.curFrame()
		if instr.Field.Def.Kind == protoreflect.StringKind && !d.allowInvalidUTF8 {
			if _, ok := validateUTF8Chunk(d.utf8Carry, nil, true); !ok {
				return false, d.fail(ErrorBadUTF8, "string field is not valid UTF-8")
			}
			d.utf8Carry = nil
		}
		if instr.Field.Handler.Kind != schema.HandlerNone {
			if !f.sink.EndString(instr.Field) {
				return false, d.fail(ErrorHandlerRejected, "EndString rejected")
			}
		}
		d.pc++
		return true, nil

	case OpPushLenDelim:
		return d.stepPushLenDelim(instr)

	case OpPushTagDelim:
		nf := &frame{end: -1, groupNum: uint32(instr.Field.Def.Number)}
		if instr.Field.Def.IsMessage() {
			m := d.prog.MethodFor(instr.Field.Def.Sub)
			nf.method = m
			nf.seqStarted = make([]bool, len(m.Def.Fields))
			newFrameShims(nf, m)
		}
		if err := d.pushFrame(nf); err != nil {
			return false, err
		}
		d.pc++
		return true, nil

	case OpPop:
		d.popFrame()
		d.pc++
		return true, nil

	case OpSetDelim, OpSetBigGroupNum:
		// Compact group-number and delimiter-relocation optimizations from
		// decoder.int.h; this compiler always stores a frame's full
		// boundary state directly (see frame.go), so these never appear in
		// compiled bytecode.
		d.pc++
		return true, nil

	case OpCall:
		d.calls = append(d.calls, d.pc+1)
		d.pc = instr.Target
		return true, nil

	case OpRet:
		if len(d.calls) == 0 {
			d.done = true
			return false, nil
		}
		d.pc = d.calls[len(d.calls)-1]
		d.calls = d.calls[:len(d.calls)-1]
		return true, nil

	case OpBranch:
		d.pc = instr.Target
		return true, nil

	case OpTag1, OpTag2, OpTagN, OpSetDispatch, OpHalt:
		// Precomputed-tag-byte and self-modifying-dispatch optimizations
		// from compile_decoder.c; not emitted (see field_codegen.go), OP_HALT
		// likewise has no use here since end-of-parse is detected by an
		// empty call stack at OP_RET rather than a dedicated instruction.
		d.pc++
		return true, nil

	default:
		return d.stepParseValue(instr)
	}
}

func (d *Decoder) stepDispatch() (bool, error) {
	tagStart := d.pos
	val, status := d.getVarint()
	switch status {
	case wire.VarintShort:
		return false, nil
	case wire.VarintMalformed:
		return false, d.fail(ErrorUnterminatedVarint, "tag varint never terminated")
	}

	num, wt := wire.UnpackTag(val)
	f := d.curFrame()
	if num == 0 {
		return false, d.fail(ErrorZeroField, "field number 0 is not legal on the wire")
	}

	if wt == wire.EndGroup {
		if f.groupNum != 0 && uint32(num) == f.groupNum {
			entry, _ := f.method.Dispatch.Lookup(dispatch.EndMsgKey)
			d.pc = int(entry.Offset)
			return true, nil
		}
		return false, d.fail(ErrorUnmatchedEndGroup, "end-group tag did not match the open group")
	}

	if entry, ok := f.method.Dispatch.Lookup(uint32(num)); ok {
		if wt == wire.Type(entry.WT1) {
			d.pc = int(entry.Offset)
			return true, nil
		}
		// The alternate encoding (packed vs. unpacked) has its own bytecode,
		// reached through the field's secondary slot.
		if entry.WT2 != wire.NoWireType && wt == wire.Type(entry.WT2) {
			if sec, ok := f.method.Dispatch.Lookup(dispatch.SecondaryKey(uint32(num))); ok {
				d.pc = int(sec.Offset)
				return true, nil
			}
		}
	}

	tagBytes := append([]byte(nil), d.buf[tagStart:d.pos]...)
	d.pendingSkip = &pendingSkip{wt: wt, f: f, buf: tagBytes}
	return d.resumeSkip()
}

// pendingSkip is the state an in-progress unknown-field discard needs to
// survive a suspension: which wire type and frame it belongs to, the raw
// bytes (tag included) accumulated so far to hand the frame's sink once the
// field is fully discarded, and (for a length-delimited value whose length
// was read before its payload turned out to be only partially buffered)
// the already-decoded length so it isn't re-read on resume.
type pendingSkip struct {
	wt      wire.Type
	f       *frame
	buf     []byte
	haveLen bool
	length  int64
}

// resumeSkip drives (or resumes) d.pendingSkip to completion, reports the
// accumulated raw bytes via the owning frame's OnUnknown, and jumps back to
// the method's dispatch loop.
func (d *Decoder) resumeSkip() (bool, error) {
	ps := d.pendingSkip
	more, err := d.skipUnknown(ps.wt, ps.f)
	if err != nil || !more {
		return more, err
	}
	accepted := ps.f.sink.OnUnknown(ps.buf)
	d.pendingSkip = nil
	if accepted != len(ps.buf) {
		return false, d.fail(ErrorHandlerRejected, "OnUnknown rejected bytes")
	}
	// Re-enter at the method's own CHECKDELIM, not its OP_STARTMSG, so an
	// unknown field landing exactly on the frame boundary is caught the
	// same way a known field's would be.
	d.pc = ps.f.method.Loop
	return true, nil
}

// skipUnknown discards one field's value of wire type wt (already past its
// tag), accumulating its raw bytes into d.pendingSkip.buf.
func (d *Decoder) skipUnknown(wt wire.Type, f *frame) (bool, error) {
	ps := d.pendingSkip
	switch wt {
	case wire.Varint:
		start := d.pos
		_, status := d.getVarint()
		switch status {
		case wire.VarintShort:
			return false, nil
		case wire.VarintMalformed:
			return false, d.fail(ErrorUnterminatedVarint, "unknown-field varint never terminated")
		}
		ps.buf = append(ps.buf, d.buf[start:d.pos]...)
	case wire.Fixed32:
		if d.avail() < 4 {
			return false, nil
		}
		ps.buf = append(ps.buf, d.buf[d.pos:d.pos+4]...)
		d.consume(4)
	case wire.Fixed64:
		if d.avail() < 8 {
			return false, nil
		}
		ps.buf = append(ps.buf, d.buf[d.pos:d.pos+8]...)
		d.consume(8)
	case wire.Delimited:
		if !ps.haveLen {
			start := d.pos
			val, status := d.getVarint()
			switch status {
			case wire.VarintShort:
				return false, nil
			case wire.VarintMalformed:
				return false, d.fail(ErrorUnterminatedVarint, "unknown-field length never terminated")
			}
			if f.end >= 0 && d.absPos()+int64(val) > f.end {
				return false, d.fail(ErrorSkipPastParent, "unknown field's length overruns its parent")
			}
			ps.buf = append(ps.buf, d.buf[start:d.pos]...)
			ps.length = int64(val)
			ps.haveLen = true
		}
		if d.avail() < int(ps.length) {
			return false, nil
		}
		ps.buf = append(ps.buf, d.buf[d.pos:d.pos+int(ps.length)]...)
		d.consume(int(ps.length))
	case wire.StartGroup:
		return d.skipGroup(f)
	default:
		return false, d.fail(ErrorBadWireType, "unrecognized wire type while skipping an unknown field")
	}
	return true, nil
}

// skipGroup discards an entire unknown group, including any groups nested
// inside it, matching skipunknown's depth-counted loop in
// original_source/upb/pb/decoder.c. The nesting depth lives on the Decoder
// itself (d.skipDepth), not a local variable, so a suspend partway through
// a long or deeply nested unknown group resumes with the right count
// instead of restarting at 1. Every tag and value is peeked with
// wire.DecodeVarint (which never mutates d.pos) before anything is
// consumed, so each loop iteration commits atomically: a suspension always
// leaves d.pos exactly where it was at the start of the iteration, and a
// resume simply re-peeks the same bytes rather than needing its own
// sub-state.
func (d *Decoder) skipGroup(f *frame) (bool, error) {
	ps := d.pendingSkip
	if d.skipDepth == 0 {
		d.skipDepth = 1
	}
	for d.skipDepth > 0 {
		tagVal, tagN, status := wire.DecodeVarint(d.buf[d.pos:])
		switch status {
		case wire.VarintShort:
			return false, nil
		case wire.VarintMalformed:
			return false, d.fail(ErrorUnterminatedVarint, "nested group tag varint never terminated")
		}
		num, wt := wire.UnpackTag(tagVal)
		if num == 0 {
			return false, d.fail(ErrorZeroField, "field number 0 is not legal on the wire")
		}
		switch wt {
		case wire.StartGroup:
			ps.buf = append(ps.buf, d.buf[d.pos:d.pos+tagN]...)
			d.consume(tagN)
			d.skipDepth++
		case wire.EndGroup:
			ps.buf = append(ps.buf, d.buf[d.pos:d.pos+tagN]...)
			d.consume(tagN)
			d.skipDepth--
		case wire.Varint:
			_, valN, vstatus := wire.DecodeVarint(d.buf[d.pos+tagN:])
			switch vstatus {
			case wire.VarintShort:
				return false, nil
			case wire.VarintMalformed:
				return false, d.fail(ErrorUnterminatedVarint, "nested unknown varint never terminated")
			}
			total := tagN + valN
			ps.buf = append(ps.buf, d.buf[d.pos:d.pos+total]...)
			d.consume(total)
		case wire.Fixed32:
			total := tagN + 4
			if d.avail() < total {
				return false, nil
			}
			ps.buf = append(ps.buf, d.buf[d.pos:d.pos+total]...)
			d.consume(total)
		case wire.Fixed64:
			total := tagN + 8
			if d.avail() < total {
				return false, nil
			}
			ps.buf = append(ps.buf, d.buf[d.pos:d.pos+total]...)
			d.consume(total)
		case wire.Delimited:
			lenVal, lenN, lstatus := wire.DecodeVarint(d.buf[d.pos+tagN:])
			switch lstatus {
			case wire.VarintShort:
				return false, nil
			case wire.VarintMalformed:
				return false, d.fail(ErrorUnterminatedVarint, "nested unknown length never terminated")
			}
			total := tagN + lenN + int(lenVal)
			if d.avail() < total {
				return false, nil
			}
			ps.buf = append(ps.buf, d.buf[d.pos:d.pos+total]...)
			d.consume(total)
		default:
			return false, d.fail(ErrorBadWireType, "unrecognized wire type inside an unknown group")
		}
	}
	return true, nil
}

func (d *Decoder) stepStartSeq(instr compiler.Instr) (bool, error) {
	if !instr.Field.Seq {
		d.pc++
		return true, nil
	}
	f := d.curFrame()
	if !f.seqStarted[instr.Field.Index] {
		f.seqStarted[instr.Field.Index] = true
		if instr.Field.Handler.Kind != schema.HandlerNone {
			if !f.sink.StartSeq(instr.Field) {
				return false, d.fail(ErrorHandlerRejected, "StartSeq rejected")
			}
		}
	}
	d.pc++
	return true, nil
}

func (d *Decoder) stepStartSubMsg(instr compiler.Instr) (bool, error) {
	child := d.curFrame()
	parent := d.frames[len(d.frames)-2]
	var childSink Sink = discardSink{}
	if instr.Field.Handler.Kind != schema.HandlerNone {
		cs := parent.sink.StartSubMessage(instr.Field)
		if cs == nil {
			return false, d.fail(ErrorHandlerRejected, "StartSubMessage rejected")
		}
		childSink = cs
	}
	child.sink = childSink
	d.pc++
	return true, nil
}

func (d *Decoder) stepPushLenDelim(instr compiler.Instr) (bool, error) {
	parent := d.curFrame()
	length, status := d.getVarint()
	switch status {
	case wire.VarintShort:
		return false, nil
	case wire.VarintMalformed:
		return false, d.fail(ErrorUnterminatedVarint, "length-delimited size varint never terminated")
	}
	end := d.absPos() + int64(length)
	if parent.end >= 0 && end > parent.end {
		return false, d.fail(ErrorSubmessageTooLong, "length-delimited field overruns its parent")
	}
	if length > uint64(wire.MaxFieldNumber) {
		return false, d.fail(ErrorFieldTooLarge, "declared length is absurdly large")
	}
	nf := &frame{end: end}
	if instr.Field != nil && instr.Field.Def.IsMessage() {
		m := d.prog.MethodFor(instr.Field.Def.Sub)
		nf.method = m
		nf.seqStarted = make([]bool, len(m.Def.Fields))
		newFrameShims(nf, m)
	} else {
		// A string or packed-run frame reports to, and stores shims into,
		// the enclosing message's sink and shim storage.
		nf.sink = parent.sink
		nf.shimData = parent.shimData
		nf.hasbits = parent.hasbits
	}
	if err := d.pushFrame(nf); err != nil {
		return false, err
	}
	d.pc++
	return true, nil
}

func (d *Decoder) stepString(instr compiler.Instr) (bool, error) {
	f := d.curFrame()
	want := f.end - d.absPos()
	if want > 0 {
		n := d.avail()
		if int64(n) > want {
			n = int(want)
		}
		if n == 0 {
			return false, nil
		}
		chunk := d.buf[d.pos : d.pos+n]
		if instr.Field.Def.Kind == protoreflect.StringKind && !d.allowInvalidUTF8 {
			carry, ok := validateUTF8Chunk(d.utf8Carry, chunk, false)
			if !ok {
				return false, d.fail(ErrorBadUTF8, "string field is not valid UTF-8")
			}
			d.utf8Carry = carry
		}
		if instr.Field.Handler.Kind != schema.HandlerNone {
			accepted := f.sink.OnString(instr.Field, chunk)
			if accepted != n {
				return false, d.fail(ErrorHandlerRejected, "OnString rejected bytes")
			}
		}
		d.consume(n)
	}
	if d.absPos() < f.end {
		d.strInProgress = true
		return false, nil
	}
	d.strInProgress = false
	d.pc++
	return true, nil
}

// valueResult dispatches a decoded scalar to its field's handler: HandlerNone
// skips it entirely, HandlerShim stores bits directly into the current
// frame's shim storage without touching the Sink, and HandlerFunc (or any
// other value, matching the pre-existing fallback behavior) invokes fn.
func (d *Decoder) valueResult(f *frame, instr compiler.Instr, bits uint64, fn func() bool) bool {
	switch instr.Field.Handler.Kind {
	case schema.HandlerNone:
		return true
	case schema.HandlerShim:
		d.storeShim(f, instr, bits)
		return true
	default:
		return fn()
	}
}

// storeShim writes bits (the decoded value's raw bit pattern; float/double
// fields pass math.Float32bits/Float64bits, narrower integer kinds are
// zero-extended) into f's shim storage at instr.Field.Handler.Shim.Offset,
// and marks its hasbit if one was assigned.
func (d *Decoder) storeShim(f *frame, instr compiler.Instr, bits uint64) {
	sh := instr.Field.Handler.Shim
	if sh.Offset >= 0 && sh.Offset < len(f.shimData) {
		f.shimData[sh.Offset] = bits
	}
	if sh.Hasbit >= 0 && sh.Hasbit < len(f.hasbits) {
		f.hasbits[sh.Hasbit] = true
	}
}

func (d *Decoder) stepParseValue(instr compiler.Instr) (bool, error) {
	f := d.curFrame()
	switch instr.Op {
	case OpParseDouble:
		v, ok := d.getFixed64()
		if !ok {
			return false, nil
		}
		ok2 := d.valueResult(f, instr, v, func() bool { return f.sink.ValueDouble(instr.Field, math.Float64frombits(v)) })
		return d.afterValue(ok2)
	case OpParseFloat:
		v, ok := d.getFixed32()
		if !ok {
			return false, nil
		}
		ok2 := d.valueResult(f, instr, uint64(v), func() bool { return f.sink.ValueFloat(instr.Field, math.Float32frombits(v)) })
		return d.afterValue(ok2)
	case OpParseFixed64:
		v, ok := d.getFixed64()
		if !ok {
			return false, nil
		}
		ok2 := d.valueResult(f, instr, v, func() bool { return f.sink.ValueUint64(instr.Field, v) })
		return d.afterValue(ok2)
	case OpParseSfixed64:
		v, ok := d.getFixed64()
		if !ok {
			return false, nil
		}
		ok2 := d.valueResult(f, instr, v, func() bool { return f.sink.ValueInt64(instr.Field, int64(v)) })
		return d.afterValue(ok2)
	case OpParseFixed32:
		v, ok := d.getFixed32()
		if !ok {
			return false, nil
		}
		ok2 := d.valueResult(f, instr, uint64(v), func() bool { return f.sink.ValueUint32(instr.Field, v) })
		return d.afterValue(ok2)
	case OpParseSfixed32:
		v, ok := d.getFixed32()
		if !ok {
			return false, nil
		}
		ok2 := d.valueResult(f, instr, uint64(v), func() bool { return f.sink.ValueInt32(instr.Field, int32(v)) })
		return d.afterValue(ok2)
	case OpParseBool:
		v, status := d.getVarint()
		if status == wire.VarintShort {
			return false, nil
		}
		if status == wire.VarintMalformed {
			return false, d.fail(ErrorUnterminatedVarint, "bool varint never terminated")
		}
		bits := uint64(0)
		if v != 0 {
			bits = 1
		}
		ok2 := d.valueResult(f, instr, bits, func() bool { return f.sink.ValueBool(instr.Field, v != 0) })
		return d.afterValue(ok2)
	case OpParseInt32:
		v, status := d.getVarint()
		if status == wire.VarintShort {
			return false, nil
		}
		if status == wire.VarintMalformed {
			return false, d.fail(ErrorUnterminatedVarint, "int32 varint never terminated")
		}
		ok2 := d.valueResult(f, instr, uint64(uint32(v)), func() bool { return f.sink.ValueInt32(instr.Field, int32(v)) })
		return d.afterValue(ok2)
	case OpParseUint32:
		v, status := d.getVarint()
		if status == wire.VarintShort {
			return false, nil
		}
		if status == wire.VarintMalformed {
			return false, d.fail(ErrorUnterminatedVarint, "uint32 varint never terminated")
		}
		ok2 := d.valueResult(f, instr, uint64(uint32(v)), func() bool { return f.sink.ValueUint32(instr.Field, uint32(v)) })
		return d.afterValue(ok2)
	case OpParseInt64:
		v, status := d.getVarint()
		if status == wire.VarintShort {
			return false, nil
		}
		if status == wire.VarintMalformed {
			return false, d.fail(ErrorUnterminatedVarint, "int64 varint never terminated")
		}
		ok2 := d.valueResult(f, instr, v, func() bool { return f.sink.ValueInt64(instr.Field, int64(v)) })
		return d.afterValue(ok2)
	case OpParseUint64:
		v, status := d.getVarint()
		if status == wire.VarintShort {
			return false, nil
		}
		if status == wire.VarintMalformed {
			return false, d.fail(ErrorUnterminatedVarint, "uint64 varint never terminated")
		}
		ok2 := d.valueResult(f, instr, v, func() bool { return f.sink.ValueUint64(instr.Field, v) })
		return d.afterValue(ok2)
	case OpParseSint32:
		v, status := d.getVarint()
		if status == wire.VarintShort {
			return false, nil
		}
		if status == wire.VarintMalformed {
			return false, d.fail(ErrorUnterminatedVarint, "sint32 varint never terminated")
		}
		dv := wire.ZigZagDecode32(uint32(v))
		ok2 := d.valueResult(f, instr, uint64(uint32(dv)), func() bool { return f.sink.ValueInt32(instr.Field, dv) })
		return d.afterValue(ok2)
	case OpParseSint64:
		v, status := d.getVarint()
		if status == wire.VarintShort {
			return false, nil
		}
		if status == wire.VarintMalformed {
			return false, d.fail(ErrorUnterminatedVarint, "sint64 varint never terminated")
		}
		dv := wire.ZigZagDecode64(v)
		ok2 := d.valueResult(f, instr, uint64(dv), func() bool { return f.sink.ValueInt64(instr.Field, dv) })
		return d.afterValue(ok2)
	default:
		return false, d.fail(ErrorBadWireType, "unreachable opcode")
	}
}

func (d *Decoder) afterValue(accepted bool) (bool, error) {
	if !accepted {
		return false, d.fail(ErrorHandlerRejected, "value handler rejected")
	}
	d.pc++
	return true, nil
}
