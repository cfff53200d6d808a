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

// Package vm interprets a compiler.Program against a byte stream that may
// arrive in arbitrarily small pieces across many Put calls, resuming from
// wherever it left off rather than requiring the whole message up front.
//
// Grounded on original_source/upb/pb/decoder.c's run_decoder_vm and its
// checkpoint/residual-buffer machinery, simplified: instead of upb's two
// live buffers (a small residual array plus a direct reference into the
// caller's buffer, switched between via switchtobuf/advancetobuf), a
// Decoder here keeps one slice at a time and copies the unconsumed tail
// into a freshly allocated residual between calls when a value spans a
// Put boundary. This trades upb's zero-copy fast path for a much smaller,
// ordinary-Go implementation of the same suspend/resume contract.
package vm

import (
	"sync"

	"github.com/pbtdp/decode/internal/debug"
	"github.com/pbtdp/decode/internal/dispatch"
	"github.com/pbtdp/decode/internal/schema"
	"github.com/pbtdp/decode/internal/tdp/compiler"
	"github.com/pbtdp/decode/internal/wire"
)

// Decoder drives one in-progress parse of a single top-level message
// against a compiled Program. Not safe for concurrent use; create one
// Decoder per message being parsed (they're cheap).
type Decoder struct {
	prog     *compiler.Program
	root     schema.DefIndex
	maxDepth int
	allowInvalidUTF8 bool

	frames []*frame
	calls  []int // return pc for each open OP_CALL, outermost first.
	pc     int

	buf []byte // bytes available to the interpreter right now.
	pos int     // cursor into buf.
	base int64  // absolute stream offset of buf[0].

	// strInProgress is set while OP_STRING is mid-flight on a value that
	// didn't fully fit in one Put call. Resuming continues the same field
	// because pc is left on OP_STRING; nothing reads this flag.
	strInProgress bool

	// skipDepth is the current nesting depth while discarding an unknown
	// group, kept on the Decoder (not a stack-local) so a suspend partway
	// through a long skip resumes with the right count.
	skipDepth int

	// pendingSkip holds the wire type, owning frame, and bytes-so-far of an
	// unknown field currently being discarded, so a suspension partway
	// through its value resumes the same skip directly instead of
	// re-entering OP_DISPATCH and misreading the unconsumed value bytes as
	// a new tag.
	pendingSkip *pendingSkip

	// utf8Carry holds the trailing bytes of a possibly-incomplete UTF-8
	// sequence at the end of the most recently delivered chunk of a
	// string-kind field, so validation can resume correctly across a Put
	// boundary. nil when not in the middle of validating a string field.
	utf8Carry []byte

	started bool
	done    bool
	err     error
}

// Config holds the per-Decoder limits and policy knobs a caller can tune.
// The zero value behaves like DefaultConfig: a MaxDepth of 0 selects
// MaxNesting.
type Config struct {
	// MaxDepth caps simultaneously open frames (messages, groups, strings,
	// and packed-repeated runs all push one). 0 means MaxNesting.
	MaxDepth int
	// AllowInvalidUTF8 disables UTF-8 verification of string-kind (not
	// bytes-kind) field values, matching proto3's historically lenient
	// runtimes. Off by default, matching upb's strict behavior.
	AllowInvalidUTF8 bool
}

// DefaultConfig is the Config New uses when none is given.
var DefaultConfig = Config{MaxDepth: MaxNesting}

// New creates a Decoder that will parse messages of type root using prog.
func New(prog *compiler.Program, root schema.DefIndex, cfg Config) *Decoder {
	d := &Decoder{}
	d.reset(prog, root, cfg)
	return d
}

// pool recycles Decoder values (and the backing arrays of their frames/calls
// slices) across unrelated parses, the way vm.go's p3Pool/stackPool reuse a
// hyperpb parser's stack storage instead of allocating a fresh one per
// message. Acquire/Release are the only access points; a Decoder obtained
// any other way (New) is never pooled.
var pool = sync.Pool{New: func() any { return new(Decoder) }}

// Acquire returns a Decoder ready to parse messages of type root using prog,
// reused from pool when possible. Pair with Release once the parse (and any
// use of its result) is done.
func Acquire(prog *compiler.Program, root schema.DefIndex, cfg Config) *Decoder {
	d := pool.Get().(*Decoder)
	d.reset(prog, root, cfg)
	return d
}

// Release returns d to pool for reuse. d must not be used again afterward.
func Release(d *Decoder) {
	pool.Put(d)
}

// reset rewinds d to a freshly-constructed state for prog/root/cfg, reusing
// the capacity of its frames and calls slices rather than reallocating them.
func (d *Decoder) reset(prog *compiler.Program, root schema.DefIndex, cfg Config) {
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = MaxNesting
	}
	*d = Decoder{
		prog:             prog,
		root:             root,
		allowInvalidUTF8: cfg.AllowInvalidUTF8,
		maxDepth:         maxDepth,
		pc:               prog.MethodFor(root).Entry,
		frames:           d.frames[:0],
		calls:            d.calls[:0],
	}
}

// Start begins the parse, pushing the outermost message's frame and
// invoking sink.StartMessage via the bytecode's leading OP_STARTMSG the
// first time Put or End runs the interpreter.
func (d *Decoder) Start(sink Sink) error {
	if d.started {
		return &ParseError{Code: ErrorHandlerRejected, Detail: "Start called twice"}
	}
	d.started = true
	root := d.prog.MethodFor(d.root)
	f := &frame{end: -1, method: root, sink: sink, seqStarted: make([]bool, len(root.Def.Fields))}
	newFrameShims(f, root)
	d.frames = append(d.frames, f)
	return nil
}

// Put feeds the next chunk of wire bytes to the decoder. It always
// logically accepts the entire slice (buffering internally as needed),
// unless a fatal parse error has occurred, in which case it returns that
// error immediately without looking at data.
func (d *Decoder) Put(data []byte) error {
	if d.err != nil {
		return d.err
	}
	if !d.started {
		return &ParseError{Code: ErrorHandlerRejected, Detail: "Put called before Start"}
	}
	if d.done {
		return &ParseError{Code: ErrorTruncatedAtEnd, Detail: "Put called after message already ended"}
	}
	if len(data) == 0 {
		return nil
	}

	if len(d.buf) > d.pos {
		d.buf = append(d.buf[d.pos:], data...)
	} else {
		d.buf = data
	}
	d.pos = 0

	return d.drain()
}

// End signals that no more bytes are coming. If the input stopped cleanly
// between two fields of the outermost message, End runs that message's
// epilogue (OP_ENDMSG, so its sequences and EndMessage fire). Otherwise
// (bytes of an incomplete value still buffered, a pending skip, or an open
// nested frame) it fails with ErrorTruncatedAtEnd.
func (d *Decoder) End() error {
	if d.err != nil {
		return d.err
	}
	if !d.done && d.started {
		// Run what's buffered (at least the leading OP_STARTMSG), then close
		// the outermost message if it is waiting for its next tag.
		if err := d.drain(); err != nil {
			return err
		}
		if len(d.frames) == 1 && d.avail() == 0 && d.pendingSkip == nil &&
			d.prog.Instrs[d.pc].Op == compiler.OpDispatch {
			entry, _ := d.curFrame().method.Dispatch.Lookup(dispatch.EndMsgKey)
			d.pc = int(entry.Offset)
			if err := d.drain(); err != nil {
				return err
			}
		}
	}
	if !d.done {
		return d.fail(ErrorTruncatedAtEnd, "input ended with an open frame")
	}
	return nil
}

// drain runs the interpreter until a step reports it needs more bytes than
// are currently buffered (in which case the unconsumed tail is saved for
// the next Put), the parse finishes, or it fails. Many opcodes (OP_POP,
// OP_BRANCH, OP_CALL, OP_RET, the start/end brackets) never touch the
// buffer at all, so this deliberately does not pre-check "is buf empty"
// before calling step: only the opcodes that actually read bytes do that
// check, and correctly report "need more" via their own return value.
func (d *Decoder) drain() error {
	for {
		more, err := d.step()
		if err != nil {
			d.err = err
			return err
		}
		if d.done {
			return nil
		}
		if !more {
			d.saveResidual()
			return nil
		}
	}
}

// saveResidual trims buf down to its unconsumed tail so the next Put call
// starts from there.
func (d *Decoder) saveResidual() {
	d.base += int64(d.pos)
	rest := d.buf[d.pos:]
	if len(rest) == 0 {
		d.buf = nil
	} else {
		tail := make([]byte, len(rest))
		copy(tail, rest)
		d.buf = tail
	}
	d.pos = 0
}

func (d *Decoder) fail(code Code, detail string) error {
	err := &ParseError{Code: code, Offset: uint64(d.absPos()), Detail: detail}
	d.err = err
	if debug.Enabled {
		debug.Log(nil, "vm.fail", "%v\nstack:\n%s", err, debug.Stack(3))
	}
	return err
}

// ShimValue returns the raw bit pattern stored at offset in the current
// frame's shim storage by a HandlerShim field (reinterpret with
// math.Float64frombits/math.Float32frombits for float-kind fields), and
// whether its hasbit (if any) has been set. False if offset is out of range
// for this frame's method or was never written.
func (d *Decoder) ShimValue(offset int) (uint64, bool) {
	f := d.curFrame()
	if offset < 0 || offset >= len(f.shimData) {
		return 0, false
	}
	return f.shimData[offset], true
}

// ShimPresent reports whether hasbit has been set in the current frame's
// shim presence bitmap.
func (d *Decoder) ShimPresent(hasbit int) bool {
	f := d.curFrame()
	if hasbit < 0 || hasbit >= len(f.hasbits) {
		return false
	}
	return f.hasbits[hasbit]
}

func (d *Decoder) curFrame() *frame { return d.frames[len(d.frames)-1] }

func (d *Decoder) absPos() int64 { return d.base + int64(d.pos) }

func (d *Decoder) avail() int { return len(d.buf) - d.pos }

func (d *Decoder) consume(n int) { d.pos += n }

func (d *Decoder) pushFrame(f *frame) error {
	if len(d.frames) >= d.maxDepth {
		return d.fail(ErrorRecursionDepth, "nesting depth exceeded")
	}
	d.frames = append(d.frames, f)
	return nil
}

func (d *Decoder) popFrame() { d.frames = d.frames[:len(d.frames)-1] }

// getVarint decodes a varint at the current position. status is VarintOK
// (val/n valid, already consumed), VarintShort (not enough bytes buffered
// yet; caller should suspend and retry after the next Put), or
// VarintMalformed (ten continuation bytes with no terminator: a genuine
// protocol error, not a buffering problem).
func (d *Decoder) getVarint() (val uint64, status wire.VarintStatus) {
	val, n, status := wire.DecodeVarint(d.buf[d.pos:])
	if status == wire.VarintOK {
		d.consume(n)
	}
	return val, status
}

func (d *Decoder) getFixed32() (uint32, bool) {
	v, ok := wire.DecodeFixed32(d.buf[d.pos:])
	if !ok {
		return 0, false
	}
	d.consume(4)
	return v, true
}

func (d *Decoder) getFixed64() (uint64, bool) {
	v, ok := wire.DecodeFixed64(d.buf[d.pos:])
	if !ok {
		return 0, false
	}
	d.consume(8)
	return v, true
}
