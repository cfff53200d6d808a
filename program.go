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

package decode

import (
	"github.com/pbtdp/decode/internal/schema"
	"github.com/pbtdp/decode/internal/tdp/compiler"
	"github.com/pbtdp/decode/internal/tdp/vm"
)

// Program is the compiled bytecode for a message type and every message
// type reachable from it. Immutable once returned by CompileForDescriptor;
// safe to share across many concurrently running Decoders.
type Program struct {
	prog *compiler.Program
}

// rootIndex is always 0: FromDescriptor visits its root argument first,
// before any message reachable from it, so the root always claims the
// first slot in the resulting Schema.
const rootIndex schema.DefIndex = 0

// NewDecoder creates a Decoder that will parse one message of the type
// p was compiled for, driving sink as it does.
func (p *Program) NewDecoder(sink Sink, opts ...Option) *Decoder {
	cfg := vm.DefaultConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	inner := vm.Acquire(p.prog, rootIndex, cfg)
	d := &Decoder{inner: inner}
	d.err = inner.Start(sink)
	return d
}

// Sink is the visitor a Decoder drives as it parses wire bytes. See
// internal/tdp/vm.Sink for the full method-by-method contract; this is a
// re-export so callers implementing one don't need to import an internal
// package.
type Sink = vm.Sink

// HandlerData identifies which field a Sink callback fires for.
type HandlerData = vm.HandlerData

// Decoder drives one in-progress parse of a single top-level message
// against a Program. Not safe for concurrent use.
type Decoder struct {
	inner *vm.Decoder
	err   error
}

// Put feeds the next chunk of wire bytes to the decoder. The decoder
// always logically accepts the whole slice, buffering internally as
// needed, unless a fatal ParseError has already occurred.
func (d *Decoder) Put(data []byte) error {
	if d.err != nil {
		return d.err
	}
	return d.inner.Put(data)
}

// End signals that no more bytes are coming, returning a ParseError with
// code ErrorTruncatedAtEnd if the message was left open mid-field.
func (d *Decoder) End() error {
	if d.err != nil {
		return d.err
	}
	return d.inner.End()
}

// Release returns d's internal parser state to a shared pool for reuse by a
// future NewDecoder call, the way hyperpb recycles its parser stack. d must
// not be used again after calling Release.
func (d *Decoder) Release() {
	if d.inner == nil {
		return
	}
	vm.Release(d.inner)
	d.inner = nil
}
