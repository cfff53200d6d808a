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

// Package compiler turns a schema into the bytecode the VM interprets.
//
// Grounded on original_source/upb/pb/compile_decoder.c: a two-pass
// compile (lay out every message's bytecode and record its entry offset,
// then patch branch, CALL and dispatch offsets in place) producing a flat
// Program shared read-only by every Decoder that uses it.
package compiler

// Op is a bytecode opcode. Values are arbitrary (unlike upb's C decoder,
// nothing outside this package inspects the numeric value), but are kept in
// the same rough grouping as decoder.int.h's enum for ease of
// cross-referencing.
type Op int

const (
	OpParseDouble Op = iota
	OpParseFloat
	OpParseInt64
	OpParseUint64
	OpParseInt32
	OpParseFixed64
	OpParseFixed32
	OpParseBool
	OpParseUint32
	OpParseSfixed32
	OpParseSfixed64
	OpParseSint32
	OpParseSint64

	OpStartMsg
	OpEndMsg
	OpStartSeq
	OpEndSeq
	OpStartSubMsg
	OpEndSubMsg
	OpStartStr
	OpString
	OpEndStr

	OpPushTagDelim
	OpPushLenDelim
	OpPop
	OpSetDelim
	OpSetBigGroupNum
	OpCheckDelim

	OpCall
	OpRet
	OpBranch

	OpTag1
	OpTag2
	OpTagN

	OpSetDispatch
	OpDispatch
	OpHalt
)

// Instr is one bytecode instruction. Not every field is meaningful for
// every Op; see compileMessage in compile.go and the compile*Field
// functions in field_codegen.go for which fields each opcode is given.
type Instr struct {
	Op Op

	// N is a small immediate. No opcode this compiler emits sets it and the
	// VM never reads it; branch and call targets live in Target.
	N int64

	// Field points at the schema field this instruction parses, for
	// opcodes that need to know where to store the result (the VM consults
	// the field's compiled Handler).
	Field *CompiledField

	// Target is the instruction index a CALL, BRANCH, or label-patched
	// reference resolves to, filled in during the link pass.
	Target int
}
