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

// Package schema holds the immutable description of a set of protobuf
// message types that the bytecode compiler consumes.
//
// A Schema is arena-indexed rather than built from pointer-linked defs: a
// MessageDef refers to its field's submessage type by an index into the
// owning Schema, not by a pointer. This keeps cyclic message graphs (a
// message that directly or indirectly contains itself, which is common and
// legal in protobuf) trivial to represent without refcounting or
// copy-on-cycle tricks, at the cost of needing the owning *Schema at hand
// to resolve a FieldDef.Sub index back to a *MessageDef.
package schema

import "google.golang.org/protobuf/reflect/protoreflect"

// DefIndex indexes into a Schema's Messages slice. -1 means "no submessage"
// (the field is not message- or group-typed).
type DefIndex int32

// NoDef is the DefIndex value meaning "not a message/group field".
const NoDef DefIndex = -1

// Schema is an arena of MessageDefs built from a set of related
// protoreflect descriptors. Immutable and safe for concurrent read once
// FromDescriptor returns.
type Schema struct {
	Messages []MessageDef
	byName   map[protoreflect.FullName]DefIndex
}

// Lookup finds a previously registered MessageDef by its fully qualified
// name, returning NoDef if absent.
func (s *Schema) Lookup(name protoreflect.FullName) DefIndex {
	if s.byName == nil {
		return NoDef
	}
	idx, ok := s.byName[name]
	if !ok {
		return NoDef
	}
	return idx
}

// Def returns the MessageDef at index i.
func (s *Schema) Def(i DefIndex) *MessageDef {
	return &s.Messages[i]
}

// Label is a field's cardinality, matching protoreflect.Cardinality.
type Label int

const (
	LabelOptional Label = iota
	LabelRequired
	LabelRepeated
)

// Kind mirrors protoreflect.Kind for the wire-relevant scalar/message/group
// distinctions the compiler cares about.
type Kind = protoreflect.Kind

// FieldDef describes one field of a message, enough to compile a dispatch
// entry and a bytecode sequence for it.
type FieldDef struct {
	Number     protoreflect.FieldNumber
	Name       protoreflect.Name
	Kind       Kind
	Label      Label
	Packed     bool
	OneofIndex int // -1 if the field is not part of a oneof.

	// Sub is the DefIndex of the field's message/group type, or NoDef for
	// scalar fields.
	Sub DefIndex

	// Enum is non-nil when Kind == protoreflect.EnumKind, naming the enum
	// type and its declared values. Decoding itself never consults it
	// (unknown enum values still decode as plain int32s, matching proto3
	// open-enum semantics); it exists for tooling that wants to render a
	// decoded integer as its symbolic name.
	Enum *EnumDef
}

// IsMessage reports whether the field is message- or group-typed.
func (f *FieldDef) IsMessage() bool {
	return f.Kind == protoreflect.MessageKind || f.Kind == protoreflect.GroupKind
}

// ExtensionRange is a half-open [Start, End) range of field numbers
// reserved for extensions on a message.
type ExtensionRange struct {
	Start, End protoreflect.FieldNumber
}

// MessageDef describes one message type: its fields, in declaration order,
// and whether it participates in a reference cycle.
type MessageDef struct {
	Name   protoreflect.FullName
	Fields []FieldDef

	// ExtensionRanges records field-number ranges reserved for extensions.
	// A field number that falls in one of these ranges but has no
	// registered dispatch entry is still handled as an ordinary unknown
	// field: this list exists so tooling and the compiler can tell
	// "unknown because it's an extension" apart from "unknown because the
	// schema doesn't have this field at all", without changing decode
	// behavior either way.
	ExtensionRanges []ExtensionRange

	// Cyclic is true if this message is part of a strongly connected
	// component of size > 1 in the message-reachability graph, or has a
	// direct self-edge. Set by Schema construction via internal/scc.
	Cyclic bool

	// index is this message's own position in the owning Schema, kept so
	// compiler code that only has a *MessageDef can still look up self
	// index without a separate map.
	index DefIndex
}

// Index returns this message's index within its owning Schema.
func (m *MessageDef) Index() DefIndex {
	return m.index
}

// FieldByNumber finds a field by wire number, or returns nil.
func (m *MessageDef) FieldByNumber(n protoreflect.FieldNumber) *FieldDef {
	for i := range m.Fields {
		if m.Fields[i].Number == n {
			return &m.Fields[i]
		}
	}
	return nil
}

// EnumDef describes an enum type: its name and the set of declared values.
// Decoding itself doesn't validate enum membership (unknown enum values are
// stored as plain int32s, matching proto3 open-enum semantics), but the
// value set is retained for tooling (e.g. the trace dump command) to
// annotate decoded integers with their symbolic name.
type EnumDef struct {
	Name   protoreflect.FullName
	Values map[int32]protoreflect.Name
}
