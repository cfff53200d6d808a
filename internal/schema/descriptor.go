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

import "google.golang.org/protobuf/reflect/protoreflect"

// FromDescriptor builds a Schema containing root and every message
// reachable from it through its fields, directly or transitively.
//
// This consumes an already-built protoreflect.MessageDescriptor; it does
// not parse a FileDescriptorProto or resolve imports itself (that's the
// caller's job, typically via protodesc or a generated Go type's
// ProtoReflect().Descriptor()).
func FromDescriptor(root protoreflect.MessageDescriptor) *Schema {
	s := &Schema{byName: make(map[protoreflect.FullName]DefIndex)}
	enums := make(map[protoreflect.FullName]*EnumDef)

	var visit func(md protoreflect.MessageDescriptor) DefIndex
	visit = func(md protoreflect.MessageDescriptor) DefIndex {
		if idx, ok := s.byName[md.FullName()]; ok {
			return idx
		}

		// Reserve our slot before recursing, so a cycle back to md sees a
		// valid (if not yet populated) index instead of recursing forever.
		idx := DefIndex(len(s.Messages))
		s.Messages = append(s.Messages, MessageDef{
			Name:  md.FullName(),
			index: idx,
		})
		s.byName[md.FullName()] = idx

		fields := md.Fields()
		defs := make([]FieldDef, 0, fields.Len())
		for i := 0; i < fields.Len(); i++ {
			fd := fields.Get(i)
			def := FieldDef{
				Number:     fd.Number(),
				Name:       fd.Name(),
				Kind:       fd.Kind(),
				Packed:     fd.IsPacked(),
				Sub:        NoDef,
				OneofIndex: -1,
			}
			switch {
			case fd.IsList():
				def.Label = LabelRepeated
			case fd.Cardinality() == protoreflect.Required:
				def.Label = LabelRequired
			default:
				def.Label = LabelOptional
			}
			if oo := fd.ContainingOneof(); oo != nil && !oo.IsSynthetic() {
				def.OneofIndex = oo.Index()
			}
			if def.IsMessage() {
				def.Sub = visit(fd.Message())
			}
			if fd.Kind() == protoreflect.EnumKind {
				def.Enum = enumDefFor(enums, fd.Enum())
			}
			defs = append(defs, def)
		}

		ranges := md.ExtensionRanges()
		extRanges := make([]ExtensionRange, 0, ranges.Len())
		for i := 0; i < ranges.Len(); i++ {
			r := ranges.Get(i)
			extRanges = append(extRanges, ExtensionRange{Start: r[0], End: r[1]})
		}

		m := s.Def(idx)
		m.Fields = defs
		m.ExtensionRanges = extRanges
		return idx
	}

	visit(root)
	tagCycles(s)
	return s
}

// enumDefFor returns the EnumDef for ed, building and caching it in cache on
// first sight so two fields of the same enum type share one EnumDef.
func enumDefFor(cache map[protoreflect.FullName]*EnumDef, ed protoreflect.EnumDescriptor) *EnumDef {
	if e, ok := cache[ed.FullName()]; ok {
		return e
	}
	values := ed.Values()
	e := &EnumDef{
		Name:   ed.FullName(),
		Values: make(map[int32]protoreflect.Name, values.Len()),
	}
	for i := 0; i < values.Len(); i++ {
		v := values.Get(i)
		e.Values[int32(v.Number())] = v.Name()
	}
	cache[ed.FullName()] = e
	return e
}
