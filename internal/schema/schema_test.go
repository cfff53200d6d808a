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

package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/pbtdp/decode/internal/schema"
)

// These tests build a Schema from google.protobuf.DescriptorProto and its
// neighbors, a real non-trivial message available without needing protoc:
// it has repeated message fields, a self-reference (nested_type contains
// more DescriptorProto), and several scalar kinds.

func TestFromDescriptorVisitsRootFirst(t *testing.T) {
	md := (&descriptorpb.DescriptorProto{}).ProtoReflect().Descriptor()
	s := schema.FromDescriptor(md)
	require.NotEmpty(t, s.Messages)
	assert.Equal(t, md.FullName(), s.Messages[0].Name)
	assert.Equal(t, schema.DefIndex(0), s.Lookup(md.FullName()))
}

func TestFromDescriptorReachesNestedAndRepeatedSubmessages(t *testing.T) {
	md := (&descriptorpb.FileDescriptorProto{}).ProtoReflect().Descriptor()
	s := schema.FromDescriptor(md)

	// FileDescriptorProto transitively reaches DescriptorProto,
	// FieldDescriptorProto, EnumDescriptorProto, and others through its
	// repeated message_type/enum_type/etc fields.
	idx := s.Lookup("google.protobuf.DescriptorProto")
	require.NotEqual(t, schema.NoDef, idx)
	assert.NotEmpty(t, s.Def(idx).Fields)
}

func TestFromDescriptorHandlesSelfReferentialCycle(t *testing.T) {
	// DescriptorProto.nested_type is repeated DescriptorProto: a direct
	// self-cycle. FromDescriptor must terminate and mark it Cyclic.
	md := (&descriptorpb.DescriptorProto{}).ProtoReflect().Descriptor()
	s := schema.FromDescriptor(md)

	idx := s.Lookup(md.FullName())
	require.NotEqual(t, schema.NoDef, idx)
	assert.True(t, s.Def(idx).Cyclic)
}

func TestFieldDefSubPointsBackIntoSchema(t *testing.T) {
	md := (&descriptorpb.DescriptorProto{}).ProtoReflect().Descriptor()
	s := schema.FromDescriptor(md)
	def := s.Def(s.Lookup(md.FullName()))

	var found bool
	for _, f := range def.Fields {
		if f.Name != "field" {
			continue
		}
		found = true
		require.True(t, f.IsMessage())
		require.NotEqual(t, schema.NoDef, f.Sub)
		assert.Equal(t, schema.LabelRepeated, f.Label)
		assert.Equal(t, "google.protobuf.FieldDescriptorProto", string(s.Def(f.Sub).Name))
	}
	assert.True(t, found, "DescriptorProto should have a repeated `field` field")
}

func TestFromDescriptorPopulatesEnumDef(t *testing.T) {
	// FieldDescriptorProto.label and .type are both enum-kind fields
	// (google.protobuf.FieldDescriptorProto.Label/.Type).
	md := (&descriptorpb.FieldDescriptorProto{}).ProtoReflect().Descriptor()
	s := schema.FromDescriptor(md)
	def := s.Def(s.Lookup(md.FullName()))

	var typeField *schema.FieldDef
	for i := range def.Fields {
		if def.Fields[i].Name == "type" {
			typeField = &def.Fields[i]
			break
		}
	}
	require.NotNil(t, typeField, "FieldDescriptorProto should have a `type` field")
	require.NotNil(t, typeField.Enum)
	assert.Equal(t, protoreflect.FullName("google.protobuf.FieldDescriptorProto.Type"), typeField.Enum.Name)
	name, ok := typeField.Enum.Values[int32(descriptorpb.FieldDescriptorProto_TYPE_INT32)]
	require.True(t, ok)
	assert.Equal(t, protoreflect.Name("TYPE_INT32"), name)
}

func TestNewHandlerCacheDefaultsToHandlerFunc(t *testing.T) {
	md := (&descriptorpb.DescriptorProto{}).ProtoReflect().Descriptor()
	s := schema.FromDescriptor(md)
	hc := schema.NewHandlerCache(s)

	idx := s.Lookup(md.FullName())
	handlers := hc.Get(idx)
	require.NotNil(t, handlers)
	require.Len(t, handlers.ByField, len(s.Def(idx).Fields))
	for _, h := range handlers.ByField {
		assert.Equal(t, schema.HandlerFunc, h.Kind)
	}
	assert.Equal(t, schema.HandlerFunc, handlers.StartMessage.Kind)
	assert.Equal(t, schema.HandlerFunc, handlers.EndMessage.Kind)
}

func TestShimFieldOverridesDefaultHandler(t *testing.T) {
	md := (&descriptorpb.DescriptorProto{}).ProtoReflect().Descriptor()
	s := schema.FromDescriptor(md)
	hc := schema.NewHandlerCache(s)

	idx := s.Lookup(md.FullName())
	handlers := hc.Get(idx)
	handlers.ShimField(0, 3, 1)

	assert.Equal(t, schema.HandlerShim, handlers.ByField[0].Kind)
	assert.Equal(t, 3, handlers.ByField[0].Shim.Offset)
	assert.Equal(t, 1, handlers.ByField[0].Shim.Hasbit)
	for _, h := range handlers.ByField[1:] {
		assert.Equal(t, schema.HandlerFunc, h.Kind)
	}
}
