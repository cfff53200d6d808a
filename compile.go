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
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/pbtdp/decode/internal/schema"
	"github.com/pbtdp/decode/internal/tdp/compiler"
)

// CompileForDescriptor compiles md, and every message type reachable from
// it, into a Program. This does one-time work (building the schema,
// resolving handlers, laying out bytecode) that every Decoder the
// resulting Program creates then shares.
func CompileForDescriptor(md protoreflect.MessageDescriptor) *Program {
	s := schema.FromDescriptor(md)
	h := schema.NewHandlerCache(s)
	prog := compiler.Compile(s, h)
	return &Program{prog: prog}
}

// CompileFor is a helper for calling CompileForDescriptor using the
// descriptor of an existing generated message type.
//
// This won't work if T is a dynamic type with no fixed descriptor, such as
// *dynamicpb.Message.
func CompileFor[T proto.Message]() *Program {
	var m T
	return CompileForDescriptor(m.ProtoReflect().Descriptor())
}

// CompileFromBytes unmarshals a google.protobuf.FileDescriptorSet from raw,
// looks up a message by name, and compiles a Program for it.
func CompileFromBytes(raw []byte, messageName protoreflect.FullName) (*Program, error) {
	fds := new(descriptorpb.FileDescriptorSet)
	if err := proto.Unmarshal(raw, fds); err != nil {
		return nil, err
	}
	files, err := protodesc.NewFiles(fds)
	if err != nil {
		return nil, err
	}
	desc, err := files.FindDescriptorByName(messageName)
	if err != nil {
		return nil, err
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, protoregistry.NotFound
	}
	return CompileForDescriptor(md), nil
}
