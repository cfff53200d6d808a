// Copyright 2020-2025 Buf Technologies, Inc.
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

// Package decode implements a resumable, push-model decoder for the
// protobuf wire format: a byte-code compiler turns a
// [protoreflect.MessageDescriptor] into a flat program once, and a cheap
// per-parse [Decoder] interprets that program against a [Sink], accepting
// wire bytes in arbitrarily small pieces across many calls to [Decoder.Put]
// rather than requiring the whole message up front.
//
// To use this package, compile a [Program] for a message type with
// [CompileForDescriptor]. This is a one-time cost; the resulting Program is
// immutable and safe to share across many concurrent Decoders. Drive a
// parse by implementing [Sink] and calling [Program.NewDecoder] (which
// starts the parse against that Sink), repeated [Decoder.Put], and finally
// [Decoder.End].
//
// # Support status
//
// This package decodes wire bytes into Sink callbacks; it does not build or
// mutate protobuf messages, and does not implement encoding, presence
// reflection, or descriptor-proto loading.
package decode
