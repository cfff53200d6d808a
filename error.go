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

package decode

import "github.com/pbtdp/decode/internal/tdp/vm"

// Code identifies a class of decode failure.
type Code = vm.Code

// The codes a Decoder can fail with. See [ParseError].
const (
	ErrorUnterminatedVarint = vm.ErrorUnterminatedVarint
	ErrorRecursionDepth     = vm.ErrorRecursionDepth
	ErrorSubmessageTooLong  = vm.ErrorSubmessageTooLong
	ErrorBadWireType        = vm.ErrorBadWireType
	ErrorZeroField          = vm.ErrorZeroField
	ErrorFieldTooLarge      = vm.ErrorFieldTooLarge
	ErrorUnmatchedEndGroup  = vm.ErrorUnmatchedEndGroup
	ErrorSkipPastParent     = vm.ErrorSkipPastParent
	ErrorHandlerRejected    = vm.ErrorHandlerRejected
	ErrorTruncatedAtEnd     = vm.ErrorTruncatedAtEnd
	ErrorNullBuffer         = vm.ErrorNullBuffer
	ErrorBadUTF8            = vm.ErrorBadUTF8
)

// ParseError is a fatal decode failure, carrying the absolute stream offset
// (relative to the start of the message being parsed) at which it occurred
// and the [Code] classifying it.
type ParseError = vm.ParseError
